package ctrl

// Channel is an open handle on the bcache control device
type Channel interface {
	// Ioctl issues req with payload as its in/out argument
	Ioctl(req uint32, payload []byte) error
	Close() error
}

// OpenFunc opens the control channel
type OpenFunc func() (Channel, error)

// Request records one submitted ioctl; used by RecordingChannel
type Request struct {
	Cmd     uint32
	Payload []byte
}

// RecordingChannel is an in-memory Channel that keeps every request it
// sees. Err, when set, is returned from every Ioctl.
type RecordingChannel struct {
	Requests []Request
	Err      error
	Closed   bool
}

// Ioctl implements Channel
func (r *RecordingChannel) Ioctl(req uint32, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	r.Requests = append(r.Requests, Request{Cmd: req, Payload: buf})
	return r.Err
}

// Close implements Channel
func (r *RecordingChannel) Close() error {
	r.Closed = true
	return nil
}
