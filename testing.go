package bcache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/ctrl"
	"github.com/ehrlich-b/go-bcache/internal/device"
	"github.com/ehrlich-b/go-bcache/internal/probe"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

// MockEnvironment provides an in-memory Environment for testing code that
// calls Format. Devices are RAM-backed; sysfs, the control channel and the
// release delay are simulated and every interaction is recorded.
type MockEnvironment struct {
	mu      sync.Mutex
	devices map[string]*mockDevice

	// Channel receives control channel requests
	Channel *ctrl.RecordingChannel
	// ControlErr, when set, is returned when the control channel is opened
	ControlErr error

	released []string
	sleeps   []time.Duration
	uuidSeq  uint32
}

type mockDevice struct {
	mem         *device.Memory
	blockSize   uint32
	notBlock    bool
	signature   string
	zoned       bool
	zoneSectors uint64

	busy          bool
	busyAfterStop int // exclusive opens refused after the driver lets go
	released      bool
}

// NewMockEnvironment creates an environment with no devices
func NewMockEnvironment() *MockEnvironment {
	return &MockEnvironment{
		devices: make(map[string]*mockDevice),
		Channel: &ctrl.RecordingChannel{},
	}
}

// AddDevice creates a block device of size bytes with 512-byte logical blocks
func (m *MockEnvironment) AddDevice(path string, size int64) *device.Memory {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := &mockDevice{mem: device.NewMemory(size), blockSize: constants.SectorSize}
	m.devices[path] = d
	return d.mem
}

// Device returns the memory behind path, or nil
func (m *MockEnvironment) Device(path string) *device.Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[path]; ok {
		return d.mem
	}
	return nil
}

func (m *MockEnvironment) update(path string, fn func(d *mockDevice)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[path]; ok {
		fn(d)
	}
}

// SetLogicalBlockSize sets the logical block size reported for path, in bytes
func (m *MockEnvironment) SetLogicalBlockSize(path string, bytes uint32) {
	m.update(path, func(d *mockDevice) { d.blockSize = bytes })
}

// SetSignature makes the prober report name for path
func (m *MockEnvironment) SetSignature(path, name string) {
	m.update(path, func(d *mockDevice) { d.signature = name })
}

// SetZoned marks path as a zoned device with the given zone size in sectors
func (m *MockEnvironment) SetZoned(path string, zoneSectors uint64) {
	m.update(path, func(d *mockDevice) {
		d.zoned = true
		d.zoneSectors = zoneSectors
	})
}

// SetNotBlockDevice makes path look like a regular file to the control path
func (m *MockEnvironment) SetNotBlockDevice(path string) {
	m.update(path, func(d *mockDevice) { d.notBlock = true })
}

// SetBusy makes path refuse exclusive opens with EBUSY until the driver is
// asked to release it, and then for opensAfterRelease more attempts
func (m *MockEnvironment) SetBusy(path string, opensAfterRelease int) {
	m.update(path, func(d *mockDevice) {
		d.busy = true
		d.busyAfterStop = opensAfterRelease
		d.released = false
	})
}

// Released returns the release requests seen, in order. Backing devices
// appear as "stop:<path>" and cache sets as "unregister:<uuid>".
func (m *MockEnvironment) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

// Sleeps returns every delay requested by the release wait loop
func (m *MockEnvironment) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.sleeps...)
}

func notFound(op, path string) error {
	return &fs.PathError{Op: op, Path: path, Err: syscall.ENOENT}
}

func (m *MockEnvironment) lookup(op, path string) (*mockDevice, error) {
	d, ok := m.devices[path]
	if !ok {
		return nil, notFound(op, path)
	}
	return d, nil
}

func (m *MockEnvironment) stat(path string) (DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.lookup("stat", path)
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{
		IsBlockDevice:    !d.notBlock,
		SizeSectors:      uint64(d.mem.Size()) / constants.SectorSize,
		LogicalBlockSize: d.blockSize,
	}, nil
}

func (m *MockEnvironment) openExclusive(path string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.lookup("open", path)
	if err != nil {
		return nil, err
	}
	if d.busy {
		if !d.released || d.busyAfterStop > 0 {
			if d.released {
				d.busyAfterStop--
			}
			return nil, &fs.PathError{Op: "open", Path: path, Err: syscall.EBUSY}
		}
		d.busy = false
	}
	d.mem.Reopen()
	return d.mem, nil
}

func (m *MockEnvironment) openReadOnly(path string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.lookup("open", path)
	if err != nil {
		return nil, err
	}
	return readOnlyView{mem: d.mem}, nil
}

// readOnlyView reads a snapshot of a mock device; closing it leaves the
// device untouched
type readOnlyView struct {
	mem *device.Memory
}

func (v readOnlyView) ReadAt(p []byte, off int64) (int, error) {
	data := v.mem.Bytes()
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (v readOnlyView) WriteAt(p []byte, off int64) (int, error) {
	return 0, &fs.PathError{Op: "write", Path: "readonly", Err: syscall.EBADF}
}

func (v readOnlyView) Size() int64  { return v.mem.Size() }
func (v readOnlyView) Sync() error  { return nil }
func (v readOnlyView) Close() error { return nil }

func (m *MockEnvironment) isBlockDevice(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[path]
	return ok && !d.notBlock
}

func (m *MockEnvironment) probe(dev Device) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if Device(d.mem) == dev {
			return d.signature, nil
		}
	}
	return "", nil
}

// mockSysfs implements Sysfs on top of the environment
type mockSysfs struct {
	m *MockEnvironment
}

func (s mockSysfs) IsZoned(path string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d, ok := s.m.devices[path]
	return ok && d.zoned, nil
}

func (s mockSysfs) ZoneSectors(path string) (uint64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d, err := s.m.lookup("read", path)
	if err != nil {
		return 0, err
	}
	return d.zoneSectors, nil
}

func (s mockSysfs) StopBacking(path string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	d, err := s.m.lookup("write", path)
	if err != nil {
		return err
	}
	s.m.released = append(s.m.released, "stop:"+path)
	d.released = true
	return nil
}

func (s mockSysfs) UnregisterSet(set uuid.UUID) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	s.m.released = append(s.m.released, "unregister:"+set.String())
	found := false
	for _, d := range s.m.devices {
		buf := d.mem.Bytes()
		if len(buf) < constants.SBStart+uapi.SuperblockSize {
			continue
		}
		var sb uapi.Superblock
		if uapi.Unmarshal(buf[constants.SBStart:], &sb) != nil || !sb.HasMagic() || sb.IsBdev() {
			continue
		}
		if sb.SetUUID == set {
			d.released = true
			found = true
		}
	}
	if !found {
		return notFound("write", fmt.Sprintf("/sys/fs/bcache/%s/unregister", set))
	}
	return nil
}

// Environment returns an Environment wired to the mock
func (m *MockEnvironment) Environment() *Environment {
	return &Environment{
		Stat:          m.stat,
		OpenExclusive: m.openExclusive,
		OpenReadOnly:  m.openReadOnly,
		IsBusy: func(err error) bool {
			return errors.Is(err, syscall.EBUSY)
		},
		IsBlockDevice: m.isBlockDevice,
		Prober:        probe.ProberFunc(m.probe),
		Sysfs:         mockSysfs{m: m},
		OpenControl: func() (ControlChannel, error) {
			if m.ControlErr != nil {
				return nil, m.ControlErr
			}
			return m.Channel, nil
		},
		Sleep: func(d time.Duration) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.sleeps = append(m.sleeps, d)
		},
		NewUUID: func() (uuid.UUID, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.uuidSeq++
			var id uuid.UUID
			id[0] = byte(m.uuidSeq >> 24)
			id[1] = byte(m.uuidSeq >> 16)
			id[2] = byte(m.uuidSeq >> 8)
			id[3] = byte(m.uuidSeq)
			id[6] = 0x40
			id[8] = 0x80
			return id, nil
		},
	}
}
