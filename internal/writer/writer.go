// Package writer puts an encoded superblock on a device opened for
// exclusive use
package writer

import (
	"fmt"

	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/errs"
	"github.com/ehrlich-b/go-bcache/internal/interfaces"
	"github.com/ehrlich-b/go-bcache/internal/logging"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

// Report describes what a Write did
type Report struct {
	BytesWritten int64
	Discarded    bool
	DiscardErr   error
}

// Writer writes superblocks directly to devices
type Writer struct {
	Logger *logging.Logger
}

// New creates a writer
func New(logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Writer{Logger: logger}
}

func writeFull(dev interfaces.Device, p []byte, off int64) (int, error) {
	n, err := dev.WriteAt(p, off)
	if err == nil && n != len(p) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(p))
	}
	return n, err
}

// Write discards the device when asked to (cache devices only), zeroes the
// reserved head, writes the checksummed superblock at sector 8 and syncs.
// A failed discard is reported but never fails the write.
func (w *Writer) Write(path string, dev interfaces.Device, sb *uapi.Superblock, discard bool) (Report, error) {
	var rep Report
	logger := w.Logger.WithDevice(path)

	if discard && !sb.IsBdev() {
		rep.DiscardErr = w.discard(dev)
		if rep.DiscardErr != nil {
			logger.WithError(rep.DiscardErr).Warn("discard failed, continuing without it")
		} else {
			rep.Discarded = true
			logger.Info("discarded device", "bytes", dev.Size())
		}
	}

	record := uapi.MarshalWithChecksum(sb)

	zeroes := make([]byte, constants.SBStart)
	n, err := writeFull(dev, zeroes, 0)
	rep.BytesWritten += int64(n)
	if err != nil {
		return rep, errs.Wrap("ZERO_HEAD", path, errs.CodeIOFailure, err)
	}

	n, err = writeFull(dev, record, constants.SBStart)
	rep.BytesWritten += int64(n)
	if err != nil {
		return rep, errs.Wrap("WRITE_SB", path, errs.CodeIOFailure, err)
	}

	if err := dev.Sync(); err != nil {
		return rep, errs.Wrap("SYNC", path, errs.CodeIOFailure, err)
	}

	logger.Debug("superblock written", "bytes", rep.BytesWritten, "csum", fmt.Sprintf("0x%016x", sb.Csum))
	return rep, nil
}

func (w *Writer) discard(dev interfaces.Device) error {
	d, ok := dev.(interfaces.DiscardDevice)
	if !ok {
		return fmt.Errorf("device does not support discard")
	}
	return d.Discard(0, dev.Size())
}
