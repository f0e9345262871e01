// Package probe detects what a target device already holds before it is
// formatted: a previous bcache superblock, or some other filesystem or
// partition table signature.
package probe

import (
	"fmt"

	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/errs"
	"github.com/ehrlich-b/go-bcache/internal/interfaces"
	"github.com/ehrlich-b/go-bcache/internal/logging"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

// State classifies the existing contents of a device
type State int

const (
	// Clean means neither a bcache superblock nor a foreign signature was found
	Clean State = iota
	// RecognizedPriorFormat means a bcache superblock is already present
	RecognizedPriorFormat
	// ForeignSignature means some other filesystem or partition table is present
	ForeignSignature
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case RecognizedPriorFormat:
		return "bcache"
	case ForeignSignature:
		return "foreign"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Prober reports the name of the signature found on a device, or "" when
// the device carries none
type Prober interface {
	Probe(dev interfaces.Device) (string, error)
}

// ProberFunc adapts a function to the Prober interface
type ProberFunc func(dev interfaces.Device) (string, error)

// Probe implements Prober
func (f ProberFunc) Probe(dev interfaces.Device) (string, error) {
	return f(dev)
}

// Result is the outcome of Inspect
type Result struct {
	Device    string
	State     State
	Signature string
}

// Guard inspects devices for existing signatures
type Guard struct {
	Prober Prober
	Logger *logging.Logger
}

// NewGuard creates a guard using the given prober. A nil prober only
// checks for a bcache superblock.
func NewGuard(p Prober, logger *logging.Logger) *Guard {
	if logger == nil {
		logger = logging.Default()
	}
	return &Guard{Prober: p, Logger: logger}
}

// Inspect reads the superblock slot of dev and probes it for foreign
// signatures. A foreign signature wins over a bcache one.
func (g *Guard) Inspect(path string, dev interfaces.Device) (Result, error) {
	res := Result{Device: path, State: Clean}

	buf := make([]byte, uapi.SuperblockSize)
	n, err := dev.ReadAt(buf, constants.SBStart)
	if n != len(buf) {
		if err == nil {
			err = fmt.Errorf("short read: %d of %d bytes", n, len(buf))
		}
		return res, errs.Wrap("READ_SB", path, errs.CodeIOFailure, err)
	}

	if uapi.HasMagic(buf) {
		res.State = RecognizedPriorFormat
		res.Signature = "bcache"
	}

	if g.Prober == nil {
		return res, nil
	}

	name, err := g.Prober.Probe(dev)
	if err != nil {
		return res, errs.Wrap("PROBE", path, errs.CodeDeviceAccess, err)
	}

	switch name {
	case "":
	case "bcache":
		res.State = RecognizedPriorFormat
		res.Signature = name
	default:
		res.State = ForeignSignature
		res.Signature = name
	}

	g.Logger.WithDevice(path).Debug("probed existing signature", "state", res.State.String(), "signature", res.Signature)
	return res, nil
}

// Check decides whether formatting may proceed. force implies wipe.
func (r Result) Check(wipe, force bool) error {
	switch r.State {
	case ForeignSignature:
		return errs.NewDeviceCause("PROBE", r.Device, errs.CodeExistingState, errs.ErrForeignSignature,
			fmt.Sprintf("Device %s already has a non-bcache superblock (%s), remove it using wipefs -a", r.Device, r.Signature))
	case RecognizedPriorFormat:
		if wipe || force {
			return nil
		}
		return errs.NewDeviceCause("PROBE", r.Device, errs.CodeExistingState, errs.ErrAlreadyFormatted,
			fmt.Sprintf("Already a bcache device on %s, overwrite with --wipe-bcache or --force", r.Device))
	}
	return nil
}

// Erase zeroes the superblock slot so the old record can no longer be
// picked up, even if the following format is interrupted
func (g *Guard) Erase(path string, dev interfaces.Device) error {
	zeroes := make([]byte, uapi.SuperblockSize)
	n, err := dev.WriteAt(zeroes, constants.SBStart)
	if n != len(zeroes) {
		if err == nil {
			err = fmt.Errorf("short write: %d of %d bytes", n, len(zeroes))
		}
		return errs.Wrap("ERASE_SB", path, errs.CodeIOFailure,
			fmt.Errorf("Failed to erase super block for %s: %w", path, err))
	}
	g.Logger.WithDevice(path).Info("erased existing bcache superblock")
	return nil
}
