package bcache

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/ctrl"
	"github.com/ehrlich-b/go-bcache/internal/device"
	"github.com/ehrlich-b/go-bcache/internal/probe"
	"github.com/ehrlich-b/go-bcache/internal/sysfs"
)

// Sysfs exposes the queue attributes and driver knobs Format needs
type Sysfs interface {
	IsZoned(path string) (bool, error)
	ZoneSectors(path string) (uint64, error)
	StopBacking(path string) error
	UnregisterSet(set uuid.UUID) error
}

// Environment bundles every operating system capability Format uses.
// SystemEnvironment wires the real ones; tests substitute fakes.
type Environment struct {
	// Stat gathers device facts without claiming the device
	Stat func(path string) (DeviceInfo, error)

	// OpenExclusive opens a device for writing with O_EXCL
	OpenExclusive func(path string) (Device, error)

	// OpenReadOnly opens a device without claiming it
	OpenReadOnly func(path string) (Device, error)

	// IsBusy reports whether an OpenExclusive error means the device is claimed
	IsBusy func(err error) bool

	// IsBlockDevice reports whether path names a block device node
	IsBlockDevice func(path string) bool

	Prober      Prober
	Sysfs       Sysfs
	OpenControl func() (ControlChannel, error)

	// Sleep waits between release attempts
	Sleep func(time.Duration)

	// NewUUID supplies device UUIDs
	NewUUID func() (uuid.UUID, error)
}

func openExclusive(path string) (Device, error) {
	b, err := device.OpenExclusive(path)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func openReadOnly(path string) (Device, error) {
	b, err := device.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// SystemEnvironment returns the environment backed by the running system
func SystemEnvironment() *Environment {
	return &Environment{
		Stat:          device.Stat,
		OpenExclusive: openExclusive,
		OpenReadOnly:  openReadOnly,
		IsBusy:        device.IsBusy,
		IsBlockDevice: device.IsBlockDevice,
		Prober:        probe.BlkidProber{},
		Sysfs:         sysfs.New(constants.SysfsRoot),
		OpenControl: func() (ControlChannel, error) {
			return ctrl.OpenChannel(constants.BcacheControlPath)
		},
		Sleep:   time.Sleep,
		NewUUID: uuid.NewRandom,
	}
}
