// Package quiesce releases a device that is still claimed by the bcache
// driver so it can be reformatted. It asks the driver to stop the device
// (or unregister its cache set) and then polls for exclusive access.
package quiesce

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/errs"
	"github.com/ehrlich-b/go-bcache/internal/interfaces"
	"github.com/ehrlich-b/go-bcache/internal/logging"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

// State is a step of the release protocol
type State int

const (
	DetectingRole State = iota
	Stopping
	WaitingForRelease
	Ready
	Aborted
)

func (s State) String() string {
	switch s {
	case DetectingRole:
		return "detecting-role"
	case Stopping:
		return "stopping"
	case WaitingForRelease:
		return "waiting-for-release"
	case Ready:
		return "ready"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RoleKind tells how a busy device participates in bcache
type RoleKind int

const (
	RoleUnknown RoleKind = iota
	RoleBacking
	RoleCacheMember
)

// Role describes a busy device
type Role struct {
	Kind    RoleKind
	SetUUID uuid.UUID
}

// Detector determines the role of a busy device
type Detector interface {
	Detect(path string) (Role, error)
}

// Releaser asks the driver to let go of a device
type Releaser interface {
	StopBacking(path string) error
	UnregisterSet(set uuid.UUID) error
}

// OpenFunc opens a device exclusively
type OpenFunc func(path string) (interfaces.Device, error)

// Controller runs the release protocol for one device at a time
type Controller struct {
	Detector Detector
	Releaser Releaser
	Open     OpenFunc

	// Sleep waits before every reopen attempt; tests replace it
	Sleep    func(time.Duration)
	Attempts int
	Delay    time.Duration

	Logger *logging.Logger

	// OnAttempt is called after every failed reopen
	OnAttempt func(path string, attempt int)

	transitions []State
}

// NewController creates a controller with the driver's default timing
func NewController(d Detector, r Releaser, open OpenFunc, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{
		Detector: d,
		Releaser: r,
		Open:     open,
		Sleep:    time.Sleep,
		Attempts: constants.ReleaseAttempts,
		Delay:    constants.ReleaseDelay,
		Logger:   logger,
	}
}

// Transitions returns the states visited by the last Run
func (c *Controller) Transitions() []State {
	out := make([]State, len(c.transitions))
	copy(out, c.transitions)
	return out
}

func (c *Controller) enter(s State) {
	c.transitions = append(c.transitions, s)
}

func (c *Controller) abort(path string, cause error, msg string) error {
	c.enter(Aborted)
	return errs.NewDeviceCause("QUIESCE", path, errs.CodeQuiescingFailure, cause, msg)
}

// Run releases path and returns it opened exclusively. Any failure leaves
// the controller in Aborted and the device untouched.
func (c *Controller) Run(path string) (interfaces.Device, error) {
	c.transitions = nil
	logger := c.Logger.WithDevice(path)

	c.enter(DetectingRole)
	role, err := c.Detector.Detect(path)
	if err != nil {
		return nil, c.abort(path, err, fmt.Sprintf("cannot determine bcache role of %s: %v", path, err))
	}

	c.enter(Stopping)
	switch role.Kind {
	case RoleBacking:
		logger.Info("stopping bcache device")
		err = c.Releaser.StopBacking(path)
	case RoleCacheMember:
		logger.Info("unregistering cache set", "set_uuid", role.SetUUID.String())
		err = c.Releaser.UnregisterSet(role.SetUUID)
	default:
		return nil, c.abort(path, errs.ErrNotBcacheDevice,
			fmt.Sprintf("%s is busy and is not a bcache device", path))
	}
	if err != nil {
		return nil, c.abort(path, errs.ErrReleaseRejected,
			fmt.Sprintf("release request for %s rejected: %v", path, err))
	}

	c.enter(WaitingForRelease)
	for attempt := 1; attempt <= c.Attempts; attempt++ {
		c.Sleep(c.Delay)

		dev, err := c.Open(path)
		if err == nil {
			c.enter(Ready)
			logger.Debug("device released", "attempt", attempt)
			return dev, nil
		}

		logger.Warn("Waiting for bcache device to be closed", "attempt", attempt, "error", err.Error())
		if c.OnAttempt != nil {
			c.OnAttempt(path, attempt)
		}
	}

	return nil, c.abort(path, errs.ErrStillBusy,
		"Bcache device has not completely closed, you can try it sooner")
}

// SuperblockDetector tells backing devices from cache members by reading
// their superblock without claiming them
type SuperblockDetector struct {
	Open OpenFunc
}

// Detect implements Detector
func (d SuperblockDetector) Detect(path string) (Role, error) {
	dev, err := d.Open(path)
	if err != nil {
		return Role{}, err
	}
	defer dev.Close()

	buf := make([]byte, uapi.SuperblockSize)
	if _, err := dev.ReadAt(buf, constants.SBStart); err != nil {
		return Role{}, fmt.Errorf("read superblock: %w", err)
	}

	var sb uapi.Superblock
	if err := uapi.Unmarshal(buf, &sb); err != nil {
		return Role{}, err
	}
	if !sb.HasMagic() {
		return Role{Kind: RoleUnknown}, nil
	}

	switch sb.Version {
	case uapi.VersionBdev, uapi.VersionBdevWithOffset, uapi.VersionBdevWithFeatures:
		return Role{Kind: RoleBacking, SetUUID: sb.SetUUID}, nil
	case uapi.VersionCdev, uapi.VersionCdevWithUUID, uapi.VersionCdevWithFeatures:
		return Role{Kind: RoleCacheMember, SetUUID: sb.SetUUID}, nil
	}
	return Role{Kind: RoleUnknown}, nil
}
