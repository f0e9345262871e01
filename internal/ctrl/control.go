// Package ctrl registers freshly built superblocks with the bcache driver
// through its control device instead of writing them to disk
package ctrl

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/device"
	"github.com/ehrlich-b/go-bcache/internal/errs"
	"github.com/ehrlich-b/go-bcache/internal/logging"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

type Controller struct {
	open          OpenFunc
	isBlockDevice func(path string) bool
	logger        *logging.Logger
}

// NewController creates a controller that opens the channel with open.
// A nil open uses the real /dev/bcache_ctrl.
func NewController(open OpenFunc) *Controller {
	if open == nil {
		open = func() (Channel, error) { return OpenChannel(constants.BcacheControlPath) }
	}
	return &Controller{
		open:          open,
		isBlockDevice: device.IsBlockDevice,
		logger:        logging.Default(),
	}
}

// SetLogger sets the logger used for control plane diagnostics
func (c *Controller) SetLogger(logger *logging.Logger) {
	c.logger = logger
}

// SetBlockDeviceCheck replaces the check that a target is a block device
func (c *Controller) SetBlockDeviceCheck(fn func(path string) bool) {
	c.isBlockDevice = fn
}

// RegisterDevice hands sb to the driver for the device at path. The driver
// writes the superblock itself and brings the device up.
func (c *Controller) RegisterDevice(path string, sb *uapi.Superblock) error {
	logger := c.logger.WithDevice(path)

	if !c.isBlockDevice(path) {
		return errs.NewDeviceError("REGISTER", path, errs.CodeDeviceAccess,
			fmt.Sprintf("Core object %s is not supported", path))
	}

	ch, err := c.open()
	if err != nil {
		return errs.NewDeviceCause("OPEN_CTRL", path, errs.CodeControlChannel, err,
			fmt.Sprintf("Unable to open %s: %v", constants.BcacheControlPath, err))
	}
	defer ch.Close()

	cmd := &uapi.RegisterDevice{SB: *sb}
	cmd.SetDevName(path)
	buf := uapi.Marshal(cmd)

	logger.Debug("submitting REGISTER_DEVICE",
		"cmd", fmt.Sprintf("0x%08x", uapi.BchIoctlRegisterDevice),
		"len", len(buf),
		"dev_name", cmd.DevNameString(),
		"data_offset", sb.DataOffset)

	if err := ch.Ioctl(uapi.BchIoctlRegisterDevice, buf); err != nil {
		e := &errs.Error{
			Op:     "REGISTER",
			Device: path,
			Code:   errs.CodeControlChannel,
			Msg:    fmt.Sprintf("Error during ioctl operation: %v", err),
			Inner:  err,
		}
		var errno syscall.Errno
		if errors.As(err, &errno) {
			e.Errno = errno
		}
		return e
	}

	logger.Info("registered device with bcache driver")
	return nil
}
