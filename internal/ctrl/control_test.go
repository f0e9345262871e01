package ctrl

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-bcache/internal/errs"
	"github.com/ehrlich-b/go-bcache/internal/logging"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

func backingSB() *uapi.Superblock {
	sb := &uapi.Superblock{
		Offset:     8,
		Version:    uapi.VersionBdevWithOffset,
		Magic:      uapi.Magic,
		DataOffset: 0,
		BlockSize:  1,
	}
	sb.SetCacheMode(uapi.CacheModeWriteback)
	return sb
}

func newTestController(ch *RecordingChannel, block bool) *Controller {
	c := NewController(func() (Channel, error) { return ch, nil })
	c.SetLogger(logging.Nop())
	c.SetBlockDeviceCheck(func(string) bool { return block })
	return c
}

func TestRegisterDevice(t *testing.T) {
	ch := &RecordingChannel{}
	c := newTestController(ch, true)
	sb := backingSB()

	require.NoError(t, c.RegisterDevice("/dev/sdb", sb))
	require.Len(t, ch.Requests, 1)
	assert.True(t, ch.Closed)

	req := ch.Requests[0]
	assert.Equal(t, uint32(0xC8C8BC01), req.Cmd)
	require.Len(t, req.Payload, uapi.RegisterDeviceSize)

	var decoded uapi.RegisterDevice
	require.NoError(t, uapi.Unmarshal(req.Payload, &decoded))
	assert.Equal(t, "/dev/sdb", decoded.DevNameString())
	assert.Equal(t, uint64(0), decoded.SB.DataOffset)
	assert.Equal(t, uapi.CacheModeWriteback, decoded.SB.CacheMode())
	assert.Equal(t, uint64(uapi.VersionBdevWithOffset), decoded.SB.Version)
	assert.Equal(t, uapi.Magic, decoded.SB.Magic)
	assert.Equal(t, sb.UUID, decoded.SB.UUID)
	assert.Zero(t, decoded.SB.Csum)
}

func TestRegisterDeviceLongName(t *testing.T) {
	ch := &RecordingChannel{}
	c := newTestController(ch, true)
	path := "/dev/disk/by-id/wwn-0x5000c500a1b2c3d4-part1"

	require.NoError(t, c.RegisterDevice(path, backingSB()))
	payload := ch.Requests[0].Payload
	assert.Equal(t, path[:31], string(payload[:31]))
	assert.Equal(t, byte(0), payload[31])
}

func TestRegisterDeviceRejectsNonBlock(t *testing.T) {
	ch := &RecordingChannel{}
	c := newTestController(ch, false)

	err := c.RegisterDevice("/tmp/disk.img", backingSB())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.CodeDeviceAccess)
	assert.Contains(t, err.Error(), "Core object /tmp/disk.img is not supported")
	assert.Empty(t, ch.Requests)
}

func TestRegisterDeviceIoctlFailure(t *testing.T) {
	ch := &RecordingChannel{Err: syscall.EINVAL}
	c := newTestController(ch, true)

	err := c.RegisterDevice("/dev/sdb", backingSB())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.CodeControlChannel)
	assert.True(t, errs.IsErrno(err, syscall.EINVAL))
	assert.Contains(t, err.Error(), "Error during ioctl operation")
	assert.True(t, ch.Closed)
}

func TestRegisterDeviceOpenFailure(t *testing.T) {
	c := NewController(func() (Channel, error) { return nil, errors.New("no such device") })
	c.SetLogger(logging.Nop())
	c.SetBlockDeviceCheck(func(string) bool { return true })

	err := c.RegisterDevice("/dev/sdb", backingSB())
	assert.ErrorIs(t, err, errs.CodeControlChannel)
	assert.Contains(t, err.Error(), "Unable to open /dev/bcache_ctrl")
}
