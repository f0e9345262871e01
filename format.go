// Package bcache formats block devices for the Linux bcache driver. It
// writes the cache or backing device superblock directly, or hands it to
// the driver through /dev/bcache_ctrl, and can release devices the driver
// still holds before reformatting them.
package bcache

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ehrlich-b/go-bcache/internal/builder"
	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/ctrl"
	"github.com/ehrlich-b/go-bcache/internal/errs"
	"github.com/ehrlich-b/go-bcache/internal/logging"
	"github.com/ehrlich-b/go-bcache/internal/probe"
	"github.com/ehrlich-b/go-bcache/internal/quiesce"
	"github.com/ehrlich-b/go-bcache/internal/writer"
)

// Options contains additional options for Format
type Options struct {
	// Logger for diagnostics (if nil, uses the package default)
	Logger *Logger

	// Observer for metrics collection (if nil, uses no-op observer)
	Observer Observer

	// Env supplies device access (if nil, uses SystemEnvironment)
	Env *Environment

	// Summary receives the per-device field dump (if nil, nothing is printed)
	Summary io.Writer
}

// DeviceResult describes one successfully handled device
type DeviceResult struct {
	Path       string
	Backing    bool
	Registered bool // true when the control channel was used
	Superblock *Superblock
	Notices    []string

	BytesWritten int64
	DiscardErr   error // non-nil when the best-effort discard failed
}

type formatter struct {
	params   Params
	env      *Environment
	logger   *Logger
	observer Observer
	summary  io.Writer

	builder *builder.Builder
	guard   *probe.Guard
	writer  *writer.Writer
}

// Format formats every device in params: the cache device first, then the
// backing devices in order. It stops at the first fatal error and returns
// the devices completed so far. Devices are independent; nothing is rolled
// back. ctx is checked between devices only.
//
// Example:
//
//	params := bcache.DefaultParams()
//	params.CacheDevices = []string{"/dev/nvme0n1"}
//	params.BackingDevices = []string{"/dev/sdb"}
//	results, err := bcache.Format(context.Background(), params, &bcache.Options{Summary: os.Stdout})
func Format(ctx context.Context, params Params, options *Options) ([]DeviceResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if options == nil {
		options = &Options{}
	}

	f := &formatter{
		params:   params,
		env:      options.Env,
		logger:   options.Logger,
		observer: options.Observer,
		summary:  options.Summary,
	}
	if f.env == nil {
		f.env = SystemEnvironment()
	}
	if f.logger == nil {
		f.logger = logging.Default()
	}
	if f.observer == nil {
		f.observer = NoOpObserver{}
	}

	f.builder = builder.New()
	if f.env.NewUUID != nil {
		f.builder.NewUUID = f.env.NewUUID
	}
	f.guard = probe.NewGuard(f.env.Prober, f.logger)
	f.writer = writer.New(f.logger)

	if err := params.validateDevices(); err != nil {
		return nil, err
	}

	cfg := params.Config
	if cfg.BlockSize == 0 {
		bs, err := f.nativeBlockSize()
		if err != nil {
			return nil, err
		}
		cfg.BlockSize = bs
		f.logger.Debug("using native block size", "sectors", bs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	results := make([]DeviceResult, 0, len(params.CacheDevices)+len(params.BackingDevices))

	for _, path := range params.CacheDevices {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if params.UseIoctl {
			f.logger.WithDevice(path).Warn("Cache devices should use the normal way!")
		}

		res, err := f.formatDirect(path, builder.KindCache, cfg, false)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}

	for _, path := range params.BackingDevices {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		devCfg := cfg
		zoned, err := f.zoned(path, &devCfg)
		if err != nil {
			return results, err
		}

		var res *DeviceResult
		if params.UseIoctl {
			if devCfg.DataOffset != 0 {
				f.logger.WithDevice(path).Warn("data_offset must be 0 when using IOCTL registration, enforcing it",
					"data_offset", devCfg.DataOffset)
			}
			devCfg.DataOffset = 0
			res, err = f.register(path, devCfg, zoned)
		} else {
			res, err = f.formatDirect(path, builder.KindBacking, devCfg, zoned)
		}
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}

	return results, nil
}

// nativeBlockSize returns the largest logical block size over all devices,
// in sectors
func (f *formatter) nativeBlockSize() (uint32, error) {
	var bs uint32
	paths := append(append([]string{}, f.params.CacheDevices...), f.params.BackingDevices...)
	for _, path := range paths {
		info, err := f.env.Stat(path)
		if err != nil {
			e := errs.Wrap("STAT", path, errs.CodeDeviceAccess, err)
			e.Msg = fmt.Sprintf("Error statting %s: %v", path, err)
			return 0, e
		}
		if s := info.LogicalBlockSize / constants.SectorSize; s > bs {
			bs = s
		}
	}
	if bs == 0 {
		bs = 1
	}
	return bs, nil
}

// zoned classifies a backing device and aligns cfg's data offset to its
// zone size when it is zoned
func (f *formatter) zoned(path string, cfg *SuperblockConfig) (bool, error) {
	if f.env.Sysfs == nil {
		return false, nil
	}

	zoned, err := f.env.Sysfs.IsZoned(path)
	if err != nil {
		return false, errs.Wrap("ZONED", path, errs.CodeDeviceAccess, err)
	}
	if !zoned {
		return false, nil
	}

	zs, err := f.env.Sysfs.ZoneSectors(path)
	if err != nil {
		f.logger.WithDevice(path).WithError(err).Debug("cannot read zone size")
		zs = 0
	}
	offset, err := builder.ZonedDataOffset(path, cfg.DataOffset, zs)
	if err != nil {
		return false, err
	}
	if offset != cfg.DataOffset {
		f.logger.WithDevice(path).Info("aligned data offset to zone size", "data_offset", offset, "zone_sectors", zs)
	}
	cfg.DataOffset = offset
	return true, nil
}

// open claims path exclusively. A busy device is released from the driver
// first when Force is set.
func (f *formatter) open(path string) (Device, error) {
	dev, err := f.env.OpenExclusive(path)
	if err == nil {
		return dev, nil
	}

	if !f.params.Force || f.env.IsBusy == nil || f.env.Sysfs == nil || !f.env.IsBusy(err) {
		e := errs.Wrap("OPEN", path, errs.CodeDeviceAccess, err)
		e.Msg = fmt.Sprintf("Can't open dev %s: %v", path, err)
		return nil, e
	}

	f.logger.WithDevice(path).Warn("device is busy, asking the bcache driver to release it")

	failed := 0
	qc := quiesce.NewController(
		quiesce.SuperblockDetector{Open: f.env.OpenReadOnly},
		f.env.Sysfs,
		f.env.OpenExclusive,
		f.logger,
	)
	if f.env.Sleep != nil {
		qc.Sleep = f.env.Sleep
	}
	qc.OnAttempt = func(string, int) { failed++ }

	dev, err = qc.Run(path)
	f.observer.ObserveQuiesce(failed, err == nil)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

func (f *formatter) printSummary(path string, sb *Superblock) {
	if f.summary == nil {
		return
	}
	if err := builder.Summary(f.summary, path, sb); err != nil {
		f.logger.WithDevice(path).WithError(err).Warn("could not print summary")
	}
}

// formatDirect runs the direct write path for one device
func (f *formatter) formatDirect(path string, kind builder.Kind, cfg SuperblockConfig, zoned bool) (*DeviceResult, error) {
	start := time.Now()
	backing := kind == builder.KindBacking
	logger := f.logger.WithDevice(path)

	fail := func(written int64, err error) (*DeviceResult, error) {
		f.observer.ObserveFormat(backing, uint64(written), uint64(time.Since(start).Nanoseconds()), false)
		return nil, err
	}

	dev, err := f.open(path)
	if err != nil {
		return fail(0, err)
	}
	closed := false
	defer func() {
		if closed {
			return
		}
		if err := dev.Close(); err != nil {
			logger.WithError(err).Warn("close failed")
		}
	}()

	wipe := cfg.Wipe || f.params.Force
	state, err := f.guard.Inspect(path, dev)
	if err != nil {
		return fail(0, err)
	}
	if err := state.Check(wipe, f.params.Force); err != nil {
		return fail(0, err)
	}
	if state.State == probe.RecognizedPriorFormat {
		if err := f.guard.Erase(path, dev); err != nil {
			return fail(0, err)
		}
	}

	built, err := f.builder.Build(cfg, builder.Target{
		Path:        path,
		Kind:        kind,
		SizeSectors: uint64(dev.Size()) / constants.SectorSize,
		Zoned:       zoned,
	})
	if err != nil {
		return fail(0, err)
	}
	for _, n := range built.Notices {
		logger.Warn(n)
	}

	sb := built.Superblock
	discard := cfg.Discard && !backing
	rep, err := f.writer.Write(path, dev, sb, discard)
	if discard {
		var discarded uint64
		if rep.Discarded {
			discarded = uint64(dev.Size())
		}
		f.observer.ObserveDiscard(discarded, rep.DiscardErr == nil)
	}
	if err != nil {
		return fail(rep.BytesWritten, err)
	}

	closed = true
	if err := dev.Close(); err != nil {
		return fail(rep.BytesWritten, errs.Wrap("CLOSE", path, errs.CodeIOFailure, err))
	}

	f.observer.ObserveFormat(backing, uint64(rep.BytesWritten), uint64(time.Since(start).Nanoseconds()), true)
	logger.Info("formatted device", "type", kind.String(), "uuid", sb.UUID.String(), "set_uuid", sb.SetUUID.String())
	f.printSummary(path, sb)

	return &DeviceResult{
		Path:         path,
		Backing:      backing,
		Superblock:   sb,
		Notices:      built.Notices,
		BytesWritten: rep.BytesWritten,
		DiscardErr:   rep.DiscardErr,
	}, nil
}

// register runs the control channel path for one backing device
func (f *formatter) register(path string, cfg SuperblockConfig, zoned bool) (*DeviceResult, error) {
	start := time.Now()
	logger := f.logger.WithDevice(path)

	fail := func(err error) (*DeviceResult, error) {
		f.observer.ObserveRegister(uint64(time.Since(start).Nanoseconds()), false)
		return nil, err
	}

	info, err := f.env.Stat(path)
	if err != nil {
		e := errs.Wrap("STAT", path, errs.CodeDeviceAccess, err)
		e.Msg = fmt.Sprintf("Device %s not found", path)
		return fail(e)
	}

	built, err := f.builder.Build(cfg, builder.Target{
		Path:        path,
		Kind:        builder.KindBacking,
		SizeSectors: info.SizeSectors,
		Zoned:       zoned,
	})
	if err != nil {
		return fail(err)
	}
	for _, n := range built.Notices {
		logger.Warn(n)
	}

	c := ctrl.NewController(f.env.OpenControl)
	c.SetLogger(f.logger)
	if f.env.IsBlockDevice != nil {
		c.SetBlockDeviceCheck(f.env.IsBlockDevice)
	}

	sb := built.Superblock
	if err := c.RegisterDevice(path, sb); err != nil {
		return fail(err)
	}

	f.observer.ObserveRegister(uint64(time.Since(start).Nanoseconds()), true)
	f.printSummary(path, sb)

	return &DeviceResult{
		Path:       path,
		Backing:    true,
		Registered: true,
		Superblock: sb,
		Notices:    built.Notices,
	}, nil
}
