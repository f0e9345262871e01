// Command make-bcache formats cache and backing devices for the Linux
// bcache driver.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ehrlich-b/go-bcache"
	"github.com/ehrlich-b/go-bcache/internal/logging"
)

type options struct {
	cache   []string
	backing []string

	bucket     string
	block      string
	dataOffset uint64
	csetUUID   string
	label      string
	policy     string

	writeback bool
	discard   bool
	wipe      bool
	force     bool
	ioctl     bool

	verbose   bool
	logFormat string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newCommand(&options{})
}

func newCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "make-bcache [options] [device...]",
		Short: "Format devices for use with bcache",
		Long: `Format cache and backing devices for the bcache driver.

Devices given without -C or -B belong to whichever of the two was used;
when both or neither were used, every device needs its own flag.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args)
		},
	}

	f := cmd.Flags()
	f.SortFlags = false
	f.SetNormalizeFunc(normalizeFlag)

	f.StringArrayVarP(&o.cache, "cache", "C", nil, "format a cache device (repeatable)")
	f.StringArrayVarP(&o.backing, "bdev", "B", nil, "format a backing device (repeatable)")
	f.StringVarP(&o.bucket, "bucket", "b", "", "bucket size, power of two with optional k/m/g/t suffix (default 512k)")
	f.StringVarP(&o.block, "block", "w", "", "block size, power of two (default: largest native block size)")
	f.Uint64VarP(&o.dataOffset, "data-offset", "o", bcache.DefaultDataOffset, "data offset of backing devices in sectors")
	f.StringVarP(&o.csetUUID, "cset-uuid", "u", "", "UUID of the cache set (default: random)")
	f.StringVarP(&o.label, "label", "l", "", "label of the devices")
	f.StringVar(&o.policy, "cache-replacement-policy", "lru", "lru, fifo or random")
	f.BoolVar(&o.writeback, "writeback", false, "enable writeback on backing devices")
	f.BoolVar(&o.discard, "discard", false, "enable discards on the cache device")
	f.BoolVar(&o.wipe, "wipe-bcache", false, "overwrite an existing bcache superblock")
	f.BoolVar(&o.force, "force", false, "reformat devices that are in use or already formatted")
	f.BoolVar(&o.ioctl, "ioctl", false, "register backing devices through /dev/bcache_ctrl")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")
	f.StringVar(&o.logFormat, "log-format", "text", "log format: text or json")

	return cmd
}

// normalizeFlag accepts the underscore spellings (cache_replacement_policy)
func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func (o *options) params(flags *pflag.FlagSet, args []string) (bcache.Params, error) {
	p := bcache.DefaultParams()

	p.CacheDevices = append(p.CacheDevices, o.cache...)
	p.BackingDevices = append(p.BackingDevices, o.backing...)
	if len(args) > 0 {
		switch {
		case len(o.cache) > 0 && len(o.backing) == 0:
			p.CacheDevices = append(p.CacheDevices, args...)
		case len(o.backing) > 0 && len(o.cache) == 0:
			p.BackingDevices = append(p.BackingDevices, args...)
		default:
			return p, fmt.Errorf("Please specify -C or -B for %s", args[0])
		}
	}

	if o.bucket != "" {
		v, err := bcache.ParseSize(o.bucket, "bucket size", bcache.MaxBucketSize)
		if err != nil {
			return p, err
		}
		p.Config.BucketSize = v
	}
	if o.block != "" {
		v, err := bcache.ParseSize(o.block, "block size", bcache.MaxBlockSize)
		if err != nil {
			return p, err
		}
		p.Config.BlockSize = v
	}
	if flags.Changed("data-offset") {
		p.Config.DataOffset = o.dataOffset
	}
	if o.csetUUID != "" {
		id, err := bcache.ParseSetUUID(o.csetUUID)
		if err != nil {
			return p, err
		}
		p.Config.SetUUID = id
	}

	policy, err := bcache.ParsePolicy(o.policy)
	if err != nil {
		return p, err
	}
	p.Config.Policy = policy

	p.Config.Label = o.label
	p.Config.Writeback = o.writeback
	p.Config.Discard = o.discard
	p.Config.Wipe = o.wipe
	p.Force = o.force
	p.UseIoctl = o.ioctl

	return p, nil
}

func (o *options) run(cmd *cobra.Command, args []string) error {
	logConfig := logging.DefaultConfig()
	logConfig.Output = cmd.ErrOrStderr()
	logConfig.Format = o.logFormat
	if o.verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	params, err := o.params(cmd.Flags(), args)
	if err != nil {
		return err
	}

	metrics := bcache.NewMetrics()
	results, err := bcache.Format(cmd.Context(), params, &bcache.Options{
		Logger:   logger,
		Observer: bcache.NewMetricsObserver(metrics),
		Summary:  cmd.OutOrStdout(),
	})
	metrics.Stop()

	snap := metrics.Snapshot()
	logger.Debug("format finished",
		"devices", snap.Devices,
		"errors", snap.Errors,
		"bytes_written", snap.BytesWritten,
		"quiesce_attempts", snap.QuiesceAttempts,
		"duration_ns", snap.DurationNs)

	if err != nil {
		if len(results) > 0 {
			logger.Warn("some devices were formatted before the failure", "completed", len(results))
		}
		return err
	}
	return nil
}
