// Package builder turns a format configuration and the facts about one
// target device into a superblock ready to be written or registered
package builder

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/google/uuid"

	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/errs"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

// Config holds the options shared by every device of one invocation.
// All sizes are in 512-byte sectors.
type Config struct {
	BlockSize  uint32 // 0 means "use the largest native block size"
	BucketSize uint32
	Writeback  bool
	Discard    bool
	Wipe       bool
	Policy     uapi.Policy
	DataOffset uint64
	SetUUID    uuid.UUID
	Label      string
}

func isPow2(v uint64) bool {
	return v != 0 && bits.OnesCount64(v) == 1
}

func invalid(format string, args ...any) error {
	return errs.New("VALIDATE", errs.CodeConfigValidation, fmt.Sprintf(format, args...))
}

// Validate checks the configuration on its own, before any device is touched
func (c *Config) Validate() error {
	if !isPow2(uint64(c.BucketSize)) {
		return invalid("bucket size must be a power of two")
	}
	if !isPow2(uint64(c.BlockSize)) {
		return invalid("block size must be a power of two")
	}
	if c.BlockSize > math.MaxUint16 {
		return invalid("block size too large")
	}
	if c.BucketSize < c.BlockSize {
		return invalid("Bucket size cannot be smaller than block size")
	}
	if len(c.Label) >= constants.SBLabelSize {
		return invalid("Label is too long")
	}
	if c.DataOffset < constants.BDevDataStartDefault {
		return invalid("Bad data offset; minimum %d sectors", constants.BDevDataStartDefault)
	}
	if !c.Policy.Valid() {
		return invalid("unknown cache replacement policy %d", c.Policy)
	}
	return nil
}

// Kind is the role a target is formatted for
type Kind int

const (
	KindCache Kind = iota
	KindBacking
)

func (k Kind) String() string {
	if k == KindBacking {
		return "data"
	}
	return "cache"
}

// Target carries the facts about one device gathered before it is written
type Target struct {
	Path        string
	Kind        Kind
	SizeSectors uint64
	Zoned       bool
}

// Result is a built superblock plus anything the user should be told
type Result struct {
	Superblock *uapi.Superblock
	Notices    []string
}

// Builder builds superblocks. NewUUID supplies device UUIDs.
type Builder struct {
	NewUUID func() (uuid.UUID, error)
}

// New returns a builder drawing random device UUIDs
func New() *Builder {
	return &Builder{NewUUID: uuid.NewRandom}
}

// Build produces the superblock for one target. The checksum is left
// unset; it is computed when the record is encoded.
func (b *Builder) Build(cfg Config, t Target) (*Result, error) {
	id, err := b.NewUUID()
	if err != nil {
		return nil, errs.Wrap("BUILD", t.Path, errs.CodeConfigValidation, err)
	}

	sb := &uapi.Superblock{
		Offset:    constants.SBSector,
		Magic:     uapi.Magic,
		UUID:      id,
		SetUUID:   cfg.SetUUID,
		BlockSize: uint16(cfg.BlockSize),
	}
	if err := sb.SetLabel(cfg.Label); err != nil {
		return nil, errs.NewDeviceError("BUILD", t.Path, errs.CodeConfigValidation, err.Error())
	}

	res := &Result{Superblock: sb}

	if t.Kind == KindBacking {
		sb.Version = uapi.VersionBdev
		mode := uapi.CacheModeWritethrough
		if cfg.Writeback {
			mode = uapi.CacheModeWriteback
		}
		if t.Zoned && mode == uapi.CacheModeWriteback {
			res.Notices = append(res.Notices,
				fmt.Sprintf("Zoned device %s detected: convert to writethrough mode", t.Path))
			mode = uapi.CacheModeWritethrough
		}
		sb.SetCacheMode(mode)

		if cfg.DataOffset != constants.BDevDataStartDefault {
			sb.Version = uapi.VersionBdevWithOffset
			sb.DataOffset = cfg.DataOffset
		}
		return res, nil
	}

	sb.Version = uapi.VersionCdev
	sb.BucketSize = cfg.BucketSize
	if cfg.BucketSize > math.MaxUint16 {
		sb.Version = uapi.VersionCdevWithFeatures
		sb.FeatureIncompat |= uapi.FeatureIncompatLogLargeBucketSize
	}

	sb.NBuckets = t.SizeSectors / uint64(cfg.BucketSize)
	if sb.NBuckets < constants.MinBuckets {
		return nil, errs.NewDeviceError("BUILD", t.Path, errs.CodeInsufficientBuckets,
			fmt.Sprintf("Not enough buckets: %d, need %d", sb.NBuckets, constants.MinBuckets))
	}
	sb.NrInSet = 1
	sb.NrThisDev = 0
	sb.FirstBucket = uint16(constants.ReservedHeadSectors/cfg.BucketSize + 1)
	sb.SetCacheDiscard(cfg.Discard)
	sb.SetCacheReplacement(cfg.Policy)

	return res, nil
}

// ZonedDataOffset aligns a backing device's data offset to its zone size.
// The default offset is bumped to one full zone; any other offset must
// already sit on a zone boundary.
func ZonedDataOffset(path string, offset, zoneSectors uint64) (uint64, error) {
	if zoneSectors == 0 {
		return 0, errs.NewDeviceError("ZONED", path, errs.CodeDeviceAccess,
			fmt.Sprintf("cannot read zone size of %s", path))
	}
	if offset == constants.BDevDataStartDefault {
		return zoneSectors, nil
	}
	if offset%zoneSectors != 0 {
		return 0, errs.NewDeviceError("ZONED", path, errs.CodeConfigValidation,
			fmt.Sprintf("data offset %d is not aligned to zone size %d of %s", offset, zoneSectors, path))
	}
	return offset, nil
}
