package bcache

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ehrlich-b/go-bcache/internal/builder"
	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/errs"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

// SuperblockConfig holds the options shared by every device of one Format
// call. Sizes are in 512-byte sectors; a zero BlockSize is filled with the
// largest native logical block size of the devices being formatted.
type SuperblockConfig = builder.Config

// Policy is the cache replacement policy of a cache device
type Policy = uapi.Policy

const (
	PolicyLRU    = uapi.PolicyLRU
	PolicyFIFO   = uapi.PolicyFIFO
	PolicyRandom = uapi.PolicyRandom
)

// Largest accepted sizes in sectors
const (
	MaxBlockSize  = math.MaxUint16
	MaxBucketSize = math.MaxUint32
)

// Params describes one invocation: the shared configuration and the
// devices to format
type Params struct {
	Config SuperblockConfig

	// CacheDevices are formatted first; at most one is accepted
	CacheDevices []string

	// BackingDevices are formatted after the cache device, in order
	BackingDevices []string

	// Force reformats devices that are in use or already formatted. It
	// implies Config.Wipe.
	Force bool

	// UseIoctl registers backing devices through the control channel
	// instead of writing their superblock directly
	UseIoctl bool
}

// DefaultConfig returns the configuration make-bcache uses when no option
// is given: 512KiB buckets, LRU, the default data offset and a fresh set UUID
func DefaultConfig() SuperblockConfig {
	return SuperblockConfig{
		BucketSize: constants.DefaultBucketSize,
		Policy:     uapi.PolicyLRU,
		DataOffset: constants.BDevDataStartDefault,
		SetUUID:    uuid.New(),
	}
}

// DefaultParams returns parameters with the default configuration and no devices
func DefaultParams() Params {
	return Params{Config: DefaultConfig()}
}

func (p *Params) validateDevices() error {
	if len(p.CacheDevices) == 0 && len(p.BackingDevices) == 0 {
		return errs.New("VALIDATE", errs.CodeConfigValidation, "Please supply a device")
	}
	if len(p.CacheDevices) > 1 {
		return errs.New("VALIDATE", errs.CodeConfigValidation, "Please specify only one cache device")
	}
	return nil
}

// ParsePolicy parses lru, fifo or random
func ParsePolicy(s string) (Policy, error) {
	p, err := uapi.ParsePolicy(s)
	if err != nil {
		return 0, errs.New("PARSE", errs.CodeConfigValidation, err.Error())
	}
	return p, nil
}

// ParseSetUUID parses a cache set UUID
func ParseSetUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errs.New("PARSE", errs.CodeConfigValidation, "Bad uuid")
	}
	return id, nil
}

// ParseSize parses a byte count with an optional k, m, g or t suffix and
// returns it in sectors. The byte count must be a power of two and the
// result must lie in [1, max].
func ParseSize(s, what string, max uint64) (uint32, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, errs.New("PARSE", errs.CodeConfigValidation, fmt.Sprintf("%s: bad size %q", what, s))
	}

	v, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return 0, errs.New("PARSE", errs.CodeConfigValidation, fmt.Sprintf("%s too large", what))
	}

	var shift uint
	switch strings.ToLower(s[i:]) {
	case "":
	case "k":
		shift = 10
	case "m":
		shift = 20
	case "g":
		shift = 30
	case "t":
		shift = 40
	default:
		return 0, errs.New("PARSE", errs.CodeConfigValidation, fmt.Sprintf("%s: bad size %q", what, s))
	}
	if v > math.MaxUint64>>shift {
		return 0, errs.New("PARSE", errs.CodeConfigValidation, fmt.Sprintf("%s too large", what))
	}
	v <<= shift

	if v&(v-1) != 0 {
		return 0, errs.New("PARSE", errs.CodeConfigValidation, fmt.Sprintf("%s must be a power of two", what))
	}

	v /= constants.SectorSize
	if v > max {
		return 0, errs.New("PARSE", errs.CodeConfigValidation, fmt.Sprintf("%s too large", what))
	}
	if v == 0 {
		return 0, errs.New("PARSE", errs.CodeConfigValidation, fmt.Sprintf("%s too small", what))
	}
	return uint32(v), nil
}
