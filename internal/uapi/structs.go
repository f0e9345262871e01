package uapi

import (
	"bytes"
	"fmt"
	"math/bits"
	"strings"

	"github.com/google/uuid"

	"github.com/ehrlich-b/go-bcache/internal/constants"
)

// Superblock is the decoded form of the kernel's struct cache_sb_disk:
//
//	struct cache_sb_disk {
//	  __le64 csum;
//	  __le64 offset;             // sector where this sb was written
//	  __le64 version;
//	  __u8   magic[16];
//	  __u8   uuid[16];
//	  __u8   set_uuid[16];
//	  __u8   label[32];
//	  __le64 flags;
//	  __le64 seq;
//	  __le64 feature_compat;
//	  __le64 feature_incompat;
//	  __le64 feature_ro_compat;
//	  __le64 pad[5];
//	  union {
//	    struct { __le64 nbuckets; __le16 block_size; __le16 bucket_size;
//	             __le16 nr_in_set; __le16 nr_this_dev; };
//	    struct { __le64 data_offset; };
//	  };
//	  __le32 last_mount;
//	  __le16 first_bucket;
//	  __le16 njournal_buckets;
//	  __le64 d[256];
//	  __le16 obso_bucket_size_hi;
//	};
//
// NBuckets and DataOffset share the same bytes on disk; which one is
// encoded depends on whether Version describes a backing device.
type Superblock struct {
	Csum    uint64
	Offset  uint64
	Version uint64
	Magic   [16]byte
	UUID    uuid.UUID
	SetUUID uuid.UUID
	Label   [constants.SBLabelSize]byte

	Flags           uint64
	Seq             uint64
	FeatureCompat   uint64
	FeatureIncompat uint64
	FeatureROCompat uint64

	// Cache devices
	NBuckets uint64
	// Backing devices
	DataOffset uint64

	BlockSize  uint16 // sectors, used by both device kinds
	BucketSize uint32 // sectors; stored as log2 when the large bucket feature is set
	NrInSet    uint16
	NrThisDev  uint16

	LastMount       uint32
	FirstBucket     uint16
	NJournalBuckets uint16
	Journal         [constants.SBJournalBuckets]uint64
}

// IsBdev reports whether the version describes a backing device
func (sb *Superblock) IsBdev() bool {
	return IsBdevVersion(sb.Version)
}

// IsBdevVersion reports whether a superblock version belongs to a backing device
func IsBdevVersion(v uint64) bool {
	return v == VersionBdev || v == VersionBdevWithOffset || v == VersionBdevWithFeatures
}

// HasMagic reports whether the superblock carries the bcache magic
func (sb *Superblock) HasMagic() bool {
	return sb.Magic == Magic
}

// LabelString returns the label up to its NUL terminator
func (sb *Superblock) LabelString() string {
	if i := bytes.IndexByte(sb.Label[:], 0); i >= 0 {
		return string(sb.Label[:i])
	}
	return string(sb.Label[:])
}

// SetLabel copies label into the fixed field, NUL terminated. Labels that
// do not leave room for the terminator are rejected.
func (sb *Superblock) SetLabel(label string) error {
	if len(label) >= constants.SBLabelSize {
		return fmt.Errorf("label %q is too long (max %d bytes)", label, constants.SBLabelSize-1)
	}
	sb.Label = [constants.SBLabelSize]byte{}
	copy(sb.Label[:], label)
	return nil
}

// LargeBucket reports whether the bucket size is stored as a power-of-two exponent
func (sb *Superblock) LargeBucket() bool {
	return sb.FeatureIncompat&FeatureIncompatLogLargeBucketSize != 0
}

func getField(flags uint64, shift, size uint) uint64 {
	return (flags >> shift) & (1<<size - 1)
}

func setField(flags *uint64, shift, size uint, v uint64) {
	mask := uint64(1<<size-1) << shift
	*flags = (*flags &^ mask) | ((v << shift) & mask)
}

// CacheSync is CACHE_SYNC
func (sb *Superblock) CacheSync() bool {
	return getField(sb.Flags, cacheSyncShift, cacheSyncBits) != 0
}

// CacheDiscard is CACHE_DISCARD
func (sb *Superblock) CacheDiscard() bool {
	return getField(sb.Flags, cacheDiscardShift, cacheDiscardBits) != 0
}

// SetCacheDiscard sets CACHE_DISCARD
func (sb *Superblock) SetCacheDiscard(on bool) {
	var v uint64
	if on {
		v = 1
	}
	setField(&sb.Flags, cacheDiscardShift, cacheDiscardBits, v)
}

// CacheReplacement is CACHE_REPLACEMENT
func (sb *Superblock) CacheReplacement() Policy {
	return Policy(getField(sb.Flags, cacheReplacementShift, cacheReplacementBits))
}

// SetCacheReplacement sets CACHE_REPLACEMENT
func (sb *Superblock) SetCacheReplacement(p Policy) {
	setField(&sb.Flags, cacheReplacementShift, cacheReplacementBits, uint64(p))
}

// CacheMode is BDEV_CACHE_MODE
func (sb *Superblock) CacheMode() CacheMode {
	return CacheMode(getField(sb.Flags, bdevCacheModeShift, bdevCacheModeBits))
}

// SetCacheMode sets BDEV_CACHE_MODE
func (sb *Superblock) SetCacheMode(m CacheMode) {
	setField(&sb.Flags, bdevCacheModeShift, bdevCacheModeBits, uint64(m))
}

// BDevState is BDEV_STATE
func (sb *Superblock) BDevState() uint64 {
	return getField(sb.Flags, bdevStateShift, bdevStateBits)
}

// Policy is the cache replacement policy
type Policy uint8

const (
	PolicyLRU Policy = iota
	PolicyFIFO
	PolicyRandom
)

var policyNames = []string{"lru", "fifo", "random"}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// Valid reports whether p is a policy the driver knows
func (p Policy) Valid() bool {
	return int(p) < len(policyNames)
}

// ParsePolicy parses lru, fifo or random, ignoring surrounding whitespace
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(s)
	for i, name := range policyNames {
		if s == name {
			return Policy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown cache replacement policy %q (want lru, fifo or random)", s)
}

// CacheMode is the backing device cache mode
type CacheMode uint8

const (
	CacheModeWritethrough CacheMode = iota
	CacheModeWriteback
	CacheModeWritearound
	CacheModeNone
)

func (m CacheMode) String() string {
	switch m {
	case CacheModeWritethrough:
		return "writethrough"
	case CacheModeWriteback:
		return "writeback"
	case CacheModeWritearound:
		return "writearound"
	case CacheModeNone:
		return "none"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// RegisterDevice is struct bch_register_device, the payload of
// BCH_IOCTL_REGISTER_DEVICE:
//
//	struct bch_register_device {
//	  char dev_name[BDEVNAME_SIZE];
//	  struct cache_sb sb;
//	};
//
// sb is the native in-memory superblock, not the on-disk encoding: it has no
// csum field and bucket_size is a plain u32 after nr_this_dev.
type RegisterDevice struct {
	DevName [constants.BDevNameSize]byte
	SB      Superblock
}

// SetDevName copies name into DevName, truncated so the NUL always fits
func (r *RegisterDevice) SetDevName(name string) {
	r.DevName = [constants.BDevNameSize]byte{}
	n := len(name)
	if n > constants.BDevNameSize-1 {
		n = constants.BDevNameSize - 1
	}
	copy(r.DevName[:], name[:n])
}

// DevNameString returns the device name up to its NUL terminator
func (r *RegisterDevice) DevNameString() string {
	if i := bytes.IndexByte(r.DevName[:], 0); i >= 0 {
		return string(r.DevName[:i])
	}
	return string(r.DevName[:])
}

func log2(v uint32) uint16 {
	return uint16(bits.Len32(v) - 1)
}
