package uapi

import "github.com/ehrlich-b/go-bcache/internal/constants"

// Magic identifies a bcache superblock
var Magic = [16]byte{
	0xc6, 0x85, 0x73, 0xf6, 0x4e, 0x1a, 0x45, 0xca,
	0x82, 0x65, 0xf5, 0x7f, 0x48, 0xba, 0x6d, 0x81,
}

// Superblock versions
const (
	VersionCdev             = 0
	VersionBdev             = 1
	VersionCdevWithUUID     = 3
	VersionBdevWithOffset   = 4
	VersionCdevWithFeatures = 5
	VersionBdevWithFeatures = 6
)

// Incompatible feature bits
const (
	FeatureIncompatObsoLargeBucket    = 0x0001
	FeatureIncompatLogLargeBucketSize = 0x0002
)

// Record sizes
const (
	// SuperblockSize is sizeof(struct cache_sb_disk): 2258 bytes of fields
	// padded to 8-byte alignment
	SuperblockSize = 2264

	// NativeSuperblockSize is sizeof(struct cache_sb), the in-memory form
	// the driver takes. It has no csum and keeps bucket_size as a u32.
	NativeSuperblockSize = 2216

	// RegisterDeviceSize is sizeof(struct bch_register_device)
	RegisterDeviceSize = constants.BDevNameSize + NativeSuperblockSize
)

// Field offsets within the on-disk superblock
const (
	offCsum            = 0
	offOffset          = 8
	offVersion         = 16
	offMagic           = 24
	offUUID            = 40
	offSetUUID         = 56
	offLabel           = 72
	offFlags           = 104
	offSeq             = 112
	offFeatureCompat   = 120
	offFeatureIncompat = 128
	offFeatureROCompat = 136
	offUnion           = 184 // nbuckets (cache) / data_offset (backing)
	offBlockSize       = 192
	offBucketSize      = 194
	offNrInSet         = 196
	offNrThisDev       = 198
	offLastMount       = 200
	offFirstBucket     = 204
	offKeys            = 206
	offJournal         = 208
)

// Field offsets within struct cache_sb
const (
	nOffOffset          = 0
	nOffVersion         = 8
	nOffMagic           = 16
	nOffUUID            = 32
	nOffSetUUID         = 48
	nOffLabel           = 64
	nOffFlags           = 96
	nOffSeq             = 104
	nOffFeatureCompat   = 112
	nOffFeatureIncompat = 120
	nOffFeatureROCompat = 128
	nOffUnion           = 136 // nbuckets (cache) / data_offset (backing)
	nOffBlockSize       = 144
	nOffNrInSet         = 146
	nOffNrThisDev       = 148
	nOffBucketSize      = 152 // u32, two bytes of padding before it
	nOffLastMount       = 160
	nOffFirstBucket     = 164
	nOffKeys            = 166
	nOffJournal         = 168
)

// Flag bit fields. Cache and backing devices interpret flags differently.
const (
	cacheSyncShift        = 0
	cacheSyncBits         = 1
	cacheDiscardShift     = 1
	cacheDiscardBits      = 1
	cacheReplacementShift = 2
	cacheReplacementBits  = 3
	bdevCacheModeShift    = 0
	bdevCacheModeBits     = 4
	bdevStateShift        = 61
	bdevStateBits         = 2
)

// Backing device states kept in BDEV_STATE
const (
	BDevStateNone  = 0
	BDevStateClean = 1
	BDevStateDirty = 2
	BDevStateStale = 3
)

// ioctl encoding constants
const (
	_IOC_WRITE     = 1
	_IOC_READ      = 2
	_IOC_SIZEBITS  = 14
	_IOC_DIRBITS   = 2
	_IOC_TYPEBITS  = 8
	_IOC_NRBITS    = 8
	_IOC_NRSHIFT   = 0
	_IOC_TYPESHIFT = _IOC_NRSHIFT + _IOC_NRBITS
	_IOC_SIZESHIFT = _IOC_TYPESHIFT + _IOC_TYPEBITS
	_IOC_DIRSHIFT  = _IOC_SIZESHIFT + _IOC_SIZEBITS
)

// BchIoctlMagic is the ioctl type byte of the bcache control device
const BchIoctlMagic = 0xBC

// IoctlEncode creates an ioctl command number
func IoctlEncode(dir, typ, nr, size uint32) uint32 {
	return (dir << _IOC_DIRSHIFT) |
		(size << _IOC_SIZESHIFT) |
		(typ << _IOC_TYPESHIFT) |
		(nr << _IOC_NRSHIFT)
}

// BchIoctlRegisterDevice is _IOWR(0xBC, 1, struct bch_register_device)
var BchIoctlRegisterDevice = IoctlEncode(_IOC_READ|_IOC_WRITE, BchIoctlMagic, 1, RegisterDeviceSize)
