package constants

import "time"

// On-disk layout constants
const (
	// SectorSize is the unit every size in the superblock is expressed in
	SectorSize = 512

	// SBSector is the sector the superblock is written at
	SBSector = 8

	// SBStart is the byte offset of the superblock; everything before it is
	// the reserved head region that gets zeroed on format
	SBStart = SBSector * SectorSize

	// SBSize is the space reserved for the superblock in bytes
	SBSize = 4096

	// SBLabelSize is the capacity of the label field, NUL included
	SBLabelSize = 32

	// SBJournalBuckets is the number of journal bucket slots in the superblock
	SBJournalBuckets = 256

	// BDevDataStartDefault is the default data offset of a backing device in sectors
	BDevDataStartDefault = 16

	// MinBuckets is the smallest bucket count a cache device may have
	MinBuckets = 1 << 7

	// ReservedHeadSectors is (SB_SECTOR + SB_SIZE) - 1 in sectors, used to
	// derive the first usable bucket
	ReservedHeadSectors = 23
)

// Default configuration constants
const (
	// DefaultBucketSize is the default bucket size in sectors (512KiB)
	DefaultBucketSize = 1024

	// BDevNameSize is the device name capacity of the register record
	BDevNameSize = 32
)

// Control plane and sysfs paths
const (
	// BcacheControlPath is the privileged control device used for registration
	BcacheControlPath = "/dev/bcache_ctrl"

	// SysfsRoot is where the bcache driver exposes stop/unregister knobs
	SysfsRoot = "/sys"
)

// Timing constants for quiescing a busy device
const (
	// ReleaseAttempts is how many times an exclusive open is retried after
	// a stop/unregister request
	ReleaseAttempts = 3

	// ReleaseDelay is the wait before each retry; the driver releases the
	// device asynchronously and offers no completion signal
	ReleaseDelay = 3 * time.Second
)
