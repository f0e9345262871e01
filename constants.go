package bcache

import (
	"github.com/ehrlich-b/go-bcache/internal/constants"
	"github.com/ehrlich-b/go-bcache/internal/uapi"
)

// Re-export constants for public API
const (
	SectorSize           = constants.SectorSize
	SuperblockOffset     = constants.SBStart
	SuperblockSize       = uapi.SuperblockSize
	LabelSize            = constants.SBLabelSize
	DefaultBucketSize    = constants.DefaultBucketSize
	DefaultDataOffset    = constants.BDevDataStartDefault
	MinBuckets           = constants.MinBuckets
	BcacheControlPath    = constants.BcacheControlPath
	DefaultReleaseDelay  = constants.ReleaseDelay
	DefaultReleaseTrials = constants.ReleaseAttempts
)
