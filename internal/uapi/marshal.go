package uapi

import (
	"encoding/binary"

	"github.com/ehrlich-b/go-bcache/internal/constants"
)

// Marshal converts a record to its little-endian on-disk bytes
func Marshal(v interface{}) []byte {
	switch val := v.(type) {
	case *Superblock:
		return marshalSuperblock(val)
	case *RegisterDevice:
		return marshalRegisterDevice(val)
	default:
		return nil
	}
}

// Unmarshal converts bytes back to a record
func Unmarshal(data []byte, v interface{}) error {
	switch val := v.(type) {
	case *Superblock:
		return unmarshalSuperblock(data, val)
	case *RegisterDevice:
		return unmarshalRegisterDevice(data, val)
	default:
		return ErrInvalidType
	}
}

// marshalSuperblock writes struct cache_sb_disk field by field. The csum
// field is written as-is; use MarshalWithChecksum to seal a record.
func marshalSuperblock(sb *Superblock) []byte {
	buf := make([]byte, SuperblockSize)
	le := binary.LittleEndian

	le.PutUint64(buf[offCsum:], sb.Csum)
	le.PutUint64(buf[offOffset:], sb.Offset)
	le.PutUint64(buf[offVersion:], sb.Version)
	copy(buf[offMagic:offMagic+16], sb.Magic[:])
	copy(buf[offUUID:offUUID+16], sb.UUID[:])
	copy(buf[offSetUUID:offSetUUID+16], sb.SetUUID[:])
	copy(buf[offLabel:offLabel+constants.SBLabelSize], sb.Label[:])
	le.PutUint64(buf[offFlags:], sb.Flags)
	le.PutUint64(buf[offSeq:], sb.Seq)
	le.PutUint64(buf[offFeatureCompat:], sb.FeatureCompat)
	le.PutUint64(buf[offFeatureIncompat:], sb.FeatureIncompat)
	le.PutUint64(buf[offFeatureROCompat:], sb.FeatureROCompat)

	if sb.IsBdev() {
		le.PutUint64(buf[offUnion:], sb.DataOffset)
	} else {
		le.PutUint64(buf[offUnion:], sb.NBuckets)
	}

	le.PutUint16(buf[offBlockSize:], sb.BlockSize)
	if sb.LargeBucket() {
		le.PutUint16(buf[offBucketSize:], log2(sb.BucketSize))
	} else {
		le.PutUint16(buf[offBucketSize:], uint16(sb.BucketSize))
	}
	le.PutUint16(buf[offNrInSet:], sb.NrInSet)
	le.PutUint16(buf[offNrThisDev:], sb.NrThisDev)
	le.PutUint32(buf[offLastMount:], sb.LastMount)
	le.PutUint16(buf[offFirstBucket:], sb.FirstBucket)
	le.PutUint16(buf[offKeys:], sb.NJournalBuckets)

	for i, d := range sb.Journal {
		le.PutUint64(buf[offJournal+8*i:], d)
	}

	return buf
}

func unmarshalSuperblock(data []byte, sb *Superblock) error {
	if len(data) < SuperblockSize {
		return ErrInsufficientData
	}
	le := binary.LittleEndian

	sb.Csum = le.Uint64(data[offCsum:])
	sb.Offset = le.Uint64(data[offOffset:])
	sb.Version = le.Uint64(data[offVersion:])
	copy(sb.Magic[:], data[offMagic:offMagic+16])
	copy(sb.UUID[:], data[offUUID:offUUID+16])
	copy(sb.SetUUID[:], data[offSetUUID:offSetUUID+16])
	copy(sb.Label[:], data[offLabel:offLabel+constants.SBLabelSize])
	sb.Flags = le.Uint64(data[offFlags:])
	sb.Seq = le.Uint64(data[offSeq:])
	sb.FeatureCompat = le.Uint64(data[offFeatureCompat:])
	sb.FeatureIncompat = le.Uint64(data[offFeatureIncompat:])
	sb.FeatureROCompat = le.Uint64(data[offFeatureROCompat:])

	sb.NBuckets, sb.DataOffset = 0, 0
	if sb.IsBdev() {
		sb.DataOffset = le.Uint64(data[offUnion:])
	} else {
		sb.NBuckets = le.Uint64(data[offUnion:])
	}

	sb.BlockSize = le.Uint16(data[offBlockSize:])
	bucket := le.Uint16(data[offBucketSize:])
	if sb.LargeBucket() {
		if bucket >= 32 {
			return ErrBadBucketSize
		}
		sb.BucketSize = 1 << bucket
	} else {
		sb.BucketSize = uint32(bucket)
	}
	sb.NrInSet = le.Uint16(data[offNrInSet:])
	sb.NrThisDev = le.Uint16(data[offNrThisDev:])
	sb.LastMount = le.Uint32(data[offLastMount:])
	sb.FirstBucket = le.Uint16(data[offFirstBucket:])
	sb.NJournalBuckets = le.Uint16(data[offKeys:])

	for i := range sb.Journal {
		sb.Journal[i] = le.Uint64(data[offJournal+8*i:])
	}

	return nil
}

// checksumEnd returns the end of the checksummed range: the kernel's
// csum_set covers everything after csum up to the last journal key in use.
// Unused journal slots and obso_bucket_size_hi lie past it and are not covered.
func checksumEnd(data []byte) int {
	keys := int(binary.LittleEndian.Uint16(data[offKeys:]))
	if keys > constants.SBJournalBuckets {
		keys = constants.SBJournalBuckets
	}
	return offJournal + 8*keys
}

// Checksum computes the checksum of an encoded superblock. The csum field
// itself is never part of the input.
func Checksum(data []byte) uint64 {
	if len(data) < SuperblockSize {
		return 0
	}
	return CRC64(data[offCsum+8 : checksumEnd(data)])
}

// MarshalWithChecksum encodes sb, computes its checksum and stores it both
// in sb.Csum and in the returned record
func MarshalWithChecksum(sb *Superblock) []byte {
	buf := marshalSuperblock(sb)
	sb.Csum = Checksum(buf)
	binary.LittleEndian.PutUint64(buf[offCsum:], sb.Csum)
	return buf
}

// VerifyChecksum reports whether an encoded superblock carries a valid checksum
func VerifyChecksum(data []byte) bool {
	if len(data) < SuperblockSize {
		return false
	}
	return binary.LittleEndian.Uint64(data[offCsum:]) == Checksum(data)
}

// HasMagic reports whether an encoded superblock starts with the bcache magic
func HasMagic(data []byte) bool {
	if len(data) < offMagic+16 {
		return false
	}
	for i, b := range Magic {
		if data[offMagic+i] != b {
			return false
		}
	}
	return true
}

// marshalNativeSuperblock writes struct cache_sb, the in-memory layout the
// driver copies in from bch_register_device. The driver computes its own
// checksum when it writes the disk copy.
func marshalNativeSuperblock(sb *Superblock) []byte {
	buf := make([]byte, NativeSuperblockSize)
	le := binary.LittleEndian

	le.PutUint64(buf[nOffOffset:], sb.Offset)
	le.PutUint64(buf[nOffVersion:], sb.Version)
	copy(buf[nOffMagic:nOffMagic+16], sb.Magic[:])
	copy(buf[nOffUUID:nOffUUID+16], sb.UUID[:])
	copy(buf[nOffSetUUID:nOffSetUUID+16], sb.SetUUID[:])
	copy(buf[nOffLabel:nOffLabel+constants.SBLabelSize], sb.Label[:])
	le.PutUint64(buf[nOffFlags:], sb.Flags)
	le.PutUint64(buf[nOffSeq:], sb.Seq)
	le.PutUint64(buf[nOffFeatureCompat:], sb.FeatureCompat)
	le.PutUint64(buf[nOffFeatureIncompat:], sb.FeatureIncompat)
	le.PutUint64(buf[nOffFeatureROCompat:], sb.FeatureROCompat)

	if sb.IsBdev() {
		le.PutUint64(buf[nOffUnion:], sb.DataOffset)
	} else {
		le.PutUint64(buf[nOffUnion:], sb.NBuckets)
		le.PutUint16(buf[nOffNrInSet:], sb.NrInSet)
		le.PutUint16(buf[nOffNrThisDev:], sb.NrThisDev)
		le.PutUint32(buf[nOffBucketSize:], sb.BucketSize)
	}
	le.PutUint16(buf[nOffBlockSize:], sb.BlockSize)

	le.PutUint32(buf[nOffLastMount:], sb.LastMount)
	le.PutUint16(buf[nOffFirstBucket:], sb.FirstBucket)
	le.PutUint16(buf[nOffKeys:], sb.NJournalBuckets)

	for i, d := range sb.Journal {
		le.PutUint64(buf[nOffJournal+8*i:], d)
	}

	return buf
}

func unmarshalNativeSuperblock(data []byte, sb *Superblock) error {
	if len(data) < NativeSuperblockSize {
		return ErrInsufficientData
	}
	le := binary.LittleEndian

	sb.Csum = 0
	sb.Offset = le.Uint64(data[nOffOffset:])
	sb.Version = le.Uint64(data[nOffVersion:])
	copy(sb.Magic[:], data[nOffMagic:nOffMagic+16])
	copy(sb.UUID[:], data[nOffUUID:nOffUUID+16])
	copy(sb.SetUUID[:], data[nOffSetUUID:nOffSetUUID+16])
	copy(sb.Label[:], data[nOffLabel:nOffLabel+constants.SBLabelSize])
	sb.Flags = le.Uint64(data[nOffFlags:])
	sb.Seq = le.Uint64(data[nOffSeq:])
	sb.FeatureCompat = le.Uint64(data[nOffFeatureCompat:])
	sb.FeatureIncompat = le.Uint64(data[nOffFeatureIncompat:])
	sb.FeatureROCompat = le.Uint64(data[nOffFeatureROCompat:])

	sb.NBuckets, sb.DataOffset = 0, 0
	sb.NrInSet, sb.NrThisDev, sb.BucketSize = 0, 0, 0
	if sb.IsBdev() {
		sb.DataOffset = le.Uint64(data[nOffUnion:])
	} else {
		sb.NBuckets = le.Uint64(data[nOffUnion:])
		sb.NrInSet = le.Uint16(data[nOffNrInSet:])
		sb.NrThisDev = le.Uint16(data[nOffNrThisDev:])
		sb.BucketSize = le.Uint32(data[nOffBucketSize:])
	}
	sb.BlockSize = le.Uint16(data[nOffBlockSize:])

	sb.LastMount = le.Uint32(data[nOffLastMount:])
	sb.FirstBucket = le.Uint16(data[nOffFirstBucket:])
	sb.NJournalBuckets = le.Uint16(data[nOffKeys:])

	for i := range sb.Journal {
		sb.Journal[i] = le.Uint64(data[nOffJournal+8*i:])
	}

	return nil
}

// marshalRegisterDevice lays out struct bch_register_device: the device
// name followed by the native struct cache_sb
func marshalRegisterDevice(r *RegisterDevice) []byte {
	buf := make([]byte, RegisterDeviceSize)
	copy(buf[:constants.BDevNameSize], r.DevName[:])
	copy(buf[constants.BDevNameSize:], marshalNativeSuperblock(&r.SB))
	return buf
}

func unmarshalRegisterDevice(data []byte, r *RegisterDevice) error {
	if len(data) < RegisterDeviceSize {
		return ErrInsufficientData
	}
	copy(r.DevName[:], data[:constants.BDevNameSize])
	return unmarshalNativeSuperblock(data[constants.BDevNameSize:], &r.SB)
}

// Error definitions
type MarshalError string

func (e MarshalError) Error() string {
	return string(e)
}

const (
	ErrInsufficientData MarshalError = "insufficient data for unmarshaling"
	ErrInvalidType      MarshalError = "invalid type for marshaling"
	ErrBadBucketSize    MarshalError = "large bucket size exponent out of range"
)
