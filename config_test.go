package bcache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		max     uint64
		want    uint32
		wantErr string
	}{
		{in: "512", max: MaxBlockSize, want: 1},
		{in: "4k", max: MaxBlockSize, want: 8},
		{in: "4K", max: MaxBlockSize, want: 8},
		{in: "512k", max: MaxBucketSize, want: 1024},
		{in: "1M", max: MaxBucketSize, want: 2048},
		{in: "2g", max: MaxBucketSize, want: 4 << 20},
		{in: "64m", max: MaxBlockSize, wantErr: "too large"},
		{in: "3k", max: MaxBlockSize, wantErr: "must be a power of two"},
		{in: "256", max: MaxBlockSize, wantErr: "too small"},
		{in: "0", max: MaxBlockSize, wantErr: "too small"},
		{in: "", max: MaxBlockSize, wantErr: "bad size"},
		{in: "12x", max: MaxBlockSize, wantErr: "bad size"},
		{in: "99999999999999999999", max: MaxBucketSize, wantErr: "too large"},
		{in: "16777216t", max: MaxBucketSize, wantErr: "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in, "block size", tt.max)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, IsCode(err, CodeConfigValidation))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSetUUID(t *testing.T) {
	id, err := ParseSetUUID("6a2b9f3c-1e44-4c0d-8e6f-5a7b8c9d0e1f")
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("6a2b9f3c-1e44-4c0d-8e6f-5a7b8c9d0e1f"), id)

	_, err = ParseSetUUID("not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad uuid")
}

func TestParsePolicyWrapsError(t *testing.T) {
	p, err := ParsePolicy("fifo")
	require.NoError(t, err)
	assert.Equal(t, PolicyFIFO, p)

	_, err = ParsePolicy("clock")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeConfigValidation))
}

func TestDefaultConfig(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()

	assert.Equal(t, uint32(DefaultBucketSize), a.BucketSize)
	assert.Equal(t, uint64(DefaultDataOffset), a.DataOffset)
	assert.Equal(t, PolicyLRU, a.Policy)
	assert.Zero(t, a.BlockSize, "block size defaults to the devices' native size")
	assert.NotEqual(t, uuid.Nil, a.SetUUID)
	assert.NotEqual(t, a.SetUUID, b.SetUUID)
}

func TestValidateDevices(t *testing.T) {
	p := DefaultParams()
	assert.Error(t, p.validateDevices())

	p.BackingDevices = []string{"/dev/sdb", "/dev/sdc"}
	assert.NoError(t, p.validateDevices())

	p.CacheDevices = []string{"/dev/nvme0n1", "/dev/nvme1n1"}
	assert.Error(t, p.validateDevices())
}
