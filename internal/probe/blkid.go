package probe

import (
	"fmt"

	"github.com/siderolabs/go-blockdevice/v2/blkid"

	"github.com/ehrlich-b/go-bcache/internal/interfaces"
)

// BlkidProber looks for filesystem superblocks and partition tables with
// go-blockdevice. Devices without an open file are skipped.
type BlkidProber struct{}

// Probe implements Prober
func (BlkidProber) Probe(dev interfaces.Device) (string, error) {
	fd, ok := dev.(interfaces.FileDevice)
	if !ok || fd.File() == nil {
		return "", nil
	}

	info, err := blkid.Probe(fd.File())
	if err != nil {
		return "", fmt.Errorf("blkid probe: %w", err)
	}
	if info == nil {
		return "", nil
	}
	return info.Name, nil
}
