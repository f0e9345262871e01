// Package sysfs reads block queue attributes and drives the bcache
// driver's stop and unregister knobs
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ehrlich-b/go-bcache/internal/constants"
)

// Registry resolves sysfs paths under Root
type Registry struct {
	Root string
}

// New returns a registry rooted at root, or at /sys when root is empty
func New(root string) *Registry {
	if root == "" {
		root = constants.SysfsRoot
	}
	return &Registry{Root: root}
}

// blockName maps a device path such as /dev/disk/by-id/foo to its kernel
// name (sdb)
func blockName(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return filepath.Base(path)
}

// blockDir returns the sysfs directory of a device. Whole disks live under
// block/, partitions only under class/block/.
func (r *Registry) blockDir(path string) string {
	name := blockName(path)
	dir := filepath.Join(r.Root, "block", name)
	if _, err := os.Stat(dir); err == nil {
		return dir
	}
	return filepath.Join(r.Root, "class", "block", name)
}

func (r *Registry) readAttr(path, attr string) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.blockDir(path), attr))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// IsZoned reports whether the device's queue is zoned. Devices without the
// attribute are treated as conventional.
func (r *Registry) IsZoned(path string) (bool, error) {
	model, err := r.readAttr(path, "queue/zoned")
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return model != "" && model != "none", nil
}

// ZoneSectors returns the zone size in 512-byte sectors
func (r *Registry) ZoneSectors(path string) (uint64, error) {
	v, err := r.readAttr(path, "queue/chunk_sectors")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chunk_sectors %q: %w", v, err)
	}
	return n, nil
}

func writeKnob(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString("1"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// StopBacking asks the driver to stop the bcache device on top of a
// backing device
func (r *Registry) StopBacking(path string) error {
	return writeKnob(filepath.Join(r.blockDir(path), "bcache", "stop"))
}

// UnregisterSet asks the driver to unregister a whole cache set
func (r *Registry) UnregisterSet(set uuid.UUID) error {
	return writeKnob(filepath.Join(r.Root, "fs", "bcache", set.String(), "unregister"))
}
