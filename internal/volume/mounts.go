package volume

import "github.com/moby/sys/mountinfo"

// MountTable answers whether a path is currently a mount point.
// Backed by the kernel mount table in production; faked in tests.
type MountTable interface {
	Mounted(path string) (bool, error)
}

type procMounts struct{}

func (procMounts) Mounted(path string) (bool, error) {
	return mountinfo.Mounted(path)
}

// NewMountTable returns a MountTable reading the process mount info.
func NewMountTable() MountTable {
	return procMounts{}
}
