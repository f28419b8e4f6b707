//go:build !windows

package sandbox

import (
	"os"
	"syscall"
)

// isHardlinked reports whether info's underlying inode has more than one
// hardlink. Accurate on platforms exposing syscall.Stat_t.
func isHardlinked(info os.FileInfo) bool {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return stat.Nlink > 1
}
