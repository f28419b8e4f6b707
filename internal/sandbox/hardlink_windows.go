//go:build windows

package sandbox

import "os"

// isHardlinked is best-effort on Windows: os.FileInfo does not expose a link
// count through the standard library without additional syscalls, so this
// conservatively reports false (never blocks a write it cannot prove is
// hardlinked). Documented limitation per the sandbox spec.
func isHardlinked(info os.FileInfo) bool {
	return false
}
