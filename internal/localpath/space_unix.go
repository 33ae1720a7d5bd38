//go:build !windows

package localpath

import "golang.org/x/sys/unix"

// AvailableSpace returns the bytes available to unprivileged users on the
// filesystem holding dir.
func AvailableSpace(dir string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
