//go:build windows

package localpath

import "golang.org/x/sys/windows"

// AvailableSpace returns the bytes available to the current user on the
// volume holding dir.
func AvailableSpace(dir string) (int64, error) {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, err
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return int64(free), nil
}
