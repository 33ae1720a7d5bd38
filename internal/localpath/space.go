package localpath

import (
	"fmt"
	"path/filepath"
)

// SafetyMargin is applied to the size of a download before comparing it with
// the free space.
const SafetyMargin = 1.05

// InsufficientSpaceError indicates that there is not enough disk space for a
// download.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, float64(e.RequiredBytes)/(1<<20), float64(e.AvailableBytes)/(1<<20))
}

// CheckSpace returns an *InsufficientSpaceError when the filesystem that
// will hold target lacks room for size bytes. Filesystems that cannot be
// queried pass; the write then fails on its own if space runs out.
func CheckSpace(target string, size int64) error {
	available, err := AvailableSpace(filepath.Dir(target))
	if err != nil {
		return nil
	}
	required := int64(float64(size) * SafetyMargin)
	if available < required {
		return &InsufficientSpaceError{Path: target, RequiredBytes: required, AvailableBytes: available}
	}
	return nil
}
