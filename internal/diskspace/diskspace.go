// Package diskspace checks free space on the filesystem receiving downloads.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrInsufficientSpace matches every *InsufficientSpaceError.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// InsufficientSpaceError reports a download that would not fit.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

func (e *InsufficientSpaceError) Is(target error) bool { return target == ErrInsufficientSpace }

// CheckAvailableSpace fails when the filesystem holding targetPath has less
// than requiredBytes*safetyMargin available. targetPath itself need not exist,
// its directory must. Filesystems that cannot be queried pass.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	available, ok := availableBytes(filepath.Dir(targetPath))
	if !ok {
		return nil
	}
	required := int64(float64(requiredBytes) * safetyMargin)
	if available < required {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  required,
			AvailableBytes: available,
		}
	}
	return nil
}

// GetAvailableSpace returns the bytes available to the current user on the
// filesystem holding path, or 0 if unknown.
func GetAvailableSpace(path string) int64 {
	n, _ := availableBytes(filepath.Dir(path))
	return n
}
