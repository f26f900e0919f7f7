//go:build !windows

package local

import (
	"strconv"

	"golang.org/x/sys/unix"
)

// owner returns the numeric uid owning path, without following symlinks.
func owner(path string) (string, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(st.Uid), 10), nil
}
