//go:build windows

package local

// owner is empty on Windows: files are owned by SIDs, not numeric ids.
func owner(path string) (string, error) {
	return "", nil
}
