package localfs

import (
	"io"
	"os"
	"time"

	"github.com/rescale/brocoli/internal/constants"
	"github.com/rescale/brocoli/internal/diskspace"
)

// Receive creates localPath and fills it through write. The free space of the
// target filesystem is checked against size first. A failed write removes the
// partial file; a non-zero modTime is applied on success.
func Receive(localPath string, size int64, modTime time.Time, write func(io.Writer) error) error {
	if err := diskspace.CheckAvailableSpace(localPath, size, constants.DownloadSpaceMargin); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(localPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(localPath)
		return err
	}
	if !modTime.IsZero() {
		return os.Chtimes(localPath, modTime, modTime)
	}
	return nil
}
