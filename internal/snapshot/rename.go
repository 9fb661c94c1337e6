package snapshot

import (
	"os"
	"runtime"
	"time"
)

// renameWithRetry renames src to dst. On Windows a pending reader/antivirus
// scan can transiently hold the destination; retry a handful of times with
// a short backoff before giving up.
func renameWithRetry(src, dst string) error {
	if runtime.GOOS != "windows" {
		return os.Rename(src, dst)
	}
	var err error
	backoff := 10 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		if err = os.Rename(src, dst); err == nil {
			return nil
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}
