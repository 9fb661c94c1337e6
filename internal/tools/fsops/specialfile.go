package fsops

import (
	"fmt"
	"os"
)

// RejectSpecial returns an error if info describes anything other than a
// regular file or directory: device nodes, sockets, and named pipes are
// refused so a tool call can't be used to read from or write into one.
func RejectSpecial(info os.FileInfo) error {
	mode := info.Mode()
	switch {
	case mode&os.ModeDevice != 0:
		return fmt.Errorf("refusing to operate on a device file")
	case mode&os.ModeSocket != 0:
		return fmt.Errorf("refusing to operate on a socket")
	case mode&os.ModeNamedPipe != 0:
		return fmt.Errorf("refusing to operate on a named pipe")
	case mode&os.ModeSymlink != 0:
		return fmt.Errorf("refusing to operate on a symlink")
	case mode&os.ModeIrregular != 0:
		return fmt.Errorf("refusing to operate on a special file")
	}
	return nil
}
