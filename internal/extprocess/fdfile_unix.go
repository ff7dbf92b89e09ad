//go:build !windows

package extprocess

import (
	"os"
	"syscall"
)

// openInherited wraps an inherited descriptor in a pollable file, so
// closing it wakes a Read blocked on it.
func openInherited(fd uintptr, name string) (*os.File, error) {
	if err := syscall.SetNonblock(int(fd), true); err != nil {
		return nil, &os.PathError{Op: "setnonblock", Path: name, Err: err}
	}
	return os.NewFile(fd, name), nil
}
