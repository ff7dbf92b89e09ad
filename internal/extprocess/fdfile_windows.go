//go:build windows

package extprocess

import "os"

// openInherited wraps an inherited handle as is.
func openInherited(fd uintptr, name string) (*os.File, error) {
	f := os.NewFile(fd, name)
	if _, err := f.Stat(); err != nil {
		return nil, err
	}
	return f, nil
}
