//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

// setProcGroupAttr is a no-op on Windows.
func setProcGroupAttr(_ *exec.Cmd) {}

// killProcessGroup kills only the process itself on Windows.
func killProcessGroup(p *os.Process) error {
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
