//go:build !unix

package bridge

import (
	"errors"
	"os/exec"
)

func configureCommand(cmd *exec.Cmd, username string) error {
	if username != "" {
		return errors.New("running as another user is only supported on unix")
	}
	return nil
}
