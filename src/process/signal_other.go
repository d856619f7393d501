//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func prepare(cmd *exec.Cmd) {}

// There is no SIGTERM outside Unix; Kill is the only portable option.
func terminate(p *os.Process) error { return p.Kill() }

func kill(p *os.Process) error { return p.Kill() }
