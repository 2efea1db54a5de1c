package probe

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	wmerrors "github.com/turtacn/wmswitch/pkg/errors"
	"golang.org/x/sys/unix"
)

// Runner executes diagnostic commands and returns their stdout.
type Runner interface {
	Output(ctx context.Context, argv []string) ([]byte, error)
}

// ExecRunner runs commands with a hard per-call timeout.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Output(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, wmerrors.New(wmerrors.ErrCodeProbeFailed, "exec", "empty command", nil)
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, wmerrors.New(wmerrors.ErrCodeProbeFailed, argv[0], "diagnostic command failed", err)
	}
	return stdout.Bytes(), nil
}

// SysFS is the slice of the filesystem the rules read.
type SysFS interface {
	ReadFile(path string) ([]byte, error)
	Readlink(path string) (string, error)
	Stat(path string) (os.FileInfo, error)
}

// OSFS reads the real filesystem.
type OSFS struct{}

func (OSFS) ReadFile(path string) ([]byte, error)  { return os.ReadFile(path) }
func (OSFS) Readlink(path string) (string, error)  { return os.Readlink(path) }
func (OSFS) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

// Machine returns the kernel's machine hardware name, as `uname -m` prints it.
func Machine() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", wmerrors.New(wmerrors.ErrCodeProbeFailed, "uname", "architecture query failed", err)
	}
	return unix.ByteSliceToString(uts.Machine[:]), nil
}

// Personal.AI order the ending
