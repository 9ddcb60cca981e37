package depcheck

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
)

// Runner executes probe commands. Tests substitute a fake.
type Runner interface {
	// LookPath resolves an executable on the execution path.
	LookPath(file string) (string, error)
	// Run executes name with args and returns its combined output and exit
	// code. err is set only when the command could not be run at all.
	Run(ctx context.Context, name string, args ...string) (output []byte, exitCode int, err error)
}

// ExecRunner runs probes as real subprocesses.
type ExecRunner struct{}

func (ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return out.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return out.Bytes(), -1, err
	}
	return out.Bytes(), 0, nil
}

// shellCommand returns the shell invocation for a custom check.
func shellCommand(check string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", check}
	}
	return "sh", []string{"-c", check}
}

// Exit codes a shell uses when the command itself could not be run.
const (
	exitNotExecutable = 126
	exitNotFound      = 127
	exitCmdNotFound   = 9009 // cmd.exe
)

func commandUnavailable(code int) bool {
	return code == exitNotExecutable || code == exitNotFound || code == exitCmdNotFound
}
