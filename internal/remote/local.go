package remote

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"
)

// LocalShell runs commands through sh on this machine. It backs the "local"
// transport and any collaborator configured to run locally.
type LocalShell struct {
	// Dir is the working directory for commands; empty means the current one.
	Dir string
}

func (l LocalShell) Run(ctx context.Context, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = l.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitStatus = exitErr.ExitCode()
		return res, nil
	}
	return res, errors.Wrapf(err, "running %q", command)
}

func (l LocalShell) Copy(_ context.Context, remotePath, localPath string) error {
	src, err := os.Open(expandHome(remotePath))
	if err != nil {
		return errors.Wrapf(err, "opening %s", remotePath)
	}
	defer src.Close()
	return writeLocal(src, localPath)
}

func (l LocalShell) Close() error { return nil }
