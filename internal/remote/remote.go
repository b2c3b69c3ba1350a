// Package remote talks to the benchmark host: it runs commands, copies files
// back and manages the one server process bound to the benchmark port.
package remote

import (
	"context"
	"time"
)

// Result of one command. A non-zero ExitStatus is not an error.
type Result struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// OK reports a zero exit status
func (r Result) OK() bool {
	return r.ExitStatus == 0
}

// Combined is stdout followed by stderr, the way a terminal would show it.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Executor runs one command synchronously. The error is reserved for
// transport failures: the command could not be run at all.
type Executor interface {
	Run(ctx context.Context, command string) (Result, error)
}

// Copier fetches a file from the host. Callers treat failure as non-fatal.
type Copier interface {
	Copy(ctx context.Context, remotePath, localPath string) error
}

// Transport is a connection to the benchmark host.
type Transport interface {
	Executor
	Copier
	Close() error
}

// Outcome is the result of a best-effort operation. Callers may discard it.
type Outcome struct {
	Err error
}

func (o Outcome) OK() bool { return o.Err == nil }

// SleepFunc blocks for d, or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration)

// Sleep is the default SleepFunc
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
