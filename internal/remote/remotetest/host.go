// Package remotetest provides an in-memory benchmark host that understands the
// default command set. It records every call together with the binary that
// held the port at that moment.
package remotetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"duelbench/internal/remote"

	"github.com/cockroachdb/errors"
)

// Call is one command seen by the host
type Call struct {
	Command string
	At      time.Time
	// Listener is the binary bound to the port when the call arrived.
	Listener string
}

// Host fakes the remote side of a run.
type Host struct {
	mu sync.Mutex

	Calls []Call

	// Unhealthy binaries start but never answer the probe.
	Unhealthy map[string]bool
	// Missing tools fail `command -v`.
	Missing map[string]bool
	// RPS is the requests/sec reported for a binary; 1000 when unset.
	RPS map[string]float64

	BuildFails  bool
	Unreachable bool
	// Files holds remote files by path; started servers write their log here.
	Files map[string]string

	listener string
	pid      int
	nextPID  int
}

func NewHost() *Host {
	return &Host{
		Unhealthy: map[string]bool{},
		Missing:   map[string]bool{},
		RPS:       map[string]float64{},
		Files:     map[string]string{},
		nextPID:   4000,
	}
}

// Occupy pretends a stray process already holds the port.
func (h *Host) Occupy(binary string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextPID++
	h.listener, h.pid = binary, h.nextPID
}

// Listener is the binary currently bound to the port, or "".
func (h *Host) Listener() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listener
}

// Commands returns every command in order
func (h *Host) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.Calls))
	for i, c := range h.Calls {
		out[i] = c.Command
	}
	return out
}

// CallsMatching returns the calls whose command starts with prefix.
func (h *Host) CallsMatching(prefix string) []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Call
	for _, c := range h.Calls {
		if strings.HasPrefix(c.Command, prefix) {
			out = append(out, c)
		}
	}
	return out
}

var (
	startRe = regexp.MustCompile(`\./target/release/(\S+) > '?([^' ]+)'?`)
	killRe  = regexp.MustCompile(`^kill -9 (\d+)`)
	connsRe = regexp.MustCompile(`-c(\d+)`)
	toolRe  = regexp.MustCompile(`^command -v (\S+)`)
)

func (h *Host) Run(_ context.Context, command string) (remote.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Calls = append(h.Calls, Call{Command: command, At: time.Now(), Listener: h.listener})
	if h.Unreachable {
		return remote.Result{}, errors.New("dial tcp: connection refused")
	}

	switch {
	case command == "echo ok":
		return remote.Result{Stdout: "ok\n"}, nil

	case toolRe.MatchString(command):
		tool := toolRe.FindStringSubmatch(command)[1]
		if h.Missing[tool] {
			return remote.Result{ExitStatus: 1}, nil
		}
		return remote.Result{Stdout: "/usr/bin/" + tool + "\n"}, nil

	case strings.Contains(command, "cargo build"):
		if h.BuildFails {
			return remote.Result{Stderr: "error[E0425]: cannot find value", ExitStatus: 101}, nil
		}
		return remote.Result{Stderr: "Finished release [optimized] target(s)"}, nil

	case strings.HasPrefix(command, "lsof"):
		if h.listener == "" {
			return remote.Result{ExitStatus: 1}, nil
		}
		return remote.Result{Stdout: strconv.Itoa(h.pid) + "\n"}, nil

	case killRe.MatchString(command):
		pid, _ := strconv.Atoi(killRe.FindStringSubmatch(command)[1])
		if h.listener == "" || pid != h.pid {
			return remote.Result{Stderr: "kill: No such process", ExitStatus: 1}, nil
		}
		h.listener, h.pid = "", 0
		return remote.Result{}, nil

	case startRe.MatchString(command):
		m := startRe.FindStringSubmatch(command)
		if h.listener != "" {
			// bind fails; the process dies straight away
			h.Files[m[2]] = "Address already in use"
			return remote.Result{}, nil
		}
		h.nextPID++
		h.listener, h.pid = m[1], h.nextPID
		h.Files[m[2]] = fmt.Sprintf("Server running on http://127.0.0.1:8080 (%s)\n", m[1])
		return remote.Result{}, nil

	case strings.HasPrefix(command, "curl"):
		if h.listener == "" || h.Unhealthy[h.listener] {
			return remote.Result{ExitStatus: 7}, nil
		}
		return remote.Result{}, nil

	case strings.HasPrefix(command, "wrk"):
		if h.listener == "" {
			return remote.Result{Stdout: "unable to connect to 127.0.0.1:8080 Connection refused\n", ExitStatus: 1}, nil
		}
		conns := 0
		if m := connsRe.FindStringSubmatch(command); m != nil {
			conns, _ = strconv.Atoi(m[1])
		}
		rps := h.RPS[h.listener]
		if rps == 0 {
			rps = 1000
		}
		return remote.Result{Stdout: Report(rps, conns)}, nil
	}

	return remote.Result{Stderr: "sh: command not found", ExitStatus: 127}, nil
}

// Copy writes a file previously created on the host to localPath.
func (h *Host) Copy(_ context.Context, remotePath, localPath string) error {
	h.mu.Lock()
	content, ok := h.Files[remotePath]
	h.mu.Unlock()
	if !ok {
		return errors.Newf("%s: no such file", remotePath)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(localPath, []byte(content), 0644)
}

func (h *Host) Close() error { return nil }

// Report renders a generator report with the given throughput.
func Report(rps float64, connections int) string {
	requests := int64(rps * 30)
	return fmt.Sprintf(`Running 30s test @ http://127.0.0.1:8080/
  4 threads and %d connections
  Thread Stats   Avg      Stdev     Max   +/- Stdev
    Latency     2.50ms    1.00ms  20.00ms   90.00%%
    Req/Sec     1.00k   100.00     2.00k    70.00%%
  Latency Distribution
     50%%    2.00ms
     75%%    2.50ms
     90%%    3.00ms
     99%%    9.00ms
  %d requests in 30.00s, 1.00MB read
Requests/sec: %.2f
Transfer/sec:    100.00KB
`, connections, requests, rps)
}
