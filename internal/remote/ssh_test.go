package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"duelbench/internal/config"
)

// sshd is a minimal in-process server. "exit N" exits with N, "drop" cuts
// the connection without an exit status, anything else prints ok.
type sshd struct {
	ln    net.Listener
	conns atomic.Int32
}

func startSSHD(t *testing.T) *sshd {
	t.Helper()
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostKey, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	cfg.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	s := &sshd{ln: ln}
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			s.conns.Add(1)
			go s.serve(nc, cfg)
		}
	}()
	return s
}

func (s *sshd) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *sshd) serve(nc net.Conn, cfg *ssh.ServerConfig) {
	conn, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			for req := range requests {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				if payload.Command == "drop" {
					conn.Close()
					return
				}
				status := 0
				if rest, ok := strings.CutPrefix(payload.Command, "exit "); ok {
					status, _ = strconv.Atoi(rest)
				} else {
					_, _ = io.WriteString(ch, "ok\n")
				}
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
				ch.Close()
				return
			}
		}()
	}
}

func writeIdentity(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func newTestSSHClient(t *testing.T, s *sshd) *SSHClient {
	t.Helper()
	t.Setenv("SSH_AUTH_SOCK", "")
	c := NewSSHClient("127.0.0.1", "bench", config.SSH{
		Port:                  s.port(),
		IdentityFile:          writeIdentity(t),
		InsecureIgnoreHostKey: true,
		DialTimeout:           5 * time.Second,
	}, nil)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSSHClientRun(t *testing.T) {
	s := startSSHD(t)
	c := newTestSSHClient(t, s)
	ctx := context.Background()

	res, err := c.Run(ctx, "echo ok")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", res.Stdout)
	assert.Equal(t, 0, res.ExitStatus)

	res, err = c.Run(ctx, "exit 3")
	require.NoError(t, err, "a non-zero exit is a result, not an error")
	assert.Equal(t, 3, res.ExitStatus)

	assert.Equal(t, int32(1), s.conns.Load(), "sessions share one connection")
}

func TestSSHClientRedialsAfterDroppedConnection(t *testing.T) {
	s := startSSHD(t)
	c := newTestSSHClient(t, s)
	ctx := context.Background()

	_, err := c.Run(ctx, "echo ok")
	require.NoError(t, err)

	_, err = c.Run(ctx, "drop")
	require.Error(t, err)

	res, err := c.Run(ctx, "echo ok")
	require.NoError(t, err, "the call after a drop dials again")
	assert.Equal(t, "ok\n", res.Stdout)
	assert.Equal(t, int32(2), s.conns.Load())
}

func TestExitStatus(t *testing.T) {
	status, ok := exitStatus(&ssh.ExitError{})
	assert.True(t, ok)
	assert.Zero(t, status)

	_, ok = exitStatus(&ssh.ExitMissingError{})
	assert.False(t, ok)
	_, ok = exitStatus(io.EOF)
	assert.False(t, ok)
}
