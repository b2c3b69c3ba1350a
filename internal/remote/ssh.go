package remote

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"duelbench/internal/config"

	"github.com/cockroachdb/errors"
	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHClient runs every command in its own session over one shared connection.
// The connection is dialled on first use, so a bad host surfaces as the
// connectivity check failing.
type SSHClient struct {
	host string
	user string
	opts config.SSH
	log  *zap.Logger

	mu        sync.Mutex
	client    *ssh.Client
	agentConn net.Conn
}

func NewSSHClient(host, user string, opts config.SSH, log *zap.Logger) *SSHClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &SSHClient{host: host, user: user, opts: opts, log: log}
}

func (c *SSHClient) addr() string {
	port := c.opts.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.host, strconv.Itoa(port))
}

func (c *SSHClient) connect(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	cfg, err := c.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := c.addr()
	dialer := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "ssh handshake with %s@%s", c.user, addr)
	}
	c.client = ssh.NewClient(sshConn, chans, reqs)
	c.log.Debug("ssh connected", zap.String("addr", addr), zap.String("user", c.user))
	return c.client, nil
}

func (c *SSHClient) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	signers, err := c.identitySigners()
	if err != nil {
		return nil, err
	}
	if len(signers) > 0 {
		auth = append(auth, ssh.PublicKeys(signers...))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			c.log.Debug("ssh agent unavailable", zap.Error(err))
		} else {
			if c.agentConn != nil {
				_ = c.agentConn.Close()
			}
			c.agentConn = conn
			auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(auth) == 0 {
		return nil, errors.New("no ssh credentials: set ssh.identity_file or run an ssh agent")
	}

	hostKeys, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            c.user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         c.opts.DialTimeout,
	}, nil
}

// identitySigners loads the configured key, or the usual defaults when none is set
func (c *SSHClient) identitySigners() ([]ssh.Signer, error) {
	var paths []string
	explicit := c.opts.IdentityFile != ""
	if explicit {
		paths = []string{expandHome(c.opts.IdentityFile)}
	} else if home, err := os.UserHomeDir(); err == nil {
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			paths = append(paths, filepath.Join(home, ".ssh", name))
		}
	}

	var signers []ssh.Signer
	for _, p := range paths {
		pem, err := os.ReadFile(p)
		if err != nil {
			if explicit {
				return nil, errors.Wrapf(err, "reading identity file %s", p)
			}
			continue
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			if explicit {
				return nil, errors.Wrapf(err, "parsing identity file %s", p)
			}
			c.log.Debug("skipping unusable key", zap.String("path", p), zap.Error(err))
			continue
		}
		signers = append(signers, signer)
	}
	return signers, nil
}

func (c *SSHClient) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.opts.InsecureIgnoreHostKey {
		c.log.Warn("host key checking disabled", zap.String("host", c.host))
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := c.opts.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "locating known_hosts")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(expandHome(path))
	if err != nil {
		return nil, errors.Wrapf(err, "loading known hosts %s", path)
	}
	return cb, nil
}

// Run executes command in a fresh session
func (c *SSHClient) Run(ctx context.Context, command string) (Result, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return Result{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		c.reset()
		return Result{}, errors.Wrap(err, "opening ssh session")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return Result{}, errors.Wrapf(ctx.Err(), "running %q", command)
	case err = <-done:
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if status, ok := exitStatus(err); ok {
		res.ExitStatus = status
		return res, nil
	}
	// no exit status means the session broke (EOF, missing exit-status); the
	// next call dials again
	c.reset()
	return res, errors.Wrapf(err, "running %q", command)
}

// exitStatus reports the remote command's exit status, if err carries one
func exitStatus(err error) (int, bool) {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), true
	}
	return 0, false
}

// Copy fetches remotePath over sftp
func (c *SSHClient) Copy(ctx context.Context, remotePath, localPath string) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		return errors.Wrap(err, "starting sftp")
	}
	defer sc.Close()

	src, err := sc.Open(remotePath)
	if err != nil {
		return errors.Wrapf(err, "opening remote %s", remotePath)
	}
	defer src.Close()

	return writeLocal(src, localPath)
}

func (c *SSHClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}
}

func (c *SSHClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.client != nil {
		err = c.client.Close()
		c.client = nil
	}
	if c.agentConn != nil {
		_ = c.agentConn.Close()
		c.agentConn = nil
	}
	return err
}

func writeLocal(src io.Reader, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(localPath))
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return errors.Wrapf(err, "creating %s", localPath)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errors.Wrapf(err, "writing %s", localPath)
	}
	return dst.Close()
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
