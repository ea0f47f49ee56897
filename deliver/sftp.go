package deliver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ScanParametersDir is where the lidar looks for scan files.
const ScanParametersDir = "/C:/Lidar/System/Scan parameters"

type SFTPConfig struct {
	Addr     string
	User     string
	Password string
	// KnownHosts is an OpenSSH known_hosts file. If empty, the host key
	// is not checked.
	KnownHosts string
	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration
	// MaxTries bounds connection attempts; zero means 5.
	MaxTries uint
}

// SFTP is a Transport over an SSH session. It connects lazily and
// reconnects after a failed or timed out operation.
type SFTP struct {
	cfg SFTPConfig

	mu     sync.Mutex
	conn   *ssh.Client
	client *sftp.Client
}

func NewSFTP(cfg SFTPConfig) *SFTP {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 5
	}
	return &SFTP{cfg: cfg}
}

func (s *SFTP) clientConfig() (*ssh.ClientConfig, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if s.cfg.KnownHosts != "" {
		cb, err := knownhosts.New(s.cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKey = cb
	}
	return &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(s.cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         s.cfg.DialTimeout,
	}, nil
}

func (s *SFTP) dial(ctx context.Context) (*ssh.Client, error) {
	cfg, err := s.clientConfig()
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		log.Printf("opening %q: %v", s.cfg.Addr, err)
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, s.cfg.Addr, cfg)
	if err != nil {
		conn.Close()
		log.Printf("ssh handshake with %q: %v", s.cfg.Addr, err)
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// session returns a connected sftp client, dialing with exponential
// backoff if necessary.
func (s *SFTP) session(ctx context.Context) (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	conn, err := backoff.Retry(ctx, func() (*ssh.Client, error) {
		return s.dial(ctx)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.cfg.MaxTries))
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", s.cfg.Addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("starting sftp on %q: %w", s.cfg.Addr, err)
	}
	log.Printf("opened %q", s.cfg.Addr)
	s.conn, s.client = conn, client
	return client, nil
}

// Close drops the session; the next operation reconnects.
func (s *SFTP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	s.client.Close()
	err := s.conn.Close()
	s.conn, s.client = nil, nil
	return err
}

// do runs op on the session, dropping the session if ctx ends first.
func (s *SFTP) do(ctx context.Context, op func(*sftp.Client) error) error {
	client, err := s.session(ctx)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- op(client) }()
	select {
	case err := <-done:
		if err != nil && sessionLost(err) {
			s.Close()
		}
		return err
	case <-ctx.Done():
		// Closing the connection unblocks op.
		s.Close()
		<-done
		return ctx.Err()
	}
}

// sessionLost reports whether err came from the connection rather than
// from the remote filesystem.
func sessionLost(err error) bool {
	var serr *sftp.StatusError
	return !errors.As(err, &serr) && !errors.Is(err, os.ErrNotExist) && !errors.Is(err, os.ErrPermission)
}

// Put uploads to a temporary name next to remotePath and renames it into
// place, so the scanner never reads a partial file.
func (s *SFTP) Put(ctx context.Context, content []byte, remotePath string) error {
	tmp := remotePath + ".part"
	return s.do(ctx, func(c *sftp.Client) error {
		f, err := c.Create(tmp)
		if err != nil {
			return err
		}
		if _, err := f.Write(content); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		if err := c.PosixRename(tmp, remotePath); err == nil {
			return nil
		}
		// The scanner's server may lack posix-rename; fall back to a
		// plain rename, which fails if the target exists.
		if err := c.Remove(remotePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return c.Rename(tmp, remotePath)
	})
}

func (s *SFTP) List(ctx context.Context, dir string) ([]RemoteFile, error) {
	var out []RemoteFile
	err := s.do(ctx, func(c *sftp.Client) error {
		infos, err := c.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, fi := range infos {
			if fi.IsDir() {
				continue
			}
			out = append(out, RemoteFile{Path: path.Join(dir, fi.Name()), Size: fi.Size(), ModTime: fi.ModTime()})
		}
		return nil
	})
	return out, err
}

func (s *SFTP) Get(ctx context.Context, remotePath string) ([]byte, error) {
	var out []byte
	err := s.do(ctx, func(c *sftp.Client) error {
		f, err := c.Open(remotePath)
		if err != nil {
			return err
		}
		defer f.Close()
		out, err = io.ReadAll(f)
		return err
	})
	return out, err
}
