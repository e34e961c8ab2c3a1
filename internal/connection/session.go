package connection

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Session is a live authenticated channel to one host (§3 Connection
// Session). Owned by the pool; leased to runners.
type Session struct {
	Host string

	client *ssh.Client

	sftpMu     sync.Mutex
	sftpClient *sftp.Client

	mu       sync.Mutex
	lastUsed time.Time
	inflight int32
	fails    int32
}

// sftp lazily opens (and caches) the session's SFTP subsystem, used by the
// file-transfer primitives (§4.1 upload/download/stat/exists/is_directory).
func (s *Session) sftp() (*sftp.Client, error) {
	s.sftpMu.Lock()
	defer s.sftpMu.Unlock()
	if s.sftpClient != nil {
		return s.sftpClient, nil
	}
	c, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, err
	}
	s.sftpClient = c
	return c, nil
}

func newSession(host string, client *ssh.Client) *Session {
	return &Session{Host: host, client: client, lastUsed: time.Now()}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastUsed)
}

func (s *Session) beginInflight() { atomic.AddInt32(&s.inflight, 1) }
func (s *Session) endInflight()   { atomic.AddInt32(&s.inflight, -1) }

func (s *Session) close() error {
	s.sftpMu.Lock()
	if s.sftpClient != nil {
		_ = s.sftpClient.Close()
		s.sftpClient = nil
	}
	s.sftpMu.Unlock()
	return s.client.Close()
}

// ExecResult is the outcome of one command execution (§4.1 execute()).
type ExecResult struct {
	RC      int
	Stdout  []byte
	Stderr  []byte
	Elapsed time.Duration
}
