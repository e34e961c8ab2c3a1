package connection

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/kestrelops/kestrel/internal/kestrelerr"
)

// Execute runs cmd (already assembled by BuildCommand) over session, per
// §4.1 execute(). An escalation password, if present, is written to stdin
// first, followed by opts.Stdin.
func (p *Pool) Execute(session *Session, cmd string, opts ExecOptions) (*ExecResult, error) {
	sshSess, err := session.client.NewSession()
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassConnection, err)
	}
	defer sshSess.Close()

	var stdin bytes.Buffer
	if opts.Escalation != nil && len(opts.Escalation.PasswordSink) > 0 {
		stdin.Write(opts.Escalation.PasswordSink)
		stdin.WriteByte('\n')
	}
	stdin.Write(opts.Stdin)
	sshSess.Stdin = &stdin

	var stdout, stderr bytes.Buffer
	sshSess.Stdout = &stdout
	sshSess.Stderr = &stderr

	start := time.Now()
	runErr := runWithTimeout(sshSess, cmd, opts.TimeoutSecs)
	elapsed := time.Since(start)
	session.touch()

	rc := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			rc = exitErr.ExitStatus()
		} else if runErr == errExecTimeout {
			return nil, kestrelerr.New(kestrelerr.ClassTimeout, fmt.Errorf("command timed out after %ds", opts.TimeoutSecs))
		} else {
			return nil, kestrelerr.New(kestrelerr.ClassRemote, runErr)
		}
	}
	return &ExecResult{RC: rc, Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Elapsed: elapsed}, nil
}

var errExecTimeout = fmt.Errorf("exec timeout")

func runWithTimeout(sess *ssh.Session, cmd string, timeoutSecs int) error {
	if timeoutSecs <= 0 {
		return sess.Run(cmd)
	}
	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Duration(timeoutSecs) * time.Second):
		_ = sess.Signal(ssh.SIGKILL)
		return errExecTimeout
	}
}

// Upload writes data to remotePath via SFTP, setting mode if non-zero.
func (p *Pool) Upload(session *Session, data []byte, remotePath string, mode os.FileMode) error {
	client, err := session.sftp()
	if err != nil {
		return kestrelerr.New(kestrelerr.ClassConnection, err)
	}
	f, err := client.Create(remotePath)
	if err != nil {
		return kestrelerr.New(kestrelerr.ClassRemote, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return kestrelerr.New(kestrelerr.ClassRemote, err)
	}
	if mode != 0 {
		if err := client.Chmod(remotePath, mode); err != nil {
			return kestrelerr.New(kestrelerr.ClassRemote, err)
		}
	}
	return nil
}

// Download reads remotePath's full contents via SFTP.
func (p *Pool) Download(session *Session, remotePath string) ([]byte, error) {
	client, err := session.sftp()
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassConnection, err)
	}
	f, err := client.Open(remotePath)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassRemote, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassRemote, err)
	}
	return data, nil
}

// Stat returns remotePath's file info via SFTP.
func (p *Pool) Stat(session *Session, remotePath string) (os.FileInfo, error) {
	client, err := session.sftp()
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassConnection, err)
	}
	info, err := client.Stat(remotePath)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassRemote, err)
	}
	return info, nil
}

// Exists reports whether remotePath exists.
func (p *Pool) Exists(session *Session, remotePath string) (bool, error) {
	_, err := p.Stat(session, remotePath)
	if err != nil {
		if kestrelerr.ClassOf(err) == kestrelerr.ClassRemote {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsDirectory reports whether remotePath is a directory.
func (p *Pool) IsDirectory(session *Session, remotePath string) (bool, error) {
	info, err := p.Stat(session, remotePath)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Readlink returns the target of the symlink at remotePath, or "" if
// remotePath doesn't exist or isn't a symlink.
func (p *Pool) Readlink(session *Session, remotePath string) (string, error) {
	client, err := session.sftp()
	if err != nil {
		return "", kestrelerr.New(kestrelerr.ClassConnection, err)
	}
	target, err := client.ReadLink(remotePath)
	if err != nil {
		return "", nil
	}
	return target, nil
}
