package connection

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/kestrelops/kestrel/internal/kestrelerr"
)

// HostKeyPolicy selects how the pool reacts to an unseen or mismatched
// host key (§4.1).
type HostKeyPolicy string

const (
	HostKeyStrict     HostKeyPolicy = "strict"
	HostKeyAcceptNew  HostKeyPolicy = "accept-new"
	HostKeyOff        HostKeyPolicy = "off"
)

// BuildHostKeyCallback returns an ssh.HostKeyCallback implementing policy
// against the known_hosts file at path. "off" accepts everything (testing
// only, per spec); "strict" never pins; "accept-new" pins keys for hosts
// not yet present in the file.
func BuildHostKeyCallback(policy HostKeyPolicy, path string) (ssh.HostKeyCallback, error) {
	if policy == HostKeyOff {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit opt-in, testing only
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if f, cerr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600); cerr == nil {
			f.Close()
		}
	}
	base, err := knownhosts.New(path)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassConfig, fmt.Errorf("loading known_hosts %s: %w", path, err))
	}
	if policy == HostKeyStrict {
		return base, nil
	}

	// accept-new: fall back to pinning when the key is simply unknown;
	// an outright mismatch against a pinned key is still fatal.
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := base(hostname, remote, key)
		if err == nil {
			return nil
		}
		if keyErr, ok := err.(*knownhosts.KeyError); ok && len(keyErr.Want) == 0 {
			return appendKnownHost(path, hostname, key)
		}
		return kestrelerr.New(kestrelerr.ClassConnection, fmt.Errorf("%w: %v", errHostKeyMismatchLocal, err))
	}, nil
}

var errHostKeyMismatchLocal = fmt.Errorf("host key mismatch")

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return kestrelerr.New(kestrelerr.ClassConfig, err)
	}
	defer f.Close()
	line := knownhosts.Line([]string{hostname}, key)
	_, err = f.WriteString(line + "\n")
	return err
}
