// Package vault implements the vault file format of §6: a versioned
// header line followed by a base64 payload of salt || nonce || ciphertext,
// encrypted with AES-256-GCM under an Argon2id-derived key.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/kestrelops/kestrel/internal/kestrelerr"
)

// Header is the version tag stamped at the top of every vault file.
const Header = "$KESTREL_VAULT;1.0;AES256"

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32 // AES-256

	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
)

// ErrInvalidVault is returned when the password is wrong or the ciphertext
// was tampered with; the two cases are indistinguishable by design (§6:
// "wrong-password errors must not distinguish from ciphertext tampering").
var ErrInvalidVault = errors.New("vault: invalid password or corrupted ciphertext")

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keySize)
}

// Encrypt returns a vault file's full text (header line, newline, base64
// payload) for plaintext under password.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassVault, err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassVault, err)
	}

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassVault, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassVault, err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	payload := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)

	encoded := base64.StdEncoding.EncodeToString(payload)
	return []byte(fmt.Sprintf("%s\n%s\n", Header, encoded)), nil
}

// Decrypt parses and decrypts a vault file's contents under password.
func Decrypt(vaultFile []byte, password string) ([]byte, error) {
	lines := bytes.SplitN(vaultFile, []byte("\n"), 2)
	if len(lines) < 2 {
		return nil, kestrelerr.Newf(kestrelerr.ClassVault, "vault: malformed file, missing header")
	}
	header := bytes.TrimSpace(lines[0])
	if string(header) != Header {
		return nil, kestrelerr.Newf(kestrelerr.ClassVault, "vault: unrecognized header %q", header)
	}

	payload, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(lines[1])))
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassVault, ErrInvalidVault)
	}
	if len(payload) < saltSize+nonceSize {
		return nil, kestrelerr.New(kestrelerr.ClassVault, ErrInvalidVault)
	}

	salt := payload[:saltSize]
	nonce := payload[saltSize : saltSize+nonceSize]
	ciphertext := payload[saltSize+nonceSize:]

	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassVault, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassVault, err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassVault, ErrInvalidVault)
	}
	return plaintext, nil
}

// IsVaultFile reports whether data carries the vault header, used by
// playbook.LoadVarsFile and the `kestrel vault` command to detect an
// encrypted file before parsing.
func IsVaultFile(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte(Header))
}

// Rekey decrypts under oldPassword and re-encrypts under newPassword with a
// freshly generated salt and nonce.
func Rekey(vaultFile []byte, oldPassword, newPassword string) ([]byte, error) {
	plaintext, err := Decrypt(vaultFile, oldPassword)
	if err != nil {
		return nil, err
	}
	return Encrypt(plaintext, newPassword)
}
