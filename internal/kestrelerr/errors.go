// Package kestrelerr implements the closed error taxonomy from spec §7 so
// the callback bus and the CLI's exit-code mapping (§6) can switch on
// error class without parsing messages.
package kestrelerr

import (
	"errors"
	"fmt"
)

// Class is the closed taxonomy of engine-level failure categories.
type Class int

const (
	ClassUnknown Class = iota
	ClassParse
	ClassValidation
	ClassConfig
	ClassTemplate
	ClassInventory
	ClassConnection
	ClassRemote
	ClassTask
	ClassTimeout
	ClassCancelled
	ClassVault
	ClassInternal
)

func (c Class) String() string {
	switch c {
	case ClassParse:
		return "parse"
	case ClassValidation:
		return "validation"
	case ClassConfig:
		return "config"
	case ClassTemplate:
		return "template"
	case ClassInventory:
		return "inventory"
	case ClassConnection:
		return "connection"
	case ClassRemote:
		return "remote"
	case ClassTask:
		return "task"
	case ClassTimeout:
		return "timeout"
	case ClassCancelled:
		return "cancelled"
	case ClassVault:
		return "vault"
	case ClassInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Classified is an error tagged with a taxonomy Class.
type Classified struct {
	Class Class
	Err   error
}

func (e *Classified) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Classified) Unwrap() error { return e.Err }

// New wraps err with a Class.
func New(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &Classified{Class: class, Err: err}
}

// Newf is a convenience for Class + fmt.Errorf.
func Newf(class Class, format string, args ...any) error {
	return New(class, fmt.Errorf(format, args...))
}

// ClassOf returns the Class of err, or ClassUnknown if err was never
// classified.
func ClassOf(err error) Class {
	var c *Classified
	if errors.As(err, &c) {
		return c.Class
	}
	return ClassUnknown
}

// Connection-layer sentinels (§4.1). Wrap these with New(ClassConnection, ...)
// or a Connection-specific sentinel type when host context is needed.
var (
	ErrUnreachable   = errors.New("host unreachable")
	ErrPoolExhausted = errors.New("connection pool exhausted")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrHostKeyMismatch = errors.New("host key mismatch")
)

// ErrCancelled is returned by any suspension point when the cooperative
// cancellation token has been flipped (§5).
var ErrCancelled = errors.New("cancelled")

// ExitCode maps a run outcome to the process exit codes of §6.
func ExitCode(anyFailed, anyUnreachable bool, fatalErr error) int {
	if fatalErr != nil {
		switch ClassOf(fatalErr) {
		case ClassParse, ClassValidation, ClassConfig:
			return 4
		case ClassCancelled:
			return 5
		case ClassInternal:
			return 99
		default:
			return 99
		}
	}
	if anyUnreachable {
		return 3
	}
	if anyFailed {
		return 2
	}
	return 0
}
