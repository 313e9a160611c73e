// Package dberror defines the error categories surfaced by the client and
// maps engine and transport failures onto them.
package dberror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Kind represents different categories of errors
type Kind int

const (
	// KindUnknown represents an unclassified database error
	KindUnknown Kind = iota
	// KindConfiguration is a bad target or option combination, detected at connect time
	KindConfiguration
	// KindProgramming is a parameter-count mismatch or SQL rejected by the engine
	KindProgramming
	// KindOperational is a network, replication or storage I/O failure
	KindOperational
	// KindUsage is an operation on a closed connection or cursor
	KindUsage
	// KindIntegrity is a constraint violation
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindProgramming:
		return "ProgrammingError"
	case KindOperational:
		return "OperationalError"
	case KindUsage:
		return "UsageError"
	case KindIntegrity:
		return "IntegrityError"
	}
	return "DatabaseError"
}

// Error represents a structured error with kind information
type Error struct {
	Kind    Kind
	Message string
	// Code is the SQLite result code name when the engine reported one.
	Code  string
	Cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the specified kind and message
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new Error with the specified kind, message and underlying cause
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, format, args...)
}

func Programming(format string, args ...any) *Error {
	return New(KindProgramming, format, args...)
}

func Usage(format string, args ...any) *Error {
	return New(KindUsage, format, args...)
}

func Operational(cause error, message string) *Error {
	return Wrap(KindOperational, cause, message)
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsConfigurationError(err error) bool { return KindOf(err) == KindConfiguration }

func IsProgrammingError(err error) bool { return KindOf(err) == KindProgramming }

func IsOperationalError(err error) bool { return KindOf(err) == KindOperational }

func IsUsageError(err error) bool { return KindOf(err) == KindUsage }

func IsIntegrityError(err error) bool { return KindOf(err) == KindIntegrity }

// FromSQLite classifies an error returned by the sqlite engine. Errors which
// are already classified, and nil, pass through unchanged.
func FromSQLite(err error, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		// Argument binding failures are raised by database/sql itself.
		if strings.Contains(err.Error(), "arguments") {
			return &Error{Kind: KindProgramming, Message: message, Cause: err}
		}
		return &Error{Kind: KindOperational, Message: message, Cause: err}
	}
	code := CodeName(serr.Code)
	return &Error{Kind: KindFromCode(code), Message: message, Code: code, Cause: err}
}

// CodeName returns the SQLITE_* name of a primary result code.
func CodeName(code sqlite3.ErrNo) string {
	switch code {
	case sqlite3.ErrError:
		return "SQLITE_ERROR"
	case sqlite3.ErrInternal:
		return "SQLITE_INTERNAL"
	case sqlite3.ErrPerm:
		return "SQLITE_PERM"
	case sqlite3.ErrAbort:
		return "SQLITE_ABORT"
	case sqlite3.ErrBusy:
		return "SQLITE_BUSY"
	case sqlite3.ErrLocked:
		return "SQLITE_LOCKED"
	case sqlite3.ErrNomem:
		return "SQLITE_NOMEM"
	case sqlite3.ErrReadonly:
		return "SQLITE_READONLY"
	case sqlite3.ErrInterrupt:
		return "SQLITE_INTERRUPT"
	case sqlite3.ErrIoErr:
		return "SQLITE_IOERR"
	case sqlite3.ErrCorrupt:
		return "SQLITE_CORRUPT"
	case sqlite3.ErrNotFound:
		return "SQLITE_NOTFOUND"
	case sqlite3.ErrFull:
		return "SQLITE_FULL"
	case sqlite3.ErrCantOpen:
		return "SQLITE_CANTOPEN"
	case sqlite3.ErrProtocol:
		return "SQLITE_PROTOCOL"
	case sqlite3.ErrEmpty:
		return "SQLITE_EMPTY"
	case sqlite3.ErrSchema:
		return "SQLITE_SCHEMA"
	case sqlite3.ErrTooBig:
		return "SQLITE_TOOBIG"
	case sqlite3.ErrConstraint:
		return "SQLITE_CONSTRAINT"
	case sqlite3.ErrMismatch:
		return "SQLITE_MISMATCH"
	case sqlite3.ErrMisuse:
		return "SQLITE_MISUSE"
	case sqlite3.ErrNoLFS:
		return "SQLITE_NOLFS"
	case sqlite3.ErrAuth:
		return "SQLITE_AUTH"
	case sqlite3.ErrFormat:
		return "SQLITE_FORMAT"
	case sqlite3.ErrRange:
		return "SQLITE_RANGE"
	case sqlite3.ErrNotADB:
		return "SQLITE_NOTADB"
	}
	return fmt.Sprintf("SQLITE_%d", int(code))
}

// KindFromCode maps a SQLITE_* code name onto an error kind. Extended codes
// such as SQLITE_CONSTRAINT_UNIQUE are matched by prefix.
func KindFromCode(code string) Kind {
	switch {
	case strings.HasPrefix(code, "SQLITE_CONSTRAINT"):
		return KindIntegrity
	case code == "SQLITE_ERROR", code == "SQLITE_RANGE", code == "SQLITE_MISUSE",
		code == "SQLITE_MISMATCH", code == "SQLITE_TOOBIG", code == "SQLITE_AUTH":
		return KindProgramming
	}
	return KindOperational
}
