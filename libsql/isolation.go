package libsql

import (
	"strings"

	"github.com/tomyedwab/libsqlgo/dberror"
)

// IsolationLevel selects how implicit transactions begin.
type IsolationLevel int

const (
	// Deferred is the default: BEGIN DEFERRED.
	Deferred IsolationLevel = iota
	Immediate
	Exclusive
	// Autocommit never opens implicit transactions; every statement
	// commits on its own. It corresponds to an isolation level of None.
	Autocommit
)

func (l IsolationLevel) String() string {
	switch l {
	case Deferred:
		return "DEFERRED"
	case Immediate:
		return "IMMEDIATE"
	case Exclusive:
		return "EXCLUSIVE"
	}
	return "None"
}

func (l IsolationLevel) beginStatement() string {
	return "BEGIN " + l.String()
}

// ParseIsolationLevel accepts DEFERRED, IMMEDIATE, EXCLUSIVE and None (or
// AUTOCOMMIT), in any case. The empty string selects Deferred.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "DEFERRED":
		return Deferred, nil
	case "IMMEDIATE":
		return Immediate, nil
	case "EXCLUSIVE":
		return Exclusive, nil
	case "NONE", "AUTOCOMMIT":
		return Autocommit, nil
	}
	return Deferred, dberror.Configuration("unknown isolation level %q", s)
}
