package libsql

import "github.com/tomyedwab/libsqlgo/dberror"

// Error is the error type returned by this package.
type Error = dberror.Error

var (
	IsConfigurationError = dberror.IsConfigurationError
	IsProgrammingError   = dberror.IsProgrammingError
	IsOperationalError   = dberror.IsOperationalError
	IsUsageError         = dberror.IsUsageError
	IsIntegrityError     = dberror.IsIntegrityError
)
