// Package store defines the capabilities a connection consumes from its
// backend, and the three backends: Local (an embedded sqlite database),
// Replica (Local plus replication to a primary) and Remote (statements
// forwarded over HTTP).
package store

import (
	"context"

	"github.com/tomyedwab/libsqlgo/types"
)

// Store runs statements against one database handle. Implementations are
// not safe for concurrent use; a Store is owned by exactly one connection.
type Store interface {
	// Run executes a single statement with positional arguments.
	Run(ctx context.Context, sql string, args []types.Value) (*types.Result, error)
	// RunScript executes semicolon-separated statements without arguments.
	RunScript(ctx context.Context, script string) error
	// Commit ends the open transaction, keeping its effects.
	Commit(ctx context.Context) error
	// Rollback ends the open transaction, discarding its effects.
	Rollback(ctx context.Context) error
	// Close releases the handle. It does not roll back.
	Close() error
}

// Replicator is implemented by stores that synchronize with a primary.
type Replicator interface {
	// Push ships locally committed changes to the primary. Shipping may
	// complete asynchronously; failures of earlier pushes are reported by
	// later calls.
	Push(ctx context.Context) error
	// Pull fetches changes from the primary and applies them locally,
	// blocking until done.
	Pull(ctx context.Context) error
}
