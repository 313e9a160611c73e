package main

import (
	"context"

	"github.com/tomyedwab/libsqlgo/libsql"
)

// connectOptions select and configure the target of shell and bench.
type connectOptions struct {
	AuthToken  string `long:"auth-token" env:"LIBSQL_AUTH_TOKEN" description:"Bearer token for the server or primary"`
	SyncURL    string `long:"sync-url" description:"Open the target as a replica of this primary"`
	Namespace  string `long:"namespace" description:"Server-side namespace"`
	Isolation  string `long:"isolation-level" default:"DEFERRED" description:"DEFERRED, IMMEDIATE, EXCLUSIVE or None"`
	Positional struct {
		Target string `positional-arg-name:"target" description:"Database path, :memory:, or server URL"`
	} `positional-args:"yes" required:"yes"`
}

func (o *connectOptions) connect(ctx context.Context) (*libsql.Connection, error) {
	level, err := libsql.ParseIsolationLevel(o.Isolation)
	if err != nil {
		return nil, err
	}
	opts := []libsql.Option{libsql.WithIsolationLevel(level)}
	if o.AuthToken != "" {
		opts = append(opts, libsql.WithAuthToken(o.AuthToken))
	}
	if o.SyncURL != "" {
		opts = append(opts, libsql.WithSyncURL(o.SyncURL))
	}
	if o.Namespace != "" {
		opts = append(opts, libsql.WithNamespace(o.Namespace))
	}
	return libsql.Connect(ctx, o.Positional.Target, opts...)
}
