package libsql

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/metrics"
	"github.com/tomyedwab/libsqlgo/statement"
	"github.com/tomyedwab/libsqlgo/store"
	"github.com/tomyedwab/libsqlgo/types"
)

// transactionReporter is implemented by stores that know whether the
// engine has a transaction open.
type transactionReporter interface {
	InTransaction() bool
}

// Connection owns one backend store. It is not safe for concurrent use;
// distinct connections may be used concurrently.
type Connection struct {
	target    Target
	store     store.Store
	logger    *slog.Logger
	isolation IsolationLevel
	// inTx tracks transactions opened implicitly, by an explicit BEGIN or
	// by a SAVEPOINT outside of one.
	inTx bool
	// savepoints holds the names of open savepoints, outermost first.
	// savepointTx is set when the outermost one opened the transaction.
	savepoints   []string
	savepointTx  bool
	closed       bool
	pushErr      error
	totalChanges int64
}

// Connect opens a connection to target. See ParseTarget for the target
// grammar. Misconfiguration is reported as a ConfigurationError before
// any database is opened or contacted.
func Connect(ctx context.Context, target string, opts ...Option) (*Connection, error) {
	t, s, err := resolve(target, opts)
	if err != nil {
		return nil, err
	}
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	local := store.LocalConfig{
		Path:               t.Path,
		StatementCacheSize: s.stmtCacheSize,
		BusyTimeoutMillis:  s.busyTimeoutMS,
		Logger:             logger,
	}

	var st store.Store
	switch t.Mode {
	case Local:
		l, err := store.OpenLocal(ctx, local)
		if err != nil {
			return nil, err
		}
		st = l
	case Replica:
		r, err := store.OpenReplica(ctx, store.ReplicaConfig{
			LocalConfig: local,
			SyncURL:     t.SyncURL,
			AuthToken:   t.AuthToken,
			Namespace:   t.Namespace,
			HTTPClient:  s.httpClient,
			PushTimeout: s.pushTimeout,
		})
		if err != nil {
			return nil, err
		}
		st = r
	case Remote:
		st = store.OpenRemote(store.RemoteConfig{
			URL:        t.URL,
			AuthToken:  t.AuthToken,
			Namespace:  t.Namespace,
			HTTPClient: s.httpClient,
			Logger:     logger,
		})
	}

	logger.Debug("Connected", "mode", t.Mode, "isolation_level", t.IsolationLevel)
	return &Connection{
		target:    t,
		store:     st,
		logger:    logger,
		isolation: t.IsolationLevel,
	}, nil
}

// Mode returns the backend mode chosen at connect time.
func (c *Connection) Mode() Mode {
	return c.target.Mode
}

// Target returns the resolved target.
func (c *Connection) Target() Target {
	return c.target
}

// IsolationLevel returns the isolation level set at connect time.
func (c *Connection) IsolationLevel() IsolationLevel {
	return c.isolation
}

// InTransaction reports whether a transaction is open. It is always false
// in Autocommit mode.
func (c *Connection) InTransaction() bool {
	return c.isolation != Autocommit && c.inTx
}

// TotalChanges returns the number of rows inserted, updated or deleted
// through this connection.
func (c *Connection) TotalChanges() int64 {
	return c.totalChanges
}

// Closed reports whether Close was called.
func (c *Connection) Closed() bool {
	return c.closed
}

// Cursor returns a new cursor over this connection.
func (c *Connection) Cursor() *Cursor {
	return newCursor(c)
}

// Execute runs a statement on a new cursor and returns the cursor.
func (c *Connection) Execute(ctx context.Context, query string, args ...any) (*Cursor, error) {
	cur := c.Cursor()
	if err := cur.Execute(ctx, query, args...); err != nil {
		return nil, err
	}
	return cur, nil
}

// ExecuteMany runs a statement once per argument set on a new cursor.
func (c *Connection) ExecuteMany(ctx context.Context, query string, argSets [][]any) (*Cursor, error) {
	cur := c.Cursor()
	if err := cur.ExecuteMany(ctx, query, argSets); err != nil {
		return nil, err
	}
	return cur, nil
}

// ExecuteScript commits any open transaction, then runs a script of
// semicolon-separated statements without arguments.
func (c *Connection) ExecuteScript(ctx context.Context, script string) (*Cursor, error) {
	cur := c.Cursor()
	if err := cur.ExecuteScript(ctx, script); err != nil {
		return nil, err
	}
	return cur, nil
}

// Commit ends the open transaction, keeping its effects. Without an open
// transaction it does nothing. In Replica mode the committed writes are
// queued for the primary, and a failure of an earlier push is returned.
func (c *Connection) Commit(ctx context.Context) error {
	if c.closed {
		return dberror.Usage("connection is closed")
	}
	if err := c.commit(ctx); err != nil {
		return err
	}
	return c.takePushErr()
}

func (c *Connection) commit(ctx context.Context) error {
	if !c.inTx {
		return nil
	}
	if err := c.store.Commit(ctx); err != nil {
		c.syncTransactionState()
		return err
	}
	c.endTx()
	metrics.TransactionsTotal.WithLabelValues(c.target.Mode.String(), "commit").Inc()
	c.replicate(ctx)
	return nil
}

// Rollback discards the open transaction. Without an open transaction it
// does nothing.
func (c *Connection) Rollback(ctx context.Context) error {
	if c.closed {
		return dberror.Usage("connection is closed")
	}
	if !c.inTx {
		return nil
	}
	if err := c.store.Rollback(ctx); err != nil {
		c.syncTransactionState()
		return err
	}
	c.endTx()
	metrics.TransactionsTotal.WithLabelValues(c.target.Mode.String(), "rollback").Inc()
	return nil
}

// Sync pulls the primary's writes into a Replica, after pushing local
// ones. It blocks until done and is refused inside a transaction.
func (c *Connection) Sync(ctx context.Context) error {
	if c.closed {
		return dberror.Usage("connection is closed")
	}
	r, ok := c.store.(store.Replicator)
	if !ok {
		return dberror.Programming("sync requires a replica connection, not %s", c.target.Mode)
	}
	if c.inTx {
		return dberror.Programming("cannot sync while a transaction is open")
	}
	if err := c.takePushErr(); err != nil {
		return err
	}
	start := time.Now()
	if err := r.Pull(ctx); err != nil {
		return err
	}
	c.logger.Debug("Synced with primary", "elapsed", time.Since(start))
	return nil
}

// Close rolls back any open transaction and releases the backend. The
// backend is released even if the rollback fails; the rollback error is
// returned. Cursors of a closed connection fail with UsageError. Close is
// idempotent.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	var rollbackErr error
	if c.inTx {
		if rollbackErr = c.store.Rollback(context.Background()); rollbackErr == nil {
			metrics.TransactionsTotal.WithLabelValues(c.target.Mode.String(), "rollback").Inc()
		}
		c.endTx()
	}
	closeErr := c.store.Close()
	c.closed = true
	c.logger.Debug("Closed connection", "mode", c.target.Mode)
	return errors.Join(rollbackErr, closeErr, c.takePushErr())
}

// run is the statement executor shared by all cursors: it checks the
// bindings, opens an implicit transaction when needed, and keeps the
// transaction state in step with what ran.
func (c *Connection) run(ctx context.Context, query string, args []types.Value) (*types.Result, statement.Kind, error) {
	if c.closed {
		return nil, statement.Other, dberror.Usage("connection is closed")
	}
	switch stmts := statement.Split(query); len(stmts) {
	case 0:
	case 1:
		// Drops a trailing semicolon and anything after it.
		query = stmts[0]
	default:
		return nil, statement.Classify(query), dberror.Programming("you can only execute one statement at a time")
	}
	kind := statement.Classify(query)
	if n := statement.CountParams(query); n != len(args) {
		return nil, kind, dberror.Programming(
			"incorrect number of bindings supplied: the statement uses %d, and there are %d supplied", n, len(args))
	}
	if kind.Modifies() {
		if err := c.beginImplicit(ctx); err != nil {
			return nil, kind, err
		}
	}

	mode := c.target.Mode.String()
	start := time.Now()
	res, err := c.store.Run(ctx, query, args)
	metrics.StatementSeconds.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StatementsTotal.WithLabelValues(mode, kind.String(), metrics.Fail).Inc()
		c.logger.Debug("Statement failed", "mode", mode, "kind", kind, "error", err)
		return nil, kind, err
	}
	metrics.StatementsTotal.WithLabelValues(mode, kind.String(), metrics.Ok).Inc()

	if kind == statement.Write {
		c.totalChanges += res.RowsAffected
	}
	c.track(ctx, kind, query)
	return res, kind, nil
}

func (c *Connection) beginImplicit(ctx context.Context) error {
	if c.isolation == Autocommit || c.inTx {
		return nil
	}
	if _, err := c.store.Run(ctx, c.isolation.beginStatement(), nil); err != nil {
		return err
	}
	c.inTx = true
	return nil
}

// track follows transaction control statements run by the caller.
func (c *Connection) track(ctx context.Context, kind statement.Kind, query string) {
	if !kind.Transactional() {
		if kind.Modifies() && !c.inTx {
			c.replicate(ctx)
		}
		return
	}
	switch kind {
	case statement.Begin:
		c.inTx = true
	case statement.Commit:
		if c.inTx {
			c.endTx()
			metrics.TransactionsTotal.WithLabelValues(c.target.Mode.String(), "commit").Inc()
		}
		c.replicate(ctx)
	case statement.Rollback:
		if c.inTx {
			c.endTx()
			metrics.TransactionsTotal.WithLabelValues(c.target.Mode.String(), "rollback").Inc()
		}
	case statement.Savepoint:
		c.trackSavepoint(ctx, query)
	}
}

// trackSavepoint follows SAVEPOINT and RELEASE. A SAVEPOINT outside a
// transaction opens one, which releasing that savepoint commits.
func (c *Connection) trackSavepoint(ctx context.Context, query string) {
	verb, name := statement.ParseSavepoint(query)
	switch verb {
	case "SAVEPOINT":
		if !c.inTx {
			c.inTx = true
			c.savepointTx = true
		}
		c.savepoints = append(c.savepoints, name)
	case "RELEASE":
		for i := len(c.savepoints) - 1; i >= 0; i-- {
			if c.savepoints[i] == name {
				c.savepoints = c.savepoints[:i]
				break
			}
		}
		wasInTx := c.inTx
		if _, ok := c.store.(transactionReporter); ok {
			c.syncTransactionState()
		} else if c.savepointTx && len(c.savepoints) == 0 {
			c.endTx()
		}
		if wasInTx && !c.inTx {
			metrics.TransactionsTotal.WithLabelValues(c.target.Mode.String(), "commit").Inc()
			c.replicate(ctx)
		}
	}
}

func (c *Connection) endTx() {
	c.inTx = false
	c.savepoints = nil
	c.savepointTx = false
}

// runScript commits, runs the script, then re-derives the transaction
// state since the script may begin or end transactions itself.
func (c *Connection) runScript(ctx context.Context, script string) error {
	if c.closed {
		return dberror.Usage("connection is closed")
	}
	if err := c.commit(ctx); err != nil {
		return err
	}
	err := c.store.RunScript(ctx, script)
	if _, ok := c.store.(transactionReporter); ok {
		c.syncTransactionState()
	} else if err == nil {
		for _, stmt := range statement.Split(script) {
			if kind := statement.Classify(stmt); kind.Transactional() {
				c.track(ctx, kind, stmt)
			}
		}
	}
	if err != nil {
		return err
	}
	if !c.inTx {
		c.replicate(ctx)
	}
	return nil
}

// syncTransactionState asks the engine, when it can tell, whether a
// transaction is still open.
func (c *Connection) syncTransactionState() {
	if r, ok := c.store.(transactionReporter); ok {
		if r.InTransaction() {
			c.inTx = true
		} else {
			c.endTx()
		}
	}
}

// replicate queues committed writes for the primary. Failures are kept
// and reported by the next Commit, Sync or Close.
func (c *Connection) replicate(ctx context.Context) {
	r, ok := c.store.(store.Replicator)
	if !ok {
		return
	}
	if err := r.Push(ctx); err != nil {
		c.logger.Warn("Replication push failed", "error", err)
		if c.pushErr == nil {
			c.pushErr = err
		}
	}
}

func (c *Connection) takePushErr() error {
	err := c.pushErr
	c.pushErr = nil
	return err
}
