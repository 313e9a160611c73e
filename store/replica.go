package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/metrics"
	"github.com/tomyedwab/libsqlgo/replication"
	"github.com/tomyedwab/libsqlgo/statement"
	"github.com/tomyedwab/libsqlgo/types"
)

const (
	journalSavepoint = "libsql_journal"
	pushBatchSize    = 256
	closeTimeout     = 10 * time.Second
)

// ReplicaConfig configures OpenReplica.
type ReplicaConfig struct {
	LocalConfig
	// SyncURL is the http(s) base URL of the primary.
	SyncURL   string
	AuthToken string
	Namespace string
	// HTTPClient is used for push and pull requests when set.
	HTTPClient *http.Client
	// Client overrides the replication client built from the fields above.
	Client *replication.Client
	// PushTimeout bounds each push request. Zero keeps the pusher default.
	PushTimeout time.Duration
}

// Replica is a Local store whose committed writes are journaled and shipped
// to a primary, and which can pull writes made elsewhere.
type Replica struct {
	*Local
	client    *replication.Client
	pusher    *replication.Pusher
	journal   replication.Journal
	replicaID string
	queued    int64 // Highest journal sequence handed to the pusher.
	logger    *slog.Logger
}

// OpenReplica opens the local file and prepares its journal. No network
// traffic happens until the first push or pull.
func OpenReplica(ctx context.Context, cfg ReplicaConfig) (*Replica, error) {
	local, err := OpenLocal(ctx, cfg.LocalConfig)
	if err != nil {
		return nil, err
	}
	r := &Replica{Local: local, client: cfg.Client, logger: local.logger}
	if r.client == nil {
		options := []replication.ClientOption{
			replication.WithAuthToken(cfg.AuthToken),
			replication.WithNamespace(cfg.Namespace),
			replication.WithLogger(local.logger),
		}
		if cfg.HTTPClient != nil {
			options = append(options, replication.WithHTTPClient(cfg.HTTPClient))
		}
		r.client = replication.NewClient(cfg.SyncURL, options...)
	}

	if err := r.init(ctx); err != nil {
		local.Close()
		return nil, dberror.FromSQLite(err, "failed to initialize replica")
	}
	var pushOptions []replication.PusherOption
	if cfg.PushTimeout > 0 {
		pushOptions = append(pushOptions, replication.WithPushTimeout(cfg.PushTimeout))
	}
	r.pusher = replication.NewPusher(r.client, local.logger, r.queued, pushOptions...)
	local.logger.Debug("Opened replica", "path", r.Path(), "primary", r.client.BaseURL(), "replica_id", r.replicaID)
	return r, nil
}

func (r *Replica) init(ctx context.Context) error {
	conn := r.conn
	if err := replication.InitJournal(ctx, conn); err != nil {
		return err
	}
	id, err := r.journal.State(ctx, conn, replication.StateReplicaID)
	if err != nil {
		return fmt.Errorf("failed to read replica id: %w", err)
	}
	if id == "" {
		id = uuid.New().String()
		if err := r.journal.SetState(ctx, conn, replication.StateReplicaID, id); err != nil {
			return fmt.Errorf("failed to store replica id: %w", err)
		}
	}
	r.replicaID = id
	return nil
}

// ReplicaID returns the identity this replica pushes under.
func (r *Replica) ReplicaID() string {
	return r.replicaID
}

// Run implements Store. Writes are journaled atomically with their effects:
// both happen under a savepoint, so a write rolled back later leaves no
// journal entry either.
func (r *Replica) Run(ctx context.Context, query string, args []types.Value) (*types.Result, error) {
	if !statement.Classify(query).Modifies() {
		return r.Local.Run(ctx, query, args)
	}
	if r.conn == nil {
		return nil, dberror.Usage("database is closed")
	}

	var res *types.Result
	err := replication.WithSavepoint(ctx, r.conn, journalSavepoint, func() error {
		var err error
		if res, err = r.Local.Run(ctx, query, args); err != nil {
			return err
		}
		if _, err := r.journal.Append(ctx, r.conn, query, args); err != nil {
			return dberror.FromSQLite(err, "failed to journal write")
		}
		return nil
	})
	if err != nil {
		return nil, dberror.FromSQLite(err, "exec failed")
	}
	return res, nil
}

// RunScript implements Store. Statements run one at a time so that writes
// are journaled.
func (r *Replica) RunScript(ctx context.Context, script string) error {
	for _, stmt := range statement.Split(script) {
		if _, err := r.Run(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

// Push implements Replicator. Journal entries committed since the last push
// are handed to the background pusher; this does not wait for the primary.
// A failure of an earlier push is returned here, and the affected entries
// are queued again.
func (r *Replica) Push(ctx context.Context) error {
	if r.conn == nil {
		return dberror.Usage("database is closed")
	}
	if r.InTransaction() {
		// Journal entries of an open transaction may still be rolled back.
		return nil
	}
	if err := r.pusher.TakeError(); err != nil {
		// Everything after the last acknowledgement is re-sent next time.
		r.queued = r.pusher.Acked()
		return err
	}

	acked := r.pusher.Acked()
	if acked > 0 {
		if _, err := r.journal.Trim(ctx, r.conn, acked); err != nil {
			return dberror.FromSQLite(err, "failed to trim journal")
		}
	}
	if r.queued < acked {
		r.queued = acked
	}

	for {
		records, err := r.journal.Pending(ctx, r.conn, r.queued, pushBatchSize)
		if err != nil {
			return dberror.FromSQLite(err, "failed to read journal")
		}
		if len(records) == 0 {
			return nil
		}
		batch := replication.Batch{ReplicaID: r.replicaID, Entries: make([]types.Entry, 0, len(records))}
		for _, rec := range records {
			entry, err := rec.Entry()
			if err != nil {
				return dberror.Operational(err, "corrupt journal")
			}
			batch.Entries = append(batch.Entries, entry)
			batch.Seq = rec.Seq
		}
		if err := r.pusher.Enqueue(ctx, batch); err != nil {
			return dberror.Operational(err, "failed to queue push")
		}
		r.queued = batch.Seq
	}
}

// Flush waits for queued pushes and returns the first failure, if any.
func (r *Replica) Flush(ctx context.Context) error {
	if err := r.Push(ctx); err != nil {
		return err
	}
	if err := r.pusher.Flush(ctx); err != nil {
		return dberror.Operational(err, "failed to flush pushes")
	}
	if err := r.pusher.TakeError(); err != nil {
		r.queued = r.pusher.Acked()
		return err
	}
	if r.InTransaction() {
		return nil
	}
	if _, err := r.journal.Trim(ctx, r.conn, r.pusher.Acked()); err != nil {
		return dberror.FromSQLite(err, "failed to trim journal")
	}
	return nil
}

// Pull implements Replicator. Local writes are pushed first, then frames
// from the primary are applied in order. Frames are not journaled.
func (r *Replica) Pull(ctx context.Context) error {
	if err := r.Flush(ctx); err != nil {
		return err
	}

	state, err := r.journal.State(ctx, r.conn, replication.StatePulledIndex)
	if err != nil {
		return dberror.FromSQLite(err, "failed to read sync state")
	}
	after, _ := strconv.ParseInt(state, 10, 64)

	for {
		resp, err := r.client.Pull(ctx, r.replicaID, after)
		if err != nil {
			return err
		}
		if resp.LastIndex <= after {
			return nil
		}
		if err := r.apply(ctx, resp); err != nil {
			return err
		}
		r.logger.Debug("Applied frames from primary", "frames", len(resp.Frames), "last_index", resp.LastIndex)
		metrics.ReplicationPullFrames.Add(float64(len(resp.Frames)))
		after = resp.LastIndex
	}
}

func (r *Replica) apply(ctx context.Context, resp *types.PullResponse) (err error) {
	if _, err := r.conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return dberror.FromSQLite(err, "failed to begin applying frames")
	}
	defer func() {
		if err != nil {
			if _, rbErr := r.conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
				err = errors.Join(err, dberror.FromSQLite(rbErr, "rollback failed"))
			}
		}
	}()

	for _, frame := range resp.Frames {
		params := make([]any, len(frame.Args))
		for i, a := range frame.Args {
			params[i] = a.Any()
		}
		if _, err := r.conn.ExecContext(ctx, frame.SQL, params...); err != nil {
			return dberror.FromSQLite(err, fmt.Sprintf("failed to apply frame %d", frame.Index))
		}
	}
	if err := r.journal.SetState(ctx, r.conn, replication.StatePulledIndex, strconv.FormatInt(resp.LastIndex, 10)); err != nil {
		return dberror.FromSQLite(err, "failed to record sync state")
	}
	if _, err := r.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return dberror.FromSQLite(err, "failed to commit frames")
	}
	return nil
}

// Close pushes what remains of the journal, waiting a bounded time, then
// closes the local database. A push failure is returned after the database
// is released.
func (r *Replica) Close() error {
	if r.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var pushErr error
	if !r.InTransaction() {
		pushErr = r.Flush(ctx)
	}
	r.pusher.Stop()
	if pushErr == nil {
		pushErr = r.pusher.TakeError()
	}
	return errors.Join(r.Local.Close(), pushErr)
}
