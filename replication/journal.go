package replication

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tomyedwab/libsqlgo/types"
)

// Keys of the sync state table.
const (
	StateReplicaID   = "replica_id"
	StatePulledIndex = "pulled_index"
)

// Record is a journal row of a replica: one committed write waiting to be
// pushed to the primary.
type Record struct {
	Seq     int64  `db:"seq"`
	ID      string `db:"id"`
	SQL     string `db:"sql"`
	Args    string `db:"args"`
	Created int64  `db:"created"`
}

// Entry decodes the record into its wire form.
func (r Record) Entry() (types.Entry, error) {
	e := types.Entry{ID: r.ID, SQL: r.SQL}
	if r.Args != "" {
		if err := json.Unmarshal([]byte(r.Args), &e.Args); err != nil {
			return types.Entry{}, fmt.Errorf("failed to decode args of journal entry %s: %w", r.ID, err)
		}
	}
	return e, nil
}

// Journal records the writes of a replica so they can be shipped to the
// primary. Appends run on the caller's connection, inside the caller's
// transaction, so a rolled back write leaves no journal entry behind.
type Journal struct{}

// InitJournal creates the journal and sync state tables if they don't exist.
func InitJournal(ctx context.Context, db sqlx.ExecerContext) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS libsql_journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		sql TEXT NOT NULL,
		args TEXT NOT NULL DEFAULT '',
		created INTEGER NOT NULL
	)
	`)
	if err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}

	_, err = db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS libsql_sync_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sync state table: %w", err)
	}
	return nil
}

func encodeArgs(args []types.Value) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Append records a write and returns its entry.
func (Journal) Append(ctx context.Context, db sqlx.ExecerContext, query string, args []types.Value) (types.Entry, error) {
	encoded, err := encodeArgs(args)
	if err != nil {
		return types.Entry{}, fmt.Errorf("failed to encode journal args: %w", err)
	}
	entry := types.Entry{ID: uuid.New().String(), SQL: query, Args: args}
	_, err = db.ExecContext(ctx,
		"INSERT INTO libsql_journal (id, sql, args, created) VALUES ($1, $2, $3, $4)",
		entry.ID, query, encoded, time.Now().UTC().Unix())
	if err != nil {
		return types.Entry{}, err
	}
	return entry, nil
}

// Pending returns up to limit records with a sequence above after, in order.
func (Journal) Pending(ctx context.Context, db sqlx.QueryerContext, after int64, limit int) ([]Record, error) {
	var records []Record
	err := sqlx.SelectContext(ctx, db, &records,
		"SELECT * FROM libsql_journal WHERE seq > $1 ORDER BY seq LIMIT $2",
		after, limit)
	return records, err
}

// Trim deletes records the primary has acknowledged.
func (Journal) Trim(ctx context.Context, db sqlx.ExecerContext, upTo int64) (int64, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM libsql_journal WHERE seq <= $1", upTo)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// State returns a sync state value, or "" if it was never set.
func (Journal) State(ctx context.Context, db sqlx.QueryerContext, key string) (string, error) {
	var value string
	err := sqlx.GetContext(ctx, db, &value, "SELECT value FROM libsql_sync_state WHERE key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetState upserts a sync state value.
func (Journal) SetState(ctx context.Context, db sqlx.ExecerContext, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO libsql_sync_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = $2`, key, value)
	return err
}

// WithSavepoint runs fn under a savepoint on db. The savepoint is rolled
// back if fn fails and released otherwise; outside of a transaction this
// makes fn atomic.
func WithSavepoint(ctx context.Context, db sqlx.ExecerContext, name string, fn func() error) error {
	if _, err := db.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := db.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		if _, relErr := db.ExecContext(ctx, "RELEASE "+name); relErr != nil {
			return errors.Join(err, relErr)
		}
		return err
	}
	if _, err := db.ExecContext(ctx, "RELEASE "+name); err != nil {
		return err
	}
	return nil
}
