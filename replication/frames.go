package replication

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tomyedwab/libsqlgo/types"
)

// FrameRecord is a row of the primary's frame log.
type FrameRecord struct {
	Index   int64  `db:"idx"`
	ID      string `db:"id"`
	Origin  string `db:"origin"`
	SQL     string `db:"sql"`
	Args    string `db:"args"`
	Created int64  `db:"created"`
}

// Frame decodes the record into its wire form.
func (r FrameRecord) Frame() (types.Frame, error) {
	e, err := Record{ID: r.ID, SQL: r.SQL, Args: r.Args}.Entry()
	if err != nil {
		return types.Frame{}, err
	}
	return types.Frame{Index: r.Index, Entry: e}, nil
}

// FrameLog is the primary's ordered log of applied writes. Replicas pull
// frames after the last index they have seen.
type FrameLog struct{}

// InitFrames creates the frame table if it doesn't exist.
func InitFrames(ctx context.Context, db sqlx.ExecerContext) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS libsql_frames (
		idx INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		origin TEXT NOT NULL DEFAULT '',
		sql TEXT NOT NULL,
		args TEXT NOT NULL DEFAULT '',
		created INTEGER NOT NULL
	)
	`)
	if err != nil {
		return fmt.Errorf("failed to create frames table: %w", err)
	}
	return nil
}

// Seen reports whether an entry id was already applied.
func (FrameLog) Seen(ctx context.Context, db sqlx.QueryerContext, id string) (bool, error) {
	var idx int64
	err := sqlx.GetContext(ctx, db, &idx, "SELECT idx FROM libsql_frames WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Append records an applied entry and returns its index.
func (FrameLog) Append(ctx context.Context, db sqlx.ExecerContext, origin string, entry types.Entry) (int64, error) {
	encoded, err := encodeArgs(entry.Args)
	if err != nil {
		return 0, fmt.Errorf("failed to encode frame args: %w", err)
	}
	result, err := db.ExecContext(ctx,
		"INSERT INTO libsql_frames (id, origin, sql, args, created) VALUES ($1, $2, $3, $4, $5)",
		entry.ID, origin, entry.SQL, encoded, time.Now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Since returns up to limit frames with an index above after.
func (FrameLog) Since(ctx context.Context, db sqlx.QueryerContext, after int64, limit int) ([]FrameRecord, error) {
	var records []FrameRecord
	err := sqlx.SelectContext(ctx, db, &records,
		"SELECT * FROM libsql_frames WHERE idx > $1 ORDER BY idx LIMIT $2",
		after, limit)
	return records, err
}

// LastIndex returns the index of the newest frame, or 0.
func (FrameLog) LastIndex(ctx context.Context, db sqlx.QueryerContext) (int64, error) {
	var idx sql.NullInt64
	if err := sqlx.GetContext(ctx, db, &idx, "SELECT MAX(idx) FROM libsql_frames"); err != nil {
		return 0, err
	}
	return idx.Int64, nil
}
