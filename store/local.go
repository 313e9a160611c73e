package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/statement"
	"github.com/tomyedwab/libsqlgo/types"
)

// MemoryPath is the sentinel path of a private in-memory database.
const MemoryPath = ":memory:"

// DefaultStatementCacheSize is the number of prepared statements a Local
// store keeps per connection.
const DefaultStatementCacheSize = 64

// LocalConfig configures OpenLocal.
type LocalConfig struct {
	// Path is a file path, a sqlite "file:" URI, or MemoryPath.
	Path string
	// StatementCacheSize bounds the prepared statement cache. Zero selects
	// DefaultStatementCacheSize; a negative value disables caching.
	StatementCacheSize int
	// BusyTimeoutMillis is how long sqlite waits on a locked file database.
	BusyTimeoutMillis int
	Logger            *slog.Logger
}

// Local is a Store over an embedded sqlite database. All statements run on
// a single pinned connection, so transactions begun with BEGIN span calls.
type Local struct {
	db     *sqlx.DB
	conn   *sqlx.Conn
	stmts  *lru.Cache // SQL text => *sqlx.Stmt prepared on conn.
	path   string
	logger *slog.Logger
}

// OpenLocal opens (creating if needed) the database at cfg.Path.
func OpenLocal(ctx context.Context, cfg LocalConfig) (*Local, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dsn := dataSourceName(cfg.Path, cfg.BusyTimeoutMillis)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, dberror.Operational(err, fmt.Sprintf("failed to open %s", cfg.Path))
	}
	// A private in-memory database exists only as long as its one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Connx(ctx)
	if err != nil {
		db.Close()
		return nil, dberror.FromSQLite(err, fmt.Sprintf("failed to open %s", cfg.Path))
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, dberror.FromSQLite(err, fmt.Sprintf("failed to open %s", cfg.Path))
	}

	s := &Local{db: db, conn: conn, path: cfg.Path, logger: logger}

	size := cfg.StatementCacheSize
	if size == 0 {
		size = DefaultStatementCacheSize
	}
	if size > 0 {
		s.stmts, err = lru.NewWithEvict(size, func(_ interface{}, value interface{}) {
			_ = value.(*sqlx.Stmt).Close()
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create statement cache: %w", err)
		}
	}

	logger.Debug("Opened local database", "path", cfg.Path)
	return s, nil
}

func dataSourceName(path string, busyTimeoutMillis int) string {
	if path == MemoryPath || strings.Contains(path, "mode=memory") {
		return path
	}
	if busyTimeoutMillis <= 0 {
		busyTimeoutMillis = 5000
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d", path, sep, busyTimeoutMillis)
}

// Path returns the path the store was opened with.
func (s *Local) Path() string {
	return s.path
}

// Conn returns the pinned connection. Statements run on it directly bypass
// any bookkeeping layered on top of Local (such as the replica journal).
func (s *Local) Conn() *sqlx.Conn {
	return s.conn
}

// InTransaction reports whether the engine has an open transaction on the
// pinned connection.
func (s *Local) InTransaction() bool {
	if s.conn == nil {
		return false
	}
	open, err := InTransaction(s.conn)
	if err != nil {
		s.logger.Warn("Failed to read transaction state", "path", s.path, "error", err)
		return false
	}
	return open
}

// InTransaction reports whether the engine behind conn has left autocommit
// mode, i.e. holds an open transaction.
func InTransaction(conn *sqlx.Conn) (bool, error) {
	open := false
	err := conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		open = !c.AutoCommit()
		return nil
	})
	return open, err
}


func (s *Local) prepare(ctx context.Context, query string) (*sqlx.Stmt, bool, error) {
	if s.stmts != nil {
		if cached, ok := s.stmts.Get(query); ok {
			return cached.(*sqlx.Stmt), true, nil
		}
	}
	stmt, err := s.conn.PreparexContext(ctx, query)
	if err != nil {
		return nil, false, err
	}
	if s.stmts != nil {
		s.stmts.Add(query, stmt)
		return stmt, true, nil
	}
	return stmt, false, nil
}

// Run implements Store.
func (s *Local) Run(ctx context.Context, query string, args []types.Value) (*types.Result, error) {
	if s.conn == nil {
		return nil, dberror.Usage("database is closed")
	}
	stmt, cached, err := s.prepare(ctx, query)
	if err != nil {
		return nil, dberror.FromSQLite(err, "prepare failed")
	}
	if !cached {
		defer stmt.Close()
	}

	return run(ctx, target{stmt: stmt, conn: s.conn}, query, args)
}

// RunConn executes one statement on conn without preparing it ahead.
func RunConn(ctx context.Context, conn *sqlx.Conn, query string, args []types.Value) (*types.Result, error) {
	return run(ctx, target{conn: conn}, query, args)
}

func run(ctx context.Context, t target, query string, args []types.Value) (*types.Result, error) {
	params := make([]any, len(args))
	for i, a := range args {
		params[i] = a.Any()
	}

	if statement.ReturnsRows(query) {
		rows, err := t.query(ctx, query, params)
		if err != nil {
			return nil, dberror.FromSQLite(err, "query failed")
		}
		var res *types.Result
		if convertsDeclared(rows) {
			// Nothing has been stepped yet, so closing rows has no effect.
			rows.Close()
			res, err = scanStored(ctx, t.conn, query, params)
		} else {
			res, err = scanRows(rows)
		}
		if err != nil {
			return nil, dberror.FromSQLite(err, "query failed")
		}
		if statement.Classify(query) == statement.Write {
			// RETURNING statements report their effects out of band.
			var id, changes int64
			if err := t.conn.QueryRowxContext(ctx, "SELECT last_insert_rowid(), changes()").Scan(&id, &changes); err != nil {
				return nil, dberror.FromSQLite(err, "query failed")
			}
			if statement.Inserts(query) {
				res.LastInsertRowID = &id
			}
			res.RowsAffected = changes
		}
		return res, nil
	}

	result, err := t.exec(ctx, query, params)
	if err != nil {
		return nil, dberror.FromSQLite(err, "exec failed")
	}
	return execResult(result, statement.Inserts(query)), nil
}

// target is a connection, optionally with the statement already prepared
// on it.
type target struct {
	stmt *sqlx.Stmt
	conn *sqlx.Conn
}

func (t target) query(ctx context.Context, query string, params []any) (*sqlx.Rows, error) {
	if t.stmt != nil {
		return t.stmt.QueryxContext(ctx, params...)
	}
	return t.conn.QueryxContext(ctx, query, params...)
}

func (t target) exec(ctx context.Context, query string, params []any) (sql.Result, error) {
	if t.stmt != nil {
		return t.stmt.ExecContext(ctx, params...)
	}
	return t.conn.ExecContext(ctx, query, params...)
}

// execResult reads the effects of a statement. The last insert rowid is
// only meaningful after an insert.
func execResult(r sql.Result, inserted bool) *types.Result {
	res := &types.Result{}
	if id, err := r.LastInsertId(); err == nil && inserted {
		res.LastInsertRowID = &id
	}
	if n, err := r.RowsAffected(); err == nil {
		res.RowsAffected = n
	}
	return res
}

func scanRows(rows *sqlx.Rows) (*types.Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	res := &types.Result{Columns: columns, Rows: []types.Row{}}
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(types.Row, len(raw))
		for i, x := range raw {
			if row[i], err = types.FromAny(x); err != nil {
				return nil, fmt.Errorf("column %q: %w", columns[i], err)
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return res, nil
}

// convertsDeclared reports whether the driver would rewrite any column of
// rows based on its declared type.
func convertsDeclared(rows *sqlx.Rows) bool {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return false
	}
	for _, ct := range cts {
		switch strings.ToLower(ct.DatabaseTypeName()) {
		case "timestamp", "datetime", "date", "boolean":
			return true
		}
	}
	return false
}

// scanStored runs query on the driver connection directly and reads every
// column as stored, bypassing go-sqlite3's conversion of TIMESTAMP, DATETIME,
// DATE and BOOLEAN columns into time.Time and bool.
func scanStored(ctx context.Context, conn *sqlx.Conn, query string, params []any) (*types.Result, error) {
	named := make([]driver.NamedValue, len(params))
	for i, p := range params {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: p}
	}

	var res *types.Result
	err := conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		ds, err := c.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer ds.Close()

		dr, err := ds.(driver.StmtQueryContext).QueryContext(ctx, named)
		if err != nil {
			return err
		}
		defer dr.Close()

		// The driver converts by the declared types it caches on the rows;
		// clearing the cache leaves values in their storage class.
		if sr, ok := dr.(*sqlite3.SQLiteRows); ok {
			decl := sr.DeclTypes()
			for i := range decl {
				decl[i] = ""
			}
		}

		columns := dr.Columns()
		res = &types.Result{Columns: columns, Rows: []types.Row{}}
		dest := make([]driver.Value, len(columns))
		for {
			if err := dr.Next(dest); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			row := make(types.Row, len(dest))
			for i, x := range dest {
				if row[i], err = types.FromAny(x); err != nil {
					return fmt.Errorf("column %q: %w", columns[i], err)
				}
			}
			res.Rows = append(res.Rows, row)
		}
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RunScript implements Store.
func (s *Local) RunScript(ctx context.Context, script string) error {
	if s.conn == nil {
		return dberror.Usage("database is closed")
	}
	if _, err := s.conn.ExecContext(ctx, script); err != nil {
		return dberror.FromSQLite(err, "script failed")
	}
	return nil
}

// Commit implements Store.
func (s *Local) Commit(ctx context.Context) error {
	if s.conn == nil {
		return dberror.Usage("database is closed")
	}
	if _, err := s.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return dberror.FromSQLite(err, "commit failed")
	}
	return nil
}

// Rollback implements Store.
func (s *Local) Rollback(ctx context.Context) error {
	if s.conn == nil {
		return dberror.Usage("database is closed")
	}
	if _, err := s.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		return dberror.FromSQLite(err, "rollback failed")
	}
	return nil
}

// Close implements Store. It is safe to call more than once.
func (s *Local) Close() error {
	if s.conn == nil {
		return nil
	}
	if s.stmts != nil {
		s.stmts.Purge()
	}
	connErr := s.conn.Close()
	dbErr := s.db.Close()
	s.conn = nil
	s.logger.Debug("Closed local database", "path", s.path)

	if connErr != nil {
		return dberror.Operational(connErr, "failed to close connection")
	}
	if dbErr != nil {
		return dberror.Operational(dbErr, "failed to close database")
	}
	return nil
}
