package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"

	"github.com/tomyedwab/libsqlgo/libsql"
	"github.com/tomyedwab/libsqlgo/statement"
	"github.com/tomyedwab/libsqlgo/types"
)

const driverName = "libsql"

func init() {
	sql.Register(driverName, &Driver{})
}

// --- Driver implementation ---

// Driver is the database/sql driver for libsql targets.
type Driver struct{}

// Open returns a new connection to the target named by dsn.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	return NewConnector(dsn).Connect(context.Background())
}

// OpenConnector validates dsn once, ahead of any connection.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	if _, err := libsql.ParseTarget(dsn); err != nil {
		return nil, err
	}
	return NewConnector(dsn), nil
}

// Connector opens connections to one target with fixed options.
type Connector struct {
	target  string
	options []libsql.Option
}

// NewConnector returns a connector for sql.OpenDB. The isolation level
// options are ignored: connections always run in autocommit mode outside
// of database/sql transactions.
func NewConnector(target string, options ...libsql.Option) *Connector {
	return &Connector{target: target, options: options}
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	options := append(append([]libsql.Option{}, c.options...), libsql.WithAutocommit())
	conn, err := libsql.Connect(ctx, c.target, options...)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return &Driver{}
}

// --- Connection implementation ---

// Conn implements driver.Conn over one libsql connection.
type Conn struct {
	conn *libsql.Connection
	tx   *Tx
}

// Connection returns the underlying libsql connection, for Sync and
// other operations database/sql has no method for. Use it through
// sql.Conn.Raw.
func (c *Conn) Connection() *libsql.Connection {
	return c.conn
}

// Prepare returns a prepared statement. Statements are not compiled ahead;
// the local backend caches compiled statements itself.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext implements driver.ConnPrepareContext.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if c.conn.Closed() {
		return nil, driver.ErrBadConn
	}
	return &Stmt{conn: c, query: query, numInput: statement.CountParams(query)}, nil
}

// Close closes the libsql connection, rolling back an open transaction.
func (c *Conn) Close() error {
	c.tx = nil
	return c.conn.Close()
}

// IsValid implements driver.Validator.
func (c *Conn) IsValid() bool {
	return !c.conn.Closed()
}

// Ping implements driver.Pinger.
func (c *Conn) Ping(ctx context.Context) error {
	if c.conn.Closed() {
		return driver.ErrBadConn
	}
	cur, err := c.conn.Execute(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	return cur.Close()
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx. sql.LevelSerializable begins an
// IMMEDIATE transaction; read-only transactions are not supported.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.tx != nil {
		return nil, errors.New("libsql: transaction already active on this connection")
	}
	if opts.ReadOnly {
		return nil, errors.New("libsql: read-only transactions are not supported")
	}
	begin := "BEGIN DEFERRED"
	switch sql.IsolationLevel(opts.Isolation) {
	case sql.LevelDefault:
	case sql.LevelSerializable:
		begin = "BEGIN IMMEDIATE"
	default:
		return nil, fmt.Errorf("libsql: unsupported isolation level %v", sql.IsolationLevel(opts.Isolation))
	}
	if _, err := c.conn.Execute(ctx, begin); err != nil {
		return nil, err
	}
	c.tx = &Tx{conn: c}
	return c.tx, nil
}

// ExecContext implements driver.ExecerContext.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	values, err := positional(args)
	if err != nil {
		return nil, err
	}
	cur := c.conn.Cursor()
	if err := cur.Execute(ctx, query, values...); err != nil {
		return nil, err
	}
	defer cur.Close()
	id, _ := cur.LastRowID()
	res := &result{lastInsertID: id}
	if n := cur.RowCount(); n > 0 {
		res.rowsAffected = n
	}
	return res, nil
}

// QueryContext implements driver.QueryerContext.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	values, err := positional(args)
	if err != nil {
		return nil, err
	}
	cur := c.conn.Cursor()
	if err := cur.Execute(ctx, query, values...); err != nil {
		return nil, err
	}
	defer cur.Close()
	data, err := cur.FetchAll()
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(cur.Description()))
	for i, col := range cur.Description() {
		columns[i] = col.Name
	}
	return &rows{columns: columns, data: data}, nil
}

func positional(args []driver.NamedValue) ([]any, error) {
	values := make([]any, len(args))
	for i, arg := range args {
		if arg.Name != "" {
			return nil, fmt.Errorf("libsql: named parameter %q is not supported", arg.Name)
		}
		values[i] = arg.Value
	}
	return values, nil
}

// --- Statement implementation ---

// Stmt implements the driver.Stmt interface.
type Stmt struct {
	conn     *Conn
	query    string
	numInput int
}

// Close closes the statement.
func (s *Stmt) Close() error {
	return nil
}

// NumInput returns the number of placeholder parameters.
func (s *Stmt) NumInput() int {
	return s.numInput
}

// Exec executes a prepared statement with the given arguments and returns a Result.
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), named(args))
}

// ExecContext implements driver.StmtExecContext.
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

// Query executes a prepared statement with the given arguments and returns Rows.
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), named(args))
}

// QueryContext implements driver.StmtQueryContext.
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

func named(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

// --- Transaction implementation ---

// Tx implements the driver.Tx interface.
type Tx struct {
	conn *Conn
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.conn.tx != t {
		return errors.New("libsql: transaction already committed or rolled back")
	}
	t.conn.tx = nil
	return t.conn.conn.Commit(context.Background())
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	if t.conn.tx != t {
		return errors.New("libsql: transaction already committed or rolled back")
	}
	t.conn.tx = nil
	return t.conn.conn.Rollback(context.Background())
}

// --- Result implementation ---

type result struct {
	lastInsertID int64
	rowsAffected int64
}

// LastInsertId returns the rowid of the most recent insert on the connection.
func (r *result) LastInsertId() (int64, error) {
	return r.lastInsertID, nil
}

// RowsAffected returns the number of rows affected by the statement, zero
// for statements that do not modify rows.
func (r *result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- Rows implementation ---

// rows implements driver.Rows over a fully fetched result.
type rows struct {
	columns []string
	data    []types.Row
	next    int
}

// Columns returns the names of the columns.
func (r *rows) Columns() []string {
	return r.columns
}

// Close releases the fetched rows.
func (r *rows) Close() error {
	r.data = nil
	r.next = 0
	return nil
}

// Next populates dest with the next row, or returns io.EOF.
func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.next]
	if len(row) != len(dest) {
		return fmt.Errorf("libsql: column count mismatch. Expected %d, got %d", len(dest), len(row))
	}
	for i, v := range row {
		dest[i] = v.Any()
	}
	r.next++
	return nil
}
