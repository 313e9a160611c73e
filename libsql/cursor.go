package libsql

import (
	"context"

	"github.com/tomyedwab/libsqlgo/dberror"
	"github.com/tomyedwab/libsqlgo/statement"
	"github.com/tomyedwab/libsqlgo/types"
)

// Cursor holds the result of the most recent statement it executed. It
// must not be used after its Connection is closed.
type Cursor struct {
	conn        *Connection
	description []types.Column
	rows        []types.Row
	pos         int
	lastRowID   int64
	hasRowID    bool
	rowCount    int64
	arraySize   int
	closed      bool
}

func newCursor(conn *Connection) *Cursor {
	return &Cursor{conn: conn, rowCount: -1, arraySize: 1}
}

// Connection returns the connection the cursor runs on.
func (c *Cursor) Connection() *Connection {
	return c.conn
}

func (c *Cursor) check() error {
	if c.closed {
		return dberror.Usage("cursor is closed")
	}
	if c.conn.closed {
		return dberror.Usage("connection is closed")
	}
	return nil
}

func (c *Cursor) reset() {
	c.description = nil
	c.rows = nil
	c.pos = 0
	c.rowCount = -1
}

// Execute runs one statement with positional arguments bound to its "?"
// placeholders. Arguments may be nil, integers, floats, bools, strings,
// byte slices, time.Time or types.Value.
func (c *Cursor) Execute(ctx context.Context, query string, args ...any) error {
	if err := c.check(); err != nil {
		return err
	}
	c.reset()
	values, err := types.Values(args)
	if err != nil {
		return dberror.Wrap(dberror.KindProgramming, err, "unsupported parameter")
	}

	res, kind, err := c.conn.run(ctx, query, values)
	if err != nil {
		return err
	}
	c.load(res, kind)
	return nil
}

// ExecuteMany runs a data modifying statement once per argument set, in
// order. It stops at the first failure; effects of the earlier sets stay
// in the open transaction.
func (c *Cursor) ExecuteMany(ctx context.Context, query string, argSets [][]any) error {
	if err := c.check(); err != nil {
		return err
	}
	c.reset()
	if statement.ReturnsRows(query) {
		return dberror.Programming("executemany() can only execute DML statements")
	}

	var total int64
	for i, args := range argSets {
		values, err := types.Values(args)
		if err != nil {
			return dberror.Wrap(dberror.KindProgramming, err, "unsupported parameter")
		}
		res, kind, err := c.conn.run(ctx, query, values)
		if err != nil {
			c.conn.logger.Debug("executemany stopped", "set", i, "error", err)
			return err
		}
		c.load(res, kind)
		total += res.RowsAffected
	}
	if statement.Classify(query) == statement.Write {
		c.rowCount = total
	}
	return nil
}

// ExecuteScript commits any open transaction and runs a script of
// semicolon-separated statements. It returns no rows.
func (c *Cursor) ExecuteScript(ctx context.Context, script string) error {
	if err := c.check(); err != nil {
		return err
	}
	c.reset()
	return c.conn.runScript(ctx, script)
}

func (c *Cursor) load(res *types.Result, kind statement.Kind) {
	if len(res.Columns) > 0 {
		c.description = types.Describe(res.Columns)
	}
	c.rows = res.Rows
	c.pos = 0

	if kind.Modifies() {
		if res.LastInsertRowID != nil {
			c.lastRowID = *res.LastInsertRowID
			c.hasRowID = true
		} else if !c.hasRowID {
			c.lastRowID = 0
			c.hasRowID = true
		}
	}
	if kind == statement.Write {
		c.rowCount = res.RowsAffected
	}
}

// Description describes the columns of the last result, or is nil when the
// last statement returned no rows. Only Name is set.
func (c *Cursor) Description() []types.Column {
	return c.description
}

// LastRowID returns the rowid of the most recent insert, and false until a
// statement that modifies data or schema has run on this cursor.
func (c *Cursor) LastRowID() (int64, bool) {
	return c.lastRowID, c.hasRowID
}

// RowCount is the number of rows modified by the last INSERT, UPDATE or
// DELETE, or -1.
func (c *Cursor) RowCount() int64 {
	return c.rowCount
}

// ArraySize is the default number of rows FetchMany returns.
func (c *Cursor) ArraySize() int {
	return c.arraySize
}

// SetArraySize sets the default FetchMany size. Values below 1 are ignored.
func (c *Cursor) SetArraySize(n int) {
	if n >= 1 {
		c.arraySize = n
	}
}

// FetchOne returns the next row, or nil once the rows are exhausted.
func (c *Cursor) FetchOne() (types.Row, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if c.pos >= len(c.rows) {
		return nil, nil
	}
	row := c.rows[c.pos]
	c.pos++
	return row, nil
}

// FetchMany returns up to n rows, fewer at the end and none once the rows
// are exhausted. n < 1 uses ArraySize.
func (c *Cursor) FetchMany(n int) ([]types.Row, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if n < 1 {
		n = c.arraySize
	}
	end := c.pos + n
	if end > len(c.rows) {
		end = len(c.rows)
	}
	out := make([]types.Row, end-c.pos)
	copy(out, c.rows[c.pos:end])
	c.pos = end
	return out, nil
}

// FetchAll returns every remaining row.
func (c *Cursor) FetchAll() ([]types.Row, error) {
	return c.FetchMany(len(c.rows) - c.pos + 1)
}

// Close releases the cursor's rows. Further use fails with UsageError.
func (c *Cursor) Close() error {
	c.closed = true
	c.reset()
	return nil
}
