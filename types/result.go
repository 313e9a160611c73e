package types

// Row is one result tuple. Cells are positional; there is no named access.
type Row []Value

// Values returns the row as driver-compatible Go values.
func (r Row) Values() []any {
	out := make([]any, len(r))
	for i, v := range r {
		out[i] = v.Any()
	}
	return out
}

// Equal reports whether both rows have the same arity and equal cells.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Column describes one output column of a result set. Only Name is ever
// populated: results carry no static type information, so the remaining
// fields stay nil.
type Column struct {
	Name         string
	TypeCode     *string
	DisplaySize  *int
	InternalSize *int
	Precision    *int
	Scale        *int
	NullOK       *bool
}

// Describe builds a description from result column names.
func Describe(names []string) []Column {
	if names == nil {
		return nil
	}
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n}
	}
	return cols
}

// Result is what a store returns for a single statement.
type Result struct {
	Columns      []string
	Rows         []Row
	RowsAffected int64
	// LastInsertRowID is nil when the backend did not report one.
	LastInsertRowID *int64
}
