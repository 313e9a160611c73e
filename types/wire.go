package types

// --- JSON structures for the HTTP pipeline protocol ---

// PipelineRequest is the body of POST /v2/pipeline. Baton is empty on the
// first request of a stream and echoes the baton returned by the previous
// response afterwards.
type PipelineRequest struct {
	Baton    string          `json:"baton,omitempty"`
	Requests []StreamRequest `json:"requests"`
}

// StreamRequest is one step of a pipeline: "execute", "sequence" or "close".
type StreamRequest struct {
	Type string `json:"type"`
	Stmt *Stmt  `json:"stmt,omitempty"`
	SQL  string `json:"sql,omitempty"`
}

// Stmt is a single statement with positional arguments.
type Stmt struct {
	SQL      string  `json:"sql"`
	Args     []Value `json:"args,omitempty"`
	WantRows bool    `json:"want_rows"`
}

// PipelineResponse carries one result per request, in request order.
type PipelineResponse struct {
	Baton   string         `json:"baton,omitempty"`
	BaseURL string         `json:"base_url,omitempty"`
	Results []StreamResult `json:"results"`
}

// StreamResult is either {"type":"ok","response":...} or
// {"type":"error","error":...}.
type StreamResult struct {
	Type     string          `json:"type"`
	Response *StreamResponse `json:"response,omitempty"`
	Error    *ErrorBody      `json:"error,omitempty"`
}

type StreamResponse struct {
	Type   string         `json:"type"`
	Result *ExecuteResult `json:"result,omitempty"`
}

type Col struct {
	Name     string `json:"name"`
	Decltype string `json:"decltype,omitempty"`
}

// ExecuteResult mirrors Result on the wire. LastInsertRowID is a decimal
// string, or null.
type ExecuteResult struct {
	Cols             []Col     `json:"cols"`
	Rows             [][]Value `json:"rows"`
	AffectedRowCount int64     `json:"affected_row_count"`
	LastInsertRowID  *string   `json:"last_insert_rowid"`
}

// ErrorBody is the error payload of a failed request. Code is the SQLite
// primary result code name, such as SQLITE_CONSTRAINT.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// --- JSON structures for replication ---

// Entry is one committed write recorded by a replica.
type Entry struct {
	ID   string  `json:"id"`
	SQL  string  `json:"sql"`
	Args []Value `json:"args,omitempty"`
}

// PushRequest is the body of POST /v1/push.
type PushRequest struct {
	ReplicaID string  `json:"replica_id"`
	Entries   []Entry `json:"entries"`
}

type PushResponse struct {
	Applied   int   `json:"applied"`
	LastIndex int64 `json:"last_index"`
}

// Frame is an entry as ordered by the primary.
type Frame struct {
	Index int64 `json:"index"`
	Entry
}

// PullResponse is the body returned by GET /v1/pull.
type PullResponse struct {
	Frames    []Frame `json:"frames"`
	LastIndex int64   `json:"last_index"`
}
