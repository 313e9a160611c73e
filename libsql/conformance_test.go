package libsql

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/libsqlgo/admin"
	"github.com/tomyedwab/libsqlgo/server"
	"github.com/tomyedwab/libsqlgo/types"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// connector opens connections to one database. Every call reaches the
// same database.
type connector func(opts ...Option) *Connection

type provider struct {
	name string
	open func(t *testing.T) connector
}

var providers = []provider{
	{name: "local", open: openLocal},
	{name: "replica", open: openReplica},
	{name: "remote", open: openRemote},
}

func forEachProvider(t *testing.T, fn func(t *testing.T, connect connector)) {
	for _, p := range providers {
		t.Run(p.name, func(t *testing.T) {
			fn(t, p.open(t))
		})
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := server.New(server.Config{DataDir: t.TempDir()}, server.WithLogger(quiet))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

func dial(t *testing.T, target string, base []Option) connector {
	return func(opts ...Option) *Connection {
		t.Helper()
		all := append([]Option{WithLogger(quiet)}, base...)
		conn, err := Connect(context.Background(), target, append(all, opts...)...)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
}

func openLocal(t *testing.T) connector {
	return dial(t, filepath.Join(t.TempDir(), "test.db"), nil)
}

func openReplica(t *testing.T) connector {
	ts := newTestServer(t)
	return dial(t, filepath.Join(t.TempDir(), "replica.db"), []Option{WithSyncURL(ts.URL)})
}

// openRemote uses the server named by SQLD_HOST when set, and an
// in-process server otherwise.
func openRemote(t *testing.T) connector {
	if c := admin.FromEnv(); c != nil {
		if err := c.Prepare(context.Background()); err != nil {
			t.Skipf("remote server is not usable: %v", err)
		}
		var opts []Option
		if c.Namespace != "default" {
			opts = append(opts, WithNamespace(c.Namespace))
		}
		return dial(t, c.URL, opts)
	}
	return dial(t, newTestServer(t).URL, nil)
}

func row(values ...any) types.Row {
	out := make(types.Row, len(values))
	for i, v := range values {
		val, err := types.FromAny(v)
		if err != nil {
			panic(err)
		}
		out[i] = val
	}
	return out
}

func assertRows(t *testing.T, want []types.Row, got []types.Row) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "row %d: want %v, got %v", i, want[i], got[i])
	}
}

func mustExec(t *testing.T, cur *Cursor, query string, args ...any) {
	t.Helper()
	require.NoError(t, cur.Execute(context.Background(), query, args...))
}

const createUsers = "CREATE TABLE users (id INTEGER, email TEXT)"

var fiveUsers = [][]any{
	{1, "alice@example.com"},
	{2, "bob@example.com"},
	{3, "carol@example.com"},
	{4, "dave@example.com"},
	{5, "erin@example.com"},
}

func TestExecute(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		ctx := context.Background()
		conn := connect()
		_, err := conn.Execute(ctx, createUsers)
		require.NoError(t, err)
		_, err = conn.Execute(ctx, "INSERT INTO users VALUES (1, 'alice@example.com')")
		require.NoError(t, err)
		res, err := conn.Execute(ctx, "SELECT * FROM users")
		require.NoError(t, err)
		got, err := res.FetchOne()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1, "alice@example.com")}, []types.Row{got})
	})
}

func TestCursorExecute(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, createUsers)
		mustExec(t, cur, "INSERT INTO users VALUES (1, 'alice@example.com')")
		mustExec(t, cur, "SELECT * FROM users")
		got, err := cur.FetchOne()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1, "alice@example.com")}, []types.Row{got})
	})
}

func TestExecuteMany(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, createUsers)
		many, err := conn.ExecuteMany(context.Background(), "INSERT INTO users VALUES (?, ?)", fiveUsers[:2])
		require.NoError(t, err)
		assert.Equal(t, int64(2), many.RowCount())

		mustExec(t, cur, "SELECT * FROM users")
		got, err := cur.FetchAll()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1, "alice@example.com"), row(2, "bob@example.com")}, got)
	})
}

func TestCursorFetchOne(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, createUsers)
		require.NoError(t, cur.ExecuteMany(context.Background(), "INSERT INTO users VALUES (?, ?)", fiveUsers[:2]))
		mustExec(t, cur, "SELECT * FROM users")

		first, err := cur.FetchOne()
		require.NoError(t, err)
		second, err := cur.FetchOne()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1, "alice@example.com"), row(2, "bob@example.com")}, []types.Row{first, second})

		end, err := cur.FetchOne()
		require.NoError(t, err)
		assert.Nil(t, end)
	})
}

func TestCursorFetchMany(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, createUsers)
		require.NoError(t, cur.ExecuteMany(context.Background(), "INSERT INTO users VALUES (?, ?)", fiveUsers))
		mustExec(t, cur, "SELECT * FROM users")

		batch, err := cur.FetchMany(2)
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1, "alice@example.com"), row(2, "bob@example.com")}, batch)
		batch, err = cur.FetchMany(2)
		require.NoError(t, err)
		assertRows(t, []types.Row{row(3, "carol@example.com"), row(4, "dave@example.com")}, batch)
		batch, err = cur.FetchMany(2)
		require.NoError(t, err)
		assertRows(t, []types.Row{row(5, "erin@example.com")}, batch)
		batch, err = cur.FetchMany(2)
		require.NoError(t, err)
		assert.Empty(t, batch)
	})
}

func TestFetchManyArraySize(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, createUsers)
		require.NoError(t, cur.ExecuteMany(context.Background(), "INSERT INTO users VALUES (?, ?)", fiveUsers))
		mustExec(t, cur, "SELECT * FROM users")

		assert.Equal(t, 1, cur.ArraySize())
		batch, err := cur.FetchMany(0)
		require.NoError(t, err)
		assert.Len(t, batch, 1)

		cur.SetArraySize(3)
		batch, err = cur.FetchMany(0)
		require.NoError(t, err)
		assert.Len(t, batch, 3)

		cur.SetArraySize(0)
		assert.Equal(t, 3, cur.ArraySize())
		rest, err := cur.FetchAll()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(5, "erin@example.com")}, rest)
	})
}

func TestLastRowID(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		_, ok := cur.LastRowID()
		assert.False(t, ok)

		mustExec(t, cur, createUsers)
		id, ok := cur.LastRowID()
		assert.True(t, ok)
		assert.Equal(t, int64(0), id)

		mustExec(t, cur, "INSERT INTO users VALUES (1, 'alice@example.com')")
		id, _ = cur.LastRowID()
		assert.Equal(t, int64(1), id)

		mustExec(t, cur, "INSERT INTO users VALUES (?, ?)", 2, "bob@example.com")
		id, _ = cur.LastRowID()
		assert.Equal(t, int64(2), id)

		mustExec(t, cur, "UPDATE users SET email = 'x' WHERE id = 1")
		id, _ = cur.LastRowID()
		assert.Equal(t, int64(2), id)
	})
}

func TestDescription(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, createUsers)
		assert.Nil(t, cur.Description())
		mustExec(t, cur, "INSERT INTO users VALUES (1, 'alice@example.com')")
		mustExec(t, cur, "SELECT * FROM users")
		assert.Equal(t, []types.Column{{Name: "id"}, {Name: "email"}}, cur.Description())
	})
}

func TestRowCount(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		assert.Equal(t, int64(-1), cur.RowCount())
		mustExec(t, cur, createUsers)
		assert.Equal(t, int64(-1), cur.RowCount())
		require.NoError(t, cur.ExecuteMany(context.Background(), "INSERT INTO users VALUES (?, ?)", fiveUsers))
		assert.Equal(t, int64(5), cur.RowCount())
		mustExec(t, cur, "UPDATE users SET email = 'x' WHERE id > 3")
		assert.Equal(t, int64(2), cur.RowCount())
		mustExec(t, cur, "SELECT * FROM users")
		assert.Equal(t, int64(-1), cur.RowCount())
	})
}

func TestCommitAndRollback(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		ctx := context.Background()
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, createUsers)
		require.NoError(t, conn.Commit(ctx))
		assert.False(t, conn.InTransaction())

		mustExec(t, cur, "INSERT INTO users VALUES (1, 'alice@example.com')")
		mustExec(t, cur, "SELECT * FROM users")
		got, err := cur.FetchOne()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1, "alice@example.com")}, []types.Row{got})

		require.NoError(t, conn.Rollback(ctx))
		mustExec(t, cur, "SELECT * FROM users")
		got, err = cur.FetchOne()
		require.NoError(t, err)
		assert.Nil(t, got)

		// Without an open transaction both are no-ops.
		assert.NoError(t, conn.Commit(ctx))
		assert.NoError(t, conn.Rollback(ctx))
	})
}

func TestAutocommit(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		conn := connect(WithAutocommit())
		assert.Equal(t, Autocommit, conn.IsolationLevel())
		assert.False(t, conn.InTransaction())
		cur := conn.Cursor()
		assert.False(t, conn.InTransaction())

		mustExec(t, cur, createUsers)
		mustExec(t, cur, "INSERT INTO users VALUES (?, ?)", 1, "alice@example.com")
		assert.False(t, conn.InTransaction())
		mustExec(t, cur, "SELECT * FROM users")
		got, err := cur.FetchOne()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1, "alice@example.com")}, []types.Row{got})

		require.NoError(t, conn.Rollback(context.Background()))
		mustExec(t, cur, "SELECT * FROM users")
		got, err = cur.FetchOne()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1, "alice@example.com")}, []types.Row{got})
	})
}

func TestParams(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, createUsers)
		mustExec(t, cur, "INSERT INTO users VALUES (?, ?)", 1, "alice@example.com")
		mustExec(t, cur, "SELECT * FROM users")
		got, err := cur.FetchOne()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1, "alice@example.com")}, []types.Row{got})
	})
}

func TestValueTypes(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, "SELECT ?, ?, ?, ?, ?", nil, 42, 1.5, "text", []byte{0x01, 0xff})
		got, err := cur.FetchOne()
		require.NoError(t, err)
		want := types.Row{types.Null(), types.Integer(42), types.Real(1.5), types.Text("text"), types.Blob([]byte{0x01, 0xff})}
		assertRows(t, []types.Row{want}, []types.Row{got})
	})
}

func TestFetchAll(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, createUsers)
		mustExec(t, cur, "INSERT INTO users VALUES (?, ?)", 1, "alice@example.com")
		mustExec(t, cur, "INSERT INTO users VALUES (?, ?)", 2, "bob@example.com")
		mustExec(t, cur, "SELECT * FROM users")
		got, err := cur.FetchAll()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1, "alice@example.com"), row(2, "bob@example.com")}, got)

		got, err = cur.FetchAll()
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestInTransaction(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		conn := connect()
		assert.False(t, conn.InTransaction())
		cur := conn.Cursor()
		assert.False(t, conn.InTransaction())
		mustExec(t, cur, "SELECT 1")
		assert.False(t, conn.InTransaction())
		mustExec(t, cur, createUsers)
		mustExec(t, cur, "INSERT INTO users VALUES (?, ?)", 1, "alice@example.com")
		mustExec(t, cur, "INSERT INTO users VALUES (?, ?)", 2, "bob@example.com")
		assert.True(t, conn.InTransaction())
		require.NoError(t, conn.Commit(context.Background()))
		assert.False(t, conn.InTransaction())
	})
}

func TestExplicitTransaction(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, createUsers)
		require.NoError(t, conn.Commit(context.Background()))

		mustExec(t, cur, "BEGIN IMMEDIATE")
		assert.True(t, conn.InTransaction())
		mustExec(t, cur, "INSERT INTO users VALUES (1, 'alice@example.com')")
		mustExec(t, cur, "COMMIT")
		assert.False(t, conn.InTransaction())

		mustExec(t, cur, "SELECT count(*) FROM users")
		got, err := cur.FetchOne()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1)}, []types.Row{got})
	})
}

func TestFetchExpression(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, createUsers)
		mustExec(t, cur, "INSERT INTO users VALUES (1, 'alice@example.com')")
		mustExec(t, cur, "SELECT QUOTE(email) FROM users")
		got, err := cur.FetchAll()
		require.NoError(t, err)
		assertRows(t, []types.Row{row("'alice@example.com'")}, got)
	})
}

func TestExecuteScript(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		ctx := context.Background()
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, "CREATE TABLE log (msg TEXT)")
		assert.True(t, conn.InTransaction())

		_, err := conn.ExecuteScript(ctx, `
			CREATE TABLE users (id INTEGER, email TEXT);
			INSERT INTO users VALUES (1, 'alice@example.com');
			INSERT INTO users VALUES (2, 'bob;example.com');
		`)
		require.NoError(t, err)
		assert.False(t, conn.InTransaction())

		mustExec(t, cur, "SELECT email FROM users ORDER BY id")
		got, err := cur.FetchAll()
		require.NoError(t, err)
		assertRows(t, []types.Row{row("alice@example.com"), row("bob;example.com")}, got)
	})
}

func TestParameterCountMismatch(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, createUsers)
		require.NoError(t, conn.Commit(context.Background()))

		err := cur.Execute(context.Background(), "INSERT INTO users VALUES (?, ?)", 1)
		require.Error(t, err)
		assert.True(t, IsProgrammingError(err), "got %v", err)
		assert.False(t, conn.InTransaction())

		err = cur.Execute(context.Background(), "SELECT 1", 1)
		assert.True(t, IsProgrammingError(err), "got %v", err)
	})
}

func TestMultipleStatementsRejected(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		ctx := context.Background()
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, createUsers)
		require.NoError(t, conn.Commit(ctx))

		for _, query := range []string{
			"SELECT 1; INSERT INTO users VALUES (1, 'alice@example.com')",
			"INSERT INTO users VALUES (1, 'alice@example.com'); INSERT INTO users VALUES (2, 'bob@example.com')",
			"/* leading */ SELECT 1 ; DELETE FROM users",
		} {
			err := cur.Execute(ctx, query)
			assert.True(t, IsProgrammingError(err), "%q: got %v", query, err)
		}
		assert.False(t, conn.InTransaction())
		require.NoError(t, conn.Rollback(ctx))
		assert.Equal(t, int64(0), countUsers(t, conn))

		// A trailing semicolon and comment do not make a second statement.
		mustExec(t, cur, "INSERT INTO users VALUES (1, 'alice@example.com'); -- first user")
		assert.Equal(t, int64(1), cur.RowCount())
		id, ok := cur.LastRowID()
		assert.True(t, ok)
		assert.Equal(t, int64(1), id)
		require.NoError(t, conn.Commit(ctx))
		assert.Equal(t, int64(1), countUsers(t, conn))
	})
}

func TestDeclaredTypesRoundTrip(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, "CREATE TABLE events (ts TIMESTAMP, at DATETIME, day DATE, ok BOOLEAN)")
		stored := []any{1700000000, "2024-01-02 03:04:05", "2024-01-02", 5}

		mustExec(t, cur, "INSERT INTO events VALUES (?, ?, ?, ?) RETURNING *", stored...)
		got, err := cur.FetchAll()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(stored...)}, got)

		mustExec(t, cur, "INSERT INTO events VALUES (1700000000123, '2024-01-02T03:04:05Z', 2.5, 0)")
		mustExec(t, cur, "SELECT * FROM events ORDER BY rowid")
		got, err = cur.FetchAll()
		require.NoError(t, err)
		assertRows(t, []types.Row{
			row(stored...),
			row(1700000000123, "2024-01-02T03:04:05Z", 2.5, 0),
		}, got)

		mustExec(t, cur, "WITH recent AS (SELECT * FROM events WHERE ok = ?) SELECT ts, ok FROM recent", 5)
		got, err = cur.FetchAll()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1700000000, 5)}, got)
	})
}

func TestSavepointTransaction(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		ctx := context.Background()
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, createUsers)
		require.NoError(t, conn.Commit(ctx))

		mustExec(t, cur, "SAVEPOINT outer_sp")
		assert.True(t, conn.InTransaction())
		mustExec(t, cur, "INSERT INTO users VALUES (1, 'alice@example.com')")
		mustExec(t, cur, "SAVEPOINT inner_sp")
		mustExec(t, cur, "INSERT INTO users VALUES (2, 'bob@example.com')")
		mustExec(t, cur, "ROLLBACK TO inner_sp")
		mustExec(t, cur, "RELEASE inner_sp")
		assert.True(t, conn.InTransaction())
		mustExec(t, cur, "RELEASE SAVEPOINT outer_sp")
		assert.False(t, conn.InTransaction())

		// Releasing the outermost savepoint committed the insert.
		require.NoError(t, conn.Rollback(ctx))
		assert.Equal(t, int64(1), countUsers(t, conn))

		// Inside an explicit transaction a release leaves it open.
		mustExec(t, cur, "BEGIN")
		mustExec(t, cur, "SAVEPOINT sp")
		mustExec(t, cur, "INSERT INTO users VALUES (3, 'carol@example.com')")
		mustExec(t, cur, "RELEASE sp")
		assert.True(t, conn.InTransaction())
		require.NoError(t, conn.Rollback(ctx))
		assert.False(t, conn.InTransaction())
		assert.Equal(t, int64(1), countUsers(t, conn))
	})
}

func TestEngineErrors(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		err := cur.Execute(context.Background(), "SELEC 1")
		assert.True(t, IsProgrammingError(err), "got %v", err)

		err = cur.Execute(context.Background(), "SELECT * FROM missing")
		assert.True(t, IsProgrammingError(err), "got %v", err)

		mustExec(t, cur, "CREATE TABLE keys (id INTEGER PRIMARY KEY)")
		mustExec(t, cur, "INSERT INTO keys VALUES (1)")
		err = cur.Execute(context.Background(), "INSERT INTO keys VALUES (1)")
		assert.True(t, IsIntegrityError(err), "got %v", err)

		// The failed statement leaves the transaction usable.
		mustExec(t, cur, "SELECT count(*) FROM keys")
		got, err := cur.FetchOne()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1)}, []types.Row{got})
	})
}

func TestExecuteManyRejectsQueries(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		err := cur.ExecuteMany(context.Background(), "SELECT ?", [][]any{{1}, {2}})
		assert.True(t, IsProgrammingError(err), "got %v", err)
	})
}

func TestExecuteManyStopsAtFailure(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		cur := connect().Cursor()
		mustExec(t, cur, "CREATE TABLE keys (id INTEGER PRIMARY KEY)")
		err := cur.ExecuteMany(context.Background(), "INSERT INTO keys VALUES (?)", [][]any{{1}, {1}, {2}})
		assert.True(t, IsIntegrityError(err), "got %v", err)

		mustExec(t, cur, "SELECT id FROM keys")
		got, err := cur.FetchAll()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(1)}, got)
	})
}

func TestClosedConnection(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		ctx := context.Background()
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, "SELECT 1")

		require.NoError(t, conn.Close())
		assert.True(t, conn.Closed())
		assert.NoError(t, conn.Close())

		assert.True(t, IsUsageError(cur.Execute(ctx, "SELECT 1")))
		_, err := cur.FetchOne()
		assert.True(t, IsUsageError(err))
		_, err = conn.Execute(ctx, "SELECT 1")
		assert.True(t, IsUsageError(err))
		assert.True(t, IsUsageError(conn.Commit(ctx)))
		assert.True(t, IsUsageError(conn.Rollback(ctx)))
	})
}

func TestClosedCursor(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, "SELECT 1")
		require.NoError(t, cur.Close())

		_, err := cur.FetchAll()
		assert.True(t, IsUsageError(err))
		assert.True(t, IsUsageError(cur.Execute(context.Background(), "SELECT 1")))

		// Other cursors are unaffected.
		_, err = conn.Execute(context.Background(), "SELECT 1")
		assert.NoError(t, err)
	})
}

func TestCloseRollsBack(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		ctx := context.Background()
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, createUsers)
		require.NoError(t, conn.Commit(ctx))
		mustExec(t, cur, "INSERT INTO users VALUES (1, 'alice@example.com')")
		require.NoError(t, conn.Close())

		reopened := connect().Cursor()
		mustExec(t, reopened, "SELECT count(*) FROM users")
		got, err := reopened.FetchOne()
		require.NoError(t, err)
		assertRows(t, []types.Row{row(0)}, []types.Row{got})
	})
}

func TestTotalChanges(t *testing.T) {
	forEachProvider(t, func(t *testing.T, connect connector) {
		conn := connect()
		cur := conn.Cursor()
		mustExec(t, cur, createUsers)
		require.NoError(t, cur.ExecuteMany(context.Background(), "INSERT INTO users VALUES (?, ?)", fiveUsers))
		mustExec(t, cur, "DELETE FROM users WHERE id < 3")
		assert.Equal(t, int64(7), conn.TotalChanges())
	})
}

func TestMemoryDatabase(t *testing.T) {
	ctx := context.Background()
	first, err := Connect(ctx, MemoryTarget, WithLogger(quiet))
	require.NoError(t, err)
	defer first.Close()
	second, err := Connect(ctx, MemoryTarget, WithLogger(quiet))
	require.NoError(t, err)
	defer second.Close()

	_, err = first.Execute(ctx, createUsers)
	require.NoError(t, err)
	require.NoError(t, first.Commit(ctx))

	// Each in-memory connection has a private database.
	_, err = second.Execute(ctx, "SELECT * FROM users")
	assert.True(t, IsProgrammingError(err), "got %v", err)
	assert.Equal(t, Local, first.Mode())
}

func TestSyncRequiresReplica(t *testing.T) {
	conn, err := Connect(context.Background(), MemoryTarget, WithLogger(quiet))
	require.NoError(t, err)
	defer conn.Close()
	assert.True(t, IsProgrammingError(conn.Sync(context.Background())))
}

func TestConnectConfigurationError(t *testing.T) {
	_, err := Connect(context.Background(), "ftp://db.example.com")
	assert.True(t, IsConfigurationError(err))
}
