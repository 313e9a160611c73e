// Package libsql is a client for an embedded SQL database that can run in
// three modes behind one Connection and Cursor API:
//
//   - Local: an embedded sqlite file, or ":memory:".
//   - Replica: a local file whose committed writes are shipped to a primary
//     in the background, and which pulls the primary's writes on Sync.
//   - Remote: every statement is forwarded to a server over HTTP.
//
// The mode is chosen once by Connect from the target and options:
//
//	conn, err := libsql.Connect(ctx, ":memory:")
//	conn, err := libsql.Connect(ctx, "app.db", libsql.WithSyncURL("http://primary:8080"))
//	conn, err := libsql.Connect(ctx, "libsql://db.example.com", libsql.WithAuthToken(token))
//
// Transactions follow the DB-API convention: unless the isolation level is
// Autocommit, the first statement that modifies data or schema opens a
// transaction with BEGIN <level>, which stays open until Commit or
// Rollback. Reads never open a transaction.
//
// Errors are *dberror.Error values; use the Is*Error helpers to tell
// configuration, programming, operational, usage and integrity errors
// apart.
package libsql
