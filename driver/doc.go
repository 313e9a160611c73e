// Package driver registers a database/sql driver named "libsql" over
// libsql connections.
//
// Usage:
//
//	import _ "github.com/tomyedwab/libsqlgo/driver"
//
//	db, err := sql.Open("libsql", "app.db?sync_url=http://primary:8080")
//
// The data source name is a libsql target, including its query options.
// Use NewConnector with sql.OpenDB to pass options that have no query
// form, such as a logger or HTTP client.
//
// Statements run in autocommit mode unless a transaction was started with
// Begin or BeginTx; database/sql then drives Commit and Rollback. Only
// positional "?" parameters are supported. Each driver connection owns one
// libsql connection, so a Replica opened through database/sql pushes and
// pulls per connection.
package driver
