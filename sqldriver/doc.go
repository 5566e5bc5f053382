// Package sqldriver implements a database/sql/driver on top of an
// fbdriver.Client.
//
// Usage:
//
//  1. Create a client on a native provider and hand it to the package, then
//     open a database with a DSN:
//
//     client, err := fbdriver.NewClient(provider, fbdriver.Config{})
//     sqldriver.SetClient(client)
//     db, err := sql.Open("fbdriver", "/data/employee.fdb?user=SYSDBA&password=masterkey")
//
//  2. Or skip the global client and build a connector directly:
//
//     db := sql.OpenDB(sqldriver.NewConnector(client, "/data/employee.fdb", &fbdriver.ConnectOptions{Username: "SYSDBA"}))
//
// Each database/sql connection is one attachment. Statements run inside the
// transaction begun on the connection, or in their own transaction that is
// committed when the statement (or, for queries, the rows) finishes.
//
// DSN parameters: user, password, role, charset and fetch_size (rows
// fetched per round trip, default 100).
//
// Parameters may be positional (?) or named (:name). Named placeholders are
// bound with sql.Named. Values of the fbdriver.Value types are passed through
// unchanged; blobs are returned as []byte.
//
// Limitations:
//
//   - Result.LastInsertId and Result.RowsAffected are not reported.
//   - Only the isolation levels with an engine equivalent are accepted by
//     BeginTx: read committed, repeatable read / snapshot and serializable.
package sqldriver
