// Package fbdriver is a client driver for the engine's native session
// interface.
//
// A Client wraps a native.Provider. Attachments (sessions) are opened from
// the client; statements, transactions and blobs are created from an
// attachment; result sets are opened from a statement. Every resource is
// released exactly once, and releasing a parent releases its children first:
// disconnecting an attachment disposes its statements and rolls back its
// transactions before the session itself is detached.
//
// Usage:
//
//	client, err := fbdriver.NewClient(provider, fbdriver.Config{})
//	if err != nil {
//		// handle error
//	}
//	defer client.Dispose(ctx)
//
//	att, err := client.Connect(ctx, "/data/employee.fdb", &fbdriver.ConnectOptions{Username: "SYSDBA"})
//	tx, err := att.StartTransaction(ctx, &fbdriver.TransactionOptions{Isolation: fbdriver.IsolationSnapshot})
//	rs, err := att.ExecuteQuery(ctx, tx, "select name from people where id = :id", fbdriver.Named{"id": 1})
//	rows, err := rs.Fetch(ctx, &fbdriver.FetchOptions{FetchSize: 100})
//	err = rs.Close(ctx)
//	err = tx.Commit(ctx)
//
// Row values:
//
// Rows are decoded into the Value variant. Character columns decode to Text,
// every numeric column decodes to Double, date and time columns decode to
// DateTime, booleans to Bool and blobs to *Blob. Parameters may be given as
// Value or as plain Go values (see ValueOf).
//
// Named parameters:
//
// Statements may use :name placeholders. They are rewritten to positional
// markers at prepare time, except inside comments and EXECUTE BLOCK bodies,
// and resolved from a Named argument at execute time. String literals are
// not masked, so a literal containing a colon followed by a name is
// rewritten as a placeholder.
package fbdriver
