package fbdriver

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomyedwab/fbdriver/native"
	"github.com/tomyedwab/fbdriver/native/loopback"
)

const insertItem = `INSERT INTO items (id, name, code, price, born, seen, active, body)
	VALUES (:id, :name, :code, :price, :born, :seen, :active, :body)`

func TestExecuteAndReturn(t *testing.T) {
	ctx := context.Background()
	att, _ := setupAttachment(t, loopback.Config{})
	mustExecute(t, att, createItems)

	tx, err := att.StartTransaction(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to start transaction: %v", err)
	}

	born := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	seen := time.Date(2024, 1, 2, 3, 4, 5, 678900000, time.UTC)
	err = att.Execute(ctx, tx, insertItem, Named{
		"id":     1,
		"name":   "widget",
		"code":   "WDG",
		"price":  12.5,
		"born":   born,
		"seen":   seen,
		"active": true,
		"body":   nil,
	})
	if err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if att.OpenStatements() != 0 {
		t.Errorf("Expected the implicit statement to be disposed, %d open", att.OpenStatements())
	}

	row, err := att.ExecuteReturning(ctx, tx,
		"SELECT name, code, price, born, seen, active, body FROM items WHERE id = ?", 1)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	if len(row) != 7 {
		t.Fatalf("Expected 7 columns, got %d", len(row))
	}
	if row[0] != Text("widget") || row[1] != Text("WDG") || row[2] != Double(12.5) {
		t.Errorf("Unexpected values: %v %v %v", row[0], row[1], row[2])
	}
	if d, ok := row[3].(DateTime); !ok || !d.Equal(born) {
		t.Errorf("Expected born %v, got %v", born, row[3])
	}
	if d, ok := row[4].(DateTime); !ok || !d.Equal(seen) {
		t.Errorf("Expected seen %v, got %v", seen, row[4])
	}
	if row[5] != Bool(true) {
		t.Errorf("Expected active, got %v", row[5])
	}
	if _, ok := row[6].(Null); !ok {
		t.Errorf("Expected null body, got %v", row[6])
	}

	m, err := att.ExecuteReturningAsMap(ctx, tx, "SELECT id, name FROM items WHERE name = :name", Named{"name": "widget"})
	if err != nil {
		t.Fatalf("Failed to select as map: %v", err)
	}
	if m["id"] != 1.0 || m["name"] != "widget" {
		t.Errorf("Unexpected map: %v", m)
	}

	row, err = att.ExecuteReturning(ctx, tx, "UPDATE items SET name = ? WHERE id = ?", "gadget", 1)
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if len(row) != 0 {
		t.Errorf("Expected an empty row for a statement without output, got %v", row)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if att.OpenTransactions() != 0 {
		t.Errorf("Expected no open transactions, got %d", att.OpenTransactions())
	}
}

func TestStatementReuse(t *testing.T) {
	ctx := context.Background()
	att, _ := setupAttachment(t, loopback.Config{})
	mustExecute(t, att, createItems)

	tx, _ := att.StartTransaction(ctx, nil)
	defer tx.Rollback(ctx)

	st, err := att.Prepare(ctx, tx, "INSERT INTO items (id, name) VALUES (:id, :name)")
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}
	if st.InputCount() != 2 || st.HasResultSet() {
		t.Errorf("Unexpected statement shape: %d inputs, result set %v", st.InputCount(), st.HasResultSet())
	}
	if att.OpenStatements() != 1 {
		t.Errorf("Expected 1 open statement, got %d", att.OpenStatements())
	}

	for i := 1; i <= 3; i++ {
		if err := st.Execute(ctx, tx, Named{"id": i, "name": "n"}); err != nil {
			t.Fatalf("Failed to execute: %v", err)
		}
	}
	if err := st.Execute(ctx, tx, 4); !IsParameterCountMismatch(err) {
		t.Errorf("Expected ParameterCountMismatch, got %v", err)
	}
	if err := st.Execute(ctx, tx, Named{"id": 4}); !IsParameterValueMissing(err) {
		t.Errorf("Expected ParameterValueMissing, got %v", err)
	}
	if err := st.Execute(ctx, tx, 5, strings.Repeat("n", 81)); !IsValueTooLong(err) {
		t.Errorf("Expected ValueTooLong, got %v", err)
	}

	if err := st.Dispose(ctx); err != nil {
		t.Fatalf("Failed to dispose: %v", err)
	}
	if att.OpenStatements() != 0 {
		t.Errorf("Expected no open statements, got %d", att.OpenStatements())
	}
	if err := st.Execute(ctx, tx, 6, "x"); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed, got %v", err)
	}
	if err := st.Dispose(ctx); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed on second dispose, got %v", err)
	}

	m, err := att.ExecuteReturningAsMap(ctx, tx, "SELECT COUNT(*) AS n FROM items")
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if m["n"] != "3" {
		t.Errorf("Expected 3 rows, got %v", m["n"])
	}
}

func TestPrepareDescriptors(t *testing.T) {
	ctx := context.Background()
	att, _ := setupAttachment(t, loopback.Config{})
	mustExecute(t, att, createItems)

	st, err := att.Prepare(ctx, nil, "SELECT id, code AS c, price FROM items")
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}
	defer st.Dispose(ctx)

	descs := st.OutputDescriptors()
	if len(descs) != 3 {
		t.Fatalf("Expected 3 descriptors, got %d", len(descs))
	}
	if descs[0].Type != native.SQLDouble || descs[0].Length != 8 {
		t.Errorf("Expected integer column widened to DOUBLE(8), got %s(%d)", descs[0].Type, descs[0].Length)
	}
	if descs[1].Type != native.SQLVarying || descs[1].Length != 12 {
		t.Errorf("Expected CHAR(3) widened to VARYING(12), got %s(%d)", descs[1].Type, descs[1].Length)
	}
	if descs[2].Type != native.SQLDouble || descs[2].Scale != 0 {
		t.Errorf("Expected NUMERIC widened to DOUBLE with scale 0, got %s scale %d", descs[2].Type, descs[2].Scale)
	}
	columns := st.Columns()
	if columns[0] != "id" || columns[1] != "c" || columns[2] != "price" {
		t.Errorf("Unexpected columns: %v", columns)
	}

	if _, err := att.Prepare(ctx, nil, "SELECT * FROM missing_table"); !IsNativeCallFailure(err) {
		t.Errorf("Expected NativeCallFailure, got %v", err)
	}
	if att.OpenStatements() != 1 {
		t.Errorf("Expected 1 open statement, got %d", att.OpenStatements())
	}
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	att, _ := setupAttachment(t, loopback.Config{})
	mustExecute(t, att, createItems)

	tx, err := att.StartTransaction(ctx, &TransactionOptions{Isolation: IsolationSnapshot, WaitMode: WaitModeNoWait})
	if err != nil {
		t.Fatalf("Failed to start transaction: %v", err)
	}
	if err := att.Execute(ctx, tx, "INSERT INTO items (id) VALUES (1)"); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := tx.CommitRetaining(ctx); err != nil {
		t.Fatalf("Failed to commit retaining: %v", err)
	}
	if !tx.IsValid() {
		t.Error("Expected transaction to stay valid after commit retaining")
	}
	if err := att.Execute(ctx, tx, "INSERT INTO items (id) VALUES (2)"); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := tx.RollbackRetaining(ctx); err != nil {
		t.Fatalf("Failed to roll back retaining: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Failed to roll back: %v", err)
	}
	if tx.IsValid() {
		t.Error("Expected transaction to be invalid after rollback")
	}
	if err := tx.Commit(ctx); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed, got %v", err)
	}
	if err := att.Execute(ctx, tx, "SELECT 1"); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed for an ended transaction, got %v", err)
	}

	check, _ := att.StartTransaction(ctx, nil)
	defer check.Rollback(ctx)
	m, err := att.ExecuteReturningAsMap(ctx, check, "SELECT COUNT(*) AS n FROM items")
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if m["n"] != "1" {
		t.Errorf("Expected only the retained commit to persist, got %v rows", m["n"])
	}
}

func TestReadOnlyTransaction(t *testing.T) {
	ctx := context.Background()
	att, _ := setupAttachment(t, loopback.Config{})
	mustExecute(t, att, createItems)

	tx, err := att.StartTransaction(ctx, &TransactionOptions{AccessMode: AccessModeReadOnly})
	if err != nil {
		t.Fatalf("Failed to start transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	err = att.Execute(ctx, tx, "INSERT INTO items (id) VALUES (1)")
	if !IsNativeCallFailure(err) {
		t.Fatalf("Expected NativeCallFailure, got %v", err)
	}
	var nerr *native.Error
	if !errors.As(err, &nerr) || nerr.Code != native.CodeReadOnlyTrans {
		t.Errorf("Expected the native read-only diagnostic, got %v", err)
	}
}

func TestExecuteTransaction(t *testing.T) {
	ctx := context.Background()
	att, _ := setupAttachment(t, loopback.Config{})
	mustExecute(t, att, createItems)

	tx, err := att.ExecuteTransaction(ctx, nil, "SET TRANSACTION READ ONLY")
	if err != nil {
		t.Fatalf("Failed to execute SET TRANSACTION: %v", err)
	}
	if att.OpenTransactions() != 1 {
		t.Errorf("Expected the new transaction to be tracked, got %d", att.OpenTransactions())
	}
	if err := att.Execute(ctx, tx, "DELETE FROM items"); !IsNativeCallFailure(err) {
		t.Errorf("Expected a write in a read-only transaction to fail, got %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
}

func TestTransactionFromOtherAttachment(t *testing.T) {
	ctx := context.Background()
	client, _ := setupClient(t, loopback.Config{})
	dir := t.TempDir()

	first, err := client.CreateDatabase(ctx, filepath.Join(dir, "first.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	second, err := client.CreateDatabase(ctx, filepath.Join(dir, "second.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	tx, _ := first.StartTransaction(ctx, nil)
	defer tx.Rollback(ctx)
	if _, err := second.Prepare(ctx, tx, "SELECT 1"); !IsInvalidState(err) {
		t.Errorf("Expected InvalidState, got %v", err)
	}
}

func TestCascadingDisconnect(t *testing.T) {
	ctx := context.Background()
	var failFree atomic.Bool
	var frees atomic.Int32
	att, provider := setupAttachment(t, loopback.Config{
		Fault: func(op string) error {
			if op != loopback.OpFreeStatement {
				return nil
			}
			frees.Add(1)
			if failFree.CompareAndSwap(true, false) {
				return errors.New("free failed")
			}
			return nil
		},
	})
	mustExecute(t, att, createItems)
	mustExecute(t, att, "INSERT INTO items (id, name) VALUES (1, 'one')")

	tx, err := att.StartTransaction(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to start transaction: %v", err)
	}
	first, err := att.Prepare(ctx, tx, "SELECT id FROM items")
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}
	second, err := att.Prepare(ctx, tx, "SELECT name FROM items")
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}
	rs, err := second.ExecuteQuery(ctx, tx)
	if err != nil {
		t.Fatalf("Failed to open result set: %v", err)
	}
	if att.OpenStatements() != 2 || att.OpenTransactions() != 1 {
		t.Fatalf("Expected 2 statements and 1 transaction, got %d and %d", att.OpenStatements(), att.OpenTransactions())
	}

	failFree.Store(true)
	frees.Store(0)
	if err := att.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	if frees.Load() != 2 {
		t.Errorf("Expected both statements to be freed, got %d free calls", frees.Load())
	}
	if att.OpenStatements() != 0 || att.OpenTransactions() != 0 {
		t.Errorf("Expected empty sets, got %d statements and %d transactions", att.OpenStatements(), att.OpenTransactions())
	}
	if att.IsConnected() {
		t.Error("Expected attachment to be disconnected")
	}
	if provider.OpenAttachments() != 0 {
		t.Errorf("Expected the native session to be released, %d open", provider.OpenAttachments())
	}
	if att.client.OpenAttachments() != 0 {
		t.Errorf("Expected the client to forget the attachment, %d open", att.client.OpenAttachments())
	}

	if err := first.Execute(ctx, tx); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed for statement, got %v", err)
	}
	if err := tx.Commit(ctx); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed for transaction, got %v", err)
	}
	if _, err := rs.Fetch(ctx, nil); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed for result set, got %v", err)
	}
	if _, err := att.Prepare(ctx, nil, "SELECT 1"); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed for attachment, got %v", err)
	}
	if _, err := att.StartTransaction(ctx, nil); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed for attachment, got %v", err)
	}
	if err := att.Disconnect(ctx); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed on second disconnect, got %v", err)
	}
}

func TestDisconnectCursorCloseFailure(t *testing.T) {
	ctx := context.Background()
	var failClose atomic.Bool
	att, provider := setupAttachment(t, loopback.Config{
		Fault: func(op string) error {
			if op == loopback.OpCloseCursor && failClose.Load() {
				return errors.New("close cursor failed")
			}
			return nil
		},
	})
	mustExecute(t, att, createItems)
	mustExecute(t, att, "INSERT INTO items (id, name) VALUES (1, 'one')")

	tx, err := att.StartTransaction(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to start transaction: %v", err)
	}
	st, err := att.Prepare(ctx, tx, "SELECT id FROM items")
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}
	rs, err := st.ExecuteQuery(ctx, tx)
	if err != nil {
		t.Fatalf("Failed to open result set: %v", err)
	}
	auto, err := att.ExecuteQuery(ctx, tx, "SELECT name FROM items")
	if err != nil {
		t.Fatalf("Failed to open result set: %v", err)
	}

	failClose.Store(true)
	if err := att.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if att.OpenStatements() != 0 || provider.OpenAttachments() != 0 {
		t.Errorf("Expected everything released, got %d statements and %d sessions", att.OpenStatements(), provider.OpenAttachments())
	}

	for name, r := range map[string]*ResultSet{"statement": rs, "implicit": auto} {
		if rows, err := r.Fetch(ctx, nil); !IsResourceAlreadyDisposed(err) {
			t.Errorf("%s result set: expected ResourceAlreadyDisposed from Fetch, got %v (rows %v)", name, err, rows)
		}
		if err := r.Close(ctx); !IsResourceAlreadyDisposed(err) {
			t.Errorf("%s result set: expected ResourceAlreadyDisposed from Close, got %v", name, err)
		}
	}
	if err := st.Dispose(ctx); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed for statement, got %v", err)
	}
}

func TestDisconnectDetachFailure(t *testing.T) {
	ctx := context.Background()
	var failDetach atomic.Bool
	att, _ := setupAttachment(t, loopback.Config{
		Fault: func(op string) error {
			if op == loopback.OpDetach && failDetach.Load() {
				return errors.New("detach failed")
			}
			return nil
		},
	})

	st, err := att.Prepare(ctx, nil, "SELECT 1")
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}

	failDetach.Store(true)
	if err := att.Disconnect(ctx); !IsNativeCallFailure(err) {
		t.Fatalf("Expected NativeCallFailure, got %v", err)
	}
	if !att.IsConnected() {
		t.Error("Expected attachment to stay connected after a failed detach")
	}
	if att.OpenStatements() != 0 {
		t.Errorf("Expected children to be released, got %d statements", att.OpenStatements())
	}
	if err := st.Execute(ctx, nil); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed, got %v", err)
	}

	failDetach.Store(false)
	if err := att.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
}

func TestDropDatabase(t *testing.T) {
	ctx := context.Background()
	client, _ := setupClient(t, loopback.Config{})
	path := filepath.Join(t.TempDir(), "drop.db")

	att, err := client.CreateDatabase(ctx, path, &CreateDatabaseOptions{PageSize: 4096})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := att.Disconnect(ctx); err != nil {
		t.Fatalf("Failed to disconnect: %v", err)
	}

	att, err = client.Connect(ctx, path, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if err := att.DropDatabase(ctx); err != nil {
		t.Fatalf("Failed to drop database: %v", err)
	}
	if att.IsConnected() {
		t.Error("Expected attachment to be released after drop")
	}

	_, err = client.Connect(ctx, path, nil)
	var nerr *native.Error
	if !IsNativeCallFailure(err) || !errors.As(err, &nerr) || nerr.Code != native.CodeIOError {
		t.Errorf("Expected native I/O error connecting to a dropped database, got %v", err)
	}
}

func TestDescriptorsAfterDispose(t *testing.T) {
	ctx := context.Background()
	att, _ := setupAttachment(t, loopback.Config{})
	mustExecute(t, att, createItems)

	tx, _ := att.StartTransaction(ctx, nil)
	defer tx.Rollback(ctx)
	st, err := att.Prepare(ctx, tx, "SELECT id, name FROM items WHERE id = ?")
	if err != nil {
		t.Fatalf("Failed to prepare: %v", err)
	}
	rs, err := st.ExecuteQuery(ctx, tx, 1)
	if err != nil {
		t.Fatalf("Failed to open result set: %v", err)
	}
	if _, err := rs.Fetch(ctx, nil); err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}
	if err := st.Dispose(ctx); err != nil {
		t.Fatalf("Failed to dispose: %v", err)
	}

	if columns := st.Columns(); len(columns) != 2 || columns[0] != "id" || columns[1] != "name" {
		t.Errorf("Unexpected columns after dispose: %v", columns)
	}
	if st.InputCount() != 1 || len(st.InputDescriptors()) != 1 || len(st.OutputDescriptors()) != 2 || !st.HasResultSet() {
		t.Error("Expected the prepared layout to survive dispose")
	}
	if len(rs.Columns()) != 2 || !rs.Finished() {
		t.Errorf("Expected the closed result set to keep its columns and finished state")
	}
	if _, err := rs.Fetch(ctx, nil); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed, got %v", err)
	}
}
