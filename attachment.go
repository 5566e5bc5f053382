package fbdriver

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/fbdriver/native"
)

// Attachment is an open database session. It owns the statements prepared
// and the transactions started through it; disconnecting disposes all of
// them first.
type Attachment struct {
	client *Client
	id     string
	handle native.Attachment
	loc    *time.Location
	logger *slog.Logger

	mu           sync.Mutex
	statements   map[string]*Statement
	transactions map[string]*Transaction
	state        resourceState
}

func (a *Attachment) check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != stateOpen {
		return errDisposed("attachment")
	}
	return nil
}

// checkTransaction verifies that tx, when given, is usable on a.
func (a *Attachment) checkTransaction(tx *Transaction) error {
	if tx == nil {
		return nil
	}
	if err := tx.check(); err != nil {
		return err
	}
	if tx.attachment != a {
		return NewError(ErrorTypeInvalidState, "transaction belongs to a different attachment")
	}
	return nil
}

// StartTransaction starts a transaction. opts may be nil.
func (a *Attachment) StartTransaction(ctx context.Context, opts *TransactionOptions) (*Transaction, error) {
	if err := a.check(); err != nil {
		return nil, err
	}

	tpb, err := createTPB(opts)
	if err != nil {
		return nil, NewErrorWithCause(ErrorTypeInvalidState, "invalid transaction options", err)
	}

	handle, err := a.handle.StartTransaction(ctx, tpb)
	if err != nil {
		return nil, errNative("start transaction", err)
	}
	return a.addTransaction(handle), nil
}

// Prepare prepares sql. tx may be nil.
func (a *Attachment) Prepare(ctx context.Context, tx *Transaction, sql string) (*Statement, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if err := a.checkTransaction(tx); err != nil {
		return nil, err
	}
	return prepareStatement(ctx, a, tx, sql)
}

// Execute prepares, runs and disposes sql.
func (a *Attachment) Execute(ctx context.Context, tx *Transaction, sql string, args ...any) error {
	_, err := a.withStatement(ctx, tx, sql, func(s *Statement) (Row, error) {
		return nil, s.Execute(ctx, tx, args...)
	})
	return err
}

// ExecuteReturning prepares, runs and disposes sql, returning its single
// output row.
func (a *Attachment) ExecuteReturning(ctx context.Context, tx *Transaction, sql string, args ...any) (Row, error) {
	return a.withStatement(ctx, tx, sql, func(s *Statement) (Row, error) {
		return s.ExecuteReturning(ctx, tx, args...)
	})
}

// ExecuteReturningAsMap is ExecuteReturning with the row keyed by column name.
func (a *Attachment) ExecuteReturningAsMap(ctx context.Context, tx *Transaction, sql string, args ...any) (map[string]any, error) {
	var columns []string
	row, err := a.withStatement(ctx, tx, sql, func(s *Statement) (Row, error) {
		columns = s.Columns()
		return s.ExecuteReturning(ctx, tx, args...)
	})
	if err != nil {
		return nil, err
	}
	return rowMap(columns, row), nil
}

// ExecuteTransaction runs a statement that starts a transaction, such as
// SET TRANSACTION, and returns the new transaction.
func (a *Attachment) ExecuteTransaction(ctx context.Context, tx *Transaction, sql string) (*Transaction, error) {
	var started *Transaction
	_, err := a.withStatement(ctx, tx, sql, func(s *Statement) (Row, error) {
		var err error
		started, err = s.ExecuteTransaction(ctx, tx)
		return nil, err
	})
	return started, err
}

// ExecuteQuery prepares sql and opens a result set over it. The statement is
// disposed when the result set is closed.
func (a *Attachment) ExecuteQuery(ctx context.Context, tx *Transaction, sql string, args ...any) (*ResultSet, error) {
	s, err := a.Prepare(ctx, tx, sql)
	if err != nil {
		return nil, err
	}

	rs, err := s.ExecuteQuery(ctx, tx, args...)
	if err != nil {
		if disposeErr := s.Dispose(ctx); disposeErr != nil {
			a.logger.Warn("Failed to dispose statement after query error", "error", disposeErr)
		}
		return nil, err
	}
	rs.disposeStatementOnClose = true
	return rs, nil
}

func (a *Attachment) withStatement(ctx context.Context, tx *Transaction, sql string, fn func(s *Statement) (Row, error)) (Row, error) {
	s, err := a.Prepare(ctx, tx, sql)
	if err != nil {
		return nil, err
	}

	row, err := fn(s)
	if disposeErr := s.Dispose(ctx); disposeErr != nil {
		if err == nil {
			return nil, disposeErr
		}
		a.logger.Warn("Failed to dispose statement", "error", disposeErr)
	}
	return row, err
}

// CreateBlob creates a blob and returns a write stream for it.
func (a *Attachment) CreateBlob(ctx context.Context, tx *Transaction, opts *CreateBlobOptions) (*BlobStream, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if err := a.checkTransaction(tx); err != nil {
		return nil, err
	}

	bpb, err := createBPB(opts)
	if err != nil {
		return nil, NewErrorWithCause(ErrorTypeInvalidState, "invalid blob options", err)
	}

	handle, id, err := a.handle.CreateBlob(ctx, tx.nativeHandle(), bpb)
	if err != nil {
		return nil, errNative("create blob", err)
	}
	return &BlobStream{
		blob:       &Blob{attachment: a, id: id},
		attachment: a,
		handle:     handle,
		writable:   true,
	}, nil
}

// OpenBlob opens blob for reading.
func (a *Attachment) OpenBlob(ctx context.Context, tx *Transaction, blob *Blob) (*BlobStream, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if err := a.checkTransaction(tx); err != nil {
		return nil, err
	}
	if blob.attachment != a {
		return nil, NewError(ErrorTypeCrossSessionBlob, "blob belongs to a different attachment")
	}

	handle, err := a.handle.OpenBlob(ctx, tx.nativeHandle(), blob.id, nil)
	if err != nil {
		return nil, errNative("open blob", err)
	}
	return &BlobStream{blob: blob, attachment: a, handle: handle}, nil
}

// ReadBlob returns the whole content of blob.
func (a *Attachment) ReadBlob(ctx context.Context, tx *Transaction, blob *Blob) ([]byte, error) {
	stream, err := a.OpenBlob(ctx, tx, blob)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream.Reader(ctx)); err != nil {
		if closeErr := stream.Close(ctx); closeErr != nil {
			a.logger.Warn("Failed to close blob after read error", "error", closeErr)
		}
		return nil, err
	}
	if err := stream.Close(ctx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeNewBlob writes data to a new blob. A failed write cancels the blob.
func (a *Attachment) writeNewBlob(ctx context.Context, tx *Transaction, data []byte) (native.BlobID, error) {
	stream, err := a.CreateBlob(ctx, tx, nil)
	if err != nil {
		return native.BlobID{}, err
	}

	if err := stream.Write(ctx, data); err != nil {
		if cancelErr := stream.Cancel(ctx); cancelErr != nil {
			a.logger.Warn("Failed to cancel blob after write error", "error", cancelErr)
		}
		return native.BlobID{}, err
	}
	if err := stream.Close(ctx); err != nil {
		return native.BlobID{}, err
	}
	return stream.blob.id, nil
}

// OpenStatements returns the number of statements not yet disposed.
func (a *Attachment) OpenStatements() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.statements)
}

// OpenTransactions returns the number of transactions still active.
func (a *Attachment) OpenTransactions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.transactions)
}

// IsConnected reports whether the session handle is still held.
func (a *Attachment) IsConnected() bool {
	return a.check() == nil
}

// Disconnect disposes every open statement, rolls back every open
// transaction and detaches the session.
func (a *Attachment) Disconnect(ctx context.Context) error {
	return a.release(ctx, "detach", a.handle.Detach)
}

// DropDatabase disposes every open statement, rolls back every open
// transaction and drops the database.
func (a *Attachment) DropDatabase(ctx context.Context) error {
	return a.release(ctx, "drop database", a.handle.DropDatabase)
}

func (a *Attachment) release(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	if err := a.check(); err != nil {
		return err
	}

	a.preDispose(ctx)

	if err := fn(ctx); err != nil {
		return errNative(call, err)
	}

	a.mu.Lock()
	a.state = stateDisposed
	a.mu.Unlock()

	a.client.removeAttachment(a.id)
	a.logger.Debug("Released attachment", "call", call)
	return nil
}

// preDispose disposes statements, then rolls back transactions. Children are
// released concurrently; failures are logged and do not stop siblings.
func (a *Attachment) preDispose(ctx context.Context) {
	a.mu.Lock()
	statements := make([]*Statement, 0, len(a.statements))
	for _, s := range a.statements {
		statements = append(statements, s)
	}
	transactions := make([]*Transaction, 0, len(a.transactions))
	for _, tx := range a.transactions {
		transactions = append(transactions, tx)
	}
	a.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range statements {
		wg.Add(1)
		go func(s *Statement) {
			defer wg.Done()
			if err := s.Dispose(ctx); err != nil {
				a.logger.Warn("Failed to dispose statement during disconnect", "error", err)
			}
		}(s)
	}
	wg.Wait()

	for _, tx := range transactions {
		wg.Add(1)
		go func(tx *Transaction) {
			defer wg.Done()
			if err := tx.Rollback(ctx); err != nil {
				a.logger.Warn("Failed to roll back transaction during disconnect", "error", err)
			}
		}(tx)
	}
	wg.Wait()

	for _, s := range statements {
		if rs := s.resultSet; rs != nil {
			rs.markDisposed()
			s.resultSet = nil
		}
		s.markDisposed()
	}
	for _, tx := range transactions {
		tx.markDisposed()
	}

	a.mu.Lock()
	a.statements = make(map[string]*Statement)
	a.transactions = make(map[string]*Transaction)
	a.mu.Unlock()
}

func (a *Attachment) addStatement(s *Statement) {
	s.id = uuid.NewString()
	a.mu.Lock()
	a.statements[s.id] = s
	a.mu.Unlock()
}

func (a *Attachment) removeStatement(id string) {
	a.mu.Lock()
	delete(a.statements, id)
	a.mu.Unlock()
}

func (a *Attachment) addTransaction(handle native.Transaction) *Transaction {
	tx := &Transaction{
		attachment: a,
		id:         uuid.NewString(),
		handle:     handle,
	}
	a.mu.Lock()
	a.transactions[tx.id] = tx
	a.mu.Unlock()
	return tx
}

func (a *Attachment) removeTransaction(id string) {
	a.mu.Lock()
	delete(a.transactions, id)
	a.mu.Unlock()
}

func rowMap(columns []string, row Row) map[string]any {
	m := make(map[string]any, len(columns))
	for i, name := range columns {
		if i < len(row) {
			m[name] = row[i].Any()
		}
	}
	return m
}
