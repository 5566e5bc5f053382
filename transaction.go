package fbdriver

import (
	"context"
	"sync"

	"github.com/tomyedwab/fbdriver/native"
)

// Transaction is a unit of work on one attachment. Commit and Rollback end
// it; the retaining variants keep it usable under a new snapshot.
type Transaction struct {
	attachment *Attachment
	id         string
	handle     native.Transaction

	mu    sync.Mutex
	state resourceState
}

func (tx *Transaction) check() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != stateOpen {
		return errDisposed("transaction")
	}
	return nil
}

// nativeHandle returns the native handle, or nil for a nil transaction.
func (tx *Transaction) nativeHandle() native.Transaction {
	if tx == nil {
		return nil
	}
	return tx.handle
}

// IsValid reports whether the transaction is still active.
func (tx *Transaction) IsValid() bool {
	return tx.check() == nil
}

// Commit commits and ends the transaction.
func (tx *Transaction) Commit(ctx context.Context) error {
	return tx.end(ctx, "commit", tx.handle.Commit)
}

// Rollback rolls back and ends the transaction.
func (tx *Transaction) Rollback(ctx context.Context) error {
	return tx.end(ctx, "rollback", tx.handle.Rollback)
}

// CommitRetaining commits the work done so far and keeps the transaction open.
func (tx *Transaction) CommitRetaining(ctx context.Context) error {
	if err := tx.check(); err != nil {
		return err
	}
	if err := tx.handle.CommitRetaining(ctx); err != nil {
		return errNative("commit retaining", err)
	}
	return nil
}

// RollbackRetaining undoes the work done so far and keeps the transaction open.
func (tx *Transaction) RollbackRetaining(ctx context.Context) error {
	if err := tx.check(); err != nil {
		return err
	}
	if err := tx.handle.RollbackRetaining(ctx); err != nil {
		return errNative("rollback retaining", err)
	}
	return nil
}

func (tx *Transaction) end(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	if err := tx.check(); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return errNative(call, err)
	}

	tx.markDisposed()
	tx.attachment.removeTransaction(tx.id)
	return nil
}

func (tx *Transaction) markDisposed() {
	tx.mu.Lock()
	tx.state = stateDisposed
	tx.mu.Unlock()
}
