package loopback

import (
	"context"
	"database/sql"
	"encoding/binary"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tomyedwab/fbdriver/internal/paramblock"
	"github.com/tomyedwab/fbdriver/native"
)

type attachment struct {
	provider *Provider
	id       string
	path     string
	user     string
	db       *sqlx.DB

	mu           sync.Mutex
	transactions map[string]*transaction
	statements   map[string]*statement
	blobs        map[native.BlobID][]byte
	nextBlob     uint64
	detached     bool
}

func (a *attachment) check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detached {
		return native.Errorf(native.CodeBadDBHandle, "invalid database handle (no active connection)")
	}
	return nil
}

// StartTransaction begins a SQLite transaction configured from tpb. Only the
// access mode has an effect; SQLite transactions are always serializable.
func (a *attachment) StartTransaction(ctx context.Context, tpb []byte) (native.Transaction, error) {
	if err := a.provider.inject(OpStartTransaction); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}

	readOnly := false
	if len(tpb) > 0 {
		block, err := paramblock.ParseTPB(tpb)
		if err != nil {
			return nil, native.Errorf(native.CodeBadTransHandle, "invalid transaction parameter block: %v", err)
		}
		readOnly = block.Has(paramblock.TPBRead)
	}
	t, err := a.begin(ctx, readOnly)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (a *attachment) begin(ctx context.Context, readOnly bool) (*transaction, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, native.Errorf(native.CodeLockConflict, "lock conflict on no wait transaction: %v", err)
	}

	t := &transaction{
		attachment: a,
		id:         uuid.NewString(),
		tx:         tx,
		readOnly:   readOnly,
	}

	a.mu.Lock()
	a.transactions[t.id] = t
	a.mu.Unlock()
	return t, nil
}

func (a *attachment) removeTransaction(id string) {
	a.mu.Lock()
	delete(a.transactions, id)
	a.mu.Unlock()
}

func (a *attachment) removeStatement(id string) {
	a.mu.Lock()
	delete(a.statements, id)
	a.mu.Unlock()
}

// CreateBlob opens a new blob for writing. The blob is stored when the
// handle is closed.
func (a *attachment) CreateBlob(ctx context.Context, tr native.Transaction, bpb []byte) (native.Blob, native.BlobID, error) {
	if err := a.provider.inject(OpCreateBlob); err != nil {
		return nil, native.BlobID{}, err
	}
	if err := a.check(); err != nil {
		return nil, native.BlobID{}, err
	}
	if _, err := a.ownTransaction(tr); err != nil {
		return nil, native.BlobID{}, err
	}
	if _, err := paramblock.ParseBPB(bpb); err != nil {
		return nil, native.BlobID{}, native.Errorf(native.CodeBadSegstrHandle, "invalid blob parameter block: %v", err)
	}

	a.mu.Lock()
	id := a.mintBlobIDLocked()
	a.mu.Unlock()
	return &blob{attachment: a, id: id, writable: true}, id, nil
}

// OpenBlob opens a stored blob for reading.
func (a *attachment) OpenBlob(ctx context.Context, tr native.Transaction, id native.BlobID, bpb []byte) (native.Blob, error) {
	if err := a.provider.inject(OpOpenBlob); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	if _, err := a.ownTransaction(tr); err != nil {
		return nil, err
	}

	a.mu.Lock()
	data, ok := a.blobs[id]
	a.mu.Unlock()
	if !ok {
		return nil, native.Errorf(native.CodeBadSegstrHandle, "invalid BLOB ID")
	}
	return &blob{attachment: a, id: id, data: data}, nil
}

func (a *attachment) mintBlobIDLocked() native.BlobID {
	a.nextBlob++
	var id native.BlobID
	binary.LittleEndian.PutUint64(id[:], a.nextBlob)
	return id
}

// storeBlob saves data as a new blob and returns its id.
func (a *attachment) storeBlob(data []byte) native.BlobID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.mintBlobIDLocked()
	a.blobs[id] = data
	return id
}

func (a *attachment) loadBlob(id native.BlobID) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.blobs[id]
	if !ok {
		return nil, native.Errorf(native.CodeBadSegstrHandle, "invalid BLOB ID")
	}
	return data, nil
}

// ownTransaction checks that tr, when set, is a live transaction of a.
func (a *attachment) ownTransaction(tr native.Transaction) (*transaction, error) {
	if tr == nil {
		return nil, nil
	}
	t, ok := tr.(*transaction)
	if !ok || t.attachment != a {
		return nil, native.Errorf(native.CodeBadTransHandle, "invalid transaction handle (expecting explicit transaction start)")
	}
	if err := t.check(); err != nil {
		return nil, err
	}
	return t, nil
}

// Detach closes the session. Open transactions are rolled back.
func (a *attachment) Detach(ctx context.Context) error {
	if err := a.provider.inject(OpDetach); err != nil {
		return err
	}
	if err := a.check(); err != nil {
		return err
	}
	return a.close()
}

// DropDatabase closes the session and removes the database file.
func (a *attachment) DropDatabase(ctx context.Context) error {
	if err := a.provider.inject(OpDropDatabase); err != nil {
		return err
	}
	if err := a.check(); err != nil {
		return err
	}
	if err := a.close(); err != nil {
		return err
	}
	if err := os.Remove(a.path); err != nil {
		return native.Errorf(native.CodeIOError, "I/O error during \"remove\" operation for file %q: %v", a.path, err)
	}
	return nil
}

func (a *attachment) close() error {
	a.mu.Lock()
	if a.detached {
		a.mu.Unlock()
		return nil
	}
	a.detached = true
	transactions := make([]*transaction, 0, len(a.transactions))
	for _, t := range a.transactions {
		transactions = append(transactions, t)
	}
	a.transactions = make(map[string]*transaction)
	a.statements = make(map[string]*statement)
	a.mu.Unlock()

	for _, t := range transactions {
		t.abandon()
	}

	a.provider.removeAttachment(a.id)
	if err := a.db.Close(); err != nil {
		return native.Errorf(native.CodeIOError, "I/O error during \"close\" operation for file %q: %v", a.path, err)
	}
	a.provider.logger.Debug("Loopback attachment closed", "path", a.path)
	return nil
}

type transaction struct {
	attachment *attachment
	id         string
	readOnly   bool

	mu   sync.Mutex
	tx   *sqlx.Tx
	done bool
}

func (t *transaction) check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return native.Errorf(native.CodeBadTransHandle, "invalid transaction handle (expecting explicit transaction start)")
	}
	return nil
}

func (t *transaction) current() (*sqlx.Tx, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, native.Errorf(native.CodeBadTransHandle, "invalid transaction handle (expecting explicit transaction start)")
	}
	return t.tx, nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if err := t.attachment.provider.inject(OpCommit); err != nil {
		return err
	}
	return t.finish(ctx, (*sqlx.Tx).Commit, false)
}

func (t *transaction) CommitRetaining(ctx context.Context) error {
	if err := t.attachment.provider.inject(OpCommitRetaining); err != nil {
		return err
	}
	return t.finish(ctx, (*sqlx.Tx).Commit, true)
}

func (t *transaction) Rollback(ctx context.Context) error {
	if err := t.attachment.provider.inject(OpRollback); err != nil {
		return err
	}
	return t.finish(ctx, (*sqlx.Tx).Rollback, false)
}

func (t *transaction) RollbackRetaining(ctx context.Context) error {
	if err := t.attachment.provider.inject(OpRollbackRetaining); err != nil {
		return err
	}
	return t.finish(ctx, (*sqlx.Tx).Rollback, true)
}

// finish ends the SQLite transaction. A retained transaction continues on a
// fresh SQLite transaction under the same handle.
func (t *transaction) finish(ctx context.Context, end func(*sqlx.Tx) error, retain bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return native.Errorf(native.CodeBadTransHandle, "invalid transaction handle (expecting explicit transaction start)")
	}

	if err := end(t.tx); err != nil && err != sql.ErrTxDone {
		return native.Errorf(native.CodeLockConflict, "lock conflict on no wait transaction: %v", err)
	}

	if !retain {
		t.done = true
		t.attachment.removeTransaction(t.id)
		return nil
	}

	tx, err := t.attachment.db.BeginTxx(ctx, nil)
	if err != nil {
		t.done = true
		t.attachment.removeTransaction(t.id)
		return native.Errorf(native.CodeLockConflict, "lock conflict on no wait transaction: %v", err)
	}
	t.tx = tx
	return nil
}

// abandon rolls back without reporting, used when the attachment goes away.
func (t *transaction) abandon() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	_ = t.tx.Rollback()
}
