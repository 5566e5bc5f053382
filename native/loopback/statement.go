package loopback

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tomyedwab/fbdriver/native"
)

type statement struct {
	attachment *attachment
	id         string
	sql        string
	kind       statementKind
	inputs     []native.Field
	outputs    []native.Field

	mu    sync.Mutex
	freed bool
}

// Prepare describes sql. tr is accepted for interface compatibility;
// SQLite prepares outside of transactions.
func (a *attachment) Prepare(ctx context.Context, tr native.Transaction, sql string, dialect int) (native.Statement, error) {
	if err := a.provider.inject(OpPrepare); err != nil {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	if _, err := a.ownTransaction(tr); err != nil {
		return nil, err
	}

	s := &statement{
		attachment: a,
		id:         uuid.NewString(),
		sql:        sql,
		kind:       classify(sql),
	}
	if s.kind != kindSetTransaction {
		inputs, outputs, err := a.describe(ctx, sql)
		if err != nil {
			return nil, err
		}
		s.inputs, s.outputs = inputs, outputs
	}

	a.mu.Lock()
	a.statements[s.id] = s
	a.mu.Unlock()
	return s, nil
}

func (s *statement) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freed {
		return native.Errorf(native.CodeBadStmtHandle, "invalid statement handle")
	}
	return s.attachment.check()
}

func (s *statement) InputMetadata(ctx context.Context) (native.MessageMetadata, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return newMetadata(s.inputs), nil
}

func (s *statement) OutputMetadata(ctx context.Context) (native.MessageMetadata, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return newMetadata(s.outputs), nil
}

// transaction resolves tr to a live SQLite transaction, rejecting writes in
// read-only transactions.
func (s *statement) transaction(tr native.Transaction) (*transaction, *sqlx.Tx, error) {
	t, err := s.attachment.ownTransaction(tr)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return nil, nil, native.Errorf(native.CodeBadTransHandle, "invalid transaction handle (expecting explicit transaction start)")
	}
	if t.readOnly && s.kind == kindModify {
		return nil, nil, native.Errorf(native.CodeReadOnlyTrans, "attempted update during read-only transaction")
	}
	tx, err := t.current()
	if err != nil {
		return nil, nil, err
	}
	return t, tx, nil
}

// Execute runs the statement once. SET TRANSACTION starts and returns a new
// transaction. When outMeta is set the first result row is written to out.
func (s *statement) Execute(ctx context.Context, tr native.Transaction, inMeta native.MessageMetadata, in []byte, outMeta native.MessageMetadata, out []byte) (native.Transaction, error) {
	if err := s.attachment.provider.inject(OpExecute); err != nil {
		return nil, err
	}
	if err := s.check(); err != nil {
		return nil, err
	}

	if s.kind == kindSetTransaction {
		t, err := s.attachment.begin(ctx, readOnlyPattern.MatchString(s.sql))
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	t, tx, err := s.transaction(tr)
	if err != nil {
		return nil, err
	}
	args, err := s.attachment.readMessage(inMeta, in)
	if err != nil {
		return nil, err
	}

	if outMeta == nil || len(s.outputs) == 0 {
		if _, err := tx.ExecContext(ctx, s.sql, args...); err != nil {
			return nil, errExecute(err)
		}
		return t, nil
	}

	rows, err := tx.QueryxContext(ctx, s.sql, args...)
	if err != nil {
		return nil, errExecute(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errExecute(err)
		}
		writeNulls(outMeta, out)
		return t, nil
	}
	values, err := rows.SliceScan()
	if err != nil {
		return nil, errExecute(err)
	}
	if rows.Next() {
		return nil, native.Errorf(native.CodeDSQLError, "multiple rows in singleton select")
	}
	if err := s.attachment.writeMessage(outMeta, out, values); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenCursor runs the statement and returns a cursor over its rows.
func (s *statement) OpenCursor(ctx context.Context, tr native.Transaction, inMeta native.MessageMetadata, in []byte, outMeta native.MessageMetadata) (native.ResultSet, error) {
	if err := s.attachment.provider.inject(OpOpenCursor); err != nil {
		return nil, err
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	if len(s.outputs) == 0 || outMeta == nil {
		return nil, native.Errorf(native.CodeNoCursor, "Attempt to reopen an open cursor or statement has no cursor")
	}

	_, tx, err := s.transaction(tr)
	if err != nil {
		return nil, err
	}
	args, err := s.attachment.readMessage(inMeta, in)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryxContext(ctx, s.sql, args...)
	if err != nil {
		return nil, errExecute(err)
	}
	return &resultSet{statement: s, rows: rows, meta: outMeta}, nil
}

func (s *statement) Free(ctx context.Context) error {
	if err := s.attachment.provider.inject(OpFreeStatement); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freed {
		return native.Errorf(native.CodeBadStmtHandle, "invalid statement handle")
	}
	s.freed = true
	s.attachment.removeStatement(s.id)
	return nil
}

func errExecute(err error) error {
	return native.Errorf(native.CodeDSQLError, "Dynamic SQL Error: %v", err)
}

type resultSet struct {
	statement *statement
	rows      *sqlx.Rows
	meta      native.MessageMetadata

	mu     sync.Mutex
	closed bool
}

func (r *resultSet) FetchNext(ctx context.Context, buf []byte) (native.Result, error) {
	if err := r.statement.attachment.provider.inject(OpFetch); err != nil {
		return native.ResultError, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return native.ResultError, native.Errorf(native.CodeNoCursor, "Attempt to fetch from a closed cursor")
	}

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return native.ResultError, errExecute(err)
		}
		return native.ResultNoData, nil
	}
	values, err := r.rows.SliceScan()
	if err != nil {
		return native.ResultError, errExecute(err)
	}
	if err := r.statement.attachment.writeMessage(r.meta, buf, values); err != nil {
		return native.ResultError, err
	}
	return native.ResultOK, nil
}

func (r *resultSet) Close(ctx context.Context) error {
	if err := r.statement.attachment.provider.inject(OpCloseCursor); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return native.Errorf(native.CodeNoCursor, "Attempt to close a closed cursor")
	}
	r.closed = true
	return r.rows.Close()
}
