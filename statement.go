package fbdriver

import (
	"context"
	"sync"

	"github.com/tomyedwab/fbdriver/native"
)

// Statement is a prepared SQL statement. It owns its message buffers and at
// most one open result set.
type Statement struct {
	attachment *Attachment
	id         string
	handle     native.Statement

	inMeta    native.MessageMetadata
	outMeta   native.MessageMetadata
	inDescs   []Descriptor
	outDescs  []Descriptor
	inBuffer  []byte
	outBuffer []byte
	decode    rowDecoder
	encode    rowEncoder
	params    *placeholders

	resultSet *ResultSet

	mu    sync.Mutex
	state resourceState
}

func prepareStatement(ctx context.Context, a *Attachment, tx *Transaction, sql string) (*Statement, error) {
	params := parsePlaceholders(sql)

	handle, err := a.handle.Prepare(ctx, tx.nativeHandle(), params.sql, native.DefaultDialect)
	if err != nil {
		return nil, errNative("prepare", err)
	}

	s := &Statement{attachment: a, handle: handle, params: params}
	if err := s.describe(ctx); err != nil {
		s.releaseMetadata()
		if freeErr := handle.Free(ctx); freeErr != nil {
			a.logger.Warn("Failed to free statement after describe error", "error", freeErr)
		}
		return nil, err
	}

	a.addStatement(s)
	a.logger.Debug("Prepared statement", "inputs", len(s.inDescs), "outputs", len(s.outDescs))
	return s, nil
}

func (s *Statement) describe(ctx context.Context) error {
	inMeta, err := s.handle.InputMetadata(ctx)
	if err != nil {
		return errNative("get input metadata", err)
	}
	if s.inMeta, err = fixMetadata(inMeta); err != nil {
		return err
	}

	outMeta, err := s.handle.OutputMetadata(ctx)
	if err != nil {
		return errNative("get output metadata", err)
	}
	if s.outMeta, err = fixMetadata(outMeta); err != nil {
		return err
	}

	s.inDescs = createDescriptors(s.inMeta)
	s.outDescs = createDescriptors(s.outMeta)
	s.inBuffer = make([]byte, s.inMeta.MessageLength())
	s.outBuffer = make([]byte, s.outMeta.MessageLength())
	s.decode = newRowDecoder(s.attachment, s.outDescs)
	s.encode = newRowEncoder(s.attachment, s.inDescs)
	return nil
}

func (s *Statement) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return errDisposed("statement")
	}
	return nil
}

func (s *Statement) markDisposed() {
	s.mu.Lock()
	s.state = stateDisposed
	s.mu.Unlock()
}

// Columns returns the output column names.
//
// Columns, InputDescriptors, OutputDescriptors, InputCount and HasResultSet
// describe the prepared layout, which does not change. They keep answering
// after Dispose.
func (s *Statement) Columns() []string {
	names := make([]string, len(s.outDescs))
	for i, d := range s.outDescs {
		names[i] = d.ColumnName()
	}
	return names
}

// InputDescriptors returns the parameter layout.
func (s *Statement) InputDescriptors() []Descriptor {
	return append([]Descriptor(nil), s.inDescs...)
}

// OutputDescriptors returns the output column layout.
func (s *Statement) OutputDescriptors() []Descriptor {
	return append([]Descriptor(nil), s.outDescs...)
}

// InputCount returns the number of positional parameters.
func (s *Statement) InputCount() int {
	return len(s.inDescs)
}

// HasResultSet reports whether the statement produces output columns.
func (s *Statement) HasResultSet() bool {
	return len(s.outDescs) > 0
}

// Execute runs the statement once, discarding any output.
func (s *Statement) Execute(ctx context.Context, tx *Transaction, args ...any) error {
	_, _, err := s.execute(ctx, tx, args)
	return err
}

// ExecuteReturning runs the statement once and returns its output row. The
// row is empty when the statement has no output columns.
func (s *Statement) ExecuteReturning(ctx context.Context, tx *Transaction, args ...any) (Row, error) {
	row, _, err := s.execute(ctx, tx, args)
	return row, err
}

// ExecuteReturningAsMap is ExecuteReturning with the row keyed by column name.
func (s *Statement) ExecuteReturningAsMap(ctx context.Context, tx *Transaction, args ...any) (map[string]any, error) {
	row, err := s.ExecuteReturning(ctx, tx, args...)
	if err != nil {
		return nil, err
	}
	return rowMap(s.Columns(), row), nil
}

// ExecuteTransaction runs a statement that starts a transaction and returns
// it. When the statement continues tx instead, tx is returned.
func (s *Statement) ExecuteTransaction(ctx context.Context, tx *Transaction) (*Transaction, error) {
	_, handle, err := s.execute(ctx, tx, nil)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, NewError(ErrorTypeInvalidState, "statement did not start a transaction")
	}
	if tx != nil && handle == tx.handle {
		return tx, nil
	}
	return s.attachment.addTransaction(handle), nil
}

func (s *Statement) execute(ctx context.Context, tx *Transaction, args []any) (Row, native.Transaction, error) {
	if err := s.check(); err != nil {
		return nil, nil, err
	}
	if err := s.attachment.checkTransaction(tx); err != nil {
		return nil, nil, err
	}

	values, err := s.params.prepareParams(args)
	if err != nil {
		return nil, nil, err
	}
	if err := s.encode(ctx, tx, s.inBuffer, values); err != nil {
		return nil, nil, err
	}

	var outMeta native.MessageMetadata
	if len(s.outDescs) > 0 {
		outMeta = s.outMeta
	}
	handle, err := s.handle.Execute(ctx, tx.nativeHandle(), s.inMeta, s.inBuffer, outMeta, s.outBuffer)
	if err != nil {
		return nil, nil, errNative("execute", err)
	}

	if len(s.outDescs) == 0 {
		return Row{}, handle, nil
	}
	row, err := s.decode(s.outBuffer)
	if err != nil {
		return nil, nil, err
	}
	return row, handle, nil
}

// ExecuteQuery opens a result set over the statement's output.
func (s *Statement) ExecuteQuery(ctx context.Context, tx *Transaction, args ...any) (*ResultSet, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := s.attachment.checkTransaction(tx); err != nil {
		return nil, err
	}
	if s.resultSet != nil {
		return nil, NewError(ErrorTypeInvalidState, "statement already has an open result set")
	}

	rs, err := openResultSet(ctx, s, tx, args)
	if err != nil {
		return nil, err
	}
	s.resultSet = rs
	return rs, nil
}

// Dispose closes any open result set and releases the statement.
func (s *Statement) Dispose(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}

	if s.resultSet != nil {
		if err := s.resultSet.closeCursor(ctx); err != nil {
			return err
		}
	}

	if err := s.releaseMetadata(); err != nil {
		return err
	}

	if err := s.handle.Free(ctx); err != nil {
		return errNative("free statement", err)
	}

	s.markDisposed()
	s.attachment.removeStatement(s.id)
	return nil
}

// releaseMetadata releases output then input metadata, each exactly once.
func (s *Statement) releaseMetadata() error {
	if meta := s.outMeta; meta != nil {
		s.outMeta = nil
		if err := meta.Release(); err != nil {
			return errNative("release output metadata", err)
		}
	}
	if meta := s.inMeta; meta != nil {
		s.inMeta = nil
		if err := meta.Release(); err != nil {
			return errNative("release input metadata", err)
		}
	}
	return nil
}
