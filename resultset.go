package fbdriver

import (
	"context"
	"sync"

	"github.com/tomyedwab/fbdriver/native"
)

// FetchOptions limits a Fetch call.
type FetchOptions struct {
	// FetchSize is the maximum number of rows returned; zero fetches every
	// remaining row.
	FetchSize int
}

// ResultSet is an open cursor over a statement's output.
type ResultSet struct {
	statement   *Statement
	transaction *Transaction
	handle      native.ResultSet
	columns     []string

	// buffers alternate between the fetch in flight and the row being decoded.
	buffers [2][]byte

	finished bool
	// disposeStatementOnClose is set when the statement was prepared only
	// for this result set.
	disposeStatementOnClose bool

	mu    sync.Mutex
	state resourceState
}

type fetchResult struct {
	result native.Result
	err    error
}

func openResultSet(ctx context.Context, s *Statement, tx *Transaction, args []any) (*ResultSet, error) {
	values, err := s.params.prepareParams(args)
	if err != nil {
		return nil, err
	}
	if err := s.encode(ctx, tx, s.inBuffer, values); err != nil {
		return nil, err
	}

	handle, err := s.handle.OpenCursor(ctx, tx.nativeHandle(), s.inMeta, s.inBuffer, s.outMeta)
	if err != nil {
		return nil, errNative("open cursor", err)
	}

	length := s.outMeta.MessageLength()
	return &ResultSet{
		statement:   s,
		transaction: tx,
		handle:      handle,
		columns:     s.Columns(),
		buffers:     [2][]byte{make([]byte, length), make([]byte, length)},
	}, nil
}

func (rs *ResultSet) check() error {
	rs.mu.Lock()
	state, statement := rs.state, rs.statement
	rs.mu.Unlock()
	if state != stateOpen {
		return errDisposed("result set")
	}
	return statement.attachment.check()
}

func (rs *ResultSet) markDisposed() {
	rs.mu.Lock()
	rs.state = stateDisposed
	rs.mu.Unlock()
}

// Columns returns the output column names. It keeps answering after Close.
func (rs *ResultSet) Columns() []string {
	return rs.columns
}

// Finished reports whether the cursor has been exhausted. After Close it
// reports the state the cursor was closed in.
func (rs *ResultSet) Finished() bool {
	return rs.finished
}

// Fetch returns the next rows. Once the cursor is exhausted every call
// returns no rows without touching the native cursor. opts may be nil.
//
// When a fetch or decode fails partway through, the rows decoded before the
// failure are returned with the error. The cursor has moved past them, so a
// later Fetch does not return them again.
func (rs *ResultSet) Fetch(ctx context.Context, opts *FetchOptions) ([]Row, error) {
	if err := rs.check(); err != nil {
		return nil, err
	}
	if rs.finished {
		return []Row{}, nil
	}

	fetchSize := 0
	if opts != nil {
		fetchSize = opts.FetchSize
	}
	decode := rs.statement.decode

	cur := 0
	result, err := rs.handle.FetchNext(ctx, rs.buffers[cur])
	if err != nil {
		return nil, errNative("fetch", err)
	}

	rows := []Row{}
	for {
		if result == native.ResultNoData {
			rs.finished = true
			return rows, nil
		}

		// Fetch the following row into the other buffer while this one is
		// decoded. Never read ahead past fetchSize.
		var pending chan fetchResult
		if fetchSize <= 0 || len(rows)+1 < fetchSize {
			pending = make(chan fetchResult, 1)
			next := rs.buffers[1-cur]
			go func() {
				r, err := rs.handle.FetchNext(ctx, next)
				pending <- fetchResult{result: r, err: err}
			}()
		}

		row, decodeErr := decode(rs.buffers[cur])

		if pending == nil {
			if decodeErr != nil {
				return rows, decodeErr
			}
			return append(rows, row), nil
		}

		fetched := <-pending
		if decodeErr != nil {
			return rows, decodeErr
		}
		rows = append(rows, row)
		if fetched.err != nil {
			return rows, errNative("fetch", fetched.err)
		}
		result = fetched.result
		cur = 1 - cur
	}
}

// FetchAsMap is Fetch with rows keyed by column name.
func (rs *ResultSet) FetchAsMap(ctx context.Context, opts *FetchOptions) ([]map[string]any, error) {
	rows, err := rs.Fetch(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = rowMap(rs.columns, row)
	}
	return out, nil
}

// Close closes the cursor. When the statement was prepared implicitly for
// this result set, the statement is disposed instead.
func (rs *ResultSet) Close(ctx context.Context) error {
	if err := rs.check(); err != nil {
		return err
	}
	if rs.disposeStatementOnClose {
		return rs.statement.Dispose(ctx)
	}
	return rs.closeCursor(ctx)
}

func (rs *ResultSet) closeCursor(ctx context.Context) error {
	if err := rs.handle.Close(ctx); err != nil {
		return errNative("close cursor", err)
	}

	rs.mu.Lock()
	rs.state = stateDisposed
	statement := rs.statement
	rs.statement = nil
	rs.mu.Unlock()

	statement.resultSet = nil
	return nil
}
