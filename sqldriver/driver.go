package sqldriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/tomyedwab/fbdriver"
)

const (
	driverName       = "fbdriver"
	defaultFetchSize = 100
)

var (
	clientMu sync.Mutex
	client   *fbdriver.Client
)

// SetClient sets the client used by connections opened through sql.Open.
// It must be called before any database operations.
func SetClient(c *fbdriver.Client) {
	clientMu.Lock()
	defer clientMu.Unlock()
	client = c
}

func defaultClient() *fbdriver.Client {
	clientMu.Lock()
	defer clientMu.Unlock()
	return client
}

func init() {
	sql.Register(driverName, &Driver{})
}

// --- Driver implementation ---

// Driver is the database/sql driver.
type Driver struct{}

// Open returns a new connection to the database named by dsn.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	connector, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector parses dsn once for every connection of a sql.DB.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	c := defaultClient()
	if c == nil {
		return nil, fmt.Errorf("fbdriver: client is not set")
	}
	uri, opts, fetchSize, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	connector := NewConnector(c, uri, opts)
	connector.FetchSize = fetchSize
	return connector, nil
}

// ParseDSN splits a DSN of the form "uri?user=..&password=..&role=..&charset=..&fetch_size=.."
// into the database URI, connect options and fetch size.
func ParseDSN(dsn string) (uri string, opts *fbdriver.ConnectOptions, fetchSize int, err error) {
	uri, query, _ := strings.Cut(dsn, "?")
	if uri == "" {
		return "", nil, 0, fmt.Errorf("fbdriver: DSN %q has no database", dsn)
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return "", nil, 0, fmt.Errorf("fbdriver: invalid DSN parameters: %w", err)
	}

	opts = &fbdriver.ConnectOptions{
		Username: values.Get("user"),
		Password: values.Get("password"),
		Role:     values.Get("role"),
		Charset:  values.Get("charset"),
	}
	fetchSize = defaultFetchSize
	if s := values.Get("fetch_size"); s != "" {
		fetchSize, err = strconv.Atoi(s)
		if err != nil || fetchSize <= 0 {
			return "", nil, 0, fmt.Errorf("fbdriver: invalid fetch_size %q", s)
		}
	}
	return uri, opts, fetchSize, nil
}

// --- Connector implementation ---

// Connector opens attachments on a client.
type Connector struct {
	client  *fbdriver.Client
	uri     string
	options *fbdriver.ConnectOptions
	// FetchSize is the number of rows fetched per round trip.
	FetchSize int
}

// NewConnector returns a connector for uri. opts may be nil.
func NewConnector(c *fbdriver.Client, uri string, opts *fbdriver.ConnectOptions) *Connector {
	return &Connector{client: c, uri: uri, options: opts, FetchSize: defaultFetchSize}
}

// Connect attaches to the database.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	att, err := c.client.Connect(ctx, c.uri, c.options)
	if err != nil {
		return nil, err
	}
	return &Conn{att: att, fetchSize: c.FetchSize}, nil
}

// Driver returns the package driver.
func (c *Connector) Driver() driver.Driver {
	return &Driver{}
}

// --- Connection implementation ---

// Conn is one attachment.
type Conn struct {
	att       *fbdriver.Attachment
	fetchSize int
	tx        *fbdriver.Transaction // Transaction begun with BeginTx, if any
}

// Prepare returns a prepared statement.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext returns a prepared statement.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	st, err := c.att.Prepare(ctx, c.tx, query)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &Stmt{conn: c, stmt: st}, nil
}

// Close disconnects the attachment, releasing its statements and rolling
// back an unfinished transaction.
func (c *Conn) Close() error {
	return wrapErr(c.att.Disconnect(context.Background()))
}

// Begin starts a transaction with default options.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx starts a transaction.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if c.tx != nil {
		return nil, fmt.Errorf("fbdriver: transaction already active on this connection")
	}

	txOpts := &fbdriver.TransactionOptions{}
	switch sql.IsolationLevel(opts.Isolation) {
	case sql.LevelDefault:
	case sql.LevelReadCommitted:
		txOpts.Isolation = fbdriver.IsolationReadCommitted
		txOpts.ReadCommittedMode = fbdriver.ReadCommittedRecordVersion
	case sql.LevelRepeatableRead, sql.LevelSnapshot:
		txOpts.Isolation = fbdriver.IsolationSnapshot
	case sql.LevelSerializable:
		txOpts.Isolation = fbdriver.IsolationConsistency
	default:
		return nil, fmt.Errorf("fbdriver: unsupported isolation level %s", sql.IsolationLevel(opts.Isolation))
	}
	if opts.ReadOnly {
		txOpts.AccessMode = fbdriver.AccessModeReadOnly
	}

	tx, err := c.att.StartTransaction(ctx, txOpts)
	if err != nil {
		return nil, wrapErr(err)
	}
	c.tx = tx
	return &Tx{conn: c, tx: tx}, nil
}

// IsValid reports whether the attachment is still connected, so database/sql
// can drop connections whose attachment was released.
func (c *Conn) IsValid() bool {
	return c.att.IsConnected()
}

// CheckNamedValue passes fbdriver values through unchanged.
func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	if _, ok := nv.Value.(fbdriver.Value); ok {
		return nil
	}
	v, err := driver.DefaultParameterConverter.ConvertValue(nv.Value)
	if err != nil {
		return err
	}
	nv.Value = v
	return nil
}

// withTransaction runs fn in the connection's transaction, or in a new one
// that is committed when fn succeeds.
func (c *Conn) withTransaction(ctx context.Context, fn func(tx *fbdriver.Transaction) error) error {
	if c.tx != nil {
		return fn(c.tx)
	}

	tx, err := c.att.StartTransaction(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// --- Statement implementation ---

// Stmt is a prepared statement.
type Stmt struct {
	conn *Conn
	stmt *fbdriver.Statement
}

// Close disposes the statement.
func (s *Stmt) Close() error {
	return wrapErr(s.stmt.Dispose(context.Background()))
}

// NumInput returns -1: a named placeholder used twice counts once in the
// arguments but twice in the statement, so the count is checked when the
// arguments are bound.
func (s *Stmt) NumInput() int {
	return -1
}

func convertArgs(args []driver.NamedValue) []any {
	named := fbdriver.Named{}
	positional := make([]any, 0, len(args))
	for _, arg := range args {
		if arg.Name != "" {
			named[arg.Name] = arg.Value
			continue
		}
		positional = append(positional, arg.Value)
	}
	if len(named) > 0 {
		return []any{named}
	}
	return positional
}

func toNamedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

// Exec executes the statement.
func (s *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), toNamedValues(args))
}

// ExecContext executes the statement.
func (s *Stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	err := s.conn.withTransaction(ctx, func(tx *fbdriver.Transaction) error {
		return s.stmt.Execute(ctx, tx, convertArgs(args)...)
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return driver.ResultNoRows, nil
}

// Query executes the statement and returns its rows.
func (s *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), toNamedValues(args))
}

// QueryContext executes the statement and returns its rows. Outside of a
// connection transaction the rows own a transaction committed on Close.
func (s *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	tx := s.conn.tx
	ownTx := tx == nil
	if ownTx {
		var err error
		tx, err = s.conn.att.StartTransaction(ctx, nil)
		if err != nil {
			return nil, wrapErr(err)
		}
	}

	rs, err := s.stmt.ExecuteQuery(ctx, tx, convertArgs(args)...)
	if err != nil {
		if ownTx {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = errors.Join(err, rollbackErr)
			}
		}
		return nil, wrapErr(err)
	}

	r := &Rows{
		ctx:         ctx,
		att:         s.conn.att,
		tx:          tx,
		ownTx:       ownTx,
		rs:          rs,
		descriptors: s.stmt.OutputDescriptors(),
		fetchSize:   s.conn.fetchSize,
	}
	return r, nil
}

// --- Transaction implementation ---

// Tx is a transaction begun on a connection.
type Tx struct {
	conn *Conn
	tx   *fbdriver.Transaction
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	t.conn.tx = nil
	return wrapErr(t.tx.Commit(context.Background()))
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	t.conn.tx = nil
	return wrapErr(t.tx.Rollback(context.Background()))
}

// --- Rows implementation ---

// Rows iterates a result set in batches of the connection's fetch size.
type Rows struct {
	ctx         context.Context
	att         *fbdriver.Attachment
	tx          *fbdriver.Transaction
	ownTx       bool
	rs          *fbdriver.ResultSet
	descriptors []fbdriver.Descriptor
	fetchSize   int

	batch []fbdriver.Row
	pos   int
}

// Columns returns the column names.
func (r *Rows) Columns() []string {
	return r.rs.Columns()
}

// ColumnTypeDatabaseTypeName returns the codec type of column i.
func (r *Rows) ColumnTypeDatabaseTypeName(i int) string {
	return r.descriptors[i].Type.String()
}

// Next populates dest with the next row, fetching a new batch when needed.
// It returns io.EOF when there are no more rows.
func (r *Rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.batch) {
		if r.rs.Finished() {
			return io.EOF
		}
		batch, err := r.rs.Fetch(r.ctx, &fbdriver.FetchOptions{FetchSize: r.fetchSize})
		if err != nil {
			return wrapErr(err)
		}
		r.batch, r.pos = batch, 0
		if len(batch) == 0 {
			return io.EOF
		}
	}

	row := r.batch[r.pos]
	if len(row) != len(dest) {
		return fmt.Errorf("fbdriver: column count mismatch. Expected %d, got %d", len(dest), len(row))
	}
	for i, v := range row {
		value, err := r.driverValue(v)
		if err != nil {
			return err
		}
		dest[i] = value
	}
	r.pos++
	return nil
}

func (r *Rows) driverValue(v fbdriver.Value) (driver.Value, error) {
	if blob, ok := v.(*fbdriver.Blob); ok {
		data, err := r.att.ReadBlob(r.ctx, r.tx, blob)
		if err != nil {
			return nil, wrapErr(err)
		}
		return data, nil
	}
	return v.Any(), nil
}

// Close closes the result set and finishes the transaction the rows own.
func (r *Rows) Close() error {
	err := r.rs.Close(r.ctx)
	if r.ownTx {
		if commitErr := r.tx.Commit(r.ctx); commitErr != nil {
			err = errors.Join(err, commitErr)
		}
	}
	return wrapErr(err)
}

// wrapErr reports a released attachment as driver.ErrBadConn so database/sql
// retries on a fresh connection.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if fbdriver.IsResourceAlreadyDisposed(err) {
		return fmt.Errorf("%w: %w", driver.ErrBadConn, err)
	}
	return err
}
