// Package native describes the handle-based session interface the driver is
// built on. It mirrors the engine's object API: a provider attaches
// databases, an attachment starts transactions and prepares statements, a
// statement executes or opens cursors, and blobs are read and written in
// segments.
//
// Every call either succeeds or returns an error carrying the engine's
// diagnostic, normally a *Error. Implementations are not required to be safe
// for concurrent use of the same handle.
package native

import "context"

// BlobID is the 8-byte opaque identity of a blob.
type BlobID [8]byte

// Provider is the process-wide entry point of a native client library.
type Provider interface {
	AttachDatabase(ctx context.Context, uri string, dpb []byte) (Attachment, error)
	CreateDatabase(ctx context.Context, uri string, dpb []byte) (Attachment, error)
	Shutdown(ctx context.Context) error
}

// Attachment is a native database session handle.
type Attachment interface {
	StartTransaction(ctx context.Context, tpb []byte) (Transaction, error)
	// Prepare compiles sql. tr may be nil.
	Prepare(ctx context.Context, tr Transaction, sql string, dialect int) (Statement, error)
	CreateBlob(ctx context.Context, tr Transaction, bpb []byte) (Blob, BlobID, error)
	OpenBlob(ctx context.Context, tr Transaction, id BlobID, bpb []byte) (Blob, error)
	Detach(ctx context.Context) error
	DropDatabase(ctx context.Context) error
}

// Transaction is a native transaction handle. Commit and Rollback release
// it; the retaining variants keep it usable.
type Transaction interface {
	Commit(ctx context.Context) error
	CommitRetaining(ctx context.Context) error
	Rollback(ctx context.Context) error
	RollbackRetaining(ctx context.Context) error
}

// Statement is a native prepared statement handle.
type Statement interface {
	InputMetadata(ctx context.Context) (MessageMetadata, error)
	OutputMetadata(ctx context.Context) (MessageMetadata, error)
	// Execute runs the statement once. The returned transaction is tr itself,
	// or a new transaction when the statement starts one.
	Execute(ctx context.Context, tr Transaction, inMeta MessageMetadata, in []byte, outMeta MessageMetadata, out []byte) (Transaction, error)
	OpenCursor(ctx context.Context, tr Transaction, inMeta MessageMetadata, in []byte, outMeta MessageMetadata) (ResultSet, error)
	Free(ctx context.Context) error
}

// ResultSet is a native open cursor.
type ResultSet interface {
	// FetchNext fills buf with the next row and returns ResultOK, or returns
	// ResultNoData once the cursor is exhausted.
	FetchNext(ctx context.Context, buf []byte) (Result, error)
	Close(ctx context.Context) error
}

// Blob is an open native blob handle.
type Blob interface {
	// GetSegment reads into buf. It returns ResultSegment when buf was too
	// small for the whole segment and ResultNoData at the end of the blob.
	GetSegment(ctx context.Context, buf []byte) (int, Result, error)
	PutSegment(ctx context.Context, data []byte) error
	// Info answers the requested info items in tag/2-byte length/value form,
	// terminated by an end tag.
	Info(ctx context.Context, items []byte) ([]byte, error)
	Close(ctx context.Context) error
	Cancel(ctx context.Context) error
}

// Field describes one column of a message.
type Field struct {
	Name       string
	Alias      string
	Type       SQLType
	SubType    int
	Length     int
	Scale      int
	Nullable   bool
	Offset     int
	NullOffset int
}

// MessageMetadata describes the layout of a message buffer.
type MessageMetadata interface {
	Fields() []Field
	MessageLength() int
	Builder() (MetadataBuilder, error)
	Release() error
}

// MetadataBuilder derives new metadata from existing metadata. Offsets are
// recomputed by the native layer when Metadata is called.
type MetadataBuilder interface {
	SetType(index int, t SQLType) error
	SetLength(index int, length int) error
	SetScale(index int, scale int) error
	Metadata() (MessageMetadata, error)
	Release() error
}
