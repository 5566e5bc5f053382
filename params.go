package fbdriver

import (
	"os"
	"time"

	"github.com/tomyedwab/fbdriver/internal/paramblock"
	"github.com/tomyedwab/fbdriver/native"
)

const defaultCharset = "UTF8"

// ConnectOptions configures an attachment. Empty Username and Password fall
// back to the ISC_USER and ISC_PASSWORD environment variables.
type ConnectOptions struct {
	Username string
	Password string
	Role     string
	Charset  string // Optional, defaults to UTF8
}

// CreateDatabaseOptions configures database creation.
type CreateDatabaseOptions struct {
	ConnectOptions
	PageSize    int   // Optional, engine default when zero
	ForcedWrite *bool // Optional, engine default when nil
}

// TransactionIsolation selects the isolation level of a transaction.
type TransactionIsolation int

const (
	IsolationDefault TransactionIsolation = iota
	IsolationConsistency
	IsolationSnapshot
	IsolationReadCommitted
)

// ReadCommittedMode refines IsolationReadCommitted.
type ReadCommittedMode int

const (
	ReadCommittedDefault ReadCommittedMode = iota
	ReadCommittedRecordVersion
	ReadCommittedNoRecordVersion
	ReadCommittedReadConsistency
)

// AccessMode selects read-only or read-write transactions.
type AccessMode int

const (
	AccessModeDefault AccessMode = iota
	AccessModeReadOnly
	AccessModeReadWrite
)

// WaitMode selects the lock conflict behavior of a transaction.
type WaitMode int

const (
	WaitModeDefault WaitMode = iota
	WaitModeWait
	WaitModeNoWait
)

// TransactionOptions configures a transaction. Zero values leave the engine
// default in place and add nothing to the parameter block.
type TransactionOptions struct {
	Isolation         TransactionIsolation
	ReadCommittedMode ReadCommittedMode
	AccessMode        AccessMode
	WaitMode          WaitMode
	LockTimeout       time.Duration // Only used with WaitModeWait, whole seconds
	AutoCommit        bool
	NoAutoUndo        bool
	IgnoreLimbo       bool
	RestartRequests   bool
}

// BlobType selects how the engine stores a new blob.
type BlobType int

const (
	BlobTypeSegmented BlobType = iota
	BlobTypeStream
)

// CreateBlobOptions configures a new blob.
type CreateBlobOptions struct {
	Type BlobType
}

func createDPB(opts *ConnectOptions, create *CreateDatabaseOptions) ([]byte, error) {
	if opts == nil {
		opts = &ConnectOptions{}
	}

	charset := opts.Charset
	if charset == "" {
		charset = defaultCharset
	}
	b := paramblock.New(paramblock.DPBVersion1).AddString(paramblock.DPBLcCtype, charset)

	username := opts.Username
	if username == "" {
		username = os.Getenv("ISC_USER")
	}
	if username != "" {
		b.AddString(paramblock.DPBUserName, username)
	}

	password := opts.Password
	if password == "" {
		password = os.Getenv("ISC_PASSWORD")
	}
	if password != "" {
		b.AddString(paramblock.DPBPassword, password)
	}

	if opts.Role != "" {
		b.AddString(paramblock.DPBSQLRoleName, opts.Role)
	}

	if create != nil {
		b.AddInt32(paramblock.DPBSQLDialect, native.DefaultDialect)
		if create.PageSize > 0 {
			b.AddInt32(paramblock.DPBPageSize, int32(create.PageSize))
		}
		if create.ForcedWrite != nil {
			var v int32
			if *create.ForcedWrite {
				v = 1
			}
			b.AddInt32(paramblock.DPBForceWrite, v)
		}
	}

	return b.Bytes()
}

func createTPB(opts *TransactionOptions) ([]byte, error) {
	b := paramblock.New(paramblock.TPBVersion3)
	if opts == nil {
		return b.Bytes()
	}

	switch opts.AccessMode {
	case AccessModeReadOnly:
		b.AddTag(paramblock.TPBRead)
	case AccessModeReadWrite:
		b.AddTag(paramblock.TPBWrite)
	}

	switch opts.WaitMode {
	case WaitModeNoWait:
		b.AddTag(paramblock.TPBNoWait)
	case WaitModeWait:
		b.AddTag(paramblock.TPBWait)
		if opts.LockTimeout > 0 {
			b.AddInt32(paramblock.TPBLockTimeout, int32(opts.LockTimeout/time.Second))
		}
	}

	switch opts.Isolation {
	case IsolationConsistency:
		b.AddTag(paramblock.TPBConsistency)
	case IsolationSnapshot:
		b.AddTag(paramblock.TPBConcurrency)
	case IsolationReadCommitted:
		b.AddTag(paramblock.TPBReadCommitted)
		switch opts.ReadCommittedMode {
		case ReadCommittedRecordVersion:
			b.AddTag(paramblock.TPBRecVersion)
		case ReadCommittedNoRecordVersion:
			b.AddTag(paramblock.TPBNoRecVersion)
		case ReadCommittedReadConsistency:
			b.AddTag(paramblock.TPBReadConsistency)
		}
	}

	if opts.NoAutoUndo {
		b.AddTag(paramblock.TPBNoAutoUndo)
	}
	if opts.IgnoreLimbo {
		b.AddTag(paramblock.TPBIgnoreLimbo)
	}
	if opts.RestartRequests {
		b.AddTag(paramblock.TPBRestartRequests)
	}
	if opts.AutoCommit {
		b.AddTag(paramblock.TPBAutoCommit)
	}

	return b.Bytes()
}

func createBPB(opts *CreateBlobOptions) ([]byte, error) {
	if opts == nil {
		return nil, nil
	}
	t := paramblock.BPBTypeSegmented
	if opts.Type == BlobTypeStream {
		t = paramblock.BPBTypeStream
	}
	return paramblock.New(paramblock.BPBVersion1).AddBytes(paramblock.BPBType, []byte{t}).Bytes()
}
