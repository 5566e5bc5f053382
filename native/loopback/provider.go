// Package loopback implements the native interface on top of SQLite.
//
// It exists so the driver can be developed, tested and demonstrated without
// an engine installation. Database URIs are file paths. Statements use the
// SQLite dialect; parameter types are inferred from the columns they are
// compared with or inserted into, and output columns are described from
// their declared types. Expression columns without a declared type are
// described as variable text.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/tomyedwab/fbdriver/internal/paramblock"
	"github.com/tomyedwab/fbdriver/native"
)

const defaultBusyTimeout = 5000 // milliseconds

// Config holds configuration options for a Provider.
type Config struct {
	Logger *slog.Logger // Optional, defaults to slog.Default()
	// Fault is called before every native operation with the operation name
	// (see the Op constants). A non-nil return fails the operation with that
	// error. Optional.
	Fault func(op string) error
	// BusyTimeout is the SQLite busy timeout in milliseconds. Optional,
	// defaults to 5000.
	BusyTimeout int
}

// Provider is a native.Provider backed by SQLite database files.
type Provider struct {
	logger      *slog.Logger
	fault       func(op string) error
	busyTimeout int

	mu          sync.Mutex
	attachments map[string]*attachment
}

// NewProvider creates a Provider.
func NewProvider(config Config) *Provider {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	busyTimeout := config.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = defaultBusyTimeout
	}
	return &Provider{
		logger:      logger,
		fault:       config.Fault,
		busyTimeout: busyTimeout,
		attachments: make(map[string]*attachment),
	}
}

func (p *Provider) inject(op string) error {
	if p.fault == nil {
		return nil
	}
	return p.fault(op)
}

// OpenAttachments returns the number of sessions not yet detached.
func (p *Provider) OpenAttachments() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.attachments)
}

// AttachDatabase opens an existing database file.
func (p *Provider) AttachDatabase(ctx context.Context, uri string, dpb []byte) (native.Attachment, error) {
	if err := p.inject(OpAttach); err != nil {
		return nil, err
	}
	if _, err := os.Stat(uri); err != nil {
		return nil, native.Errorf(native.CodeIOError, "I/O error during \"open\" operation for file %q: %v", uri, err)
	}
	return p.open(ctx, uri, dpb)
}

// CreateDatabase creates a new database file and opens it.
func (p *Provider) CreateDatabase(ctx context.Context, uri string, dpb []byte) (native.Attachment, error) {
	if err := p.inject(OpCreate); err != nil {
		return nil, err
	}
	if _, err := os.Stat(uri); err == nil {
		return nil, native.Errorf(native.CodeIOError, "I/O error during \"create\" operation for file %q: file exists", uri)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, native.Errorf(native.CodeIOError, "I/O error during \"create\" operation for file %q: %v", uri, err)
	}
	return p.open(ctx, uri, dpb)
}

func (p *Provider) open(ctx context.Context, path string, dpb []byte) (*attachment, error) {
	block, err := paramblock.ParseDPB(dpb)
	if err != nil {
		return nil, native.Errorf(native.CodeIOError, "bad parameters on attach or create database: %v", err)
	}
	user := ""
	if item, ok := block.Get(paramblock.DPBUserName); ok {
		user = string(item.Value)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", path, p.busyTimeout)
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, native.Errorf(native.CodeIOError, "I/O error during \"open\" operation for file %q: %v", path, err)
	}

	a := &attachment{
		provider:     p,
		id:           uuid.NewString(),
		path:         path,
		user:         user,
		db:           db,
		transactions: make(map[string]*transaction),
		statements:   make(map[string]*statement),
		blobs:        make(map[native.BlobID][]byte),
	}

	p.mu.Lock()
	p.attachments[a.id] = a
	p.mu.Unlock()

	p.logger.Debug("Loopback attachment opened", "path", path, "user", user)
	return a, nil
}

func (p *Provider) removeAttachment(id string) {
	p.mu.Lock()
	delete(p.attachments, id)
	p.mu.Unlock()
}

// Shutdown detaches every attachment still open, best effort.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.inject(OpShutdown); err != nil {
		return err
	}

	p.mu.Lock()
	attachments := make([]*attachment, 0, len(p.attachments))
	for _, a := range p.attachments {
		attachments = append(attachments, a)
	}
	p.mu.Unlock()

	for _, a := range attachments {
		if err := a.close(); err != nil {
			p.logger.Warn("Failed to close loopback attachment on shutdown", "path", a.path, "error", err)
		}
	}
	return nil
}
