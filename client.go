package fbdriver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/fbdriver/native"
)

type resourceState int

const (
	stateOpen resourceState = iota
	stateDisposed
)

// Config holds configuration options for a Client.
type Config struct {
	Logger   *slog.Logger   // Optional, defaults to slog.Default()
	Location *time.Location // Optional, location of decoded dates, defaults to time.Local
}

var (
	clientsMu sync.Mutex
	clients   = make(map[native.Provider]*Client)
)

// Client owns a native provider and the attachments opened through it. At
// most one Client may be open per provider instance; providers must be
// comparable values (normally pointers).
type Client struct {
	provider native.Provider
	logger   *slog.Logger
	loc      *time.Location

	mu          sync.Mutex
	attachments map[string]*Attachment
	state       resourceState
}

// NewClient creates a Client for provider.
func NewClient(provider native.Provider, config Config) (*Client, error) {
	if provider == nil {
		return nil, NewError(ErrorTypeInvalidState, "provider is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := config.Location
	if loc == nil {
		loc = time.Local
	}

	clientsMu.Lock()
	defer clientsMu.Unlock()
	if _, exists := clients[provider]; exists {
		return nil, NewError(ErrorTypeClientExists, "a client is already open for this provider")
	}

	c := &Client{
		provider:    provider,
		logger:      logger,
		loc:         loc,
		attachments: make(map[string]*Attachment),
	}
	clients[provider] = c
	return c, nil
}

func (c *Client) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateOpen {
		return errDisposed("client")
	}
	return nil
}

// Connect attaches to an existing database.
func (c *Client) Connect(ctx context.Context, uri string, opts *ConnectOptions) (*Attachment, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	dpb, err := createDPB(opts, nil)
	if err != nil {
		return nil, NewErrorWithCause(ErrorTypeInvalidState, "invalid connect options", err)
	}

	handle, err := c.provider.AttachDatabase(ctx, uri, dpb)
	if err != nil {
		return nil, errNative("attach database", err)
	}
	c.logger.Debug("Attached database", "uri", uri)
	return c.newAttachment(handle), nil
}

// CreateDatabase creates a database and attaches to it.
func (c *Client) CreateDatabase(ctx context.Context, uri string, opts *CreateDatabaseOptions) (*Attachment, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var connectOpts *ConnectOptions
	if opts != nil {
		connectOpts = &opts.ConnectOptions
	}
	dpb, err := createDPB(connectOpts, opts)
	if err != nil {
		return nil, NewErrorWithCause(ErrorTypeInvalidState, "invalid create database options", err)
	}

	handle, err := c.provider.CreateDatabase(ctx, uri, dpb)
	if err != nil {
		return nil, errNative("create database", err)
	}
	c.logger.Debug("Created database", "uri", uri)
	return c.newAttachment(handle), nil
}

func (c *Client) newAttachment(handle native.Attachment) *Attachment {
	a := &Attachment{
		client:       c,
		id:           uuid.NewString(),
		handle:       handle,
		loc:          c.loc,
		logger:       c.logger,
		statements:   make(map[string]*Statement),
		transactions: make(map[string]*Transaction),
	}

	c.mu.Lock()
	c.attachments[a.id] = a
	c.mu.Unlock()
	return a
}

func (c *Client) removeAttachment(id string) {
	c.mu.Lock()
	delete(c.attachments, id)
	c.mu.Unlock()
}

// OpenAttachments returns the number of attachments not yet disconnected.
func (c *Client) OpenAttachments() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.attachments)
}

// Dispose disconnects every open attachment, concurrently and best effort,
// then shuts the provider down.
func (c *Client) Dispose(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}

	c.mu.Lock()
	attachments := make([]*Attachment, 0, len(c.attachments))
	for _, a := range c.attachments {
		attachments = append(attachments, a)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, a := range attachments {
		wg.Add(1)
		go func(a *Attachment) {
			defer wg.Done()
			if err := a.Disconnect(ctx); err != nil {
				c.logger.Warn("Failed to disconnect attachment during client dispose", "error", err)
			}
		}(a)
	}
	wg.Wait()

	c.mu.Lock()
	c.state = stateDisposed
	c.attachments = make(map[string]*Attachment)
	c.mu.Unlock()

	clientsMu.Lock()
	delete(clients, c.provider)
	clientsMu.Unlock()

	if err := c.provider.Shutdown(ctx); err != nil {
		return errNative("provider shutdown", err)
	}
	return nil
}
