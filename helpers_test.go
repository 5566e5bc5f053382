package fbdriver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomyedwab/fbdriver/native/loopback"
)

const createItems = `CREATE TABLE items (
	id INTEGER,
	name VARCHAR(20),
	code CHAR(3),
	price NUMERIC(10,2),
	born DATE,
	seen TIMESTAMP,
	active BOOLEAN,
	body BLOB
)`

func setupClient(t *testing.T, config loopback.Config) (*Client, *loopback.Provider) {
	t.Helper()
	provider := loopback.NewProvider(config)
	client, err := NewClient(provider, Config{Location: time.UTC})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() {
		if client.check() == nil {
			client.Dispose(context.Background())
		}
	})
	return client, provider
}

func setupAttachment(t *testing.T, config loopback.Config) (*Attachment, *loopback.Provider) {
	t.Helper()
	client, provider := setupClient(t, config)
	path := filepath.Join(t.TempDir(), "test.db")
	att, err := client.CreateDatabase(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	return att, provider
}

// mustExecute runs sql in its own committed transaction.
func mustExecute(t *testing.T, att *Attachment, sql string, args ...any) {
	t.Helper()
	ctx := context.Background()
	tx, err := att.StartTransaction(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to start transaction: %v", err)
	}
	if err := att.Execute(ctx, tx, sql, args...); err != nil {
		t.Fatalf("Failed to execute %q: %v", sql, err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
}
