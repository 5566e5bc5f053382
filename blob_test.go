package fbdriver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/tomyedwab/fbdriver/native"
	"github.com/tomyedwab/fbdriver/native/loopback"
)

func TestBlobParameterRoundTrip(t *testing.T) {
	ctx := context.Background()
	att, _ := setupAttachment(t, loopback.Config{})
	mustExecute(t, att, createItems)

	tx, _ := att.StartTransaction(ctx, nil)
	defer tx.Rollback(ctx)

	// Larger than one segment, so the write is split.
	content := bytes.Repeat([]byte("0123456789abcdef"), 5000)
	if err := att.Execute(ctx, tx, "INSERT INTO items (id, body) VALUES (?, ?)", 1, content); err != nil {
		t.Fatalf("Failed to insert raw bytes: %v", err)
	}
	if err := att.Execute(ctx, tx, "INSERT INTO items (id, body) VALUES (?, ?)", 2, "short text"); err != nil {
		t.Fatalf("Failed to insert text: %v", err)
	}

	for id, expected := range map[int][]byte{1: content, 2: []byte("short text")} {
		row, err := att.ExecuteReturning(ctx, tx, "SELECT body FROM items WHERE id = ?", id)
		if err != nil {
			t.Fatalf("Failed to select: %v", err)
		}
		blob, ok := row[0].(*Blob)
		if !ok {
			t.Fatalf("Expected *Blob, got %T", row[0])
		}
		data, err := att.ReadBlob(ctx, tx, blob)
		if err != nil {
			t.Fatalf("Failed to read blob: %v", err)
		}
		if !bytes.Equal(data, expected) {
			t.Errorf("Blob %d: expected %d bytes, got %d", id, len(expected), len(data))
		}
	}
}

func TestBlobStreams(t *testing.T) {
	ctx := context.Background()
	att, _ := setupAttachment(t, loopback.Config{})
	mustExecute(t, att, createItems)

	tx, _ := att.StartTransaction(ctx, nil)
	defer tx.Rollback(ctx)

	w, err := att.CreateBlob(ctx, tx, &CreateBlobOptions{Type: BlobTypeStream})
	if err != nil {
		t.Fatalf("Failed to create blob: %v", err)
	}
	if _, err := w.Read(ctx, make([]byte, 4)); !IsInvalidState(err) {
		t.Errorf("Expected InvalidState reading a write stream, got %v", err)
	}
	for _, part := range []string{"streamed ", "blob ", "content"} {
		if err := w.Write(ctx, []byte(part)); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if err := w.Write(ctx, []byte("late")); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed writing a closed stream, got %v", err)
	}

	if err := att.Execute(ctx, tx, "INSERT INTO items (id, body) VALUES (?, ?)", 1, w); err != nil {
		t.Fatalf("Failed to insert blob stream: %v", err)
	}
	if err := att.Execute(ctx, tx, "INSERT INTO items (id, body) VALUES (?, ?)", 2, w.Blob()); err != nil {
		t.Fatalf("Failed to insert blob: %v", err)
	}

	row, err := att.ExecuteReturning(ctx, tx, "SELECT body FROM items WHERE id = ?", 2)
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	r, err := att.OpenBlob(ctx, tx, row[0].(*Blob))
	if err != nil {
		t.Fatalf("Failed to open blob: %v", err)
	}
	length, err := r.Length(ctx)
	if err != nil {
		t.Fatalf("Failed to get length: %v", err)
	}
	if length != int64(len("streamed blob content")) {
		t.Errorf("Expected length %d, got %d", len("streamed blob content"), length)
	}
	if err := r.Write(ctx, []byte("x")); !IsInvalidState(err) {
		t.Errorf("Expected InvalidState writing a read stream, got %v", err)
	}

	data, err := io.ReadAll(r.Reader(ctx))
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(data) != "streamed blob content" {
		t.Errorf("Unexpected content %q", data)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if _, err := r.Length(ctx); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed, got %v", err)
	}
}

func TestBlobCrossSession(t *testing.T) {
	ctx := context.Background()
	client, _ := setupClient(t, loopback.Config{})
	dir := t.TempDir()

	first, err := client.CreateDatabase(ctx, filepath.Join(dir, "first.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	second, err := client.CreateDatabase(ctx, filepath.Join(dir, "second.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	mustExecute(t, second, createItems)

	firstTx, _ := first.StartTransaction(ctx, nil)
	defer firstTx.Rollback(ctx)
	w, err := first.CreateBlob(ctx, firstTx, nil)
	if err != nil {
		t.Fatalf("Failed to create blob: %v", err)
	}
	w.Write(ctx, []byte("foreign"))
	w.Close(ctx)

	secondTx, _ := second.StartTransaction(ctx, nil)
	defer secondTx.Rollback(ctx)

	if _, err := second.OpenBlob(ctx, secondTx, w.Blob()); !IsCrossSessionBlob(err) {
		t.Errorf("Expected CrossSessionBlob opening a foreign blob, got %v", err)
	}
	err = second.Execute(ctx, secondTx, "INSERT INTO items (id, body) VALUES (?, ?)", 1, w.Blob())
	if !IsCrossSessionBlob(err) {
		t.Errorf("Expected CrossSessionBlob binding a foreign blob, got %v", err)
	}
}

func TestBlobWriteFailureCancels(t *testing.T) {
	ctx := context.Background()
	var failPut atomic.Bool
	var cancels atomic.Int32
	att, _ := setupAttachment(t, loopback.Config{
		Fault: func(op string) error {
			switch {
			case op == loopback.OpPutSegment && failPut.Load():
				return native.Errorf(native.CodeIOError, "disk full")
			case op == loopback.OpCancelBlob:
				cancels.Add(1)
			}
			return nil
		},
	})
	mustExecute(t, att, createItems)

	tx, _ := att.StartTransaction(ctx, nil)
	defer tx.Rollback(ctx)

	failPut.Store(true)
	err := att.Execute(ctx, tx, "INSERT INTO items (id, body) VALUES (?, ?)", 1, []byte("payload"))
	if !IsNativeCallFailure(err) {
		t.Fatalf("Expected NativeCallFailure, got %v", err)
	}
	var nerr *native.Error
	if !errors.As(err, &nerr) || nerr.Code != native.CodeIOError {
		t.Errorf("Expected the native diagnostic to be wrapped, got %v", err)
	}
	if cancels.Load() != 1 {
		t.Errorf("Expected the failed blob to be cancelled once, got %d", cancels.Load())
	}
}
