package fbdriver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tomyedwab/fbdriver/native/loopback"
)

func TestNewClient(t *testing.T) {
	ctx := context.Background()
	provider := loopback.NewProvider(loopback.Config{})

	if _, err := NewClient(nil, Config{}); !IsInvalidState(err) {
		t.Errorf("Expected InvalidState for a nil provider, got %v", err)
	}

	client, err := NewClient(provider, Config{})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if _, err := NewClient(provider, Config{}); !IsClientExists(err) {
		t.Errorf("Expected ClientExists, got %v", err)
	}

	if err := client.Dispose(ctx); err != nil {
		t.Fatalf("Failed to dispose client: %v", err)
	}
	if err := client.Dispose(ctx); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed on second dispose, got %v", err)
	}

	again, err := NewClient(provider, Config{})
	if err != nil {
		t.Fatalf("Expected a new client after dispose, got %v", err)
	}
	again.Dispose(ctx)
}

func TestClientDispose(t *testing.T) {
	ctx := context.Background()
	var failDetach bool
	provider := loopback.NewProvider(loopback.Config{
		Fault: func(op string) error {
			if op == loopback.OpDetach && failDetach {
				return errors.New("detach failed")
			}
			return nil
		},
	})
	client, err := NewClient(provider, Config{})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	dir := t.TempDir()
	var attachments []*Attachment
	for _, name := range []string{"a.db", "b.db", "c.db"} {
		att, err := client.CreateDatabase(ctx, filepath.Join(dir, name), nil)
		if err != nil {
			t.Fatalf("Failed to create database: %v", err)
		}
		if _, err := att.StartTransaction(ctx, nil); err != nil {
			t.Fatalf("Failed to start transaction: %v", err)
		}
		attachments = append(attachments, att)
	}
	if client.OpenAttachments() != 3 {
		t.Errorf("Expected 3 open attachments, got %d", client.OpenAttachments())
	}

	// A failing detach is logged; the provider shutdown still releases the
	// native sessions.
	failDetach = true
	if err := client.Dispose(ctx); err != nil {
		t.Fatalf("Failed to dispose client: %v", err)
	}
	if client.OpenAttachments() != 0 {
		t.Errorf("Expected no open attachments, got %d", client.OpenAttachments())
	}
	if provider.OpenAttachments() != 0 {
		t.Errorf("Expected the provider to release every session, %d open", provider.OpenAttachments())
	}
	for _, att := range attachments {
		if att.OpenTransactions() != 0 {
			t.Errorf("Expected transactions to be rolled back, got %d", att.OpenTransactions())
		}
	}

	if _, err := client.Connect(ctx, filepath.Join(dir, "a.db"), nil); !IsResourceAlreadyDisposed(err) {
		t.Errorf("Expected ResourceAlreadyDisposed, got %v", err)
	}
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("boom")
	err := NewErrorWithCause(ErrorTypeNativeCallFailure, "call failed", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected the cause to be reachable with errors.Is")
	}
	if !IsNativeCallFailure(err) || IsValueTooLong(err) {
		t.Error("Unexpected predicate results")
	}
	if TypeOf(errors.New("plain")) != ErrorTypeUnknown {
		t.Error("Expected ErrorTypeUnknown for a foreign error")
	}
	if ErrorTypeValueTooLong.String() != "ValueTooLong" {
		t.Errorf("Unexpected type name %q", ErrorTypeValueTooLong.String())
	}
	if err.Error() != "fbdriver: call failed: boom" {
		t.Errorf("Unexpected message %q", err.Error())
	}

	predicates := map[ErrorType]func(error) bool{
		ErrorTypeResourceAlreadyDisposed: IsResourceAlreadyDisposed,
		ErrorTypeParameterCountMismatch:  IsParameterCountMismatch,
		ErrorTypeParameterValueMissing:   IsParameterValueMissing,
		ErrorTypeValueTooLong:            IsValueTooLong,
		ErrorTypeUnsupportedType:         IsUnsupportedType,
		ErrorTypeCrossSessionBlob:        IsCrossSessionBlob,
		ErrorTypeNativeCallFailure:       IsNativeCallFailure,
		ErrorTypeInvalidState:            IsInvalidState,
		ErrorTypeClientExists:            IsClientExists,
	}
	for errorType, is := range predicates {
		if !is(NewError(errorType, "test")) {
			t.Errorf("Predicate for %s did not match its own type", errorType)
		}
		if is(errors.New("plain")) {
			t.Errorf("Predicate for %s matched a foreign error", errorType)
		}
	}
}
