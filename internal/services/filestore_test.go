package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

func TestFileStores(t *testing.T) {
	local, err := NewLocalFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFileStore() error: %v", err)
	}

	stores := []struct {
		name     string
		store    signing.FileStore
		wantType signing.DocumentDataType
	}{
		{"bytes64", NewBytes64Store(), signing.DocumentDataTypeBytes64},
		{"local", local, signing.DocumentDataTypeLocalFile},
	}

	ctx := context.Background()
	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			original := []byte("%PDF-1.7 original")
			kind, ref, err := tt.store.PutFile(ctx, original)
			if err != nil {
				t.Fatalf("PutFile() error: %v", err)
			}
			if kind != tt.wantType {
				t.Errorf("PutFile() type = %s, want %s", kind, tt.wantType)
			}

			updated := []byte("%PDF-1.7 updated")
			newRef, err := tt.store.UpdateFile(ctx, signing.UpdateFileRequest{Type: kind, OldData: ref, NewData: updated})
			if err != nil {
				t.Fatalf("UpdateFile() error: %v", err)
			}
			if newRef == ref {
				t.Error("UpdateFile() returned the old reference")
			}

			got, err := tt.store.GetFile(ctx, kind, newRef)
			if err != nil {
				t.Fatalf("GetFile() error: %v", err)
			}
			if string(got) != string(updated) {
				t.Errorf("GetFile() = %q, want %q", got, updated)
			}

			// the old reference must remain readable
			got, err = tt.store.GetFile(ctx, kind, ref)
			if err != nil {
				t.Fatalf("GetFile(old) error: %v", err)
			}
			if string(got) != string(original) {
				t.Errorf("GetFile(old) = %q, want %q", got, original)
			}
		})
	}
}

func TestFileStoreRejectsOtherTypes(t *testing.T) {
	ctx := context.Background()
	_, err := NewBytes64Store().GetFile(ctx, signing.DocumentDataTypeLocalFile, "abc.pdf")
	if !errors.Is(err, ErrWrongStoreType) {
		t.Errorf("expected ErrWrongStoreType, got %v", err)
	}
}

func TestLocalFileStoreIsContentAddressed(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalFileStore(dir)
	if err != nil {
		t.Fatalf("NewLocalFileStore() error: %v", err)
	}
	ctx := context.Background()

	_, first, err := store.PutFile(ctx, []byte("same"))
	if err != nil {
		t.Fatalf("PutFile() error: %v", err)
	}
	_, second, err := store.PutFile(ctx, []byte("same"))
	if err != nil {
		t.Fatalf("PutFile() error: %v", err)
	}
	if first != second {
		t.Errorf("identical content stored under %s and %s", first, second)
	}

	// path traversal is rejected
	if _, err := store.GetFile(ctx, signing.DocumentDataTypeLocalFile, "../"+first); err == nil {
		t.Error("expected an error for a reference outside the store")
	}

	// a tampered file is detected
	if err := os.WriteFile(filepath.Join(dir, first), []byte("tampered"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetFile(ctx, signing.DocumentDataTypeLocalFile, first); err == nil {
		t.Error("expected a checksum error for a modified file")
	}
}
