package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

func seedEnvelope(t *testing.T, m *Memory) (signing.Envelope, signing.DocumentData) {
	t.Helper()
	now := time.Now().UTC()
	owner := signing.User{ID: uuid.New(), Email: "owner@example.com", CreatedAt: now}
	env := signing.Envelope{ID: uuid.New(), Title: "Lease", Status: signing.EnvelopeStatusDraft, OwnerUserID: owner.ID, CreatedAt: now}
	doc := signing.DocumentData{ID: uuid.New(), Type: signing.DocumentDataTypeBytes64, InitialData: "a", Data: "a", Version: 1}

	err := m.WithinTx(context.Background(), func(ctx context.Context, tx signing.Tx) error {
		if err := tx.CreateUser(ctx, owner); err != nil {
			return err
		}
		if err := tx.CreateEnvelope(ctx, env); err != nil {
			return err
		}
		return tx.CreateDocumentData(ctx, doc)
	})
	if err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	return env, doc
}

func TestMemoryRollsBackOnError(t *testing.T) {
	m := NewMemory()
	env, doc := seedEnvelope(t, m)
	ctx := context.Background()

	errBoom := errors.New("boom")
	err := m.WithinTx(ctx, func(ctx context.Context, tx signing.Tx) error {
		if _, err := tx.UpdateDocumentData(ctx, doc.ID, "b", doc.Version); err != nil {
			return err
		}
		if _, err := audit.Record(ctx, tx, audit.Entry{EnvelopeID: env.ID, Type: audit.EventDocumentSent, Actor: audit.SystemActor()}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}

	_ = m.WithinTx(ctx, func(ctx context.Context, tx signing.Tx) error {
		got, err := tx.GetDocumentData(ctx, doc.ID)
		if err != nil {
			t.Fatalf("GetDocumentData() error: %v", err)
		}
		if got.Data != "a" || got.Version != 1 {
			t.Errorf("document data was not rolled back: %+v", got)
		}
		entries, _ := tx.ListAuditLogs(ctx, env.ID)
		if len(entries) != 0 {
			t.Errorf("expected no audit entries after rollback, got %d", len(entries))
		}
		return nil
	})
}

func TestMemoryUpdateDocumentDataVersionCheck(t *testing.T) {
	m := NewMemory()
	_, doc := seedEnvelope(t, m)

	err := m.WithinTx(context.Background(), func(ctx context.Context, tx signing.Tx) error {
		updated, err := tx.UpdateDocumentData(ctx, doc.ID, "b", 1)
		if err != nil {
			return err
		}
		if updated.Version != 2 {
			t.Errorf("version = %d, want 2", updated.Version)
		}
		if updated.InitialData != "a" {
			t.Errorf("initial data changed to %q", updated.InitialData)
		}

		_, err = tx.UpdateDocumentData(ctx, doc.ID, "c", 1)
		if !errors.Is(err, signing.ErrVersionConflict) {
			t.Errorf("expected ErrVersionConflict, got %v", err)
		}

		_, err = tx.UpdateDocumentData(ctx, uuid.New(), "c", 1)
		if !errors.Is(err, signing.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMemoryUniqueConstraints(t *testing.T) {
	m := NewMemory()
	env, _ := seedEnvelope(t, m)

	tests := []struct {
		name string
		fn   func(ctx context.Context, tx signing.Tx) error
	}{
		{
			name: "user email",
			fn: func(ctx context.Context, tx signing.Tx) error {
				return tx.CreateUser(ctx, signing.User{ID: uuid.New(), Email: "owner@example.com"})
			},
		},
		{
			name: "recipient email per envelope",
			fn: func(ctx context.Context, tx signing.Tx) error {
				r := signing.Recipient{ID: uuid.New(), EnvelopeID: env.ID, Email: "a@example.com", Token: "t1"}
				if err := tx.CreateRecipient(ctx, r); err != nil {
					return err
				}
				r.ID, r.Token = uuid.New(), "t2"
				return tx.CreateRecipient(ctx, r)
			},
		},
		{
			name: "audit sequence",
			fn: func(ctx context.Context, tx signing.Tx) error {
				e := audit.Entry{ID: uuid.New(), EnvelopeID: env.ID, Sequence: 1, Type: audit.EventDocumentSent}
				if err := tx.AppendAuditLog(ctx, e); err != nil {
					return err
				}
				e.ID = uuid.New()
				return tx.AppendAuditLog(ctx, e)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.WithinTx(context.Background(), tt.fn)
			if !errors.Is(err, signing.ErrDuplicateRecord) {
				t.Errorf("expected ErrDuplicateRecord, got %v", err)
			}
		})
	}
}

func TestMemoryAuditDataRoundTrip(t *testing.T) {
	m := NewMemory()
	env, _ := seedEnvelope(t, m)
	ctx := context.Background()

	err := m.WithinTx(ctx, func(ctx context.Context, tx signing.Tx) error {
		_, err := audit.Record(ctx, tx, audit.Entry{
			EnvelopeID: env.ID,
			Type:       audit.EventDocumentCreated,
			Actor:      audit.SystemActor(),
			Data:       map[string]any{"documents": 2},
		})
		return err
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	_ = m.WithinTx(ctx, func(ctx context.Context, tx signing.Tx) error {
		entries, err := tx.ListAuditLogs(ctx, env.ID)
		if err != nil {
			t.Fatalf("ListAuditLogs() error: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(entries))
		}
		// numbers come back as float64, as they do from jsonb
		if _, ok := entries[0].Data["documents"].(float64); !ok {
			t.Errorf("documents = %T, want float64", entries[0].Data["documents"])
		}
		if err := audit.VerifyChain(entries); err != nil {
			t.Errorf("VerifyChain() error: %v", err)
		}
		return nil
	})
}

func TestMemoryCancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := m.WithinTx(ctx, func(ctx context.Context, tx signing.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("transaction function ran with a cancelled context")
	}
}
