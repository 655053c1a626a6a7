package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memoryLog struct {
	entries   map[uuid.UUID][]Entry
	appendErr error
}

func newMemoryLog() *memoryLog {
	return &memoryLog{entries: map[uuid.UUID][]Entry{}}
}

func (m *memoryLog) LastAuditLog(_ context.Context, envelopeID uuid.UUID) (Entry, bool, error) {
	list := m.entries[envelopeID]
	if len(list) == 0 {
		return Entry{}, false, nil
	}
	return list[len(list)-1], true, nil
}

func (m *memoryLog) AppendAuditLog(_ context.Context, e Entry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries[e.EnvelopeID] = append(m.entries[e.EnvelopeID], e)
	return nil
}

func recordAll(t *testing.T, log *memoryLog, envelopeID uuid.UUID, types ...EventType) []Entry {
	t.Helper()
	ctx := context.Background()
	recipientID := uuid.New()
	base := time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC)
	for i, et := range types {
		_, err := Record(ctx, log, Entry{
			EnvelopeID:  envelopeID,
			Type:        et,
			Actor:       Actor{Type: ActorRecipient, ID: recipientID.String(), Email: "a@example.com"},
			RecipientID: &recipientID,
			Data:        map[string]any{"n": i},
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Record() returned error: %v", err)
		}
	}
	return log.entries[envelopeID]
}

func TestRecordAssignsSequenceAndChain(t *testing.T) {
	log := newMemoryLog()
	envelopeID := uuid.New()

	entries := recordAll(t, log, envelopeID, EventDocumentCreated, EventDocumentSent, EventDocumentOpened)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	for i, e := range entries {
		if e.Sequence != int64(i+1) {
			t.Errorf("entry %d: sequence = %d, want %d", i, e.Sequence, i+1)
		}
		if e.ID == uuid.Nil {
			t.Errorf("entry %d: id not assigned", i)
		}
		if e.CreatedAt.Nanosecond()%1000 != 0 {
			t.Errorf("entry %d: created at not truncated to microseconds", i)
		}
	}
	if entries[0].PreviousChecksum != "" {
		t.Errorf("first entry should have empty previous checksum, got %q", entries[0].PreviousChecksum)
	}
	if entries[1].PreviousChecksum != entries[0].Checksum {
		t.Error("second entry does not link to the first")
	}

	// a different envelope has its own sequence
	other := recordAll(t, log, uuid.New(), EventDocumentCreated)
	if other[0].Sequence != 1 {
		t.Errorf("expected independent sequence, got %d", other[0].Sequence)
	}

	if err := VerifyChain(entries); err != nil {
		t.Errorf("VerifyChain() returned error for intact chain: %v", err)
	}
}

func TestRecordValidation(t *testing.T) {
	log := newMemoryLog()
	ctx := context.Background()

	if _, err := Record(ctx, log, Entry{Type: EventDocumentCreated}); err == nil {
		t.Error("expected error for missing envelope id")
	}
	if _, err := Record(ctx, log, Entry{EnvelopeID: uuid.New(), Type: "SOMETHING"}); err == nil {
		t.Error("expected error for unknown event type")
	}

	log.appendErr = errors.New("disk full")
	if _, err := Record(ctx, log, Entry{EnvelopeID: uuid.New(), Type: EventDocumentCreated}); err == nil {
		t.Error("expected append error to be returned")
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(entries []Entry) []Entry
	}{
		{
			name: "modified data",
			mutate: func(entries []Entry) []Entry {
				entries[1].Data = map[string]any{"n": 99}
				return entries
			},
		},
		{
			name: "modified actor",
			mutate: func(entries []Entry) []Entry {
				entries[0].Actor.Email = "mallory@example.com"
				return entries
			},
		},
		{
			name: "removed entry",
			mutate: func(entries []Entry) []Entry {
				return append(entries[:1], entries[2:]...)
			},
		},
		{
			name: "reordered entries",
			mutate: func(entries []Entry) []Entry {
				entries[1], entries[2] = entries[2], entries[1]
				return entries
			},
		},
		{
			name: "changed timestamp",
			mutate: func(entries []Entry) []Entry {
				entries[2].CreatedAt = entries[2].CreatedAt.Add(time.Second)
				return entries
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := newMemoryLog()
			envelopeID := uuid.New()
			entries := recordAll(t, log, envelopeID, EventDocumentCreated, EventDocumentSent, EventDocumentCompleted)

			copied := make([]Entry, len(entries))
			copy(copied, entries)

			err := VerifyChain(tt.mutate(copied))
			if !errors.Is(err, ErrChainBroken) {
				t.Errorf("expected ErrChainBroken, got %v", err)
			}
		})
	}
}

// entries read back from storage (jsonb data, local time zone) must still verify
func TestVerifyChainAfterRoundTrip(t *testing.T) {
	log := newMemoryLog()
	entries := recordAll(t, log, uuid.New(), EventDocumentCreated, EventDocumentFieldInserted)

	raw, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded []Entry
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	loc := time.FixedZone("UTC+2", 2*60*60)
	for i := range decoded {
		decoded[i].CreatedAt = decoded[i].CreatedAt.In(loc)
	}

	if err := VerifyChain(decoded); err != nil {
		t.Errorf("VerifyChain() after round trip returned error: %v", err)
	}
}

func TestCount(t *testing.T) {
	log := newMemoryLog()
	entries := recordAll(t, log, uuid.New(), EventDocumentFieldInserted, EventDocumentFieldInserted, EventDocumentCompleted)

	if got := Count(entries, EventDocumentFieldInserted, nil); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	other := uuid.New()
	if got := Count(entries, EventDocumentFieldInserted, &other); got != 0 {
		t.Errorf("Count() for other recipient = %d, want 0", got)
	}
	if got := Count(entries, EventDocumentCompleted, entries[0].RecipientID); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}
