package signing_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
	"github.com/information-sharing-networks/esign-demo/internal/pdfstamp/pdftest"
	"github.com/information-sharing-networks/esign-demo/internal/services"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
	"github.com/information-sharing-networks/esign-demo/internal/store"
)

var signedAt = time.Date(2024, 5, 17, 15, 4, 0, 0, time.UTC)

type recordingMailer struct {
	mu    sync.Mutex
	mails []signing.Mail
}

func (m *recordingMailer) SendMail(_ context.Context, mail signing.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mails = append(m.mails, mail)
	return nil
}

// sentTo returns the sorted recipients of every mail sent so far.
func (m *recordingMailer) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var to []string
	for _, mail := range m.mails {
		to = append(to, mail.To...)
	}
	slices.Sort(to)
	return to
}

func (m *recordingMailer) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mails = nil
}

type fixture struct {
	svc    *signing.Service
	mailer *recordingMailer
	owner  signing.User
}

func newService(st signing.Store, mailer signing.Mailer, cfg signing.Config) *signing.Service {
	cfg.DefaultDateFormat = "yyyy-MM-dd"
	cfg.PublicBaseURL = "https://esign.example.com"
	return signing.NewService(st, services.NewBytes64Store(), mailer, cfg,
		signing.WithClock(func() time.Time { return signedAt }))
}

func newFixture(t *testing.T, cfg signing.Config) *fixture {
	t.Helper()
	f := &fixture{mailer: &recordingMailer{}}
	f.svc = newService(store.NewMemory(), f.mailer, cfg)

	owner, err := f.svc.CreateUser(context.Background(), signing.CreateUserRequest{Email: "owner@example.com", Name: "Owner"})
	if err != nil {
		t.Fatalf("failed to create owner: %v", err)
	}
	f.owner = owner
	return f
}

// draft creates a draft envelope holding one two page document.
func (f *fixture) draft(t *testing.T, order signing.SigningOrder) (signing.Envelope, signing.EnvelopeItem) {
	t.Helper()
	details, err := f.svc.CreateEnvelope(context.Background(), signing.CreateEnvelopeRequest{
		OwnerUserID:  f.owner.ID,
		Title:        "Service agreement",
		SigningOrder: order,
		Documents:    []signing.DocumentUpload{{Title: "agreement.pdf", Data: pdftest.Minimal(2)}},
		Actor:        signing.UserActor(f.owner),
	})
	if err != nil {
		t.Fatalf("failed to create envelope: %v", err)
	}
	return details.Envelope, details.Items[0]
}

func (f *fixture) recipient(t *testing.T, env signing.Envelope, email string, role signing.Role, order *int32) signing.Recipient {
	t.Helper()
	r, err := f.svc.AddRecipient(context.Background(), signing.AddRecipientRequest{
		EnvelopeID:   env.ID,
		Email:        email,
		Name:         "Recipient " + email,
		Role:         role,
		SigningOrder: order,
	})
	if err != nil {
		t.Fatalf("failed to add recipient %s: %v", email, err)
	}
	return r
}

// field places a field on the first page; y staggers fields so they do not overlap.
func (f *fixture) field(t *testing.T, item signing.EnvelopeItem, r signing.Recipient, fieldType signing.FieldType, y float64, meta signing.FieldMeta) signing.Field {
	t.Helper()
	field, err := f.svc.AddField(context.Background(), signing.AddFieldRequest{
		EnvelopeID:     item.EnvelopeID,
		EnvelopeItemID: item.ID,
		RecipientID:    r.ID,
		Type:           fieldType,
		Page:           0,
		PositionX:      0.1,
		PositionY:      y,
		Width:          0.4,
		Height:         0.05,
		Meta:           meta,
	})
	if err != nil {
		t.Fatalf("failed to add %s field: %v", fieldType, err)
	}
	return field
}

func (f *fixture) send(t *testing.T, env signing.Envelope) {
	t.Helper()
	if _, err := f.svc.SendEnvelope(context.Background(), signing.SendEnvelopeRequest{EnvelopeID: env.ID, Actor: signing.UserActor(f.owner)}); err != nil {
		t.Fatalf("failed to send envelope: %v", err)
	}
}

func (f *fixture) document(t *testing.T, item signing.EnvelopeItem) []byte {
	t.Helper()
	pdf, err := f.svc.GetEnvelopeDocument(context.Background(), item.EnvelopeID, item.ID)
	if err != nil {
		t.Fatalf("failed to read document: %v", err)
	}
	return pdf
}

func (f *fixture) details(t *testing.T, env signing.Envelope) signing.EnvelopeDetails {
	t.Helper()
	d, err := f.svc.GetEnvelopeDetails(context.Background(), env.ID)
	if err != nil {
		t.Fatalf("failed to load envelope: %v", err)
	}
	return d
}

func (f *fixture) auditLog(t *testing.T, env signing.Envelope) []audit.Entry {
	t.Helper()
	entries, err := f.svc.AuditLog(context.Background(), env.ID)
	if err != nil {
		t.Fatalf("failed to load audit log: %v", err)
	}
	return entries
}

func fieldByID(d signing.EnvelopeDetails, id uuid.UUID) signing.Field {
	for _, f := range d.Fields {
		if f.ID == id {
			return f
		}
	}
	return signing.Field{}
}

func recipientByID(d signing.EnvelopeDetails, id uuid.UUID) signing.Recipient {
	for _, r := range d.Recipients {
		if r.ID == id {
			return r
		}
	}
	return signing.Recipient{}
}

func typed(id uuid.UUID, text string) signing.FieldInput {
	return signing.FieldInput{FieldID: id, Value: signing.TextValue{Text: text}}
}

func expectCode(t *testing.T, err error, want signing.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := signing.CodeOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}

func order(n int32) *int32 { return &n }

func TestSignAllFieldsTwoSigners(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)

	alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
	bob := f.recipient(t, env, "bob@example.com", signing.RoleSigner, nil)
	cc := f.recipient(t, env, "carol@example.com", signing.RoleCC, nil)
	aliceSig := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	aliceDate := f.field(t, item, alice, signing.FieldTypeDate, 0.2, signing.FieldMeta{})
	bobSig := f.field(t, item, bob, signing.FieldTypeSignature, 0.3, signing.FieldMeta{})
	f.send(t, env)

	if got := f.mailer.sentTo(); !slices.Equal(got, []string{"alice@example.com", "bob@example.com"}) {
		t.Fatalf("expected invitations for both signers, got %v", got)
	}
	f.mailer.reset()

	meta := signing.RequestMetadata{IPAddress: "192.0.2.10", UserAgent: "test-agent"}
	res, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: alice.Token, Fields: []signing.FieldInput{typed(aliceSig.ID, "Alice")}, Metadata: meta})
	if err != nil {
		t.Fatalf("alice failed to sign: %v", err)
	}
	if res.EnvelopeStatus != signing.EnvelopeStatusPending || res.RecipientStatus != signing.SigningStatusSigned {
		t.Fatalf("unexpected result after first signer: %+v", res)
	}
	if res.DocumentToken != alice.Token {
		t.Errorf("expected the recipient token as document token")
	}

	res, err = f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: bob.Token, Fields: []signing.FieldInput{typed(bobSig.ID, "Bob")}})
	if err != nil {
		t.Fatalf("bob failed to sign: %v", err)
	}
	if res.EnvelopeStatus != signing.EnvelopeStatusCompleted {
		t.Fatalf("expected envelope to complete, got %s", res.EnvelopeStatus)
	}

	d := f.details(t, env)
	if d.Envelope.CompletedAt == nil || !d.Envelope.CompletedAt.Equal(signedAt) {
		t.Errorf("expected completedAt %v, got %v", signedAt, d.Envelope.CompletedAt)
	}
	for _, r := range []signing.Recipient{alice, bob} {
		if got := recipientByID(d, r.ID); !got.Signed() || got.SignedAt == nil {
			t.Errorf("%s should be signed: %+v", r.Email, got)
		}
	}
	if recipientByID(d, cc.ID).Signed() {
		t.Errorf("cc recipient should not sign")
	}
	if date := fieldByID(d, aliceDate.ID); !date.Inserted || date.CustomText != "2024-05-17" {
		t.Errorf("expected date field filled with the signing date, got inserted=%v text=%q", date.Inserted, date.CustomText)
	}

	entries := f.auditLog(t, env)
	if err := audit.VerifyChain(entries); err != nil {
		t.Fatalf("audit chain does not verify: %v", err)
	}
	counts := []struct {
		event     audit.EventType
		recipient *uuid.UUID
		want      int
	}{
		{audit.EventDocumentCreated, nil, 1},
		{audit.EventDocumentSent, nil, 2},
		{audit.EventDocumentFieldInserted, &alice.ID, 2},
		{audit.EventDocumentFieldInserted, &bob.ID, 1},
		{audit.EventDocumentRecipientCompleted, &alice.ID, 1},
		{audit.EventDocumentRecipientCompleted, &bob.ID, 1},
		{audit.EventDocumentCompleted, nil, 1},
	}
	for _, c := range counts {
		if got := audit.Count(entries, c.event, c.recipient); got != c.want {
			t.Errorf("expected %d %s events, got %d", c.want, c.event, got)
		}
	}
	for _, e := range entries {
		if e.Type == audit.EventDocumentRecipientCompleted && *e.RecipientID == alice.ID && e.IPAddress != meta.IPAddress {
			t.Errorf("request metadata not recorded: %+v", e)
		}
	}

	// completion goes to the owner, both signers and the cc recipient
	want := []string{"alice@example.com", "bob@example.com", "carol@example.com", "owner@example.com"}
	if got := f.mailer.sentTo(); !slices.Equal(got, want) {
		t.Errorf("expected completion mail to %v, got %v", want, got)
	}
}

func TestSignAllFieldsResubmission(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)
	alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
	bob := f.recipient(t, env, "bob@example.com", signing.RoleSigner, nil)
	sig := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	f.field(t, item, bob, signing.FieldTypeSignature, 0.3, signing.FieldMeta{})
	f.send(t, env)

	req := signing.SignAllFieldsRequest{Token: alice.Token, Fields: []signing.FieldInput{typed(sig.ID, "Alice")}}
	if _, err := f.svc.SignAllFields(ctx, req); err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	before := f.document(t, item)
	events := len(f.auditLog(t, env))

	_, err := f.svc.SignAllFields(ctx, req)
	expectCode(t, err, signing.ErrCodeAlreadySigned)

	err = f.svc.SignField(ctx, signing.SignFieldRequest{Token: alice.Token, Input: typed(sig.ID, "Alice again")})
	expectCode(t, err, signing.ErrCodeAlreadySigned)

	if !bytes.Equal(before, f.document(t, item)) {
		t.Error("document changed after a rejected re-submission")
	}
	if got := len(f.auditLog(t, env)); got != events {
		t.Errorf("expected %d audit entries, got %d", events, got)
	}
}

func TestSignAllFieldsValidation(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)
	alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
	sig := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	company := f.field(t, item, alice, signing.FieldTypeText, 0.2, signing.FieldMeta{Required: true})
	choices := f.field(t, item, alice, signing.FieldTypeCheckbox, 0.3, signing.FieldMeta{
		Values:           []signing.FieldOption{{Value: "a"}, {Value: "b"}, {Value: "c"}},
		ValidationRule:   signing.ValidationRuleAtLeast,
		ValidationLength: 2,
	})
	f.send(t, env)
	original := f.document(t, item)
	events := len(f.auditLog(t, env))

	tests := []struct {
		name       string
		fields     []signing.FieldInput
		wantCode   signing.ErrorCode
		wantFields []uuid.UUID
	}{
		{
			name:       "required text missing",
			fields:     []signing.FieldInput{typed(sig.ID, "Alice"), {FieldID: choices.ID, Value: signing.SelectionValue{Selected: []string{"a", "b"}}}},
			wantCode:   signing.ErrCodeValidation,
			wantFields: []uuid.UUID{company.ID},
		},
		{
			name: "checkbox below minimum",
			fields: []signing.FieldInput{
				typed(sig.ID, "Alice"),
				typed(company.ID, "Acme"),
				{FieldID: choices.ID, Value: signing.SelectionValue{Selected: []string{"a"}}},
			},
			wantCode:   signing.ErrCodeValidation,
			wantFields: []uuid.UUID{choices.ID},
		},
		{
			name: "every invalid field reported",
			fields: []signing.FieldInput{
				typed(sig.ID, " "),
				typed(company.ID, "Acme"),
				{FieldID: choices.ID, Value: signing.SelectionValue{Selected: []string{"z"}}},
			},
			wantCode:   signing.ErrCodeValidation,
			wantFields: []uuid.UUID{sig.ID, choices.ID},
		},
		{
			name:     "unknown field",
			fields:   []signing.FieldInput{typed(uuid.New(), "x")},
			wantCode: signing.ErrCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: alice.Token, Fields: tt.fields})
			expectCode(t, err, tt.wantCode)

			if tt.wantFields != nil {
				var got []uuid.UUID
				for _, fe := range err.(*signing.SigningError).FieldErrors() {
					got = append(got, fe.FieldID)
				}
				if !slices.Equal(got, tt.wantFields) {
					t.Errorf("expected field errors for %v, got %v", tt.wantFields, got)
				}
			}

			// nothing from a failed submission is persisted
			d := f.details(t, env)
			if recipientByID(d, alice.ID).Signed() {
				t.Error("recipient marked signed after a failed submission")
			}
			if s := fieldByID(d, sig.ID); s.Inserted || s.Signature != nil {
				t.Error("signature stored after a failed submission")
			}
			if !bytes.Equal(original, f.document(t, item)) {
				t.Error("document changed after a failed submission")
			}
			if got := len(f.auditLog(t, env)); got != events {
				t.Errorf("expected %d audit entries, got %d", events, got)
			}
		})
	}

	_, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: alice.Token, Fields: []signing.FieldInput{
		typed(sig.ID, "Alice"),
		typed(company.ID, "Acme"),
		{FieldID: choices.ID, Value: signing.SelectionValue{Selected: []string{"c", "a"}}},
	}})
	if err != nil {
		t.Fatalf("valid submission failed: %v", err)
	}
	if got := fieldByID(f.details(t, env), choices.ID).CustomText; got != `["a","c"]` {
		t.Errorf("unexpected checkbox value %s", got)
	}
}

func TestComputedFields(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)
	alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
	sig := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	date := f.field(t, item, alice, signing.FieldTypeDate, 0.2, signing.FieldMeta{})
	name := f.field(t, item, alice, signing.FieldTypeName, 0.3, signing.FieldMeta{})
	email := f.field(t, item, alice, signing.FieldTypeEmail, 0.4, signing.FieldMeta{})
	f.send(t, env)

	err := f.svc.SignField(ctx, signing.SignFieldRequest{Token: alice.Token, Input: typed(date.ID, "1999-01-01")})
	expectCode(t, err, signing.ErrCodeValidation)

	if _, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: alice.Token, Fields: []signing.FieldInput{typed(sig.ID, "Alice")}}); err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	d := f.details(t, env)
	want := map[uuid.UUID]string{
		date.ID:  "2024-05-17",
		name.ID:  "Recipient alice@example.com",
		email.ID: "alice@example.com",
	}
	for id, text := range want {
		got := fieldByID(d, id)
		if !got.Inserted || got.CustomText != text {
			t.Errorf("field %s: expected inserted %q, got inserted=%v %q", got.Type, text, got.Inserted, got.CustomText)
		}
	}
}

func TestSignFieldBuildsOnPreviousBytes(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)
	alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
	sig := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	note := f.field(t, item, alice, signing.FieldTypeText, 0.2, signing.FieldMeta{})
	f.send(t, env)

	original := f.document(t, item)
	if err := f.svc.SignField(ctx, signing.SignFieldRequest{Token: alice.Token, Input: typed(note.ID, "first")}); err != nil {
		t.Fatalf("failed to sign text field: %v", err)
	}
	first := f.document(t, item)
	if !bytes.HasPrefix(first, original) || len(first) == len(original) {
		t.Fatal("first insertion did not extend the original document")
	}

	if _, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: alice.Token, Fields: []signing.FieldInput{typed(sig.ID, "Alice")}}); err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	second := f.document(t, item)
	if !bytes.HasPrefix(second, first) || len(second) == len(first) {
		t.Fatal("signature was not inserted on top of the previous insertion")
	}
}

func TestRemoveSignedField(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)
	alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
	sig := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	initials := f.field(t, item, alice, signing.FieldTypeSignature, 0.2, signing.FieldMeta{})
	f.send(t, env)

	if err := f.svc.SignField(ctx, signing.SignFieldRequest{Token: alice.Token, Input: typed(initials.ID, "AL")}); err != nil {
		t.Fatalf("failed to sign initials: %v", err)
	}
	withInitials := f.document(t, item)
	if err := f.svc.SignField(ctx, signing.SignFieldRequest{Token: alice.Token, Input: typed(sig.ID, "Alice")}); err != nil {
		t.Fatalf("failed to sign signature: %v", err)
	}

	if err := f.svc.RemoveSignedField(ctx, signing.RemoveSignedFieldRequest{Token: alice.Token, FieldID: sig.ID}); err != nil {
		t.Fatalf("failed to remove field: %v", err)
	}

	d := f.details(t, env)
	if removed := fieldByID(d, sig.ID); removed.Inserted || removed.Signature != nil {
		t.Errorf("removed field still holds a signature: %+v", removed)
	}
	if kept := fieldByID(d, initials.ID); !kept.Inserted || kept.Signature == nil || *kept.Signature.TypedSignature != "AL" {
		t.Errorf("other signature was affected: %+v", kept)
	}
	// recomputed from the initial bytes with the remaining field only
	if !bytes.Equal(withInitials, f.document(t, item)) {
		t.Error("document was not recomputed from the remaining fields")
	}
	if got := audit.Count(f.auditLog(t, env), audit.EventDocumentFieldUninserted, &alice.ID); got != 1 {
		t.Errorf("expected one uninsert event, got %d", got)
	}

	err := f.svc.RemoveSignedField(ctx, signing.RemoveSignedFieldRequest{Token: alice.Token, FieldID: sig.ID})
	expectCode(t, err, signing.ErrCodeValidation)

	err = f.svc.RemoveSignedField(ctx, signing.RemoveSignedFieldRequest{Token: alice.Token, FieldID: uuid.New()})
	expectCode(t, err, signing.ErrCodeNotFound)

	// the field can be signed again
	if err := f.svc.SignField(ctx, signing.SignFieldRequest{Token: alice.Token, Input: typed(sig.ID, "Alice")}); err != nil {
		t.Fatalf("failed to sign the field again: %v", err)
	}
}

func TestResetRecipient(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)
	alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
	sig := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	date := f.field(t, item, alice, signing.FieldTypeDate, 0.2, signing.FieldMeta{})
	f.send(t, env)
	original := f.document(t, item)

	_, err := f.svc.ResetRecipient(ctx, signing.ResetRecipientRequest{EnvelopeID: env.ID, RecipientID: alice.ID, Actor: signing.UserActor(f.owner)})
	expectCode(t, err, signing.ErrCodeInvalidState)

	if _, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: alice.Token, Fields: []signing.FieldInput{typed(sig.ID, "Alice")}}); err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if got := f.details(t, env).Envelope.Status; got != signing.EnvelopeStatusCompleted {
		t.Fatalf("expected completed envelope, got %s", got)
	}
	f.mailer.reset()

	r, err := f.svc.ResetRecipient(ctx, signing.ResetRecipientRequest{EnvelopeID: env.ID, RecipientID: alice.ID, Actor: signing.UserActor(f.owner)})
	if err != nil {
		t.Fatalf("failed to reset recipient: %v", err)
	}
	if r.Signed() || r.SignedAt != nil {
		t.Errorf("recipient still signed: %+v", r)
	}

	d := f.details(t, env)
	if d.Envelope.Status != signing.EnvelopeStatusPending || d.Envelope.CompletedAt != nil {
		t.Errorf("expected envelope back in PENDING, got %s (completedAt %v)", d.Envelope.Status, d.Envelope.CompletedAt)
	}
	for _, id := range []uuid.UUID{sig.ID, date.ID} {
		if got := fieldByID(d, id); got.Inserted || got.CustomText != "" || got.Signature != nil {
			t.Errorf("field %s not cleared: %+v", got.Type, got)
		}
	}
	if !bytes.Equal(original, f.document(t, item)) {
		t.Error("document not restored to its initial bytes")
	}
	if got := f.mailer.sentTo(); !slices.Equal(got, []string{"alice@example.com"}) {
		t.Errorf("expected a new invitation, got %v", got)
	}

	// signing again completes the envelope a second time
	if _, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: alice.Token, Fields: []signing.FieldInput{typed(sig.ID, "Alice")}}); err != nil {
		t.Fatalf("failed to sign after reset: %v", err)
	}
	entries := f.auditLog(t, env)
	if got := audit.Count(entries, audit.EventDocumentCompleted, nil); got != 2 {
		t.Errorf("expected two completion events, got %d", got)
	}
	if got := audit.Count(entries, audit.EventDocumentRecipientReset, &alice.ID); got != 1 {
		t.Errorf("expected one reset event, got %d", got)
	}
}

func TestSequentialSigning(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderSequential)
	first := f.recipient(t, env, "first@example.com", signing.RoleSigner, order(1))
	second := f.recipient(t, env, "second@example.com", signing.RoleSigner, order(2))
	firstSig := f.field(t, item, first, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	secondSig := f.field(t, item, second, signing.FieldTypeSignature, 0.3, signing.FieldMeta{})
	f.send(t, env)

	if got := f.mailer.sentTo(); !slices.Equal(got, []string{"first@example.com"}) {
		t.Fatalf("expected only the first signer to be invited, got %v", got)
	}
	f.mailer.reset()

	_, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: second.Token, Fields: []signing.FieldInput{typed(secondSig.ID, "Second")}})
	expectCode(t, err, signing.ErrCodeNotRecipientsTurn)

	view, err := f.svc.OpenDocument(ctx, signing.OpenDocumentRequest{Token: second.Token})
	if err != nil {
		t.Fatalf("failed to open document: %v", err)
	}
	if view.CanSign {
		t.Error("second signer should not be able to sign yet")
	}

	if _, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: first.Token, Fields: []signing.FieldInput{typed(firstSig.ID, "First")}}); err != nil {
		t.Fatalf("first signer failed: %v", err)
	}
	if got := f.mailer.sentTo(); !slices.Equal(got, []string{"second@example.com"}) {
		t.Fatalf("expected the second signer to be invited next, got %v", got)
	}

	res, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: second.Token, Fields: []signing.FieldInput{typed(secondSig.ID, "Second")}})
	if err != nil {
		t.Fatalf("second signer failed: %v", err)
	}
	if res.EnvelopeStatus != signing.EnvelopeStatusCompleted {
		t.Errorf("expected completed envelope, got %s", res.EnvelopeStatus)
	}
}

func TestRejectEnvelope(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)
	signer := f.recipient(t, env, "signer@example.com", signing.RoleSigner, nil)
	approver := f.recipient(t, env, "approver@example.com", signing.RoleApprover, nil)
	sig := f.field(t, item, signer, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	f.send(t, env)
	f.mailer.reset()

	_, err := f.svc.RejectEnvelope(ctx, signing.RejectEnvelopeRequest{Token: signer.Token, Reason: "no"})
	expectCode(t, err, signing.ErrCodeInvalidState)

	_, err = f.svc.RejectEnvelope(ctx, signing.RejectEnvelopeRequest{Token: approver.Token, Reason: "  "})
	expectCode(t, err, signing.ErrCodeValidation)

	out, err := f.svc.RejectEnvelope(ctx, signing.RejectEnvelopeRequest{Token: approver.Token, Reason: "wrong price"})
	if err != nil {
		t.Fatalf("failed to reject: %v", err)
	}
	if out.Status != signing.EnvelopeStatusRejected || out.RejectionReason != "wrong price" || out.RejectedAt == nil {
		t.Errorf("unexpected envelope after rejection: %+v", out)
	}
	if got := f.mailer.sentTo(); !slices.Equal(got, []string{"owner@example.com"}) {
		t.Errorf("expected the owner to be told, got %v", got)
	}

	_, err = f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: signer.Token, Fields: []signing.FieldInput{typed(sig.ID, "Signer")}})
	expectCode(t, err, signing.ErrCodeInvalidState)
}

func TestOpenDocument(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)
	alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
	bob := f.recipient(t, env, "bob@example.com", signing.RoleSigner, nil)
	sig := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})

	// draft envelopes are not visible to recipients
	_, err := f.svc.OpenDocument(ctx, signing.OpenDocumentRequest{Token: alice.Token})
	expectCode(t, err, signing.ErrCodeNotFound)

	err = f.svc.SignField(ctx, signing.SignFieldRequest{Token: alice.Token, Input: typed(sig.ID, "Alice")})
	expectCode(t, err, signing.ErrCodeNotFound)

	// bob has no signature field yet
	_, err = f.svc.SendEnvelope(ctx, signing.SendEnvelopeRequest{EnvelopeID: env.ID, Actor: signing.UserActor(f.owner)})
	expectCode(t, err, signing.ErrCodeValidation)

	f.field(t, item, bob, signing.FieldTypeSignature, 0.3, signing.FieldMeta{})
	f.send(t, env)

	for range 2 {
		view, err := f.svc.OpenDocument(ctx, signing.OpenDocumentRequest{Token: alice.Token})
		if err != nil {
			t.Fatalf("failed to open document: %v", err)
		}
		if !view.CanSign || len(view.Fields) != 1 || view.Fields[0].ID != sig.ID {
			t.Errorf("unexpected signing view: %+v", view)
		}
		if view.Recipient.ReadStatus != signing.ReadStatusOpened {
			t.Errorf("expected recipient to be marked opened")
		}
	}
	if got := audit.Count(f.auditLog(t, env), audit.EventDocumentOpened, &alice.ID); got != 1 {
		t.Errorf("expected one open event, got %d", got)
	}

	pdf, err := f.svc.GetSigningDocument(ctx, alice.Token, item.ID)
	if err != nil || !bytes.Equal(pdf, f.document(t, item)) {
		t.Errorf("signing document does not match the envelope document: %v", err)
	}

	_, err = f.svc.OpenDocument(ctx, signing.OpenDocumentRequest{Token: "unknown"})
	expectCode(t, err, signing.ErrCodeNotFound)

	_, err = f.svc.SendEnvelope(ctx, signing.SendEnvelopeRequest{EnvelopeID: env.ID, Actor: signing.UserActor(f.owner)})
	expectCode(t, err, signing.ErrCodeInvalidState)

	if err := f.svc.DeleteEnvelope(ctx, signing.DeleteEnvelopeRequest{EnvelopeID: env.ID, Actor: signing.UserActor(f.owner)}); err != nil {
		t.Fatalf("failed to delete envelope: %v", err)
	}
	_, err = f.svc.OpenDocument(ctx, signing.OpenDocumentRequest{Token: alice.Token})
	expectCode(t, err, signing.ErrCodeNotFound)
}

func TestAuthoringValidation(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)
	alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
	cc := f.recipient(t, env, "cc@example.com", signing.RoleCC, nil)

	_, err := f.svc.AddRecipient(ctx, signing.AddRecipientRequest{EnvelopeID: env.ID, Email: "ALICE@example.com"})
	expectCode(t, err, signing.ErrCodeConflict)

	_, err = f.svc.AddRecipient(ctx, signing.AddRecipientRequest{EnvelopeID: env.ID, Email: "not-an-address"})
	expectCode(t, err, signing.ErrCodeValidation)

	_, err = f.svc.CreateUser(ctx, signing.CreateUserRequest{Email: "Owner@Example.com"})
	expectCode(t, err, signing.ErrCodeConflict)

	_, err = f.svc.CreateEnvelope(ctx, signing.CreateEnvelopeRequest{
		OwnerUserID: f.owner.ID,
		Title:       "Broken",
		Documents:   []signing.DocumentUpload{{Data: []byte("%PDF-1.7 nope")}},
	})
	expectCode(t, err, signing.ErrCodeValidation)

	tests := []struct {
		name     string
		req      signing.AddFieldRequest
		wantCode signing.ErrorCode
		property string
	}{
		{
			name:     "page out of range",
			req:      signing.AddFieldRequest{RecipientID: alice.ID, Type: signing.FieldTypeSignature, Page: 2, Width: 0.1, Height: 0.1},
			wantCode: signing.ErrCodeValidation,
			property: "position",
		},
		{
			name:     "outside the page",
			req:      signing.AddFieldRequest{RecipientID: alice.ID, Type: signing.FieldTypeSignature, PositionX: 0.95, Width: 0.1, Height: 0.1},
			wantCode: signing.ErrCodeValidation,
			property: "position",
		},
		{
			name:     "invalid meta",
			req:      signing.AddFieldRequest{RecipientID: alice.ID, Type: signing.FieldTypeRadio, Width: 0.1, Height: 0.1},
			wantCode: signing.ErrCodeValidation,
			property: "fieldMeta",
		},
		{
			name:     "cc recipients have no fields",
			req:      signing.AddFieldRequest{RecipientID: cc.ID, Type: signing.FieldTypeSignature, Width: 0.1, Height: 0.1},
			wantCode: signing.ErrCodeValidation,
		},
		{
			name:     "unknown recipient",
			req:      signing.AddFieldRequest{RecipientID: uuid.New(), Type: signing.FieldTypeSignature, Width: 0.1, Height: 0.1},
			wantCode: signing.ErrCodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.EnvelopeID = env.ID
			tt.req.EnvelopeItemID = item.ID
			_, err := f.svc.AddField(ctx, tt.req)
			expectCode(t, err, tt.wantCode)
			if tt.property != "" {
				fe := err.(*signing.SigningError).FieldErrors()
				if len(fe) != 1 || fe[0].Property != tt.property {
					t.Errorf("expected a %s field error, got %+v", tt.property, fe)
				}
			}
		})
	}

	field := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	if err := f.svc.DeleteField(ctx, signing.DeleteFieldRequest{EnvelopeID: env.ID, FieldID: field.ID}); err != nil {
		t.Fatalf("failed to delete field: %v", err)
	}
	if len(f.details(t, env).Fields) != 0 {
		t.Error("field not deleted")
	}

	f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	f.send(t, env)
	_, err = f.svc.AddRecipient(ctx, signing.AddRecipientRequest{EnvelopeID: env.ID, Email: "late@example.com"})
	expectCode(t, err, signing.ErrCodeInvalidState)
}

func TestSelfServeEnvelope(t *testing.T) {
	disabled := newFixture(t, signing.Config{})
	_, err := disabled.svc.CreateSelfServeEnvelope(context.Background(), signing.SelfServeRequest{})
	expectCode(t, err, signing.ErrCodeInvalidState)

	// the service account is created first so it can own self-serve envelopes
	st := store.NewMemory()
	mailer := &recordingMailer{}
	account, err := newService(st, mailer, signing.Config{}).CreateUser(context.Background(),
		signing.CreateUserRequest{Email: "self-serve@example.com", Name: "Self serve"})
	if err != nil {
		t.Fatalf("failed to create service account: %v", err)
	}
	svc := newService(st, mailer, signing.Config{ServiceAccountUserID: account.ID})

	req := signing.SelfServeRequest{
		Title:    "Consent form",
		Document: signing.DocumentUpload{Data: pdftest.Minimal(1)},
		Recipients: []signing.SelfServeRecipient{{
			Email: "visitor@example.com",
			Name:  "Visitor",
			Fields: []signing.SelfServeField{
				{Type: signing.FieldTypeSignature, PositionX: 0.1, PositionY: 0.8, Width: 0.3, Height: 0.1},
				{Type: signing.FieldTypeDate, PositionX: 0.5, PositionY: 0.8, Width: 0.3, Height: 0.05},
			},
		}},
	}
	res, err := svc.CreateSelfServeEnvelope(context.Background(), req)
	if err != nil {
		t.Fatalf("failed to create self-serve envelope: %v", err)
	}
	if res.Envelope.Status != signing.EnvelopeStatusPending || res.Envelope.OwnerUserID != account.ID {
		t.Errorf("unexpected envelope: %+v", res.Envelope)
	}
	if len(res.Recipients) != 1 || len(res.Fields) != 2 || len(res.Items) != 1 {
		t.Fatalf("unexpected result: %d recipients, %d fields, %d items", len(res.Recipients), len(res.Fields), len(res.Items))
	}
	if got := mailer.sentTo(); !slices.Equal(got, []string{"visitor@example.com"}) {
		t.Errorf("expected the visitor to be invited, got %v", got)
	}

	// a field that does not fit leaves nothing behind
	req.Recipients[0].Fields[0].Page = 3
	_, err = svc.CreateSelfServeEnvelope(context.Background(), req)
	expectCode(t, err, signing.ErrCodeValidation)
}

func TestCertificate(t *testing.T) {
	f := newFixture(t, signing.Config{})
	ctx := context.Background()
	env, item := f.draft(t, signing.SigningOrderParallel)
	alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
	sig := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
	f.send(t, env)
	if _, err := f.svc.SignAllFields(ctx, signing.SignAllFieldsRequest{Token: alice.Token, Fields: []signing.FieldInput{typed(sig.ID, "Alice")}}); err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	cert, err := f.svc.Certificate(ctx, env.ID)
	if err != nil {
		t.Fatalf("failed to build certificate: %v", err)
	}
	sum := sha256.Sum256(f.document(t, item))
	if len(cert.Documents) != 1 || cert.Documents[0].Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("certificate does not carry the document checksum: %+v", cert.Documents)
	}
	if !cert.ChainVerified || cert.Status != string(signing.EnvelopeStatusCompleted) {
		t.Errorf("unexpected certificate: status %s, chain verified %v", cert.Status, cert.ChainVerified)
	}
	if len(cert.Recipients) != 1 || cert.Recipients[0].SignedAt == nil {
		t.Fatalf("recipient missing from certificate: %+v", cert.Recipients)
	}
	if _, ok := cert.Recipients[0].Fields[sig.ID.String()]; !ok {
		t.Errorf("signature field missing from certificate")
	}

	_, err = f.svc.Certificate(ctx, uuid.New())
	expectCode(t, err, signing.ErrCodeNotFound)
}

func TestConcurrentSigners(t *testing.T) {
	f := newFixture(t, signing.Config{})
	env, item := f.draft(t, signing.SigningOrderParallel)

	const signers = 5
	var (
		recipients []signing.Recipient
		fields     []signing.Field
	)
	for i := range signers {
		r := f.recipient(t, env, "signer"+string(rune('a'+i))+"@example.com", signing.RoleSigner, nil)
		recipients = append(recipients, r)
		fields = append(fields, f.field(t, item, r, signing.FieldTypeSignature, 0.1+float64(i)*0.15, signing.FieldMeta{}))
	}
	f.send(t, env)

	var wg sync.WaitGroup
	errs := make(chan error, signers)
	for i := range signers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SignAllFields(context.Background(), signing.SignAllFieldsRequest{
				Token:  recipients[i].Token,
				Fields: []signing.FieldInput{typed(fields[i].ID, recipients[i].Email)},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent signer failed: %v", err)
		}
	}

	d := f.details(t, env)
	if d.Envelope.Status != signing.EnvelopeStatusCompleted {
		t.Errorf("expected completed envelope, got %s", d.Envelope.Status)
	}
	for _, field := range d.Fields {
		if !field.Inserted || field.Signature == nil {
			t.Errorf("field %s lost its signature", field.ID)
		}
	}
	entries := f.auditLog(t, env)
	if err := audit.VerifyChain(entries); err != nil {
		t.Fatalf("audit chain does not verify: %v", err)
	}
	if got := audit.Count(entries, audit.EventDocumentCompleted, nil); got != 1 {
		t.Errorf("expected exactly one completion event, got %d", got)
	}
}

// corruptingFileStore serves unreadable PDF bytes while corrupt is set.
type corruptingFileStore struct {
	*services.Bytes64Store
	corrupt atomic.Bool
}

func (s *corruptingFileStore) GetFile(ctx context.Context, t signing.DocumentDataType, data string) ([]byte, error) {
	pdf, err := s.Bytes64Store.GetFile(ctx, t, data)
	if err != nil || !s.corrupt.Load() {
		return pdf, err
	}
	return pdf[:len(pdf)/3], nil
}

func TestMalformedDocumentLeavesNoPartialState(t *testing.T) {
	tests := []struct {
		name string
		sign func(svc *signing.Service, token string, field uuid.UUID) error
	}{
		{
			name: "sign all fields",
			sign: func(svc *signing.Service, token string, field uuid.UUID) error {
				_, err := svc.SignAllFields(context.Background(), signing.SignAllFieldsRequest{Token: token, Fields: []signing.FieldInput{typed(field, "Alice")}})
				return err
			},
		},
		{
			name: "sign field",
			sign: func(svc *signing.Service, token string, field uuid.UUID) error {
				return svc.SignField(context.Background(), signing.SignFieldRequest{Token: token, Input: typed(field, "Alice")})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			files := &corruptingFileStore{Bytes64Store: services.NewBytes64Store()}
			f := &fixture{mailer: &recordingMailer{}}
			f.svc = signing.NewService(st, files, f.mailer, signing.Config{DefaultDateFormat: "yyyy-MM-dd"},
				signing.WithClock(func() time.Time { return signedAt }))
			owner, err := f.svc.CreateUser(context.Background(), signing.CreateUserRequest{Email: "owner@example.com", Name: "Owner"})
			if err != nil {
				t.Fatalf("failed to create owner: %v", err)
			}
			f.owner = owner

			env, item := f.draft(t, signing.SigningOrderParallel)
			alice := f.recipient(t, env, "alice@example.com", signing.RoleSigner, nil)
			sig := f.field(t, item, alice, signing.FieldTypeSignature, 0.1, signing.FieldMeta{})
			f.send(t, env)

			before := f.document(t, item)
			events := len(f.auditLog(t, env))
			docBefore := documentData(t, st, item.DocumentDataID)

			files.corrupt.Store(true)
			err = tt.sign(f.svc, alice.Token, sig.ID)
			files.corrupt.Store(false)
			expectCode(t, err, signing.ErrCodeMalformedDocument)

			d := f.details(t, env)
			if r := recipientByID(d, alice.ID); r.Signed() || r.SigningStatus != signing.SigningStatusNotSigned || r.SignedAt != nil {
				t.Errorf("recipient marked signed after a failed render: %+v", r)
			}
			if d.Envelope.Status != signing.EnvelopeStatusPending {
				t.Errorf("expected envelope to stay %s, got %s", signing.EnvelopeStatusPending, d.Envelope.Status)
			}
			if got := fieldByID(d, sig.ID); got.Inserted || got.Signature != nil {
				t.Errorf("field persisted after a failed render: inserted=%v signature=%v", got.Inserted, got.Signature)
			}
			if got := len(f.auditLog(t, env)); got != events {
				t.Errorf("expected %d audit entries, got %d", events, got)
			}
			docAfter := documentData(t, st, item.DocumentDataID)
			if docAfter.Version != docBefore.Version || docAfter.Data != docBefore.Data {
				t.Errorf("document data changed: version %d -> %d", docBefore.Version, docAfter.Version)
			}
			if !bytes.Equal(before, f.document(t, item)) {
				t.Error("document bytes changed after a failed render")
			}

			// the recipient can still sign once the document is readable again
			if err := tt.sign(f.svc, alice.Token, sig.ID); err != nil {
				t.Fatalf("failed to sign after recovery: %v", err)
			}
		})
	}
}

func documentData(t *testing.T, st signing.Store, id uuid.UUID) signing.DocumentData {
	t.Helper()
	var doc signing.DocumentData
	err := st.WithinTx(context.Background(), func(ctx context.Context, tx signing.Tx) error {
		var err error
		doc, err = tx.GetDocumentData(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("failed to read document data: %v", err)
	}
	return doc
}
