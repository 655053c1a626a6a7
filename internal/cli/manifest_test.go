package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

const validManifest = `
title: Lease
owner:
  email: owner@example.com
  name: Owner
signingOrder: SEQUENTIAL
documents:
  - title: Lease
    file: lease.pdf
recipients:
  - email: ada@example.com
    name: Ada
    signingOrder: 1
    fields:
      - {type: SIGNATURE, page: 0, x: 0.1, y: 0.8, width: 0.3, height: 0.08}
      - type: CHECKBOX
        x: 0.1
        y: 0.2
        width: 0.2
        height: 0.1
        meta:
          values: [{value: pets}, {value: parking}]
          validationRule: ">="
          validationLength: 1
  - email: bob@example.com
    role: CC
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(validManifest))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.SigningOrder != signing.SigningOrderSequential || len(m.Recipients) != 2 {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if got := m.Recipients[0].SigningOrder; got == nil || *got != 1 {
		t.Errorf("expected signing order 1, got %v", got)
	}

	meta, err := m.Recipients[0].Fields[1].FieldMeta()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meta.Values) != 2 || meta.Values[1].Value != "parking" || meta.ValidationLength != 1 {
		t.Errorf("unexpected meta %+v", meta)
	}
	if m.documentIndex("") != 0 || m.documentIndex("Lease") != 0 || m.documentIndex("Other") != -1 {
		t.Error("unexpected document index")
	}
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{"empty", "", "empty"},
		{"missing title", "ownerUserId: 7d2f7a5e-8f1e-4c55-9d4b-3b7b8f6b9a10\ndocuments: [{file: a.pdf}]", "title is required"},
		{"no owner", "title: t\ndocuments: [{file: a.pdf}]", "ownerUserId or owner"},
		{"owner twice", "title: t\nownerUserId: 7d2f7a5e-8f1e-4c55-9d4b-3b7b8f6b9a10\nowner: {email: a@example.com}\ndocuments: [{file: a.pdf}]", "cannot both"},
		{"owner id not a uuid", "title: t\nownerUserId: me\ndocuments: [{file: a.pdf}]", "UUID"},
		{"unknown key", "title: t\nowner: {email: a@example.com}\ncolour: red\ndocuments: [{file: a.pdf}]", "colour"},
		{"no documents", "title: t\nowner: {email: a@example.com}", "at least one document"},
		{"duplicate document", "title: t\nowner: {email: a@example.com}\ndocuments: [{file: a.pdf}, {file: b/a.pdf}]", "duplicate title"},
		{
			"field document required",
			"title: t\nowner: {email: a@example.com}\ndocuments: [{file: a.pdf}, {file: b.pdf}]\nrecipients: [{email: r@example.com, fields: [{type: NAME}]}]",
			"document is required",
		},
		{
			"unknown field type",
			"title: t\nowner: {email: a@example.com}\ndocuments: [{file: a.pdf}]\nrecipients: [{email: r@example.com, fields: [{type: STAMP}]}]",
			"unknown type",
		},
		{
			"unknown meta key",
			"title: t\nowner: {email: a@example.com}\ndocuments: [{file: a.pdf}]\nrecipients: [{email: r@example.com, fields: [{type: TEXT, meta: {colour: red}}]}]",
			"invalid meta",
		},
		{"recipient without email", "title: t\nowner: {email: a@example.com}\ndocuments: [{file: a.pdf}]\nrecipients: [{name: R}]", "email is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest(strings.NewReader(tt.manifest))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadManifestResolvesDocumentPaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lease.pdf"), []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "lease.yaml")
	if err := os.WriteFile(path, []byte(validManifest), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := m.readDocument(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "%PDF-1.4" {
		t.Errorf("unexpected document bytes %q", data)
	}

	if _, err := LoadManifest(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing manifest")
	}
}
