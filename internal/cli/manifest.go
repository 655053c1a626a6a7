package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
	"gopkg.in/yaml.v3"
)

// Manifest describes an envelope to create. Document paths are relative to the manifest file.
//
//	title: Employment contract
//	owner: {email: hr@example.com, name: HR}
//	signingOrder: SEQUENTIAL
//	documents:
//	  - {title: Contract, file: contract.pdf}
//	recipients:
//	  - email: ada@example.com
//	    name: Ada
//	    signingOrder: 1
//	    fields:
//	      - {document: Contract, type: SIGNATURE, page: 0, x: 0.1, y: 0.8, width: 0.3, height: 0.08}
type Manifest struct {
	Title        string               `yaml:"title"`
	OwnerUserID  string               `yaml:"ownerUserId"`
	Owner        *ManifestOwner       `yaml:"owner"`
	SigningOrder signing.SigningOrder `yaml:"signingOrder"`
	DateFormat   string               `yaml:"dateFormat"`
	Timezone     string               `yaml:"timezone"`
	Documents    []ManifestDocument   `yaml:"documents"`
	Recipients   []ManifestRecipient  `yaml:"recipients"`

	// dir is the directory the manifest was read from
	dir string
}

type ManifestOwner struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
}

type ManifestDocument struct {
	Title string `yaml:"title"`
	File  string `yaml:"file"`
}

type ManifestRecipient struct {
	Email        string          `yaml:"email"`
	Name         string          `yaml:"name"`
	Role         signing.Role    `yaml:"role"`
	SigningOrder *int32          `yaml:"signingOrder"`
	Fields       []ManifestField `yaml:"fields"`
}

type ManifestField struct {
	// Document is the title of one of the manifest documents. It may be omitted when there is only one.
	Document string            `yaml:"document"`
	Type     signing.FieldType `yaml:"type"`
	Page     int32             `yaml:"page"`
	X        float64           `yaml:"x"`
	Y        float64           `yaml:"y"`
	Width    float64           `yaml:"width"`
	Height   float64           `yaml:"height"`

	// Meta uses the same keys as fieldMeta in the JSON API.
	Meta map[string]any `yaml:"meta"`
}

// LoadManifest reads and checks the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	m, err := ParseManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// ParseManifest decodes a manifest. Unknown keys are rejected.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Title == "" {
		return fmt.Errorf("title is required")
	}
	switch {
	case m.OwnerUserID == "" && m.Owner == nil:
		return fmt.Errorf("one of ownerUserId or owner is required")
	case m.OwnerUserID != "" && m.Owner != nil:
		return fmt.Errorf("ownerUserId and owner cannot both be set")
	case m.OwnerUserID != "":
		if _, err := uuid.Parse(m.OwnerUserID); err != nil {
			return fmt.Errorf("ownerUserId must be a UUID: %w", err)
		}
	}
	if len(m.Documents) == 0 {
		return fmt.Errorf("at least one document is required")
	}

	titles := make(map[string]bool, len(m.Documents))
	for i, d := range m.Documents {
		if d.File == "" {
			return fmt.Errorf("documents[%d]: file is required", i)
		}
		m.Documents[i].Title = strings.TrimSpace(d.Title)
		if m.Documents[i].Title == "" {
			m.Documents[i].Title = filepath.Base(d.File)
		}
		if titles[m.Documents[i].Title] {
			return fmt.Errorf("documents[%d]: duplicate title %q", i, m.Documents[i].Title)
		}
		titles[m.Documents[i].Title] = true
	}

	for i, r := range m.Recipients {
		if r.Email == "" {
			return fmt.Errorf("recipients[%d]: email is required", i)
		}
		for j, f := range r.Fields {
			if !f.Type.Valid() {
				return fmt.Errorf("recipients[%d].fields[%d]: unknown type %q", i, j, f.Type)
			}
			if f.Document == "" && len(m.Documents) > 1 {
				return fmt.Errorf("recipients[%d].fields[%d]: document is required when there is more than one", i, j)
			}
			if f.Document != "" && !titles[f.Document] {
				return fmt.Errorf("recipients[%d].fields[%d]: unknown document %q", i, j, f.Document)
			}
			if _, err := f.FieldMeta(); err != nil {
				return fmt.Errorf("recipients[%d].fields[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// FieldMeta converts the manifest meta map to the API representation.
func (f ManifestField) FieldMeta() (signing.FieldMeta, error) {
	var meta signing.FieldMeta
	if len(f.Meta) == 0 {
		return meta, nil
	}
	b, err := json.Marshal(f.Meta)
	if err != nil {
		return meta, fmt.Errorf("invalid meta: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&meta); err != nil {
		return meta, fmt.Errorf("invalid meta: %w", err)
	}
	return meta, nil
}

// documentIndex returns the position of the document a field is placed on.
func (m *Manifest) documentIndex(title string) int {
	if title == "" {
		return 0
	}
	for i, d := range m.Documents {
		if d.Title == title {
			return i
		}
	}
	return -1
}

// readDocument returns the bytes of the i'th document.
func (m *Manifest) readDocument(i int) ([]byte, error) {
	path := m.Documents[i].File
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %q: %w", m.Documents[i].Title, err)
	}
	return data, nil
}
