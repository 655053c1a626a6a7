package signing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultDateFormat is used when neither the envelope nor the configuration names one.
const DefaultDateFormat = "yyyy-MM-dd hh:mm a"

// dateFormats maps the named date formats an envelope can choose to Go layouts.
var dateFormats = map[string]string{
	"yyyy-MM-dd hh:mm a":        "2006-01-02 03:04 PM",
	"yyyy-MM-dd":                "2006-01-02",
	"yyyy-MM-dd HH:mm":          "2006-01-02 15:04",
	"dd/MM/yyyy":                "02/01/2006",
	"dd/MM/yyyy hh:mm a":        "02/01/2006 03:04 PM",
	"MM/dd/yyyy":                "01/02/2006",
	"MM/dd/yyyy hh:mm a":        "01/02/2006 03:04 PM",
	"dd.MM.yyyy":                "02.01.2006",
	"dd.MM.yyyy HH:mm":          "02.01.2006 15:04",
	"yy-MM-dd":                  "06-01-02",
	"MMMM dd, yyyy":             "January 02, 2006",
	"EEEE, MMMM dd, yyyy":       "Monday, January 02, 2006",
	"yyyy-MM-dd'T'HH:mm:ssXXX":  "2006-01-02T15:04:05Z07:00",
	"dd MMM yyyy, HH:mm zzz":    "02 Jan 2006, 15:04 MST",
	"MMMM dd, yyyy hh:mm a zzz": "January 02, 2006 03:04 PM MST",
}

// ValidDateFormat reports whether name is one of the supported date formats.
func ValidDateFormat(name string) bool {
	_, ok := dateFormats[name]
	return ok
}

// DateFormats returns the supported date format names in sorted order.
func DateFormats() []string {
	names := make([]string, 0, len(dateFormats))
	for name := range dateFormats {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FormatDate renders t in loc using a named date format.
func FormatDate(t time.Time, format string, loc *time.Location) (string, error) {
	layout, ok := dateFormats[format]
	if !ok {
		return "", fmt.Errorf("unknown date format %q", format)
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(layout), nil
}

// SigningContext carries the envelope level settings that computed values depend on.
type SigningContext struct {
	DateFormat string
	Location   *time.Location
}

type ValueKind string

const (
	ValueKindImage ValueKind = "image"
	ValueKindText  ValueKind = "text"
)

// ResolvedValue is the content that gets drawn into the PDF for a field.
type ResolvedValue struct {
	Kind  ValueKind
	Text  string
	Image []byte

	// Typed is set for typed signatures, which are drawn in an oblique font.
	Typed bool
}

func fieldError(f Field, msg string) error {
	return NewValidationError("field cannot be resolved", FieldError{FieldID: f.ID, Message: msg})
}

// ResolveFieldValue decides what a field renders as, from persisted state only: the field's
// Signature or customText, or the recipient's signedAt, name and email for computed fields.
// The same field and recipient state always resolve to the same value.
func ResolveFieldValue(f Field, r Recipient, sc SigningContext) (ResolvedValue, error) {
	switch f.Type {
	case FieldTypeSignature:
		if f.Signature == nil || !f.Signature.Valid() {
			return ResolvedValue{}, fieldError(f, "signature is required")
		}
		if f.Signature.TypedSignature != nil {
			return ResolvedValue{Kind: ValueKindText, Text: *f.Signature.TypedSignature, Typed: true}, nil
		}
		data, err := base64.StdEncoding.DecodeString(*f.Signature.SignatureImageAsBase64)
		if err != nil {
			return ResolvedValue{}, WrapInternalError(err, "stored signature image is not valid base64")
		}
		return ResolvedValue{Kind: ValueKindImage, Image: data}, nil

	case FieldTypeDate:
		if r.SignedAt == nil {
			return ResolvedValue{}, fieldError(f, "recipient has not signed")
		}
		format := sc.DateFormat
		if format == "" {
			format = DefaultDateFormat
		}
		text, err := FormatDate(*r.SignedAt, format, sc.Location)
		if err != nil {
			return ResolvedValue{}, fieldError(f, err.Error())
		}
		return ResolvedValue{Kind: ValueKindText, Text: text}, nil

	case FieldTypeName:
		return ResolvedValue{Kind: ValueKindText, Text: r.Name}, nil

	case FieldTypeEmail:
		return ResolvedValue{Kind: ValueKindText, Text: r.Email}, nil

	case FieldTypeCheckbox:
		selected, err := decodeCheckboxText(f.CustomText)
		if err != nil {
			return ResolvedValue{}, WrapInternalError(err, "stored checkbox value is invalid")
		}
		return ResolvedValue{Kind: ValueKindText, Text: renderCheckbox(f.Meta.optionValues(), selected)}, nil

	case FieldTypeText, FieldTypeNumber, FieldTypeRadio, FieldTypeDropdown:
		return ResolvedValue{Kind: ValueKindText, Text: f.CustomText}, nil
	}
	return ResolvedValue{}, fieldError(f, fmt.Sprintf("unsupported field type %q", f.Type))
}

func renderCheckbox(options, selected []string) string {
	lines := make([]string, 0, len(options))
	for _, o := range options {
		mark := "[ ]"
		if slices.Contains(selected, o) {
			mark = "[X]"
		}
		lines = append(lines, mark+" "+o)
	}
	return strings.Join(lines, "\n")
}

// autoFillText is the customText stored for fields the system inserts at completion:
// computed fields and read only fields with a default.
func autoFillText(f Field, r Recipient, sc SigningContext) (string, error) {
	switch {
	case f.IsComputed():
		v, err := ResolveFieldValue(f, r, sc)
		if err != nil {
			return "", err
		}
		return v.Text, nil

	case f.Meta.ReadOnly:
		switch f.Type {
		case FieldTypeCheckbox:
			c, err := checkboxContent(f.Meta.checkedValues())
			return c.customText, err
		case FieldTypeRadio, FieldTypeDropdown:
			if checked := f.Meta.checkedValues(); len(checked) > 0 {
				return checked[0], nil
			}
		}
		return f.Meta.DefaultValue, nil
	}
	return "", errors.New("field is not filled automatically")
}
