package signing

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// Value is a recipient supplied field value: one of ImageValue, TextValue or SelectionValue.
//
// SIGNATURE fields accept ImageValue (drawn or uploaded) or TextValue (typed signature).
// TEXT, NUMBER accept TextValue; CHECKBOX accepts SelectionValue; RADIO and DROPDOWN accept either
// a single-item SelectionValue or a TextValue.
type Value interface {
	isValue()
}

// ImageValue holds decoded PNG or JPEG bytes.
type ImageValue struct {
	Data []byte
}

type TextValue struct {
	Text string
}

type SelectionValue struct {
	Selected []string
}

func (ImageValue) isValue()     {}
func (TextValue) isValue()      {}
func (SelectionValue) isValue() {}

// FieldInput is one field submission.
type FieldInput struct {
	FieldID uuid.UUID
	Value   Value
}

// ParseFieldInput converts the loosely typed request shape {value, isBase64, selected} into a FieldInput.
// isBase64 marks value as a base64 encoded image, optionally in data URL form.
func ParseFieldInput(fieldID uuid.UUID, value string, isBase64 bool, selected []string) (FieldInput, error) {
	in := FieldInput{FieldID: fieldID}

	switch {
	case selected != nil:
		if isBase64 {
			return in, NewValidationError("invalid field value", FieldError{FieldID: fieldID, Property: "isBase64", Message: "a selection cannot be base64 encoded"})
		}
		in.Value = SelectionValue{Selected: selected}

	case isBase64:
		data, err := decodeBase64Image(value)
		if err != nil {
			return in, NewValidationError("invalid field value", FieldError{FieldID: fieldID, Property: "value", Message: "value is not valid base64"})
		}
		in.Value = ImageValue{Data: data}

	default:
		in.Value = TextValue{Text: value}
	}
	return in, nil
}

func decodeBase64Image(value string) ([]byte, error) {
	if strings.HasPrefix(value, "data:") {
		if i := strings.Index(value, ","); i >= 0 {
			value = value[i+1:]
		}
	}
	value = strings.TrimSpace(value)

	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(value, "="))
	}
	return data, err
}
