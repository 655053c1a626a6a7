package signing

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/information-sharing-networks/esign-demo/internal/pdfstamp"
)

const maxTypedSignatureLength = 200

// fieldContent is what a validated value persists as: a Signature payload for SIGNATURE fields,
// customText for everything else.
type fieldContent struct {
	imageBase64 *string
	typed       *string
	customText  string
}

// ValidateFieldValue applies the per-type rules of f to v.
func ValidateFieldValue(f Field, v Value, maxImageBytes int) error {
	_, err := validateFieldValue(f, v, maxImageBytes)
	return err
}

func validateFieldValue(f Field, v Value, maxImageBytes int) (fieldContent, error) {
	if f.IsComputed() {
		return fieldContent{}, fmt.Errorf("%s fields are filled automatically", f.Type)
	}
	if f.Meta.ReadOnly {
		return fieldContent{}, errors.New("field is read only")
	}

	switch f.Type {
	case FieldTypeSignature:
		return validateSignature(v, maxImageBytes)
	case FieldTypeText:
		return validateText(f, v)
	case FieldTypeNumber:
		return validateNumber(f, v)
	case FieldTypeCheckbox:
		return validateCheckbox(f, v)
	case FieldTypeRadio, FieldTypeDropdown:
		return validateChoice(f, v)
	}
	return fieldContent{}, fmt.Errorf("unsupported field type %q", f.Type)
}

func validateSignature(v Value, maxImageBytes int) (fieldContent, error) {
	switch v := v.(type) {
	case ImageValue:
		if len(v.Data) == 0 {
			return fieldContent{}, errors.New("signature is required")
		}
		if maxImageBytes > 0 && len(v.Data) > maxImageBytes {
			return fieldContent{}, fmt.Errorf("signature image exceeds %d bytes", maxImageBytes)
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(v.Data))
		if err != nil {
			return fieldContent{}, errors.New("signature image must be a PNG or JPEG")
		}
		if format != "png" && format != "jpeg" {
			return fieldContent{}, errors.New("signature image must be a PNG or JPEG")
		}
		if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > pdfstamp.MaxImagePixels {
			return fieldContent{}, errors.New("signature image dimensions are out of range")
		}
		encoded := base64.StdEncoding.EncodeToString(v.Data)
		return fieldContent{imageBase64: &encoded}, nil

	case TextValue:
		text := strings.TrimSpace(v.Text)
		if text == "" {
			return fieldContent{}, errors.New("signature is required")
		}
		if utf8.RuneCountInString(text) > maxTypedSignatureLength {
			return fieldContent{}, fmt.Errorf("typed signature exceeds %d characters", maxTypedSignatureLength)
		}
		return fieldContent{typed: &text}, nil

	case nil:
		return fieldContent{}, errors.New("signature is required")
	}
	return fieldContent{}, errors.New("signature must be an image or typed text")
}

func textOf(v Value) (string, bool) {
	switch v := v.(type) {
	case TextValue:
		return v.Text, true
	case nil:
		return "", true
	}
	return "", false
}

func validateText(f Field, v Value) (fieldContent, error) {
	text, ok := textOf(v)
	if !ok {
		return fieldContent{}, errors.New("expected a text value")
	}
	if f.Meta.Required && strings.TrimSpace(text) == "" {
		return fieldContent{}, errors.New("value is required")
	}
	if f.Meta.CharacterLimit > 0 && utf8.RuneCountInString(text) > f.Meta.CharacterLimit {
		return fieldContent{}, fmt.Errorf("value exceeds %d characters", f.Meta.CharacterLimit)
	}
	return fieldContent{customText: text}, nil
}

// parseNumber accepts the grouping and decimal separators of format.
func parseNumber(s, format string) (float64, error) {
	s = strings.TrimSpace(s)
	switch format {
	case NumberFormatCommaThousand:
		s = strings.ReplaceAll(s, ",", "")
	case NumberFormatDotThousand:
		s = strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	case NumberFormatSpaceThousand:
		s = strings.ReplaceAll(strings.ReplaceAll(s, " ", ""), ",", ".")
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return n, nil
}

func validateNumber(f Field, v Value) (fieldContent, error) {
	text, ok := textOf(v)
	if !ok {
		return fieldContent{}, errors.New("expected a number")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		if f.Meta.Required {
			return fieldContent{}, errors.New("value is required")
		}
		return fieldContent{}, nil
	}

	n, err := parseNumber(text, f.Meta.NumberFormat)
	if err != nil {
		return fieldContent{}, err
	}
	if f.Meta.MinValue != nil && n < *f.Meta.MinValue {
		return fieldContent{}, fmt.Errorf("value must be at least %s", strconv.FormatFloat(*f.Meta.MinValue, 'f', -1, 64))
	}
	if f.Meta.MaxValue != nil && n > *f.Meta.MaxValue {
		return fieldContent{}, fmt.Errorf("value must be at most %s", strconv.FormatFloat(*f.Meta.MaxValue, 'f', -1, 64))
	}
	if f.Meta.CharacterLimit > 0 && utf8.RuneCountInString(text) > f.Meta.CharacterLimit {
		return fieldContent{}, fmt.Errorf("value exceeds %d characters", f.Meta.CharacterLimit)
	}
	return fieldContent{customText: text}, nil
}

func validateCheckbox(f Field, v Value) (fieldContent, error) {
	var selected []string
	switch v := v.(type) {
	case SelectionValue:
		selected = v.Selected
	case nil:
	default:
		return fieldContent{}, errors.New("expected a list of selected options")
	}

	options := f.Meta.optionValues()
	seen := make(map[string]bool, len(selected))
	for _, s := range selected {
		if !slices.Contains(options, s) {
			return fieldContent{}, fmt.Errorf("%q is not an option", s)
		}
		if seen[s] {
			return fieldContent{}, fmt.Errorf("%q is selected more than once", s)
		}
		seen[s] = true
	}

	if f.Meta.Required && len(selected) == 0 {
		return fieldContent{}, errors.New("at least one option must be selected")
	}
	if f.Meta.ValidationRule != "" && !f.Meta.ValidationRule.Check(len(selected), f.Meta.ValidationLength) {
		return fieldContent{}, errors.New(f.Meta.ValidationRule.describe(f.Meta.ValidationLength))
	}

	// stored in option order so the rendered list does not depend on submission order
	ordered := make([]string, 0, len(selected))
	for _, o := range options {
		if seen[o] {
			ordered = append(ordered, o)
		}
	}
	return checkboxContent(ordered)
}

func checkboxContent(selected []string) (fieldContent, error) {
	if selected == nil {
		selected = []string{}
	}
	raw, err := json.Marshal(selected)
	if err != nil {
		return fieldContent{}, err
	}
	return fieldContent{customText: string(raw)}, nil
}

func decodeCheckboxText(customText string) ([]string, error) {
	if customText == "" {
		return nil, nil
	}
	var selected []string
	if err := json.Unmarshal([]byte(customText), &selected); err != nil {
		return nil, fmt.Errorf("invalid checkbox value: %w", err)
	}
	return selected, nil
}

func validateChoice(f Field, v Value) (fieldContent, error) {
	var choice string
	switch v := v.(type) {
	case SelectionValue:
		if len(v.Selected) > 1 {
			return fieldContent{}, errors.New("only one option can be selected")
		}
		if len(v.Selected) == 1 {
			choice = v.Selected[0]
		}
	case TextValue:
		choice = v.Text
	case nil:
	default:
		return fieldContent{}, errors.New("expected a single option")
	}

	if choice == "" {
		if f.Meta.Required {
			return fieldContent{}, errors.New("an option must be selected")
		}
		return fieldContent{}, nil
	}
	if !slices.Contains(f.Meta.optionValues(), choice) {
		return fieldContent{}, fmt.Errorf("%q is not an option", choice)
	}
	return fieldContent{customText: choice}, nil
}
