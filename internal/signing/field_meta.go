package signing

import (
	"errors"
	"fmt"
	"slices"
)

// FieldOption is one choice of a checkbox, radio or dropdown field.
type FieldOption struct {
	Value   string `json:"value"`
	Checked bool   `json:"checked,omitempty"`
}

// ValidationRule compares the number of checked checkbox options against ValidationLength.
type ValidationRule string

const (
	ValidationRuleAtLeast ValidationRule = ">="
	ValidationRuleExactly ValidationRule = "="
	ValidationRuleAtMost  ValidationRule = "<="
)

// Check reports whether count satisfies the rule for target.
func (r ValidationRule) Check(count, target int) bool {
	switch r {
	case ValidationRuleAtLeast:
		return count >= target
	case ValidationRuleExactly:
		return count == target
	case ValidationRuleAtMost:
		return count <= target
	}
	return true
}

func (r ValidationRule) describe(target int) string {
	switch r {
	case ValidationRuleAtLeast:
		return fmt.Sprintf("select at least %d option(s)", target)
	case ValidationRuleExactly:
		return fmt.Sprintf("select exactly %d option(s)", target)
	default:
		return fmt.Sprintf("select at most %d option(s)", target)
	}
}

// number formats accepted for NUMBER fields (grouping and decimal separators)
const (
	NumberFormatPlain         = ""
	NumberFormatCommaThousand = "123,456,789.00"
	NumberFormatDotThousand   = "123.456.789,00"
	NumberFormatSpaceThousand = "123 456 789,00"
)

type TextAlign string

const (
	TextAlignLeft   TextAlign = "left"
	TextAlignCenter TextAlign = "center"
	TextAlignRight  TextAlign = "right"
)

const (
	minFieldFontSize = 4
	maxFieldFontSize = 96
)

// FieldMeta carries the type specific settings of a field.
type FieldMeta struct {
	Label            string         `json:"label,omitempty"`
	Placeholder      string         `json:"placeholder,omitempty"`
	Required         bool           `json:"required,omitempty"`
	ReadOnly         bool           `json:"readOnly,omitempty"`
	FontSize         float64        `json:"fontSize,omitempty"`
	TextAlign        TextAlign      `json:"textAlign,omitempty"`
	CharacterLimit   int            `json:"characterLimit,omitempty"`
	NumberFormat     string         `json:"numberFormat,omitempty"`
	MinValue         *float64       `json:"minValue,omitempty"`
	MaxValue         *float64       `json:"maxValue,omitempty"`
	Values           []FieldOption  `json:"values,omitempty"`
	ValidationRule   ValidationRule `json:"validationRule,omitempty"`
	ValidationLength int            `json:"validationLength,omitempty"`
	DefaultValue     string         `json:"defaultValue,omitempty"`
}

func (m FieldMeta) optionValues() []string {
	values := make([]string, 0, len(m.Values))
	for _, o := range m.Values {
		values = append(values, o.Value)
	}
	return values
}

func (m FieldMeta) checkedValues() []string {
	var values []string
	for _, o := range m.Values {
		if o.Checked {
			values = append(values, o.Value)
		}
	}
	return values
}

// Validate checks the settings make sense for a field of type t.
func (m FieldMeta) Validate(t FieldType) error {
	if m.FontSize != 0 && (m.FontSize < minFieldFontSize || m.FontSize > maxFieldFontSize) {
		return fmt.Errorf("fontSize must be between %d and %d", minFieldFontSize, maxFieldFontSize)
	}
	switch m.TextAlign {
	case "", TextAlignLeft, TextAlignCenter, TextAlignRight:
	default:
		return fmt.Errorf("unknown textAlign %q", m.TextAlign)
	}
	if m.CharacterLimit < 0 {
		return errors.New("characterLimit must not be negative")
	}

	switch t {
	case FieldTypeNumber:
		switch m.NumberFormat {
		case NumberFormatPlain, NumberFormatCommaThousand, NumberFormatDotThousand, NumberFormatSpaceThousand:
		default:
			return fmt.Errorf("unknown numberFormat %q", m.NumberFormat)
		}
		if m.MinValue != nil && m.MaxValue != nil && *m.MinValue > *m.MaxValue {
			return errors.New("minValue must not be greater than maxValue")
		}
		if m.DefaultValue != "" {
			if _, err := parseNumber(m.DefaultValue, m.NumberFormat); err != nil {
				return fmt.Errorf("defaultValue: %w", err)
			}
		}

	case FieldTypeCheckbox, FieldTypeRadio, FieldTypeDropdown:
		if len(m.Values) == 0 {
			return errors.New("at least one option is required")
		}
		seen := make(map[string]bool, len(m.Values))
		for _, o := range m.Values {
			if o.Value == "" {
				return errors.New("option values must not be empty")
			}
			if seen[o.Value] {
				return fmt.Errorf("duplicate option %q", o.Value)
			}
			seen[o.Value] = true
		}
		if t != FieldTypeCheckbox {
			if len(m.checkedValues()) > 1 {
				return errors.New("only one option can be selected by default")
			}
			if m.DefaultValue != "" && !slices.Contains(m.optionValues(), m.DefaultValue) {
				return fmt.Errorf("defaultValue %q is not an option", m.DefaultValue)
			}
		}
	}

	if m.ValidationRule != "" {
		if t != FieldTypeCheckbox {
			return errors.New("validationRule only applies to checkbox fields")
		}
		switch m.ValidationRule {
		case ValidationRuleAtLeast, ValidationRuleExactly, ValidationRuleAtMost:
		default:
			return fmt.Errorf("unknown validationRule %q", m.ValidationRule)
		}
		if m.ValidationLength < 0 || m.ValidationLength > len(m.Values) {
			return fmt.Errorf("validationLength must be between 0 and %d", len(m.Values))
		}
	}

	if m.ReadOnly && t == FieldTypeSignature {
		return errors.New("signature fields cannot be read only")
	}
	return nil
}
