package signing

import (
	"errors"
	"fmt"
)

type FieldType string

const (
	FieldTypeSignature FieldType = "SIGNATURE"
	FieldTypeDate      FieldType = "DATE"
	FieldTypeName      FieldType = "NAME"
	FieldTypeEmail     FieldType = "EMAIL"
	FieldTypeText      FieldType = "TEXT"
	FieldTypeNumber    FieldType = "NUMBER"
	FieldTypeCheckbox  FieldType = "CHECKBOX"
	FieldTypeRadio     FieldType = "RADIO"
	FieldTypeDropdown  FieldType = "DROPDOWN"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeSignature, FieldTypeDate, FieldTypeName, FieldTypeEmail,
		FieldTypeText, FieldTypeNumber, FieldTypeCheckbox, FieldTypeRadio, FieldTypeDropdown:
		return true
	}
	return false
}

// IsComputed reports whether the field's value is derived from the recipient (signedAt, name, email)
// rather than entered by them.
func (f Field) IsComputed() bool {
	switch f.Type {
	case FieldTypeDate, FieldTypeName, FieldTypeEmail:
		return true
	}
	return false
}

// autoFilled fields are inserted by the system when their recipient completes signing.
func (f Field) autoFilled() bool {
	return f.IsComputed() || f.Meta.ReadOnly
}

// IsRequired reports whether the recipient cannot complete signing until the field is inserted.
func (f Field) IsRequired() bool {
	if f.Type == FieldTypeSignature || f.IsComputed() {
		return true
	}
	return f.Meta.Required
}

// ValidatePlacement checks the field lies on an existing page and inside the page bounds.
// pageCount is the number of pages of the field's envelope item.
func (f Field) ValidatePlacement(pageCount int) error {
	if f.Page < 0 || int(f.Page) >= pageCount {
		return fmt.Errorf("page %d is out of range (document has %d pages)", f.Page, pageCount)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return errors.New("width and height must be greater than zero")
	}
	if f.PositionX < 0 || f.PositionY < 0 {
		return errors.New("position must not be negative")
	}
	if f.PositionX+f.Width > 1 || f.PositionY+f.Height > 1 {
		return errors.New("field must fit within the page")
	}
	return nil
}
