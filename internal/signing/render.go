package signing

import (
	"cmp"
	"errors"
	"slices"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/pdfstamp"
)

// sortForInsertion orders fields by item, page and position so insertions are applied in page order.
func sortForInsertion(fields []Field) {
	slices.SortStableFunc(fields, func(a, b Field) int {
		return cmp.Or(
			cmp.Compare(a.EnvelopeItemID.String(), b.EnvelopeItemID.String()),
			cmp.Compare(a.Page, b.Page),
			cmp.Compare(a.PositionY, b.PositionY),
			cmp.Compare(a.PositionX, b.PositionX),
			cmp.Compare(a.ID.String(), b.ID.String()),
		)
	})
}

// insertionFor converts a resolved field value into a PDF insertion.
func insertionFor(f Field, v ResolvedValue) pdfstamp.Insertion {
	page := int(f.Page) + 1
	if v.Kind == ValueKindImage {
		return pdfstamp.ImageInsertion(page, f.PositionX, f.PositionY, f.Width, f.Height, v.Image)
	}

	ins := pdfstamp.TextInsertion(page, f.PositionX, f.PositionY, f.Width, f.Height, v.Text)
	ins.FontSize = f.Meta.FontSize
	switch f.Meta.TextAlign {
	case TextAlignLeft:
		ins.Align = pdfstamp.AlignLeft
	case TextAlignRight:
		ins.Align = pdfstamp.AlignRight
	}
	if v.Typed {
		ins.Font = pdfstamp.FontHelveticaOblique
		if ins.FontSize == 0 {
			ins.FontSize = 28
		}
	}
	return ins
}

// buildInsertions resolves fields (which must all belong to one envelope item) in insertion order.
func buildInsertions(fields []Field, recipients map[uuid.UUID]Recipient, sc SigningContext) ([]pdfstamp.Insertion, error) {
	sorted := slices.Clone(fields)
	sortForInsertion(sorted)

	insertions := make([]pdfstamp.Insertion, 0, len(sorted))
	for _, f := range sorted {
		r, ok := recipients[f.RecipientID]
		if !ok {
			return nil, NewInternalError("field " + f.ID.String() + " has no recipient")
		}
		v, err := ResolveFieldValue(f, r, sc)
		if err != nil {
			return nil, err
		}
		insertions = append(insertions, insertionFor(f, v))
	}
	return insertions, nil
}

// renderFields folds the insertions for fields over pdf and returns the new bytes.
func renderFields(pdf []byte, fields []Field, recipients map[uuid.UUID]Recipient, sc SigningContext) ([]byte, error) {
	insertions, err := buildInsertions(fields, recipients, sc)
	if err != nil {
		return nil, err
	}
	out, err := pdfstamp.Apply(pdf, insertions)
	if err != nil {
		return nil, mapStampError(err)
	}
	return out, nil
}

func mapStampError(err error) error {
	if errors.Is(err, pdfstamp.ErrInvalidImage) {
		return NewValidationError("signature image could not be decoded")
	}
	return WrapMalformedDocumentError(err, "failed to insert fields into document")
}
