package pdfstamp

import (
	"errors"
	"fmt"
)

// ErrMalformedDocument is returned (wrapped) when the PDF bytes cannot be parsed or updated:
// unreadable cross reference data, encrypted documents, missing page tree entries or a page
// index that is out of range.
var ErrMalformedDocument = errors.New("malformed PDF document")

// ErrInvalidImage is returned (wrapped) when an image payload cannot be decoded.
var ErrInvalidImage = errors.New("invalid image")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDocument, fmt.Sprintf(format, args...))
}

// recoverMalformed converts a panic raised by the PDF parser into ErrMalformedDocument.
// The reader panics on some classes of corrupt input instead of returning errors.
func recoverMalformed(err *error) {
	if r := recover(); r != nil {
		*err = malformed("%v", r)
	}
}
