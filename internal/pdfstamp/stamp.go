// Package pdfstamp draws field values (text or images) onto pages of an existing PDF.
//
// Every insertion is written as an incremental update: the input bytes are copied unchanged
// and a new content stream, the resources it needs and a rewritten page dictionary are
// appended together with a new cross reference section. Existing content, signatures over
// earlier revisions and object numbers are preserved.
//
// Positions are fractions of the page (0..1) measured from the top left corner, so the same
// field definition lands in the same place whatever the page size; they are converted to PDF
// user space per page from that page's MediaBox.
//
// The functions are pure: the input slice is never modified and the same input always
// produces the same output bytes.
package pdfstamp

import (
	"errors"
	"fmt"
)

// PayloadKind says what an insertion draws.
type PayloadKind int

const (
	PayloadText PayloadKind = iota + 1
	PayloadImage
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadText:
		return "text"
	case PayloadImage:
		return "image"
	default:
		return fmt.Sprintf("PayloadKind(%d)", int(k))
	}
}

// Font is one of the standard 14 fonts that need no embedding.
type Font string

const (
	FontHelvetica        Font = "Helvetica"
	FontHelveticaOblique Font = "Helvetica-Oblique"
)

// Align is the horizontal alignment of text inside its box.
type Align int

const (
	AlignCenter Align = iota
	AlignLeft
	AlignRight
)

// Insertion places a single value on a page.
type Insertion struct {
	// Page is 1-indexed.
	Page int

	// X, Y, Width and Height are fractions of the page size; X and Y locate the top left corner.
	X, Y, Width, Height float64

	Kind PayloadKind

	// Text is drawn when Kind is PayloadText. Newlines start a new line.
	Text string

	// Image holds PNG or JPEG bytes when Kind is PayloadImage.
	Image []byte

	// Font defaults to Helvetica.
	Font Font

	// FontSize is the largest size text is drawn at; text shrinks to fit the box.
	// Zero means DefaultMaxFontSize.
	FontSize float64

	Align Align
}

// TextInsertion is a convenience constructor for a text insertion.
func TextInsertion(page int, x, y, width, height float64, text string) Insertion {
	return Insertion{Page: page, X: x, Y: y, Width: width, Height: height, Kind: PayloadText, Text: text}
}

// ImageInsertion is a convenience constructor for an image insertion.
func ImageInsertion(page int, x, y, width, height float64, image []byte) Insertion {
	return Insertion{Page: page, X: x, Y: y, Width: width, Height: height, Kind: PayloadImage, Image: image}
}

// Validate checks the geometry and payload of the insertion without touching a document.
func (ins Insertion) Validate() error {
	if ins.Width <= 0 || ins.Height <= 0 {
		return errors.New("width and height must be greater than zero")
	}
	if ins.X < 0 || ins.Y < 0 || ins.X+ins.Width > 1.0001 || ins.Y+ins.Height > 1.0001 {
		return errors.New("position must lie within the page")
	}

	switch ins.Kind {
	case PayloadText:
	case PayloadImage:
		if len(ins.Image) == 0 {
			return errors.New("image payload is empty")
		}
	default:
		return fmt.Errorf("unknown payload kind %v", ins.Kind)
	}

	switch ins.Font {
	case "", FontHelvetica, FontHelveticaOblique:
	default:
		return fmt.Errorf("unsupported font %q", ins.Font)
	}
	return nil
}

// rect converts the fractional position to a rectangle in PDF user space.
func (ins Insertion) rect(mb box) box {
	w := ins.Width * mb.width()
	h := ins.Height * mb.height()
	x := mb.llx + ins.X*mb.width()
	top := mb.ury - ins.Y*mb.height()
	return box{llx: x, lly: top - h, urx: x + w, ury: top}
}

// Insert returns a copy of pdf with the insertion drawn on its page.
func Insert(pdf []byte, ins Insertion) (out []byte, err error) {
	defer recoverMalformed(&err)

	if err := ins.Validate(); err != nil {
		return nil, fmt.Errorf("invalid insertion: %w", err)
	}

	doc, err := open(pdf)
	if err != nil {
		return nil, err
	}

	p, err := doc.page(ins.Page)
	if err != nil {
		return nil, err
	}

	u := newUpdate(doc)
	r := ins.rect(p.mediaBox)

	var (
		ops      []byte
		fonts    []entry
		xobjects []entry
	)

	switch ins.Kind {
	case PayloadText:
		font := ins.Font
		if font == "" {
			font = FontHelvetica
		}
		fontRef := u.add(fontObject(font))
		name := fmt.Sprintf("ESF%d", fontRef.id)
		fonts = append(fonts, refEntry(name, fontRef))
		ops = textOperators(name, layoutText(ins.Text, ins.FontSize, r, ins.Align))

	case PayloadImage:
		img, err := decodeImage(ins.Image)
		if err != nil {
			return nil, err
		}
		imgRef, err := u.addImage(img)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("ESI%d", imgRef.id)
		xobjects = append(xobjects, refEntry(name, imgRef))
		ops = imageOperators(name, img, r)
	}

	// wrap the existing content in q/Q so a graphics state it leaves behind
	// (transformations, colours) cannot displace the new marks
	push, err := u.addStream("", []byte("q\n"), false)
	if err != nil {
		return nil, err
	}
	pop, err := u.addStream("", []byte("Q\n"), false)
	if err != nil {
		return nil, err
	}
	content, err := u.addStream("", ops, true)
	if err != nil {
		return nil, err
	}

	contents, err := contentRefs(p)
	if err != nil {
		return nil, err
	}
	contents = append([]objRef{push}, contents...)
	contents = append(contents, pop, content)

	body, err := rewritePage(p, contents, fonts, xobjects)
	if err != nil {
		return nil, err
	}
	u.replace(p.ref, body)

	return u.bytes()
}

// Apply folds insertions over pdf: each insertion is applied to the output of the previous one.
func Apply(pdf []byte, insertions []Insertion) ([]byte, error) {
	out := pdf
	for i, ins := range insertions {
		next, err := Insert(out, ins)
		if err != nil {
			return nil, fmt.Errorf("insertion %d (page %d): %w", i, ins.Page, err)
		}
		out = next
	}
	return out, nil
}

// PageCount returns the number of pages in pdf.
func PageCount(pdf []byte) (n int, err error) {
	defer recoverMalformed(&err)

	doc, err := open(pdf)
	if err != nil {
		return 0, err
	}
	return doc.pageCount(), nil
}

// PageSize returns the width and height in points of the 1-indexed page.
func PageSize(pdf []byte, page int) (width, height float64, err error) {
	defer recoverMalformed(&err)

	doc, err := open(pdf)
	if err != nil {
		return 0, 0, err
	}
	p, err := doc.page(page)
	if err != nil {
		return 0, 0, err
	}
	return p.mediaBox.width(), p.mediaBox.height(), nil
}
