package pdfstamp

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/digitorus/pdf"
)

// maxInheritanceDepth bounds the walk up the page tree when resolving inherited attributes.
const maxInheritanceDepth = 32

// objRef identifies an indirect object.
type objRef struct {
	id  uint32
	gen uint16
}

func refOf(v pdf.Value) objRef {
	p := v.GetPtr()
	return objRef{id: p.GetID(), gen: p.GetGen()}
}

func (r objRef) String() string {
	return strconv.FormatUint(uint64(r.id), 10) + " " + strconv.FormatUint(uint64(r.gen), 10) + " R"
}

// box is a rectangle in PDF user space (origin bottom left).
type box struct {
	llx, lly, urx, ury float64
}

func (b box) width() float64  { return b.urx - b.llx }
func (b box) height() float64 { return b.ury - b.lly }

// document is a parsed, read-only view of the PDF bytes an update is appended to.
type document struct {
	data       []byte
	reader     *pdf.Reader
	trailer    pdf.Value
	root       objRef
	info       *objRef
	size       uint32
	prevXref   int64
	xrefStream bool
}

func open(data []byte) (*document, error) {
	if len(data) == 0 {
		return nil, malformed("document is empty")
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, malformed("missing %%PDF header")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, malformed("%v", err)
	}

	trailer := reader.Trailer()
	if trailer.Kind() != pdf.Dict && trailer.Kind() != pdf.Stream {
		return nil, malformed("missing trailer")
	}
	if !trailer.Key("Encrypt").IsNull() {
		return nil, malformed("encrypted documents are not supported")
	}

	root := trailer.Key("Root")
	if root.Kind() != pdf.Dict {
		return nil, malformed("trailer has no document catalog")
	}

	size := trailer.Key("Size").Int64()
	if size <= 0 {
		return nil, malformed("trailer has no valid /Size")
	}

	prev, err := lastStartXref(data)
	if err != nil {
		return nil, err
	}

	doc := &document{
		data:       data,
		reader:     reader,
		trailer:    trailer,
		root:       refOf(root),
		size:       uint32(size),
		prevXref:   prev,
		xrefStream: !isXrefTable(data, prev),
	}

	if info := trailer.Key("Info"); info.Kind() == pdf.Dict {
		if ref := refOf(info); ref.id != 0 {
			doc.info = &ref
		}
	}

	return doc, nil
}

// lastStartXref returns the byte offset recorded after the final startxref keyword.
func lastStartXref(data []byte) (int64, error) {
	i := bytes.LastIndex(data, []byte("startxref"))
	if i < 0 {
		return 0, malformed("missing startxref")
	}

	rest := bytes.TrimLeft(data[i+len("startxref"):], " \t\r\n")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}

	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil || off <= 0 || off >= int64(len(data)) {
		return 0, malformed("invalid startxref offset")
	}
	return off, nil
}

func isXrefTable(data []byte, off int64) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data[off:], " \t\r\n"), []byte("xref"))
}

// page is a page dictionary with its inherited attributes resolved.
type page struct {
	number    int
	v         pdf.Value
	ref       objRef
	mediaBox  box
	resources pdf.Value
}

func (d *document) pageCount() int {
	return d.reader.NumPage()
}

// page returns the 1-indexed page n.
func (d *document) page(n int) (*page, error) {
	count := d.pageCount()
	if n < 1 || n > count {
		return nil, malformed("page %d out of range (document has %d pages)", n, count)
	}

	p := d.reader.Page(n)
	if p.V.Kind() != pdf.Dict {
		return nil, malformed("page %d is not a dictionary", n)
	}

	ref := refOf(p.V)
	if ref.id == 0 {
		return nil, malformed("page %d is not an indirect object", n)
	}

	mb, err := parseBox(inherited(p.V, "MediaBox"))
	if err != nil {
		return nil, malformed("page %d: %v", n, err)
	}

	return &page{
		number:    n,
		v:         p.V,
		ref:       ref,
		mediaBox:  mb,
		resources: inherited(p.V, "Resources"),
	}, nil
}

// inherited looks up key on the page and then on its ancestors in the page tree.
func inherited(v pdf.Value, key string) pdf.Value {
	for range maxInheritanceDepth {
		if v.Kind() != pdf.Dict {
			break
		}
		if x := v.Key(key); !x.IsNull() {
			return x
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func parseBox(v pdf.Value) (box, error) {
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return box{}, errors.New("missing or invalid MediaBox")
	}

	var n [4]float64
	for i := range n {
		x := v.Index(i)
		if x.Kind() != pdf.Integer && x.Kind() != pdf.Real {
			return box{}, errors.New("MediaBox entries must be numbers")
		}
		n[i] = x.Float64()
	}

	b := box{
		llx: min(n[0], n[2]),
		lly: min(n[1], n[3]),
		urx: max(n[0], n[2]),
		ury: max(n[1], n[3]),
	}
	if b.width() <= 0 || b.height() <= 0 {
		return box{}, errors.New("MediaBox has no area")
	}
	return b, nil
}
