package pdfstamp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/klauspost/compress/zlib"
)

// update collects the objects of one incremental update and appends them, with a new
// cross reference section, to a copy of the original bytes.
//
// The original bytes are never modified: a PDF reader resolves each object number to its
// newest definition by following the /Prev chain from the final startxref.
type update struct {
	doc     *document
	nextID  uint32
	objects map[objRef][]byte
}

func newUpdate(doc *document) *update {
	return &update{
		doc:     doc,
		nextID:  doc.size,
		objects: make(map[objRef][]byte),
	}
}

// add allocates a new object number for body.
func (u *update) add(body []byte) objRef {
	ref := objRef{id: u.nextID}
	u.nextID++
	u.objects[ref] = body
	return ref
}

// replace redefines an existing object.
func (u *update) replace(ref objRef, body []byte) {
	u.objects[ref] = body
}

// addStream adds a stream object. When compress is set the data is FlateDecode encoded.
func (u *update) addStream(extra string, data []byte, compress bool) (objRef, error) {
	if compress {
		var err error
		if data, err = deflate(data); err != nil {
			return objRef{}, err
		}
		extra += " /Filter /FlateDecode"
	}
	return u.add(streamObject(extra, data)), nil
}

func streamObject(extra string, data []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "<<%s /Length %d >>\nstream\n", extra, len(data))
	b.Write(data)
	b.WriteString("\nendstream")
	return b.Bytes()
}

func deflate(data []byte) ([]byte, error) {
	var b bytes.Buffer
	w, err := zlib.NewWriterLevel(&b, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress stream: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress stream: %w", err)
	}
	return b.Bytes(), nil
}

// bytes renders the original document followed by the update.
func (u *update) bytes() ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(u.doc.data) + 4096)
	out.Write(u.doc.data)
	if !bytes.HasSuffix(u.doc.data, []byte("\n")) {
		out.WriteByte('\n')
	}

	refs := make([]objRef, 0, len(u.objects))
	for ref := range u.objects {
		refs = append(refs, ref)
	}
	slices.SortFunc(refs, func(a, b objRef) int { return int(a.id) - int(b.id) })

	offsets := make(map[objRef]int64, len(refs)+1)
	for _, ref := range refs {
		offsets[ref] = int64(out.Len())
		fmt.Fprintf(&out, "%d %d obj\n", ref.id, ref.gen)
		out.Write(u.objects[ref])
		out.WriteString("\nendobj\n")
	}

	if u.doc.xrefStream {
		if err := u.writeXrefStream(&out, refs, offsets); err != nil {
			return nil, err
		}
	} else {
		u.writeXrefTable(&out, refs, offsets)
	}
	return out.Bytes(), nil
}

func (u *update) trailerEntries(size uint32) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, " /Size %d /Root %s", size, u.doc.root)
	if u.doc.info != nil {
		fmt.Fprintf(&b, " /Info %s", *u.doc.info)
	}
	if id := u.doc.trailer.Key("ID"); id.Len() == 2 {
		fmt.Fprintf(&b, " /ID [<%x> <%x>]", id.Index(0).RawString(), id.Index(1).RawString())
	}
	fmt.Fprintf(&b, " /Prev %d", u.doc.prevXref)
	return b.String()
}

func (u *update) writeXrefTable(out *bytes.Buffer, refs []objRef, offsets map[objRef]int64) {
	xrefOffset := out.Len()
	out.WriteString("xref\n")

	// one subsection per run of consecutive object numbers
	for i := 0; i < len(refs); {
		j := i + 1
		for j < len(refs) && refs[j].id == refs[j-1].id+1 {
			j++
		}
		fmt.Fprintf(out, "%d %d\n", refs[i].id, j-i)
		for _, ref := range refs[i:j] {
			fmt.Fprintf(out, "%010d %05d n \n", offsets[ref], ref.gen)
		}
		i = j
	}

	fmt.Fprintf(out, "trailer\n<<%s >>\nstartxref\n%d\n%%%%EOF\n", u.trailerEntries(u.size()), xrefOffset)
}

// writeXrefStream writes a cross reference stream (PDF 1.5) for documents whose original
// cross reference data is itself a stream; a reader following /Prev expects the same form.
func (u *update) writeXrefStream(out *bytes.Buffer, refs []objRef, offsets map[objRef]int64) error {
	self := objRef{id: u.nextID}
	u.nextID++
	offsets[self] = int64(out.Len())
	refs = append(refs, self)

	var index bytes.Buffer
	var rows bytes.Buffer
	for _, ref := range refs {
		fmt.Fprintf(&index, " %d 1", ref.id)
		off := offsets[ref]
		if off > 0xFFFFFFFF {
			return malformed("document too large for cross reference stream")
		}
		row := [7]byte{1}
		binary.BigEndian.PutUint32(row[1:5], uint32(off))
		binary.BigEndian.PutUint16(row[5:7], ref.gen)
		rows.Write(row[:])
	}

	extra := fmt.Sprintf(" /Type /XRef /W [1 4 2] /Index [%s ]%s", index.String()[1:], u.trailerEntries(u.size()))
	fmt.Fprintf(out, "%d 0 obj\n", self.id)
	out.Write(streamObject(extra, rows.Bytes()))
	out.WriteString("\nendobj\n")

	fmt.Fprintf(out, "startxref\n%d\n%%%%EOF\n", offsets[self])
	return nil
}

// size is the trailer /Size: one more than the highest object number in use.
func (u *update) size() uint32 {
	return max(u.doc.size, u.nextID)
}
