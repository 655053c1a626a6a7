// Package pdftest builds small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Options controls the generated document.
type Options struct {
	Pages int

	// Width and Height default to A4 (595 x 842 points). The MediaBox is set on the
	// page tree root so pages inherit it.
	Width, Height float64

	// XRefStream writes a cross reference stream instead of a classic xref table.
	XRefStream bool

	// Encrypted adds a (bogus) /Encrypt dictionary to the trailer.
	Encrypted bool
}

// Minimal returns an A4 document with the given number of pages and an xref table.
func Minimal(pages int) []byte {
	return Build(Options{Pages: pages})
}

// Build returns a document with one line of text on every page.
//
// Object layout: 1 catalog, 2 page tree, 3 font, then a page and its content stream per page.
func Build(opts Options) []byte {
	if opts.Pages < 1 {
		opts.Pages = 1
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 595, 842
	}

	var objects [][]byte
	kids := ""
	for i := range opts.Pages {
		kids += fmt.Sprintf(" %d 0 R", 4+2*i)
	}

	objects = append(objects,
		[]byte("<< /Type /Catalog /Pages 2 0 R >>"),
		[]byte(fmt.Sprintf("<< /Type /Pages /Kids [%s ] /Count %d /MediaBox [0 0 %g %g] >>", kids, opts.Pages, opts.Width, opts.Height)),
		[]byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"),
	)
	for i := range opts.Pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (Page %d) Tj ET", i+1)
		objects = append(objects,
			[]byte(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i)),
			[]byte(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)),
		)
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(objects)+1)
	for i, body := range objects {
		offsets[i+1] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n", i+1)
		out.Write(body)
		out.WriteString("\nendobj\n")
	}

	trailer := " /Root 1 0 R /ID [<0123456789abcdef0123456789abcdef> <0123456789abcdef0123456789abcdef>]"
	if opts.Encrypted {
		trailer += " /Encrypt << /Filter /Standard /V 1 /R 2 /O <00> /U <00> /P -4 >>"
	}

	if !opts.XRefStream {
		xref := out.Len()
		fmt.Fprintf(&out, "xref\n0 %d\n0000000000 65535 f \n", len(offsets))
		for _, off := range offsets[1:] {
			fmt.Fprintf(&out, "%010d 00000 n \n", off)
		}
		fmt.Fprintf(&out, "trailer\n<< /Size %d%s >>\nstartxref\n%d\n%%%%EOF\n", len(offsets), trailer, xref)
		return out.Bytes()
	}

	self := len(offsets)
	offsets = append(offsets, out.Len())

	var rows bytes.Buffer
	rows.Write([]byte{0, 0, 0, 0, 0, 0xff, 0xff})
	for _, off := range offsets[1:] {
		row := [7]byte{1}
		binary.BigEndian.PutUint32(row[1:5], uint32(off))
		rows.Write(row[:])
	}

	fmt.Fprintf(&out, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2]%s /Length %d >>\nstream\n", self, len(offsets), trailer, rows.Len())
	out.Write(rows.Bytes())
	out.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&out, "startxref\n%d\n%%%%EOF\n", offsets[self])
	return out.Bytes()
}
