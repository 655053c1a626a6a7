package pdfstamp

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/digitorus/pdf"
)

// serializer writes parsed values back out in PDF syntax.
//
// A composite value whose object pointer differs from its owner's was reached through an
// indirect reference and is written as "id gen R"; everything else is written inline.
type serializer struct {
	buf *bytes.Buffer
}

func (s serializer) value(v pdf.Value, owner objRef) error {
	switch v.Kind() {
	case pdf.Null:
		s.buf.WriteString("null")
	case pdf.Bool:
		s.buf.WriteString(strconv.FormatBool(v.Bool()))
	case pdf.Integer:
		s.buf.WriteString(strconv.FormatInt(v.Int64(), 10))
	case pdf.Real:
		s.buf.WriteString(formatNumber(v.Float64()))
	case pdf.String:
		s.buf.WriteByte('<')
		s.buf.WriteString(hex.EncodeToString([]byte(v.RawString())))
		s.buf.WriteByte('>')
	case pdf.Name:
		s.buf.WriteString(encodeName(v.Name()))
	case pdf.Array, pdf.Dict, pdf.Stream:
		if ref := refOf(v); ref != owner {
			s.buf.WriteString(ref.String())
			return nil
		}
		switch v.Kind() {
		case pdf.Array:
			return s.array(v, owner)
		case pdf.Dict:
			return s.dict(v, owner, nil)
		default:
			return malformed("direct stream object inside %s", owner)
		}
	default:
		return malformed("unsupported object kind %v", v.Kind())
	}
	return nil
}

func (s serializer) array(v pdf.Value, owner objRef) error {
	s.buf.WriteByte('[')
	for i := range v.Len() {
		if i > 0 {
			s.buf.WriteByte(' ')
		}
		if err := s.value(v.Index(i), owner); err != nil {
			return err
		}
	}
	s.buf.WriteByte(']')
	return nil
}

// dict writes the entries of v, letting override replace (or add) entries by key.
// Keys in override are written in the order given after the original keys.
func (s serializer) dict(v pdf.Value, owner objRef, override []entry) error {
	replaced := make(map[string]bool, len(override))
	for _, e := range override {
		replaced[e.key] = true
	}

	s.buf.WriteString("<<")
	if v.Kind() == pdf.Dict || v.Kind() == pdf.Stream {
		for _, key := range v.Keys() {
			if replaced[key] {
				continue
			}
			s.buf.WriteByte(' ')
			s.buf.WriteString(encodeName(key))
			s.buf.WriteByte(' ')
			if err := s.value(v.Key(key), owner); err != nil {
				return err
			}
		}
	}
	for _, e := range override {
		s.buf.WriteByte(' ')
		s.buf.WriteString(encodeName(e.key))
		s.buf.WriteByte(' ')
		if err := e.write(s); err != nil {
			return err
		}
	}
	s.buf.WriteString(" >>")
	return nil
}

// entry is a dictionary entry produced by the stamper rather than copied from the source document.
type entry struct {
	key   string
	write func(serializer) error
}

func rawEntry(key, raw string) entry {
	return entry{key: key, write: func(s serializer) error {
		s.buf.WriteString(raw)
		return nil
	}}
}

func refEntry(key string, ref objRef) entry {
	return rawEntry(key, ref.String())
}

// formatNumber writes a real without exponent notation, which PDF does not allow.
func formatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// encodeName escapes delimiter, whitespace and non-printable bytes with #xx.
func encodeName(name string) string {
	var b bytes.Buffer
	b.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || strings.IndexByte("#()<>[]{}/%", c) >= 0 {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
