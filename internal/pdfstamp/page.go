package pdfstamp

import (
	"bytes"

	"github.com/digitorus/pdf"
)

// contentRefs lists the content streams of p in drawing order.
func contentRefs(p *page) ([]objRef, error) {
	c := p.v.Key("Contents")
	switch c.Kind() {
	case pdf.Null:
		return nil, nil
	case pdf.Stream:
		return []objRef{refOf(c)}, nil
	case pdf.Array:
		refs := make([]objRef, 0, c.Len())
		for i := range c.Len() {
			s := c.Index(i)
			if s.Kind() != pdf.Stream {
				return nil, malformed("page %d: /Contents entry %d is not a stream", p.number, i)
			}
			refs = append(refs, refOf(s))
		}
		return refs, nil
	default:
		return nil, malformed("page %d: invalid /Contents", p.number)
	}
}

// rewritePage serializes the page dictionary with new contents and with the resources it
// inherits merged with the new font and XObject entries.
func rewritePage(p *page, contents []objRef, fonts, xobjects []entry) ([]byte, error) {
	var b bytes.Buffer
	s := serializer{buf: &b}

	contentsEntry := entry{key: "Contents", write: func(s serializer) error {
		s.buf.WriteByte('[')
		for i, ref := range contents {
			if i > 0 {
				s.buf.WriteByte(' ')
			}
			s.buf.WriteString(ref.String())
		}
		s.buf.WriteByte(']')
		return nil
	}}

	resourcesEntry := entry{key: "Resources", write: func(s serializer) error {
		return writeResources(s, p.resources, fonts, xobjects)
	}}

	if err := s.dict(p.v, p.ref, []entry{contentsEntry, resourcesEntry}); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func writeResources(s serializer, res pdf.Value, fonts, xobjects []entry) error {
	var extra []entry
	if len(fonts) > 0 {
		extra = append(extra, mergedSubdict(res, "Font", fonts))
	}
	if len(xobjects) > 0 {
		extra = append(extra, mergedSubdict(res, "XObject", xobjects))
	}

	if res.Kind() != pdf.Dict {
		return s.dict(pdf.Value{}, objRef{}, extra)
	}
	return s.dict(res, refOf(res), extra)
}

// mergedSubdict copies res[key] (inline, even if it was an indirect object) and adds entries.
func mergedSubdict(res pdf.Value, key string, add []entry) entry {
	return entry{key: key, write: func(s serializer) error {
		sub := res.Key(key)
		if sub.Kind() != pdf.Dict {
			return s.dict(pdf.Value{}, objRef{}, add)
		}
		return s.dict(sub, refOf(sub), add)
	}}
}
