package pdfstamp

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

const (
	// DefaultMaxFontSize caps auto-sized text when an insertion does not set one.
	DefaultMaxFontSize = 18.0
	minFontSize        = 4.0
	lineGap            = 1.15

	// Helvetica ascender and descender in 1/1000 em.
	ascent  = 718.0
	descent = 207.0

	defaultGlyphWidth = 556
)

// helveticaWidths holds glyph advance widths (1/1000 em) for the printable ASCII range,
// from the Adobe Helvetica AFM. Helvetica-Oblique shares the same metrics.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space - /
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, // 0 - 9
	278, 278, 584, 584, 584, 556, 1015, // : - @
	667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, // A - M
	722, 778, 667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, // N - Z
	278, 278, 278, 469, 556, 333, // [ - `
	556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, // a - m
	556, 556, 556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, // n - z
	334, 260, 334, 584, // { - ~
}

func glyphWidth(c byte) int {
	if c >= 32 && c <= 126 {
		return helveticaWidths[c-32]
	}
	return defaultGlyphWidth
}

// encodeWinAnsi converts text to the single byte encoding used by the standard fonts.
// Characters outside Windows-1252 are replaced with '?'.
func encodeWinAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r == '\t' {
			r = ' '
		}
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok || b < 32 {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// textWidth returns the advance width of encoded text in 1/1000 em.
func textWidth(encoded []byte) int {
	w := 0
	for _, c := range encoded {
		w += glyphWidth(c)
	}
	return w
}

type textLine struct {
	encoded []byte
	x, y    float64
}

type textLayout struct {
	fontSize float64
	lines    []textLine
}

// layoutText fits text into r: the font size shrinks until the widest line fits the
// width and all lines fit the height, then the block is centred vertically.
func layoutText(text string, maxSize float64, r box, align Align) textLayout {
	if maxSize <= 0 {
		maxSize = DefaultMaxFontSize
	}

	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]textLine, len(raw))
	widest := 0
	for i, l := range raw {
		lines[i].encoded = encodeWinAnsi(l)
		widest = max(widest, textWidth(lines[i].encoded))
	}

	size := maxSize
	if widest > 0 {
		size = min(size, r.width()*1000/float64(widest))
	}
	size = min(size, r.height()/(float64(len(lines))*lineGap))
	size = max(size, minFontSize)

	leading := size * lineGap
	blockTop := r.lly + (r.height()+leading*float64(len(lines)))/2
	// baseline offset within one line box so that ascender and descender are centred
	baseline := (leading-(ascent+descent)*size/1000)/2 + ascent*size/1000

	for i := range lines {
		w := float64(textWidth(lines[i].encoded)) * size / 1000
		switch align {
		case AlignLeft:
			lines[i].x = r.llx
		case AlignRight:
			lines[i].x = r.urx - w
		default:
			lines[i].x = r.llx + (r.width()-w)/2
		}
		lines[i].y = blockTop - float64(i)*leading - baseline
	}

	return textLayout{fontSize: size, lines: lines}
}

// textOperators renders a layout as a content stream fragment using fontName.
func textOperators(fontName string, l textLayout) []byte {
	var b bytes.Buffer
	b.WriteString("q\nBT\n0 g\n")
	fmt.Fprintf(&b, "/%s %s Tf\n", fontName, formatNumber(l.fontSize))
	for _, line := range l.lines {
		if len(line.encoded) == 0 {
			continue
		}
		fmt.Fprintf(&b, "1 0 0 1 %s %s Tm\n<%s> Tj\n", formatNumber(line.x), formatNumber(line.y), hex.EncodeToString(line.encoded))
	}
	b.WriteString("ET\nQ\n")
	return b.Bytes()
}

func fontObject(f Font) []byte {
	return []byte(fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding >>", f))
}
