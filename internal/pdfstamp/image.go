package pdfstamp

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
)

// MaxImagePixels bounds the decoded size of an inserted image.
const MaxImagePixels = 4096 * 4096

// xobjectImage is an image ready to be written as an /Image XObject.
type xobjectImage struct {
	width, height int

	// colorSpace is DeviceRGB, DeviceGray or DeviceCMYK
	colorSpace string

	// data holds either raw samples (filter FlateDecode) or a JPEG stream (filter DCTDecode)
	data   []byte
	filter string

	// alpha holds an 8 bit soft mask; nil when the image is opaque
	alpha []byte
}

// decodeImage converts PNG or JPEG bytes to an XObject. JPEG data is embedded as is.
func decodeImage(data []byte) (*xobjectImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrInvalidImage)
	}
	if cfg.Width*cfg.Height > MaxImagePixels {
		return nil, fmt.Errorf("%w: image is %dx%d pixels, maximum is %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxImagePixels)
	}

	if format == "jpeg" {
		switch cfg.ColorModel {
		case color.GrayModel:
			return &xobjectImage{width: cfg.Width, height: cfg.Height, colorSpace: "DeviceGray", data: data, filter: "DCTDecode"}, nil
		case color.YCbCrModel:
			return &xobjectImage{width: cfg.Width, height: cfg.Height, colorSpace: "DeviceRGB", data: data, filter: "DCTDecode"}, nil
		}
		// CMYK and other JPEG variants are re-encoded below
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return rasterize(img), nil
}

func rasterize(img image.Image) *xobjectImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	rgb := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	opaque := true

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgb = append(rgb, c.R, c.G, c.B)
			alpha = append(alpha, c.A)
			if c.A != 0xff {
				opaque = false
			}
		}
	}

	out := &xobjectImage{width: w, height: h, colorSpace: "DeviceRGB", data: rgb, filter: "FlateDecode"}
	if !opaque {
		out.alpha = alpha
	}
	return out
}

// addImage writes the image (and its soft mask) to the update and returns the image object.
func (u *update) addImage(img *xobjectImage) (objRef, error) {
	head := fmt.Sprintf(" /Type /XObject /Subtype /Image /Width %d /Height %d /BitsPerComponent 8", img.width, img.height)

	if img.alpha != nil {
		mask, err := u.addStream(head+" /ColorSpace /DeviceGray", img.alpha, true)
		if err != nil {
			return objRef{}, err
		}
		head += " /SMask " + mask.String()
	}

	head += " /ColorSpace /" + img.colorSpace
	if img.filter == "DCTDecode" {
		return u.addStream(head+" /Filter /DCTDecode", img.data, false)
	}
	return u.addStream(head, img.data, true)
}

// imageOperators draws the named XObject scaled to fit r, preserving aspect ratio, centred.
func imageOperators(name string, img *xobjectImage, r box) []byte {
	scale := min(r.width()/float64(img.width), r.height()/float64(img.height))
	w := float64(img.width) * scale
	h := float64(img.height) * scale
	x := r.llx + (r.width()-w)/2
	y := r.lly + (r.height()-h)/2

	return []byte(fmt.Sprintf("q\n%s 0 0 %s %s %s cm\n/%s Do\nQ\n",
		formatNumber(w), formatNumber(h), formatNumber(x), formatNumber(y), name))
}
