package tickets

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/disintegration/imaging"
)

const (
	DefaultSize   = 300
	DefaultMargin = 10
)

// Renderer draws payloads as square PNG QR codes with a white quiet margin.
// Every module is drawn with the same whole number of pixels, so the code
// rarely fills the canvas exactly; the leftover pixels widen the border.
type Renderer struct {
	Size   int // total width and height in pixels
	Margin int // minimum white border on each side in pixels
}

// NewRenderer returns a renderer, falling back to defaults for non-positive values.
func NewRenderer(size, margin int) *Renderer {
	if size <= 0 {
		size = DefaultSize
	}
	if margin < 0 || 2*margin >= size {
		margin = DefaultMargin
	}
	return &Renderer{Size: size, Margin: margin}
}

// Image encodes p at the highest error correction level.
func (r *Renderer) Image(p Payload) (image.Image, error) {
	text, err := p.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	code, err := qr.Encode(string(text), qr.H, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	modules := code.Bounds().Dx()
	scale := (r.Size - 2*r.Margin) / modules
	if scale < 1 {
		return nil, fmt.Errorf("qr needs %d modules, canvas %dpx with %dpx margin is too small", modules, r.Size, r.Margin)
	}
	side := modules * scale
	scaled, err := barcode.Scale(code, side, side)
	if err != nil {
		return nil, fmt.Errorf("scale qr: %w", err)
	}
	canvas := imaging.New(r.Size, r.Size, color.White)
	return imaging.PasteCenter(canvas, scaled), nil
}

// PNG returns the raw image, e.g. for mail attachments.
func (r *Renderer) PNG(p Payload) ([]byte, error) {
	img, err := r.Image(p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL returns the image as an embeddable data URL.
func (r *Renderer) DataURL(p Payload) (string, error) {
	raw, err := r.PNG(p)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw), nil
}
