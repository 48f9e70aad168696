package encoder

import (
	"bytes"
	"fmt"
	"image"

	"github.com/gen2brain/webp"
)

// WebP encodes images as lossy WebP. Alpha is preserved.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (e *WebP) FormatName() string       { return "WEBP" }
func (e *WebP) SupportsQuality() bool    { return true }
func (e *WebP) SupportsAlpha() bool      { return true }
func (e *WebP) Extension() string        { return ".webp" }
func (e *WebP) QualityRange() (int, int) { return 1, 100 }
func (e *WebP) Available() bool          { return true }

func (e *WebP) Encode(img image.Image, opts Options) ([]byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// The codec's method knob runs 0 (fast) to 6 (slowest/best).
	method := opts.Effort
	if method > 6 {
		method = 6
	}

	var buf bytes.Buffer
	err := webp.Encode(&buf, img, webp.Options{
		Quality: opts.Quality,
		Method:  method,
	})
	if err != nil {
		return nil, fmt.Errorf("webp encode: %w", err)
	}
	return buf.Bytes(), nil
}
