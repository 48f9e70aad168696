package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// PNG encodes images losslessly. Quality settings have no effect on the
// output, so the quality range collapses to a single value.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (e *PNG) FormatName() string       { return "PNG" }
func (e *PNG) SupportsQuality() bool    { return false }
func (e *PNG) SupportsAlpha() bool      { return true }
func (e *PNG) Extension() string        { return ".png" }
func (e *PNG) QualityRange() (int, int) { return 100, 100 }
func (e *PNG) Available() bool          { return true }

func (e *PNG) Encode(img image.Image, opts Options) ([]byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}
