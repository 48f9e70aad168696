package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/jpegli"
)

// JPEG encodes images as baseline or progressive JPEG via jpegli.
// Transparency is flattened onto a white background before encoding.
// When the external jpegtran optimizer is present and opts.Optimize is
// set, a lossless re-compression pass shrinks the byte stream.
type JPEG struct {
	optimizer *Optimizer
}

// NewJPEG returns a JPEG encoder. optimizer may be nil.
func NewJPEG(optimizer *Optimizer) *JPEG {
	return &JPEG{optimizer: optimizer}
}

func (e *JPEG) FormatName() string       { return "JPEG" }
func (e *JPEG) SupportsQuality() bool    { return true }
func (e *JPEG) SupportsAlpha() bool      { return false }
func (e *JPEG) Extension() string        { return ".jpg" }
func (e *JPEG) QualityRange() (int, int) { return 1, 100 }
func (e *JPEG) Available() bool          { return true }

// Encode converts the image to JPEG bytes.
func (e *JPEG) Encode(img image.Image, opts Options) ([]byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	img = flattenAlpha(img)

	var buf bytes.Buffer
	encOpts := &jpegli.EncodingOptions{
		Quality:           opts.Quality,
		ChromaSubsampling: chromaRatio(opts.Chroma),
		OptimizeCoding:    true,
	}
	if opts.Progressive {
		encOpts.ProgressiveLevel = 2
	}
	if err := jpegli.Encode(&buf, img, encOpts); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	encoded := buf.Bytes()

	// Lossless pass only shrinks the stream, never changes pixels.
	// Any failure falls back to the unoptimized bytes.
	if opts.Optimize && e.optimizer != nil && e.optimizer.Available() {
		if optimized, err := e.optimizer.Optimize(encoded); err == nil && len(optimized) > 0 && len(optimized) < len(encoded) {
			encoded = optimized
		}
	}

	return encoded, nil
}

// chromaRatio maps the option modes onto the codec's subsample ratios.
func chromaRatio(chroma int) image.YCbCrSubsampleRatio {
	switch chroma {
	case Chroma444:
		return image.YCbCrSubsampleRatio444
	case Chroma422:
		return image.YCbCrSubsampleRatio422
	default:
		return image.YCbCrSubsampleRatio420
	}
}

// flattenAlpha composites a transparent image onto a white background.
// Already-opaque images are returned unchanged.
func flattenAlpha(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}
