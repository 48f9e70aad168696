package encoder

import (
	"bytes"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/avif"
)

// AVIF encodes images as AVIF. Availability is probed once with a tiny
// test encode since the codec runs inside an embedded wasm runtime that
// can be unusable on some platforms.
type AVIF struct {
	probeOnce sync.Once
	available bool
}

func NewAVIF() *AVIF { return &AVIF{} }

func (e *AVIF) FormatName() string       { return "AVIF" }
func (e *AVIF) SupportsQuality() bool    { return true }
func (e *AVIF) SupportsAlpha() bool      { return true }
func (e *AVIF) Extension() string        { return ".avif" }
func (e *AVIF) QualityRange() (int, int) { return 1, 100 }

func (e *AVIF) Available() bool {
	e.probeOnce.Do(func() {
		defer func() {
			if recover() != nil {
				e.available = false
			}
		}()
		probe := image.NewRGBA(image.Rect(0, 0, 8, 8))
		var buf bytes.Buffer
		err := avif.Encode(&buf, probe, avif.Options{Quality: 50, Speed: 10})
		e.available = err == nil && buf.Len() > 0
	})
	return e.available
}

func (e *AVIF) Encode(img image.Image, opts Options) ([]byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !e.Available() {
		return nil, fmt.Errorf("avif encoder is not available on this platform")
	}

	// Effort 0 means fastest for us but slowest for the codec, so invert.
	speed := 10 - opts.Effort
	if speed < 0 {
		speed = 0
	}

	var buf bytes.Buffer
	err := avif.Encode(&buf, img, avif.Options{
		Quality:      opts.Quality,
		QualityAlpha: opts.Quality,
		Speed:        speed,
	})
	if err != nil {
		return nil, fmt.Errorf("avif encode: %w", err)
	}
	return buf.Bytes(), nil
}
