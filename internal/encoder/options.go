package encoder

import "fmt"

// Chroma subsampling modes. Lower resolution color planes trade color
// detail for file size.
const (
	Chroma444 = 0 // best color quality
	Chroma422 = 1 // balanced
	Chroma420 = 2 // smallest file size
)

// ChromaLabels maps chroma modes to human-readable descriptions.
var ChromaLabels = map[int]string{
	Chroma444: "Best Color Quality",
	Chroma422: "Balanced",
	Chroma420: "Smallest File Size",
}

// Options holds the parameters for a single encode call.
// Values are copied, not mutated: use WithQuality to derive a variant.
type Options struct {
	Quality     int  // 1-100
	Chroma      int  // Chroma444, Chroma422 or Chroma420
	Progressive bool // progressive JPEG encoding
	Optimize    bool // apply the lossless re-optimization pass if present
	Effort      int  // 0-10, codec effort/speed tradeoff
}

// DefaultOptions returns the options used when the caller does not
// specify any.
func DefaultOptions() Options {
	return Options{
		Quality:  85,
		Chroma:   Chroma420,
		Optimize: true,
		Effort:   4,
	}
}

// NewOptions builds a validated Options value.
func NewOptions(quality, chroma int, progressive, optimize bool, effort int) (Options, error) {
	o := Options{
		Quality:     quality,
		Chroma:      chroma,
		Progressive: progressive,
		Optimize:    optimize,
		Effort:      effort,
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Validate checks the option invariants. Invalid values are rejected
// outright rather than clamped.
func (o Options) Validate() error {
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("quality must be 1-100, got %d", o.Quality)
	}
	if o.Chroma != Chroma444 && o.Chroma != Chroma422 && o.Chroma != Chroma420 {
		return fmt.Errorf("chroma subsampling must be 0, 1 or 2, got %d", o.Chroma)
	}
	if o.Effort < 0 || o.Effort > 10 {
		return fmt.Errorf("effort must be 0-10, got %d", o.Effort)
	}
	return nil
}

// WithQuality returns a copy of the options at a different quality
// level. The receiver is left unchanged.
func (o Options) WithQuality(quality int) Options {
	o.Quality = quality
	return o
}
