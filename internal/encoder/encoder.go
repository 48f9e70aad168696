// Package encoder wraps the format-specific image codecs behind a
// uniform encode contract and a capability-probing registry.
package encoder

import "image"

// Encoder converts an in-memory image to an encoded byte stream.
// Implementations are deterministic for identical (image, options)
// pairs and safe for sequential reuse.
type Encoder interface {
	// FormatName returns the canonical format name (e.g. "JPEG").
	FormatName() string

	// Encode converts the image to bytes using the given options.
	Encode(img image.Image, opts Options) ([]byte, error)

	// SupportsQuality reports whether the quality option has any effect.
	SupportsQuality() bool

	// SupportsAlpha reports whether the format can carry transparency.
	SupportsAlpha() bool

	// Extension returns the canonical file extension, with the dot.
	Extension() string

	// QualityRange returns the valid quality bounds for this format.
	QualityRange() (min, max int)

	// Available reports whether the backend is usable in this process.
	// Optional backends may be absent; absence is not an error.
	Available() bool
}
