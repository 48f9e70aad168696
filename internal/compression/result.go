// Package compression drives quality search, format advice and the
// quick/advanced compression strategies on top of the encoder registry.
package compression

import "time"

// Result reports the outcome of one compression attempt. Success only
// reflects whether the size target was met; Data is populated either way
// so callers can decide what to do with a near miss.
type Result struct {
	Success    bool
	Data       []byte
	Size       int64
	Quality    int
	Format     string
	Width      int
	Height     int
	SSIM       *float64
	EncodeTime time.Duration
	Iterations int

	// Fallback advice, set only when the target was missed.
	SuggestedWidth      int
	SuggestedHeight     int
	SuggestedFormat     string
	SuggestedFormatSize int64

	Message string
}

// SizeMB returns the encoded size in megabytes.
func (r Result) SizeMB() float64 {
	return float64(r.Size) / (1024 * 1024)
}

// HasFallback reports whether the result carries dimension or format
// suggestions for a missed target.
func (r Result) HasFallback() bool {
	return (r.SuggestedWidth > 0 && r.SuggestedHeight > 0) || r.SuggestedFormat != ""
}
