package encoder

import (
	"fmt"
	"strings"
)

// formatOrder fixes the listing order for user-facing output.
var formatOrder = []string{"JPEG", "WEBP", "PNG", "AVIF"}

// Registry holds the encoders whose codecs are usable on this platform.
type Registry struct {
	encoders map[string]Encoder
}

// NewRegistry builds a registry with all built-in encoders, dropping
// any whose availability probe fails.
func NewRegistry() *Registry {
	optimizer := NewOptimizer()
	return NewRegistryWith(
		NewJPEG(optimizer),
		NewWebP(),
		NewPNG(),
		NewAVIF(),
	)
}

// NewRegistryWith builds a registry from explicit encoders. Unavailable
// encoders are skipped.
func NewRegistryWith(encoders ...Encoder) *Registry {
	r := &Registry{encoders: make(map[string]Encoder, len(encoders))}
	for _, enc := range encoders {
		if enc.Available() {
			r.encoders[strings.ToUpper(enc.FormatName())] = enc
		}
	}
	return r
}

// Get looks up an encoder by format name, case-insensitively.
func (r *Registry) Get(format string) (Encoder, error) {
	enc, ok := r.encoders[strings.ToUpper(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q (available: %s)", format, strings.Join(r.AvailableFormats(), ", "))
	}
	return enc, nil
}

// IsAvailable reports whether a format can be encoded.
func (r *Registry) IsAvailable(format string) bool {
	_, ok := r.encoders[strings.ToUpper(format)]
	return ok
}

// AvailableFormats lists registered formats in a stable order.
func (r *Registry) AvailableFormats() []string {
	formats := make([]string, 0, len(r.encoders))
	for _, name := range formatOrder {
		if _, ok := r.encoders[name]; ok {
			formats = append(formats, name)
		}
	}
	for name := range r.encoders {
		known := false
		for _, ordered := range formatOrder {
			if name == ordered {
				known = true
				break
			}
		}
		if !known {
			formats = append(formats, name)
		}
	}
	return formats
}
