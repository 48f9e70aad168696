package compression

import (
	"fmt"
	"image"
	"sort"
	"strings"

	"imagepress/internal/encoder"
)

// Suggestion describes how an alternative format would perform for a
// given image and target.
type Suggestion struct {
	Format           string
	EstimatedSize    int64
	EstimatedQuality int
	Reason           string
	CanAchieveTarget bool
}

// EstimatedSizeMB returns the estimate in megabytes.
func (s Suggestion) EstimatedSizeMB() float64 {
	return float64(s.EstimatedSize) / (1024 * 1024)
}

// FormatComparison is one row of a same-quality format comparison.
type FormatComparison struct {
	Format        string  `json:"format"`
	SizeBytes     int64   `json:"size_bytes"`
	SizeMB        float64 `json:"size_mb"`
	Description   string  `json:"description"`
	SupportsAlpha bool    `json:"supports_alpha"`
}

var formatDescriptions = map[string]string{
	"AVIF": "Best compression, modern browsers",
	"WEBP": "Good compression, wide support",
	"JPEG": "Universal compatibility",
	"PNG":  "Lossless, large files",
}

// Advisor recommends output formats for an image and size target.
// Estimates come from real floor-quality encodes, not heuristics.
type Advisor struct {
	reg        *encoder.Registry
	minQuality int
}

// NewAdvisor returns an advisor estimating at the given quality floor.
// A non-positive floor falls back to 60.
func NewAdvisor(reg *encoder.Registry, minQuality int) *Advisor {
	if minQuality <= 0 {
		minQuality = 60
	}
	return &Advisor{reg: reg, minQuality: minQuality}
}

// SuggestFormat proposes an alternative when the current format cannot
// reach the target. It returns nil when the current format already can,
// or when no alternative exists. currentMinSize is the size at the
// quality floor with the current format; pass 0 when unknown.
func (a *Advisor) SuggestFormat(img image.Image, targetBytes int64, currentFormat string, currentMinSize int64) *Suggestion {
	if currentMinSize > 0 && currentMinSize <= targetBytes {
		return nil
	}

	suggestions := a.AllSuggestions(img, targetBytes)

	current := strings.ToUpper(currentFormat)
	var alternatives []Suggestion
	for _, s := range suggestions {
		if s.Format != current {
			alternatives = append(alternatives, s)
		}
	}
	if len(alternatives) == 0 {
		return nil
	}

	// Suggestions are sorted smallest first, so the first achievable
	// alternative is also the smallest one.
	for i := range alternatives {
		if alternatives[i].CanAchieveTarget {
			return &alternatives[i]
		}
	}
	return &alternatives[0]
}

// AllSuggestions estimates every available format at the quality floor,
// sorted smallest first. Formats that cannot encode the image (alpha
// without alpha support, encode errors) are skipped.
func (a *Advisor) AllSuggestions(img image.Image, targetBytes int64) []Suggestion {
	transparent := hasTransparency(img)

	var suggestions []Suggestion
	for _, name := range a.reg.AvailableFormats() {
		enc, err := a.reg.Get(name)
		if err != nil {
			continue
		}
		if transparent && !enc.SupportsAlpha() {
			continue
		}

		size, err := a.estimateSize(img, enc)
		if err != nil {
			continue
		}

		suggestions = append(suggestions, Suggestion{
			Format:           name,
			EstimatedSize:    size,
			EstimatedQuality: a.minQuality,
			Reason:           formatDescriptions[name],
			CanAchieveTarget: size <= targetBytes,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].EstimatedSize < suggestions[j].EstimatedSize
	})
	return suggestions
}

// Comparison encodes the image in every suitable format at one quality
// level, sorted smallest first.
func (a *Advisor) Comparison(img image.Image, quality int) []FormatComparison {
	transparent := hasTransparency(img)

	var rows []FormatComparison
	for _, name := range a.reg.AvailableFormats() {
		enc, err := a.reg.Get(name)
		if err != nil {
			continue
		}
		if transparent && !enc.SupportsAlpha() {
			continue
		}

		opts := encoder.DefaultOptions().WithQuality(clampQuality(enc, quality))
		data, err := enc.Encode(img, opts)
		if err != nil {
			continue
		}

		size := int64(len(data))
		rows = append(rows, FormatComparison{
			Format:        name,
			SizeBytes:     size,
			SizeMB:        float64(size) / (1024 * 1024),
			Description:   formatDescriptions[name],
			SupportsAlpha: enc.SupportsAlpha(),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SizeBytes < rows[j].SizeBytes
	})
	return rows
}

// RecommendForUseCase picks a format for a named use case, honoring a
// transparency requirement and encoder availability.
func (a *Advisor) RecommendForUseCase(useCase string, needsTransparency bool) (string, error) {
	avif := a.reg.IsAvailable("AVIF")

	if needsTransparency {
		if avif {
			return "AVIF", nil
		}
		return "WEBP", nil
	}

	smallest := "WEBP"
	if avif {
		smallest = "AVIF"
	}

	switch strings.ToLower(useCase) {
	case "web", "smallest":
		return smallest, nil
	case "social", "universal":
		return "JPEG", nil
	case "archive":
		return "PNG", nil
	default:
		return "", fmt.Errorf("unknown use case %q", useCase)
	}
}

func (a *Advisor) estimateSize(img image.Image, enc encoder.Encoder) (int64, error) {
	opts := encoder.Options{
		Quality:  clampQuality(enc, a.minQuality),
		Chroma:   encoder.Chroma420,
		Optimize: true,
		Effort:   encoder.DefaultOptions().Effort,
	}
	data, err := enc.Encode(img, opts)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func clampQuality(enc encoder.Encoder, quality int) int {
	min, max := enc.QualityRange()
	if quality < min {
		return min
	}
	if quality > max {
		return max
	}
	return quality
}

// hasTransparency reports whether any pixel is not fully opaque.
func hasTransparency(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, alpha := img.At(x, y).RGBA(); alpha != 0xffff {
				return true
			}
		}
	}
	return false
}
