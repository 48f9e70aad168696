// Package processor runs queued image tasks (crop, resize, pad,
// compress) sequentially and writes the results to an output directory.
package processor

import (
	"fmt"
	"image"
	"os"
	"strings"

	"imagepress/internal/compression"
	"imagepress/internal/encoder"
	"imagepress/internal/similarity"
)

// Task describes one image to process. Zero values get defaults applied
// by Validate; geometry fields are optional.
type Task struct {
	Path string

	// Optional geometry, applied in order: crop, resize, padding.
	Crop    *image.Rectangle
	Resize  *image.Point
	Padding int

	Format  string
	Quality int

	// Compression settings. TargetSizeMB == 0 means no size target.
	Mode         string
	TargetSizeMB float64
	MinQuality   int
	Chroma       int
	Progressive  bool
	Optimize     bool

	CalculateSimilarity bool
	PreserveMetadata    bool
}

// Validate applies defaults and rejects invalid settings. Rejection is
// preferred over silent clamping so a bad preset surfaces immediately.
func (t *Task) Validate(reg *encoder.Registry) error {
	if t.Path == "" {
		return fmt.Errorf("task has no input path")
	}
	if _, err := os.Stat(t.Path); err != nil {
		return fmt.Errorf("image file not found: %s", t.Path)
	}

	if t.Format == "" {
		t.Format = "JPEG"
	}
	t.Format = strings.ToUpper(t.Format)
	if t.Format != "AUTO" && !reg.IsAvailable(t.Format) {
		return fmt.Errorf("unsupported format %q (available: %s)", t.Format, strings.Join(reg.AvailableFormats(), ", "))
	}

	if t.Quality == 0 {
		t.Quality = 95
	}
	if t.Quality < 1 || t.Quality > 100 {
		return fmt.Errorf("quality must be 1-100, got %d", t.Quality)
	}

	if t.Mode == "" {
		t.Mode = "advanced"
	}
	t.Mode = strings.ToLower(t.Mode)
	if t.Mode != "quick" && t.Mode != "advanced" {
		return fmt.Errorf("unknown mode %q", t.Mode)
	}
	if t.Format == "AUTO" && t.Mode != "quick" {
		return fmt.Errorf("format AUTO requires quick mode")
	}

	if t.TargetSizeMB < 0 {
		return fmt.Errorf("target size must be >= 0, got %g", t.TargetSizeMB)
	}
	if t.Mode == "quick" && t.TargetSizeMB == 0 {
		return fmt.Errorf("quick mode requires a size target")
	}

	if t.MinQuality == 0 {
		t.MinQuality = 60
	}
	if t.MinQuality < 1 || t.MinQuality > 100 {
		return fmt.Errorf("min quality must be 1-100, got %d", t.MinQuality)
	}

	if t.Chroma < 0 || t.Chroma > 2 {
		return fmt.Errorf("chroma subsampling must be 0, 1 or 2, got %d", t.Chroma)
	}

	if t.Padding < 0 {
		return fmt.Errorf("padding must be >= 0, got %d", t.Padding)
	}

	if t.Resize != nil && (t.Resize.X <= 0 || t.Resize.Y <= 0) {
		return fmt.Errorf("invalid resize dimensions %dx%d", t.Resize.X, t.Resize.Y)
	}

	return nil
}

// Strategy builds the compression strategy for this task, or nil when
// no size target is set and plain quality encoding applies.
func (t *Task) Strategy(reg *encoder.Registry, cmp similarity.Comparator) (compression.Strategy, error) {
	if t.TargetSizeMB == 0 {
		return nil, nil
	}
	return compression.NewStrategy(reg, cmp, t.Mode, compression.StrategyConfig{
		TargetMB:      t.TargetSizeMB,
		Format:        t.Format,
		Quality:       t.Quality,
		MinQuality:    t.MinQuality,
		Chroma:        t.Chroma,
		Progressive:   t.Progressive,
		Optimize:      t.Optimize,
		CalculateSSIM: t.CalculateSimilarity,
	})
}

// wasCropped reports whether the task alters pixels geometrically,
// which disables the copy-through shortcuts.
func (t *Task) wasCropped() bool {
	return t.Crop != nil || t.Resize != nil || t.Padding > 0
}
