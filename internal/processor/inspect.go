package processor

import (
	"fmt"
	"image"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// SourceInfo summarizes a source image without fully decoding it.
type SourceInfo struct {
	Path       string
	Format     string
	Width      int
	Height     int
	SizeBytes  int64
	HasAlpha   bool
	CapturedAt *time.Time
}

// Inspect reads the image header and EXIF capture time. EXIF absence is
// normal and leaves CapturedAt nil.
func Inspect(path string) (*SourceInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}

	src := &SourceInfo{
		Path:      path,
		Format:    format,
		Width:     cfg.Width,
		Height:    cfg.Height,
		SizeBytes: info.Size(),
		HasAlpha:  modelHasAlpha(cfg),
	}

	if captured := exifCaptureTime(path); captured != nil {
		src.CapturedAt = captured
	}

	return src, nil
}

func exifCaptureTime(path string) *time.Time {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil
	}
	t, err := x.DateTime()
	if err != nil {
		return nil
	}
	return &t
}

func modelHasAlpha(cfg image.Config) bool {
	if cfg.ColorModel == nil {
		return false
	}
	// Probe the model with a transparent color; alpha-capable models
	// keep the zero alpha.
	type rgbaColor interface {
		RGBA() (r, g, b, a uint32)
	}
	converted, ok := cfg.ColorModel.Convert(transparentProbe{}).(rgbaColor)
	if !ok {
		return false
	}
	_, _, _, a := converted.RGBA()
	return a == 0
}

type transparentProbe struct{}

func (transparentProbe) RGBA() (r, g, b, a uint32) { return 0, 0, 0, 0 }
