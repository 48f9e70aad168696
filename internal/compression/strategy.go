package compression

import (
	"fmt"
	"image"
	"strings"

	"imagepress/internal/encoder"
	"imagepress/internal/similarity"
)

// Format order for quick mode: least aggressive first, so quality is
// preserved whenever the target allows it.
var formatPriority = []string{"JPEG", "WEBP", "AVIF"}

// Formats worth suggesting when a pinned format misses its target.
var aggressiveFormats = []string{"WEBP", "AVIF"}

// StrategyConfig is the serializable description of a strategy. It
// round-trips through JSON presets.
type StrategyConfig struct {
	TargetMB      float64 `json:"target_mb,omitempty"`
	Format        string  `json:"format"`
	Quality       int     `json:"quality"`
	MinQuality    int     `json:"min_quality"`
	Chroma        int     `json:"chroma_subsampling"`
	Progressive   bool    `json:"progressive"`
	Optimize      bool    `json:"optimize"`
	CalculateSSIM bool    `json:"calculate_ssim"`
}

// TargetBytes converts the megabyte target to bytes, 0 when unset.
func (c StrategyConfig) TargetBytes() int64 {
	if c.TargetMB <= 0 {
		return 0
	}
	return int64(c.TargetMB * 1024 * 1024)
}

// Strategy compresses one decoded image according to a mode's rules.
type Strategy interface {
	Compress(img image.Image) (Result, error)
	Config() StrategyConfig
}

// QuickStrategy hits a size target with automatic format selection:
// formats are tried in priority order and the first one that reaches
// the target wins. When a preferred format is pinned, only that format
// is tried and a missed target gets format suggestions attached.
type QuickStrategy struct {
	targetMB      float64
	autoFormat    bool
	preferred     string
	minQuality    int
	calculateSSIM bool
	reg           *encoder.Registry
	cmp           similarity.Comparator
}

// NewQuickStrategy builds a quick strategy. preferred == "AUTO" enables
// multi-format search.
func NewQuickStrategy(reg *encoder.Registry, cmp similarity.Comparator, targetMB float64, preferred string, minQuality int, calculateSSIM bool) (*QuickStrategy, error) {
	if targetMB <= 0 {
		return nil, fmt.Errorf("quick mode requires a positive size target, got %g MB", targetMB)
	}
	preferred = strings.ToUpper(preferred)
	if minQuality <= 0 {
		minQuality = 60
	}
	return &QuickStrategy{
		targetMB:      targetMB,
		autoFormat:    preferred == "" || preferred == "AUTO",
		preferred:     preferred,
		minQuality:    minQuality,
		calculateSSIM: calculateSSIM,
		reg:           reg,
		cmp:           cmp,
	}, nil
}

func (s *QuickStrategy) Compress(img image.Image) (Result, error) {
	targetBytes := int64(s.targetMB * 1024 * 1024)

	var formats []string
	if s.autoFormat {
		for _, name := range formatPriority {
			if s.reg.IsAvailable(name) {
				formats = append(formats, name)
			}
		}
	} else {
		formats = []string{s.preferred}
	}

	opts := encoder.Options{
		Quality:  100,
		Chroma:   encoder.Chroma420,
		Optimize: true,
		Effort:   encoder.DefaultOptions().Effort,
	}

	var best *Result
	for _, name := range formats {
		enc, err := s.reg.Get(name)
		if err != nil {
			if s.autoFormat {
				continue
			}
			return Result{}, err
		}

		engine := NewEngine(enc, s.cmp)
		result, err := engine.CompressToTarget(img, targetBytes, s.minQuality, 100, opts, s.calculateSSIM)
		if err != nil {
			if s.autoFormat {
				continue
			}
			return Result{}, err
		}

		if result.Success {
			return result, nil
		}
		if best == nil || result.Size < best.Size {
			r := result
			best = &r
		}
	}

	if best == nil {
		return Result{}, fmt.Errorf("no encoder available for quick compression")
	}

	// A pinned format never tried the others, so check whether a more
	// aggressive one would have fit.
	if !s.autoFormat {
		s.addFormatSuggestion(img, targetBytes, best)
	}
	return *best, nil
}

func (s *QuickStrategy) addFormatSuggestion(img image.Image, targetBytes int64, result *Result) {
	for _, name := range aggressiveFormats {
		if name == result.Format || !s.reg.IsAvailable(name) {
			continue
		}
		enc, err := s.reg.Get(name)
		if err != nil {
			continue
		}

		probe, err := NewEngine(enc, nil).CompressAtQuality(img, encoder.DefaultOptions().WithQuality(s.minQuality), false)
		if err != nil {
			continue
		}
		if probe.Size <= targetBytes {
			result.SuggestedFormat = name
			result.SuggestedFormatSize = probe.Size
			return
		}
	}
}

func (s *QuickStrategy) Config() StrategyConfig {
	format := s.preferred
	if s.autoFormat {
		format = "AUTO"
	}
	return StrategyConfig{
		TargetMB:      s.targetMB,
		Format:        format,
		Quality:       100,
		MinQuality:    s.minQuality,
		Chroma:        encoder.Chroma420,
		Optimize:      true,
		CalculateSSIM: s.calculateSSIM,
	}
}

// AdvancedStrategy gives full manual control: exact format, quality and
// encoding knobs, with an optional size target. Without a target the
// quality is used directly; with one, the target search is capped at
// the configured quality.
type AdvancedStrategy struct {
	cfg StrategyConfig
	reg *encoder.Registry
	cmp similarity.Comparator
}

func NewAdvancedStrategy(reg *encoder.Registry, cmp similarity.Comparator, cfg StrategyConfig) (*AdvancedStrategy, error) {
	cfg.Format = strings.ToUpper(cfg.Format)
	if cfg.Quality == 0 {
		cfg.Quality = 85
	}
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = 60
	}
	if !reg.IsAvailable(cfg.Format) {
		return nil, fmt.Errorf("unsupported format %q", cfg.Format)
	}
	return &AdvancedStrategy{cfg: cfg, reg: reg, cmp: cmp}, nil
}

func (s *AdvancedStrategy) Compress(img image.Image) (Result, error) {
	enc, err := s.reg.Get(s.cfg.Format)
	if err != nil {
		return Result{}, err
	}

	opts := encoder.Options{
		Quality:     s.cfg.Quality,
		Chroma:      s.cfg.Chroma,
		Progressive: s.cfg.Progressive,
		Optimize:    s.cfg.Optimize,
		Effort:      encoder.DefaultOptions().Effort,
	}

	engine := NewEngine(enc, s.cmp)

	targetBytes := s.cfg.TargetBytes()
	if targetBytes == 0 {
		return engine.CompressAtQuality(img, opts, s.cfg.CalculateSSIM)
	}

	result, err := engine.CompressToTarget(img, targetBytes, s.cfg.MinQuality, s.cfg.Quality, opts, s.cfg.CalculateSSIM)
	if err != nil {
		return Result{}, err
	}
	if !result.Success {
		s.addFormatSuggestion(img, targetBytes, &result)
	}
	return result, nil
}

func (s *AdvancedStrategy) addFormatSuggestion(img image.Image, targetBytes int64, result *Result) {
	for _, name := range []string{"AVIF", "WEBP", "JPEG"} {
		if name == s.cfg.Format || !s.reg.IsAvailable(name) {
			continue
		}
		enc, err := s.reg.Get(name)
		if err != nil {
			continue
		}

		probe, err := NewEngine(enc, nil).CompressAtQuality(img, encoder.DefaultOptions().WithQuality(s.cfg.MinQuality), false)
		if err != nil {
			continue
		}
		if probe.Size <= targetBytes {
			result.SuggestedFormat = name
			result.SuggestedFormatSize = probe.Size
			return
		}
	}
}

func (s *AdvancedStrategy) Config() StrategyConfig {
	return s.cfg
}

// NewStrategy builds a strategy from a mode name and config.
func NewStrategy(reg *encoder.Registry, cmp similarity.Comparator, mode string, cfg StrategyConfig) (Strategy, error) {
	switch strings.ToLower(mode) {
	case "quick":
		if cfg.TargetMB <= 0 {
			return nil, fmt.Errorf("quick mode requires a size target")
		}
		return NewQuickStrategy(reg, cmp, cfg.TargetMB, cfg.Format, cfg.MinQuality, cfg.CalculateSSIM)
	case "advanced":
		return NewAdvancedStrategy(reg, cmp, cfg)
	default:
		return nil, fmt.Errorf("unknown mode %q (use \"quick\" or \"advanced\")", mode)
	}
}
