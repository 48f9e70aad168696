package compression

import (
	"image"
	"testing"

	"imagepress/internal/encoder"
)

func transparentImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 200
		img.Pix[i+3] = 128
	}
	return img
}

func TestAdvisorSortsBySize(t *testing.T) {
	jpeg := newStubEncoder("JPEG", 10_000, 100)
	webp := newStubEncoder("WEBP", 5000, 50)
	avif := newStubEncoder("AVIF", 1000, 10)
	reg := encoder.NewRegistryWith(jpeg, webp, avif)

	advisor := NewAdvisor(reg, 60)
	suggestions := advisor.AllSuggestions(testImage(16, 16), 1024*1024)

	if len(suggestions) != 3 {
		t.Fatalf("Expected 3 suggestions, got %d", len(suggestions))
	}
	if suggestions[0].Format != "AVIF" {
		t.Errorf("Expected AVIF smallest, got %s", suggestions[0].Format)
	}
	for i := 1; i < len(suggestions); i++ {
		if suggestions[i].EstimatedSize < suggestions[i-1].EstimatedSize {
			t.Error("Suggestions not sorted by size")
		}
	}
	for _, s := range suggestions {
		if s.EstimatedQuality != 60 {
			t.Errorf("Estimates should use the quality floor, got %d", s.EstimatedQuality)
		}
		if !s.CanAchieveTarget {
			t.Errorf("%s should achieve a 1 MB target at %d bytes", s.Format, s.EstimatedSize)
		}
	}
}

func TestAdvisorSkipsAlphaIncapableFormats(t *testing.T) {
	jpeg := newStubEncoder("JPEG", 1000, 10) // no alpha
	webp := newStubEncoder("WEBP", 5000, 50)
	webp.alpha = true
	reg := encoder.NewRegistryWith(jpeg, webp)

	advisor := NewAdvisor(reg, 60)
	suggestions := advisor.AllSuggestions(transparentImage(16, 16), 1024*1024)

	if len(suggestions) != 1 {
		t.Fatalf("Expected 1 suggestion, got %d", len(suggestions))
	}
	if suggestions[0].Format != "WEBP" {
		t.Errorf("Expected only WEBP for a transparent image, got %s", suggestions[0].Format)
	}
}

func TestAdvisorSuggestFormat(t *testing.T) {
	jpeg := newStubEncoder("JPEG", 100_000, 1000)
	avif := newStubEncoder("AVIF", 100, 10)
	reg := encoder.NewRegistryWith(jpeg, avif)
	advisor := NewAdvisor(reg, 60)
	img := testImage(16, 16)

	// Current format already fits: no suggestion.
	if s := advisor.SuggestFormat(img, 10_000, "JPEG", 9000); s != nil {
		t.Errorf("Expected no suggestion when current format fits, got %+v", s)
	}

	// Current format misses: AVIF should be proposed.
	s := advisor.SuggestFormat(img, 10_000, "JPEG", 200_000)
	if s == nil {
		t.Fatal("Expected a suggestion")
	}
	if s.Format != "AVIF" {
		t.Errorf("Expected AVIF, got %s", s.Format)
	}
	if !s.CanAchieveTarget {
		t.Error("AVIF estimate should fit the target")
	}
}

func TestAdvisorSuggestFormatNoAlternative(t *testing.T) {
	reg := encoder.NewRegistryWith(newStubEncoder("JPEG", 100_000, 1000))
	advisor := NewAdvisor(reg, 60)

	if s := advisor.SuggestFormat(testImage(16, 16), 10_000, "JPEG", 200_000); s != nil {
		t.Errorf("Expected nil with no alternative available, got %+v", s)
	}
}

func TestAdvisorComparison(t *testing.T) {
	jpeg := newStubEncoder("JPEG", 10_000, 100)
	avif := newStubEncoder("AVIF", 1000, 10)
	reg := encoder.NewRegistryWith(jpeg, avif)

	advisor := NewAdvisor(reg, 60)
	rows := advisor.Comparison(testImage(16, 16), 85)

	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].Format != "AVIF" {
		t.Errorf("Expected AVIF first, got %s", rows[0].Format)
	}
	if rows[0].SizeBytes != 1000+10*85 {
		t.Errorf("Unexpected AVIF size %d", rows[0].SizeBytes)
	}
}

func TestRecommendForUseCase(t *testing.T) {
	withAVIF := encoder.NewRegistryWith(
		newStubEncoder("JPEG", 100, 1),
		newStubEncoder("WEBP", 100, 1),
		newStubEncoder("AVIF", 100, 1),
	)
	withoutAVIF := encoder.NewRegistryWith(
		newStubEncoder("JPEG", 100, 1),
		newStubEncoder("WEBP", 100, 1),
	)

	tests := []struct {
		reg          *encoder.Registry
		useCase      string
		transparency bool
		want         string
	}{
		{withAVIF, "web", false, "AVIF"},
		{withoutAVIF, "web", false, "WEBP"},
		{withAVIF, "social", false, "JPEG"},
		{withAVIF, "universal", false, "JPEG"},
		{withAVIF, "archive", false, "PNG"},
		{withAVIF, "smallest", false, "AVIF"},
		{withAVIF, "social", true, "AVIF"},
		{withoutAVIF, "social", true, "WEBP"},
	}

	for _, tt := range tests {
		advisor := NewAdvisor(tt.reg, 60)
		got, err := advisor.RecommendForUseCase(tt.useCase, tt.transparency)
		if err != nil {
			t.Fatalf("RecommendForUseCase(%q): %v", tt.useCase, err)
		}
		if got != tt.want {
			t.Errorf("RecommendForUseCase(%q, alpha=%v) = %s, want %s", tt.useCase, tt.transparency, got, tt.want)
		}
	}

	advisor := NewAdvisor(withAVIF, 60)
	if _, err := advisor.RecommendForUseCase("billboard", false); err == nil {
		t.Error("Expected error for unknown use case")
	}
}

func TestSuggestionSizeMB(t *testing.T) {
	s := Suggestion{EstimatedSize: 1024 * 1024}
	if s.EstimatedSizeMB() != 1 {
		t.Errorf("Expected 1 MB, got %g", s.EstimatedSizeMB())
	}
}
