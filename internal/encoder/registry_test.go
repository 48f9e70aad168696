package encoder

import (
	"image"
	"testing"
)

// fakeEncoder lets registry behavior be tested without real codecs.
type fakeEncoder struct {
	name      string
	available bool
}

func (f *fakeEncoder) FormatName() string       { return f.name }
func (f *fakeEncoder) SupportsQuality() bool    { return true }
func (f *fakeEncoder) SupportsAlpha() bool      { return false }
func (f *fakeEncoder) Extension() string        { return ".fake" }
func (f *fakeEncoder) QualityRange() (int, int) { return 1, 100 }
func (f *fakeEncoder) Available() bool          { return f.available }

func (f *fakeEncoder) Encode(image.Image, Options) ([]byte, error) {
	return []byte{0x1}, nil
}

func TestRegistryCaseInsensitiveLookup(t *testing.T) {
	reg := NewRegistryWith(&fakeEncoder{name: "JPEG", available: true})

	for _, name := range []string{"JPEG", "jpeg", "Jpeg"} {
		enc, err := reg.Get(name)
		if err != nil {
			t.Errorf("Get(%q) failed: %v", name, err)
			continue
		}
		if enc.FormatName() != "JPEG" {
			t.Errorf("Get(%q) returned %s", name, enc.FormatName())
		}
	}
}

func TestRegistryUnknownFormat(t *testing.T) {
	reg := NewRegistryWith(&fakeEncoder{name: "JPEG", available: true})

	if _, err := reg.Get("BMP"); err == nil {
		t.Error("Expected error for unknown format")
	}
	if reg.IsAvailable("BMP") {
		t.Error("BMP should not be available")
	}
}

func TestRegistrySkipsUnavailableEncoders(t *testing.T) {
	reg := NewRegistryWith(
		&fakeEncoder{name: "JPEG", available: true},
		&fakeEncoder{name: "AVIF", available: false},
	)

	if reg.IsAvailable("AVIF") {
		t.Error("Unavailable encoder must not be registered")
	}
	if !reg.IsAvailable("JPEG") {
		t.Error("Available encoder missing from registry")
	}

	formats := reg.AvailableFormats()
	if len(formats) != 1 || formats[0] != "JPEG" {
		t.Errorf("Unexpected formats: %v", formats)
	}
}

func TestRegistryFormatOrder(t *testing.T) {
	reg := NewRegistryWith(
		&fakeEncoder{name: "AVIF", available: true},
		&fakeEncoder{name: "PNG", available: true},
		&fakeEncoder{name: "WEBP", available: true},
		&fakeEncoder{name: "JPEG", available: true},
	)

	formats := reg.AvailableFormats()
	want := []string{"JPEG", "WEBP", "PNG", "AVIF"}
	if len(formats) != len(want) {
		t.Fatalf("Expected %d formats, got %v", len(want), formats)
	}
	for i := range want {
		if formats[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], formats[i])
		}
	}
}

func TestNewRegistryHasCoreFormats(t *testing.T) {
	reg := NewRegistry()

	for _, name := range []string{"JPEG", "WEBP", "PNG"} {
		if !reg.IsAvailable(name) {
			t.Errorf("Expected %s in the default registry", name)
		}
	}
	// AVIF is probed; either outcome is fine, but the registry must not
	// error on lookup of registered formats.
	for _, name := range reg.AvailableFormats() {
		if _, err := reg.Get(name); err != nil {
			t.Errorf("Get(%q) failed for a listed format: %v", name, err)
		}
	}
}
