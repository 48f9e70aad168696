package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
	"math/rand"
	"testing"
)

// noiseImage is hard to compress, so size responds strongly to quality.
func noiseImage(w, h int) *image.NRGBA {
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

func halfTransparentImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*img.Stride + x*4
			img.Pix[off] = 255 // red where opaque
			if x < w/2 {
				img.Pix[off+3] = 255
			} else {
				img.Pix[off+3] = 0 // fully transparent right half
			}
		}
	}
	return img
}

func TestJPEGEncodeDeterministic(t *testing.T) {
	enc := NewJPEG(nil)
	img := noiseImage(64, 64)
	opts := DefaultOptions()

	first, err := enc.Encode(img, opts)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	second, err := enc.Encode(img, opts)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Identical inputs must produce identical bytes")
	}
}

func TestJPEGQualityAffectsSize(t *testing.T) {
	enc := NewJPEG(nil)
	img := noiseImage(128, 128)

	low, err := enc.Encode(img, DefaultOptions().WithQuality(20))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	high, err := enc.Encode(img, DefaultOptions().WithQuality(95))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(low) >= len(high) {
		t.Errorf("Expected lower quality to be smaller: %d vs %d bytes", len(low), len(high))
	}
}

func TestJPEGFlattensAlphaOntoWhite(t *testing.T) {
	enc := NewJPEG(nil)
	img := halfTransparentImage(32, 32)

	data, err := enc.Encode(img, DefaultOptions().WithQuality(95))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	// Transparent half must come back near-white.
	r, g, b, _ := decoded.At(30, 16).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("Transparent region not flattened to white: got rgb(%d,%d,%d)", r>>8, g>>8, b>>8)
	}

	// Opaque half must stay red.
	r, g, b, _ = decoded.At(2, 16).RGBA()
	if r>>8 < 200 || g>>8 > 80 || b>>8 > 80 {
		t.Errorf("Opaque region color drifted: got rgb(%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestJPEGRejectsInvalidOptions(t *testing.T) {
	enc := NewJPEG(nil)
	if _, err := enc.Encode(noiseImage(8, 8), Options{Quality: 0}); err == nil {
		t.Error("Expected validation error for zero quality")
	}
}

func TestPNGIgnoresQuality(t *testing.T) {
	enc := NewPNG()
	img := noiseImage(32, 32)

	low, err := enc.Encode(img, DefaultOptions().WithQuality(10))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	high, err := enc.Encode(img, DefaultOptions().WithQuality(100))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(low, high) {
		t.Error("PNG output must not depend on quality")
	}

	min, max := enc.QualityRange()
	if min != 100 || max != 100 {
		t.Errorf("Expected fixed 100..100 range, got %d..%d", min, max)
	}
	if enc.SupportsQuality() {
		t.Error("PNG must not report quality support")
	}
}

func TestWebPEncodes(t *testing.T) {
	enc := NewWebP()
	img := noiseImage(32, 32)

	data, err := enc.Encode(img, DefaultOptions().WithQuality(80))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Empty WebP output")
	}
	// RIFF container magic.
	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Error("Output does not look like a WebP/RIFF stream")
	}
}

func TestWebPEffortClamped(t *testing.T) {
	enc := NewWebP()
	img := noiseImage(16, 16)

	// Effort above the codec's 0-6 method scale must not error.
	if _, err := enc.Encode(img, Options{Quality: 80, Chroma: Chroma420, Effort: 10}); err != nil {
		t.Fatalf("Expected clamped effort to encode, got %v", err)
	}
}

func TestAVIFOptional(t *testing.T) {
	enc := NewAVIF()
	if !enc.Available() {
		t.Skip("AVIF codec not available on this platform")
	}

	data, err := enc.Encode(noiseImage(16, 16), DefaultOptions().WithQuality(50))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Empty AVIF output")
	}
}
