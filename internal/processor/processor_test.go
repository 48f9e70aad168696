package processor

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"imagepress/internal/encoder"
)

func writeTestPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*img.Stride + x*4
			img.Pix[off] = uint8(x * 3)
			img.Pix[off+1] = uint8(y * 5)
			img.Pix[off+2] = 99
			img.Pix[off+3] = 255
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return path
}

func newTestProcessor() *Processor {
	return NewProcessor(encoder.NewRegistry(), nil, nil, nil, nil)
}

func TestTaskValidateDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "photo.png", 16, 16)

	task := Task{Path: path}
	if err := task.Validate(encoder.NewRegistry()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if task.Format != "JPEG" || task.Quality != 95 || task.Mode != "advanced" || task.MinQuality != 60 {
		t.Errorf("Defaults not applied: %+v", task)
	}
}

func TestTaskValidateRejects(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "photo.png", 16, 16)
	reg := encoder.NewRegistry()

	tests := []struct {
		name string
		task Task
	}{
		{"missing file", Task{Path: filepath.Join(dir, "nope.png")}},
		{"bad format", Task{Path: path, Format: "BMP"}},
		{"bad quality", Task{Path: path, Quality: 101}},
		{"bad min quality", Task{Path: path, MinQuality: 200}},
		{"bad chroma", Task{Path: path, Chroma: 5}},
		{"negative padding", Task{Path: path, Padding: -1}},
		{"bad mode", Task{Path: path, Mode: "turbo"}},
		{"quick without target", Task{Path: path, Mode: "quick"}},
		{"auto outside quick", Task{Path: path, Format: "AUTO"}},
		{"negative target", Task{Path: path, TargetSizeMB: -1}},
		{"zero resize", Task{Path: path, Resize: &image.Point{X: 0, Y: 10}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := tt.task
			if err := task.Validate(reg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	good := writeTestPNG(t, dir, "good.png", 32, 32)
	bad := writeTestPNG(t, dir, "bad.png", 32, 32)

	proc := newTestProcessor()
	if err := proc.Add(Task{Path: good}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	// Crop entirely outside the image makes the task fail at render.
	badCrop := image.Rect(100, 100, 200, 200)
	if err := proc.Add(Task{Path: bad, Crop: &badCrop}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	report, err := proc.ProcessBatch(context.Background(), outDir, nil, false, false)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}

	if len(report.Succeeded) != 1 {
		t.Errorf("Expected 1 success, got %d", len(report.Succeeded))
	}
	if len(report.Failed) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(report.Failed))
	}
	if report.Failed[0].Path != bad {
		t.Errorf("Wrong failed path: %s", report.Failed[0].Path)
	}
	if report.Failed[0].Err == nil {
		t.Error("Failure must carry its error")
	}
}

func TestProcessBatchSkipExisting(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	path := writeTestPNG(t, dir, "photo.png", 16, 16)

	proc := newTestProcessor()
	if err := proc.Add(Task{Path: path}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	report, err := proc.ProcessBatch(context.Background(), outDir, nil, false, false)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if len(report.Succeeded) != 1 {
		t.Fatalf("Expected 1 success, got %d", len(report.Succeeded))
	}

	// Second run with the same queue skips the existing output.
	report, err = proc.ProcessBatch(context.Background(), outDir, nil, false, true)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if report.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %d", report.Skipped)
	}
	if len(report.Succeeded) != 0 {
		t.Errorf("Expected no new outputs, got %d", len(report.Succeeded))
	}
}

func TestProcessBatchCopyThrough(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	path := writeTestPNG(t, dir, "small.png", 16, 16)

	proc := newTestProcessor()
	// Target far above the source size, no geometry: the source file is
	// copied byte for byte.
	if err := proc.Add(Task{Path: path, TargetSizeMB: 10}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	report, err := proc.ProcessBatch(context.Background(), outDir, nil, false, false)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if len(report.Succeeded) != 1 {
		t.Fatalf("Expected 1 success, got %d: %+v", len(report.Succeeded), report.Failed)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read source: %v", err)
	}
	dst, err := os.ReadFile(report.Succeeded[0])
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if !bytes.Equal(src, dst) {
		t.Error("Copy-through output must be byte-identical to the source")
	}
	if proc.Stats().FilesCopied != 1 {
		t.Errorf("Expected 1 copied file in statistics, got %d", proc.Stats().FilesCopied)
	}
}

func TestProcessBatchCropDisablesCopyThrough(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	path := writeTestPNG(t, dir, "cropped.png", 32, 32)

	proc := newTestProcessor()
	crop := image.Rect(0, 0, 16, 16)
	if err := proc.Add(Task{Path: path, TargetSizeMB: 10, Crop: &crop}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	report, err := proc.ProcessBatch(context.Background(), outDir, nil, false, false)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if len(report.Succeeded) != 1 {
		t.Fatalf("Expected 1 success, got %d: %+v", len(report.Succeeded), report.Failed)
	}

	src, _ := os.ReadFile(path)
	dst, _ := os.ReadFile(report.Succeeded[0])
	if bytes.Equal(src, dst) {
		t.Error("Cropped task must re-encode, not copy the source")
	}
	if proc.Stats().FilesEncoded != 1 {
		t.Errorf("Expected 1 encoded file in statistics, got %d", proc.Stats().FilesEncoded)
	}
}

func TestProcessBatchCollisionNaming(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	path := writeTestPNG(t, dir, "photo.png", 16, 16)

	proc := newTestProcessor()
	for i := 0; i < 3; i++ {
		if err := proc.Add(Task{Path: path}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	report, err := proc.ProcessBatch(context.Background(), outDir, nil, false, false)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if len(report.Succeeded) != 3 {
		t.Fatalf("Expected 3 outputs, got %d", len(report.Succeeded))
	}

	want := []string{"photo.png", "photo_1.png", "photo_2.png"}
	for i, name := range want {
		expected := filepath.Join(outDir, name)
		if report.Succeeded[i] != expected {
			t.Errorf("Output %d: expected %s, got %s", i, expected, report.Succeeded[i])
		}
		if _, err := os.Stat(expected); err != nil {
			t.Errorf("Output file missing: %s", expected)
		}
	}
}

func TestProcessBatchOverwrite(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	path := writeTestPNG(t, dir, "photo.png", 16, 16)

	proc := newTestProcessor()
	if err := proc.Add(Task{Path: path}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := proc.Add(Task{Path: path}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	report, err := proc.ProcessBatch(context.Background(), outDir, nil, true, false)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if len(report.Succeeded) != 2 {
		t.Fatalf("Expected 2 outputs, got %d", len(report.Succeeded))
	}
	if report.Succeeded[0] != report.Succeeded[1] {
		t.Error("Overwrite mode should reuse the same output path")
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("Failed to read output directory: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected a single output file, got %d", len(entries))
	}
}

func TestProcessBatchCancelledBetweenTasks(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	path := writeTestPNG(t, dir, "photo.png", 16, 16)

	proc := newTestProcessor()
	if err := proc.Add(Task{Path: path}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := proc.ProcessBatch(ctx, outDir, nil, false, false)
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(report.Succeeded) != 0 {
		t.Errorf("Cancelled batch should not process tasks, got %d", len(report.Succeeded))
	}
}

func TestPreviewAppliesGeometry(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "photo.png", 64, 48)

	proc := newTestProcessor()

	crop := image.Rect(0, 0, 32, 24)
	result, err := proc.Preview(Task{Path: path, Crop: &crop})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if result.Width != 32 || result.Height != 24 {
		t.Errorf("Expected 32x24 after crop, got %dx%d", result.Width, result.Height)
	}

	resize := image.Point{X: 20, Y: 20}
	result, err = proc.Preview(Task{Path: path, Resize: &resize})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if result.Width != 20 || result.Height != 20 {
		t.Errorf("Expected exact 20x20 resize, got %dx%d", result.Width, result.Height)
	}

	result, err = proc.Preview(Task{Path: path, Padding: 4})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if result.Width != 72 || result.Height != 56 {
		t.Errorf("Expected 72x56 after padding, got %dx%d", result.Width, result.Height)
	}
}

func TestProcessSingle(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "photo.png", 16, 16)
	outPath := filepath.Join(dir, "out", "single.png")

	proc := newTestProcessor()
	if err := proc.ProcessSingle(Task{Path: path}, outPath); err != nil {
		t.Fatalf("ProcessSingle failed: %v", err)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("Output file missing: %v", err)
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "photo.png", 40, 30)

	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Format != "png" {
		t.Errorf("Expected png, got %s", info.Format)
	}
	if info.Width != 40 || info.Height != 30 {
		t.Errorf("Expected 40x30, got %dx%d", info.Width, info.Height)
	}
	if info.SizeBytes <= 0 {
		t.Error("Expected positive file size")
	}
	if info.CapturedAt != nil {
		t.Error("PNG without EXIF should have no capture time")
	}
}

func TestExpectedOutputPath(t *testing.T) {
	proc := newTestProcessor()
	got := proc.ExpectedOutputPath("/some/dir/image.jpg", "/out")
	if got != filepath.Join("/out", "image.jpg") {
		t.Errorf("Unexpected path %s", got)
	}
}
