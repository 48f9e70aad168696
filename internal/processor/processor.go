package processor

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"imagepress/internal/compression"
	"imagepress/internal/encoder"
	"imagepress/internal/logger"
	"imagepress/internal/similarity"
	"imagepress/internal/statistics"
)

// ProgressFunc is called after each task with the 1-based position,
// total count and a status line for the file.
type ProgressFunc func(current, total int, message string)

// Failure records one task that could not be processed.
type Failure struct {
	Path string
	Err  error
}

// BatchReport holds the three outcome buckets of a batch run.
type BatchReport struct {
	Succeeded []string
	Failed    []Failure
	Skipped   int
}

// Processor runs queued tasks sequentially. One task's failure is
// recorded and the batch continues.
type Processor struct {
	reg   *encoder.Registry
	cmp   similarity.Comparator
	log   *logrus.Logger
	stats *statistics.Statistics
	meta  *MetadataCopier
	queue []Task
}

// NewProcessor creates a processor with an empty queue. cmp and meta
// may be nil to disable similarity scoring and metadata preservation.
func NewProcessor(reg *encoder.Registry, cmp similarity.Comparator, meta *MetadataCopier, log *logrus.Logger, stats *statistics.Statistics) *Processor {
	if log == nil {
		log = logrus.New()
	}
	if stats == nil {
		stats = statistics.NewStatistics()
	}
	return &Processor{
		reg:   reg,
		cmp:   cmp,
		log:   log,
		stats: stats,
		meta:  meta,
	}
}

// Add validates the task and appends it to the queue.
func (p *Processor) Add(task Task) error {
	if err := task.Validate(p.reg); err != nil {
		return err
	}
	p.queue = append(p.queue, task)
	p.stats.IncrementTasksQueued()
	return nil
}

// Remove drops the task at the given index. Out-of-range indexes are
// ignored.
func (p *Processor) Remove(index int) {
	if index < 0 || index >= len(p.queue) {
		return
	}
	p.queue = append(p.queue[:index], p.queue[index+1:]...)
}

// Clear empties the queue.
func (p *Processor) Clear() {
	p.queue = nil
}

// QueueSize returns the number of queued tasks.
func (p *Processor) QueueSize() int {
	return len(p.queue)
}

// Stats exposes the run statistics.
func (p *Processor) Stats() *statistics.Statistics {
	return p.stats
}

// ExpectedOutputPath returns where a source file would land in the
// output directory, before collision handling. The original filename is
// preserved exactly.
func (p *Processor) ExpectedOutputPath(sourcePath, outputDir string) string {
	return filepath.Join(outputDir, filepath.Base(sourcePath))
}

// CheckExisting returns the expected output paths that already exist.
func (p *Processor) CheckExisting(sourcePaths []string, outputDir string) []string {
	var existing []string
	if _, err := os.Stat(outputDir); err != nil {
		return existing
	}
	for _, src := range sourcePaths {
		expected := p.ExpectedOutputPath(src, outputDir)
		if _, err := os.Stat(expected); err == nil {
			existing = append(existing, expected)
		}
	}
	return existing
}

// ProcessBatch runs every queued task in order. The context is checked
// between tasks only; an in-flight task always runs to completion.
func (p *Processor) ProcessBatch(ctx context.Context, outputDir string, progress ProgressFunc, overwrite, skipExisting bool) (*BatchReport, error) {
	if outputDir == "" {
		return nil, fmt.Errorf("output directory must be specified")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	report := &BatchReport{}
	total := len(p.queue)

	for idx, task := range p.queue {
		if err := ctx.Err(); err != nil {
			p.log.WithField("remaining", total-idx).Warn("Batch interrupted")
			return report, err
		}

		name := filepath.Base(task.Path)

		if skipExisting {
			expected := p.ExpectedOutputPath(task.Path, outputDir)
			if _, err := os.Stat(expected); err == nil {
				report.Skipped++
				p.stats.IncrementTasksSkipped()
				if progress != nil {
					progress(idx+1, total, fmt.Sprintf("Skipped: %s", name))
				}
				continue
			}
		}

		outputPath, err := p.processTask(task, outputDir, overwrite)
		if err != nil {
			report.Failed = append(report.Failed, Failure{Path: task.Path, Err: err})
			p.stats.IncrementTasksFailed()
			p.stats.AddError(task.Path, "process", err.Error())
			logger.WithFileOperation(p.log, task.Path, "process").WithError(err).Error("Failed to process image")
			if progress != nil {
				progress(idx+1, total, fmt.Sprintf("ERROR: %s - %v", name, err))
			}
			continue
		}

		report.Succeeded = append(report.Succeeded, outputPath)
		p.stats.IncrementTasksProcessed()
		if progress != nil {
			progress(idx+1, total, name)
		}
	}

	return report, nil
}

// ProcessSingle runs one task and writes to an explicit output path.
func (p *Processor) ProcessSingle(task Task, outputPath string) error {
	if err := task.Validate(p.reg); err != nil {
		return err
	}
	rendered, err := p.render(task)
	if err != nil {
		return err
	}
	return p.write(task, rendered, outputPath)
}

// Preview renders the compression result without writing anything.
func (p *Processor) Preview(task Task) (compression.Result, error) {
	if err := task.Validate(p.reg); err != nil {
		return compression.Result{}, err
	}
	rendered, err := p.render(task)
	if err != nil {
		return compression.Result{}, err
	}
	return rendered.result, nil
}

// rendered carries the outcome of the render phase; the write phase
// decides between the encoded bytes and a straight copy of the source.
type rendered struct {
	result      compression.Result
	sourceSize  int64
	copySource  bool
	wasCropped  bool
	targetBytes int64
}

// render loads the source, applies geometry and produces encoded bytes.
// No files are written here.
func (p *Processor) render(task Task) (*rendered, error) {
	info, err := os.Stat(task.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}
	sourceSize := info.Size()
	p.stats.AddBytesIn(sourceSize)

	targetBytes := int64(task.TargetSizeMB * 1024 * 1024)
	cropped := task.wasCropped()

	// Source already under target and pixels untouched: copy through
	// without decoding at all.
	if targetBytes > 0 && sourceSize <= targetBytes && !cropped {
		return &rendered{
			sourceSize:  sourceSize,
			copySource:  true,
			wasCropped:  cropped,
			targetBytes: targetBytes,
		}, nil
	}

	img, err := imaging.Open(task.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	var out image.Image = img
	if task.Crop != nil {
		out, err = applyCrop(out, *task.Crop)
		if err != nil {
			return nil, err
		}
	}
	if task.Resize != nil {
		out, err = applyResize(out, task.Resize.X, task.Resize.Y)
		if err != nil {
			return nil, err
		}
	}
	if task.Padding > 0 {
		out = applyPadding(out, task.Padding)
	}

	result, err := p.compress(task, out)
	if err != nil {
		return nil, err
	}

	p.stats.AddSearchIterations(int64(result.Iterations))
	if targetBytes > 0 && !result.Success {
		p.stats.IncrementTargetsMissed()
		logger.WithFile(p.log, task.Path).WithField("message", result.Message).Warn("Size target not reached")
	}

	// Re-encode grew the file while the source already fit the target:
	// keep the original bytes.
	copySource := targetBytes > 0 &&
		result.Size > sourceSize &&
		sourceSize <= targetBytes &&
		!cropped

	return &rendered{
		result:      result,
		sourceSize:  sourceSize,
		copySource:  copySource,
		wasCropped:  cropped,
		targetBytes: targetBytes,
	}, nil
}

// compress picks the strategy for the task, or a plain quality encode
// when no size target is set.
func (p *Processor) compress(task Task, img image.Image) (compression.Result, error) {
	strategy, err := task.Strategy(p.reg, p.cmp)
	if err != nil {
		return compression.Result{}, err
	}
	if strategy != nil {
		return strategy.Compress(img)
	}

	enc, err := p.reg.Get(task.Format)
	if err != nil {
		return compression.Result{}, err
	}
	opts := encoder.Options{
		Quality:     task.Quality,
		Chroma:      task.Chroma,
		Progressive: task.Progressive,
		Optimize:    task.Optimize,
		Effort:      encoder.DefaultOptions().Effort,
	}
	return compression.NewEngine(enc, p.cmp).CompressAtQuality(img, opts, task.CalculateSimilarity)
}

// write resolves the final output path and persists either the encoded
// bytes or a copy of the source file.
func (p *Processor) write(task Task, r *rendered, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if r.copySource {
		if err := copyFile(task.Path, outputPath); err != nil {
			return err
		}
		p.stats.IncrementFilesCopied()
		p.stats.AddBytesOut(r.sourceSize)
	} else {
		if err := os.WriteFile(outputPath, r.result.Data, 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		p.stats.IncrementFilesEncoded()
		p.stats.IncrementFormat(r.result.Format)
		p.stats.AddBytesOut(r.result.Size)
	}

	if task.PreserveMetadata && p.meta != nil && p.meta.Available() && !r.copySource {
		if err := p.meta.Copy(task.Path, outputPath); err != nil {
			logger.WithFileOperation(p.log, outputPath, "metadata").WithError(err).Warn("Failed to preserve metadata")
		}
	}

	return nil
}

func (p *Processor) processTask(task Task, outputDir string, overwrite bool) (string, error) {
	rendered, err := p.render(task)
	if err != nil {
		return "", err
	}

	outputPath := p.generateOutputPath(task.Path, outputDir, overwrite)
	if err := p.write(task, rendered, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// generateOutputPath preserves the original filename, appending _1, _2,
// ... before the extension on collision unless overwriting.
func (p *Processor) generateOutputPath(sourcePath, outputDir string, overwrite bool) string {
	name := filepath.Base(sourcePath)
	outputPath := filepath.Join(outputDir, name)

	if overwrite {
		return outputPath
	}

	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	for counter := 1; ; counter++ {
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		outputPath = filepath.Join(outputDir, fmt.Sprintf("%s_%d%s", stem, counter, ext))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return out.Sync()
}
