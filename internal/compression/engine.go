package compression

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"time"

	// Decoders for scoring the compressed rendition against the original.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"imagepress/internal/encoder"
	"imagepress/internal/similarity"
)

const (
	// Accept any size within 5% below the target.
	earlyExitTolerance = 0.05
	// Cap on binary search iterations.
	maxIterations = 12
	// Conservative margin for dimension suggestions.
	dimensionSafetyMargin = 0.9
)

// Engine compresses a single image to a byte budget by searching the
// encoder's quality range. Encodes are cached per quality level so the
// search and the fine-tune pass never encode the same quality twice.
//
// An Engine is bound to one encoder and is not safe for concurrent use.
type Engine struct {
	enc   encoder.Encoder
	cmp   similarity.Comparator
	cache map[int]cacheEntry
}

type cacheEntry struct {
	data []byte
	size int64
}

// NewEngine returns an engine for the given encoder. cmp may be nil, in
// which case similarity scores are never computed.
func NewEngine(enc encoder.Encoder, cmp similarity.Comparator) *Engine {
	return &Engine{
		enc:   enc,
		cmp:   cmp,
		cache: make(map[int]cacheEntry),
	}
}

// CompressToTarget searches for the highest quality whose encoded size
// fits targetBytes. When even minQuality overshoots, the result carries
// Success=false along with the minQuality bytes and suggested smaller
// dimensions.
func (e *Engine) CompressToTarget(img image.Image, targetBytes int64, minQuality, maxQuality int, opts encoder.Options, withSimilarity bool) (Result, error) {
	if targetBytes <= 0 {
		return Result{}, fmt.Errorf("target size must be positive, got %d", targetBytes)
	}
	if minQuality > maxQuality {
		return Result{}, fmt.Errorf("min quality %d exceeds max quality %d", minQuality, maxQuality)
	}

	start := time.Now()
	e.clearCache()

	bounds := img.Bounds()

	// Non-parametric formats have nothing to search.
	if !e.enc.SupportsQuality() {
		encMin, _ := e.enc.QualityRange()
		minQuality, maxQuality = encMin, encMin
	}

	// Check whether max quality already fits.
	maxData, maxSize, err := e.encodeCached(img, maxQuality, opts)
	if err != nil {
		return Result{}, err
	}

	if maxSize <= targetBytes {
		result := Result{
			Success:    true,
			Data:       maxData,
			Size:       maxSize,
			Quality:    maxQuality,
			Format:     e.enc.FormatName(),
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
			Iterations: 1,
			Message:    fmt.Sprintf("Compressed to %.2f MB at quality %d", float64(maxSize)/(1024*1024), maxQuality),
		}
		if withSimilarity {
			result.SSIM = e.score(img, maxData)
		}
		result.EncodeTime = time.Since(start)
		return result, nil
	}

	bestQuality, bestData, bestSize, iterations, err := e.binarySearch(img, targetBytes, minQuality, maxQuality, opts)
	if err != nil {
		return Result{}, err
	}

	success := bestSize <= targetBytes

	result := Result{
		Success:    success,
		Data:       bestData,
		Size:       bestSize,
		Quality:    bestQuality,
		Format:     e.enc.FormatName(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Iterations: iterations,
		Message:    buildMessage(success, bestSize, targetBytes, bestQuality),
	}
	if withSimilarity {
		result.SSIM = e.score(img, bestData)
	}
	if !success {
		result.SuggestedWidth, result.SuggestedHeight = suggestDimensions(bounds.Dx(), bounds.Dy(), targetBytes, bestSize)
	}
	result.EncodeTime = time.Since(start)
	return result, nil
}

// CompressAtQuality encodes once at the quality in opts, with no size
// target. The result always reports success.
func (e *Engine) CompressAtQuality(img image.Image, opts encoder.Options, withSimilarity bool) (Result, error) {
	start := time.Now()

	data, err := e.enc.Encode(img, opts)
	if err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", e.enc.FormatName(), err)
	}
	size := int64(len(data))

	bounds := img.Bounds()
	result := Result{
		Success:    true,
		Data:       data,
		Size:       size,
		Quality:    opts.Quality,
		Format:     e.enc.FormatName(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Iterations: 1,
		Message:    fmt.Sprintf("Encoded at quality %d: %.2f MB", opts.Quality, float64(size)/(1024*1024)),
	}
	if withSimilarity {
		result.SSIM = e.score(img, data)
	}
	result.EncodeTime = time.Since(start)
	return result, nil
}

// EstimateSizeAtQuality returns the encoded size at a quality level,
// reusing the cache from a prior search when possible.
func (e *Engine) EstimateSizeAtQuality(img image.Image, quality int, opts encoder.Options) (int64, error) {
	_, size, err := e.encodeCached(img, quality, opts)
	return size, err
}

func (e *Engine) clearCache() {
	e.cache = make(map[int]cacheEntry)
}

func (e *Engine) encodeCached(img image.Image, quality int, opts encoder.Options) ([]byte, int64, error) {
	if entry, ok := e.cache[quality]; ok {
		return entry.data, entry.size, nil
	}

	data, err := e.enc.Encode(img, opts.WithQuality(quality))
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s at quality %d: %w", e.enc.FormatName(), quality, err)
	}
	size := int64(len(data))
	e.cache[quality] = cacheEntry{data: data, size: size}
	return data, size, nil
}

// binarySearch narrows the quality range towards the largest encode
// that still fits the target, then fine-tunes a few levels upward.
func (e *Engine) binarySearch(img image.Image, targetBytes int64, minQuality, maxQuality int, opts encoder.Options) (int, []byte, int64, int, error) {
	low := minQuality
	high := maxQuality

	bestQuality := minQuality
	var bestData []byte
	bestSize := int64(math.MaxInt64)

	iterations := 0

	for low <= high && iterations < maxIterations {
		iterations++
		mid := (low + high) / 2

		data, size, err := e.encodeCached(img, mid, opts)
		if err != nil {
			return 0, nil, 0, iterations, err
		}

		if size <= targetBytes {
			bestQuality = mid
			bestData = data
			bestSize = size

			if float64(size) >= float64(targetBytes)*(1-earlyExitTolerance) {
				break
			}
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	// Nothing fit, fall back to the quality floor.
	if bestSize > targetBytes {
		data, size, err := e.encodeCached(img, minQuality, opts)
		if err != nil {
			return 0, nil, 0, iterations, err
		}
		bestQuality = minQuality
		bestData = data
		bestSize = size
	}

	// Fine-tune: the search can undershoot, so probe the next few
	// quality levels and keep climbing while they still fit.
	if bestSize < targetBytes {
		limit := bestQuality + 3
		if limit > maxQuality {
			limit = maxQuality
		}
		for q := bestQuality + 1; q <= limit; q++ {
			data, size, err := e.encodeCached(img, q, opts)
			if err != nil {
				return 0, nil, 0, iterations, err
			}
			iterations++
			if size <= targetBytes {
				bestQuality = q
				bestData = data
				bestSize = size
			} else {
				break
			}
		}
	}

	return bestQuality, bestData, bestSize, iterations, nil
}

// suggestDimensions estimates how far the image must shrink for the
// target to become reachable. Encoded size scales roughly with pixel
// count, so the scale factor is the square root of the size ratio.
func suggestDimensions(width, height int, targetBytes, currentSize int64) (int, int) {
	scale := math.Sqrt(float64(targetBytes)/float64(currentSize)) * dimensionSafetyMargin

	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)
	if newWidth < 100 {
		newWidth = 100
	}
	if newHeight < 100 {
		newHeight = 100
	}

	// Round down to JPEG block size.
	newWidth = (newWidth / 8) * 8
	newHeight = (newHeight / 8) * 8

	return newWidth, newHeight
}

func buildMessage(success bool, finalSize, targetBytes int64, quality int) string {
	sizeMB := float64(finalSize) / (1024 * 1024)
	targetMB := float64(targetBytes) / (1024 * 1024)

	if success {
		return fmt.Sprintf("Compressed to %.2f MB at quality %d", sizeMB, quality)
	}
	return fmt.Sprintf("Could not reach target %.2f MB. Best: %.2f MB at minimum quality %d", targetMB, sizeMB, quality)
}

// score decodes the compressed bytes back and compares against the
// original. Decode failures and a missing comparator both yield nil
// rather than an error: the score is advisory.
func (e *Engine) score(original image.Image, compressed []byte) *float64 {
	if e.cmp == nil || len(compressed) == 0 {
		return nil
	}
	decoded, _, err := image.Decode(bytes.NewReader(compressed))
	if err != nil {
		return nil
	}
	s := e.cmp.Compare(original, decoded)
	return &s
}
