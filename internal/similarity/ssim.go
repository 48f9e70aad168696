// Package similarity scores how closely a compressed image matches its
// original using the Structural Similarity Index.
package similarity

import (
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
)

// Comparator scores two images on a 0.0 (different) to 1.0 (identical)
// scale.
type Comparator interface {
	Compare(original, compressed image.Image) float64
}

// SSIM constants based on the original Wang et al. paper.
const (
	ssimK1 = 0.01
	ssimK2 = 0.03
	ssimL  = 255.0
	ssimC1 = (ssimK1 * ssimL) * (ssimK1 * ssimL)
	ssimC2 = (ssimK2 * ssimL) * (ssimK2 * ssimL)
)

// Large inputs are downsampled before scoring to keep comparison time
// bounded. 512px still catches blocking artifacts that smaller sizes miss.
const maxCompareDim = 512

// SSIM implements Comparator with a Gaussian-weighted sliding window
// over the luminance channel (BT.601).
type SSIM struct{}

func NewSSIM() *SSIM { return &SSIM{} }

// Compare computes the SSIM score between the original image and a
// compressed rendition. Dimension mismatches are resolved by resizing
// the rendition to the original's size.
func (s *SSIM) Compare(original, compressed image.Image) float64 {
	a := toNRGBA(original)
	b := toNRGBA(compressed)

	w := a.Bounds().Dx()
	h := a.Bounds().Dy()

	if w != b.Bounds().Dx() || h != b.Bounds().Dy() {
		b = imaging.Resize(b, w, h, imaging.Lanczos)
	}

	if w > maxCompareDim || h > maxCompareDim {
		scale := float64(maxCompareDim) / math.Max(float64(w), float64(h))
		newW := int(math.Max(8, math.Round(float64(w)*scale)))
		newH := int(math.Max(8, math.Round(float64(h)*scale)))
		a = boxDownsample(a, newW, newH)
		b = boxDownsample(b, newW, newH)
		w, h = newW, newH
	}

	if w < 8 || h < 8 {
		return pixelSSIM(a, b)
	}

	return windowedSSIM(toLuminance(a), toLuminance(b), w, h)
}

// windowedSSIM computes SSIM over 8x8 Gaussian-weighted windows, with
// rows split across GOMAXPROCS workers.
func windowedSSIM(lumA, lumB []float64, w, h int) float64 {
	const windowSize = 8
	half := windowSize / 2

	kernel := gaussianKernel(windowSize, 1.5)

	type partial struct {
		sum   float64
		count int
	}

	procs := runtime.GOMAXPROCS(0)
	rows := h - windowSize + 1
	if procs > rows {
		procs = rows
	}
	if procs < 1 {
		procs = 1
	}

	results := make([]partial, procs)
	rowsPerProc := (rows + procs - 1) / procs

	var wg sync.WaitGroup
	for p := 0; p < procs; p++ {
		wg.Add(1)
		go func(proc int) {
			defer wg.Done()
			startY := half + proc*rowsPerProc
			endY := startY + rowsPerProc
			if endY > h-half {
				endY = h - half
			}

			var localSum float64
			var localCount int

			for y := startY; y < endY; y++ {
				for x := half; x < w-half; x++ {
					var muA, muB float64
					var sigAA, sigBB, sigAB float64

					ki := 0
					for wy := -half; wy < half; wy++ {
						for wx := -half; wx < half; wx++ {
							idx := (y+wy)*w + (x + wx)
							weight := kernel[ki]
							muA += lumA[idx] * weight
							muB += lumB[idx] * weight
							ki++
						}
					}

					ki = 0
					for wy := -half; wy < half; wy++ {
						for wx := -half; wx < half; wx++ {
							idx := (y+wy)*w + (x + wx)
							weight := kernel[ki]
							da := lumA[idx] - muA
							db := lumB[idx] - muB
							sigAA += da * da * weight
							sigBB += db * db * weight
							sigAB += da * db * weight
							ki++
						}
					}

					num := (2*muA*muB + ssimC1) * (2*sigAB + ssimC2)
					den := (muA*muA + muB*muB + ssimC1) * (sigAA + sigBB + ssimC2)

					localSum += num / den
					localCount++
				}
			}

			results[proc] = partial{localSum, localCount}
		}(p)
	}
	wg.Wait()

	var totalSum float64
	var totalCount int
	for _, r := range results {
		totalSum += r.sum
		totalCount += r.count
	}

	if totalCount == 0 {
		return 1.0
	}
	return totalSum / float64(totalCount)
}

// pixelSSIM scores images too small for the windowed pass.
func pixelSSIM(a, b *image.NRGBA) float64 {
	w := a.Bounds().Dx()
	h := a.Bounds().Dy()
	n := float64(w * h)
	if n == 0 {
		return 1.0
	}

	var muA, muB float64
	for i := 0; i < len(a.Pix); i += 4 {
		muA += luma(a.Pix[i], a.Pix[i+1], a.Pix[i+2])
		muB += luma(b.Pix[i], b.Pix[i+1], b.Pix[i+2])
	}
	muA /= n
	muB /= n

	var sigAA, sigBB, sigAB float64
	for i := 0; i < len(a.Pix); i += 4 {
		da := luma(a.Pix[i], a.Pix[i+1], a.Pix[i+2]) - muA
		db := luma(b.Pix[i], b.Pix[i+1], b.Pix[i+2]) - muB
		sigAA += da * da
		sigBB += db * db
		sigAB += da * db
	}
	sigAA /= n
	sigBB /= n
	sigAB /= n

	num := (2*muA*muB + ssimC1) * (2*sigAB + ssimC2)
	den := (muA*muA + muB*muB + ssimC1) * (sigAA + sigBB + ssimC2)
	return num / den
}

func luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// toLuminance converts an NRGBA image to a float64 luminance array.
func toLuminance(img *image.NRGBA) []float64 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	lum := make([]float64, w*h)

	for y := 0; y < h; y++ {
		off := y * img.Stride
		for x := 0; x < w; x++ {
			i := off + x*4
			lum[y*w+x] = luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		}
	}
	return lum
}

// gaussianKernel creates a normalized 2D Gaussian kernel.
func gaussianKernel(size int, sigma float64) []float64 {
	kernel := make([]float64, size*size)
	half := size / 2
	var sum float64

	idx := 0
	for y := -half; y < half; y++ {
		for x := -half; x < half; x++ {
			val := math.Exp(-float64(x*x+y*y) / (2 * sigma * sigma))
			kernel[idx] = val
			sum += val
			idx++
		}
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba
	}
	return imaging.Clone(img)
}

// boxDownsample performs fast box-filter downsampling.
func boxDownsample(img *image.NRGBA, dstW, dstH int) *image.NRGBA {
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}

	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	xRatio := float64(srcW) / float64(dstW)
	yRatio := float64(srcH) / float64(dstH)

	for dy := 0; dy < dstH; dy++ {
		sy0 := int(float64(dy) * yRatio)
		sy1 := int(float64(dy+1) * yRatio)
		if sy1 > srcH {
			sy1 = srcH
		}
		if sy0 >= sy1 {
			sy0 = sy1 - 1
		}
		if sy0 < 0 {
			sy0 = 0
		}

		for dx := 0; dx < dstW; dx++ {
			sx0 := int(float64(dx) * xRatio)
			sx1 := int(float64(dx+1) * xRatio)
			if sx1 > srcW {
				sx1 = srcW
			}
			if sx0 >= sx1 {
				sx0 = sx1 - 1
			}
			if sx0 < 0 {
				sx0 = 0
			}

			var rSum, gSum, bSum, aSum float64
			var count float64

			for sy := sy0; sy < sy1; sy++ {
				for sx := sx0; sx < sx1; sx++ {
					off := sy*img.Stride + sx*4
					rSum += float64(img.Pix[off])
					gSum += float64(img.Pix[off+1])
					bSum += float64(img.Pix[off+2])
					aSum += float64(img.Pix[off+3])
					count++
				}
			}

			if count > 0 {
				inv := 1.0 / count
				off := dy*dst.Stride + dx*4
				dst.Pix[off] = clampByte(rSum * inv)
				dst.Pix[off+1] = clampByte(gSum * inv)
				dst.Pix[off+2] = clampByte(bSum * inv)
				dst.Pix[off+3] = clampByte(aSum * inv)
			}
		}
	}
	return dst
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
