package processor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// applyCrop clamps the rectangle to the image bounds and crops.
// A rectangle that clamps to zero area is an error, not a no-op.
func applyCrop(img image.Image, rect image.Rectangle) (image.Image, error) {
	bounds := img.Bounds()

	clamped := rect.Intersect(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if clamped.Dx() <= 0 || clamped.Dy() <= 0 {
		return nil, fmt.Errorf("invalid crop rectangle %v for %dx%d image", rect, bounds.Dx(), bounds.Dy())
	}

	return imaging.Crop(img, clamped), nil
}

// applyResize scales to exact dimensions, ignoring aspect ratio.
func applyResize(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

// applyPadding surrounds the image with a white border.
func applyPadding(img image.Image, padding int) image.Image {
	if padding <= 0 {
		return img
	}
	bounds := img.Bounds()
	dst := imaging.New(bounds.Dx()+2*padding, bounds.Dy()+2*padding, color.White)
	return imaging.Paste(dst, img, image.Pt(padding, padding))
}
