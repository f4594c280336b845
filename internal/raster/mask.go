package raster

import (
	"fmt"
	"image"
	"image/draw"
	"os"
)

// AlphaFromImage extracts the alpha channel of a cutout as a standalone mask.
// Used when the upstream segmentation delivers a single RGBA file instead of
// an image + mask pair.
func AlphaFromImage(img *image.NRGBA) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	mask := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		si := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		mi := mask.PixOffset(0, y)
		for x := 0; x < w; x++ {
			mask.Pix[mi+x] = img.Pix[si+x*4+3]
		}
	}
	return mask
}

// LoadMask reads a mask file and returns it as a single-channel image.
// Color masks are reduced through the standard gray model.
func LoadMask(path string) (*image.Gray, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mask: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}

	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g, nil
	}

	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)
	return gray, nil
}

// SubjectBounds returns the tight bounding box of mask pixels above threshold,
// in the stdlib exclusive-Max convention. Returns EmptySubjectError when the
// mask holds no such pixel.
func SubjectBounds(mask *image.Gray, threshold uint8) (image.Rectangle, error) {
	bounds := mask.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	minX, minY := w, h
	maxX, maxY := -1, -1

	for y := 0; y < h; y++ {
		row := mask.Pix[mask.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
		for x := 0; x < w; x++ {
			if row[x] > threshold {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				maxY = y
			}
		}
	}

	if maxX < 0 {
		return image.Rectangle{}, &EmptySubjectError{Threshold: threshold}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), nil
}

// CountOpaque returns the number of mask pixels above threshold.
func CountOpaque(mask *image.Gray, threshold uint8) int {
	bounds := mask.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	count := 0
	for y := 0; y < h; y++ {
		row := mask.Pix[mask.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
		for x := 0; x < w; x++ {
			if row[x] > threshold {
				count++
			}
		}
	}
	return count
}
