// Package raster provides image loading, alpha masks, and canvas compositing.
package raster

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load reads an image file and returns it as a packed, origin-aligned NRGBA.
func Load(path string) (*image.NRGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return nil, fmt.Errorf("image %s has zero size", filepath.Base(path))
	}

	return ToNRGBA(img), nil
}

// SavePNG writes an image to path as PNG.
func SavePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// ToNRGBA converts any image to a packed NRGBA with bounds anchored at the origin.
// NRGBA sources are copied byte-for-byte so straight (unassociated) alpha
// survives; other types go through the standard draw conversion.
func ToNRGBA(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < h; y++ {
			si := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			di := dst.PixOffset(0, y)
			copy(dst.Pix[di:di+w*4], src.Pix[si:si+w*4])
		}
		return dst
	}

	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// CloneNRGBA returns a packed, origin-aligned deep copy.
func CloneNRGBA(img *image.NRGBA) *image.NRGBA {
	return ToNRGBA(img)
}

// CloneGray returns a packed, origin-aligned deep copy.
func CloneGray(img *image.Gray) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		di := out.PixOffset(0, y)
		copy(out.Pix[di:di+w], img.Pix[si:si+w])
	}
	return out
}

// SupportedFormats returns the accepted upload extensions.
func SupportedFormats() []string {
	return []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".tiff", ".tif"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
