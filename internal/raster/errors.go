package raster

import (
	"fmt"
	"image"
)

// DimensionError reports an image/mask size mismatch.
type DimensionError struct {
	GotW, GotH   int
	WantW, WantH int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: got %dx%d, want %dx%d", e.GotW, e.GotH, e.WantW, e.WantH)
}

// EmptySubjectError reports a mask with no subject pixels above the threshold.
type EmptySubjectError struct {
	Threshold uint8
}

func (e *EmptySubjectError) Error() string {
	return fmt.Sprintf("alpha mask has no subject pixels above threshold %d", e.Threshold)
}

// EnsureSameSize validates that a mask matches its image dimensions.
func EnsureSameSize(img *image.NRGBA, mask *image.Gray) error {
	iw, ih := img.Bounds().Dx(), img.Bounds().Dy()
	mw, mh := mask.Bounds().Dx(), mask.Bounds().Dy()
	if iw != mw || ih != mh {
		return &DimensionError{GotW: mw, GotH: mh, WantW: iw, WantH: ih}
	}
	return nil
}
