package raster

import (
	"image"
	"image/color"
	"math"
)

// Canvas is a fixed-size surface that layers are composited onto.
// Compositing is straight-alpha "over" computed in float64 with a single
// rounding step per channel, so identical inputs produce identical bytes.
type Canvas struct {
	Width  int
	Height int
	img    *image.NRGBA
}

// NewCanvas creates a canvas filled with the given background color.
// A zero background leaves the canvas fully transparent.
func NewCanvas(width, height int, background color.NRGBA) *Canvas {
	c := &Canvas{
		Width:  width,
		Height: height,
		img:    image.NewNRGBA(image.Rect(0, 0, width, height)),
	}
	if background != (color.NRGBA{}) {
		pix := c.img.Pix
		for i := 0; i < len(pix); i += 4 {
			pix[i+0] = background.R
			pix[i+1] = background.G
			pix[i+2] = background.B
			pix[i+3] = background.A
		}
	}
	return c
}

// Image returns the backing image. The canvas keeps ownership; callers that
// need an independent copy should CloneNRGBA it.
func (c *Canvas) Image() *image.NRGBA {
	return c.img
}

// Over composites a straight-alpha layer onto the canvas at the given offset.
// When mask is non-nil it overrides the layer's own alpha channel and must
// match the layer dimensions. Pixels falling outside the canvas are clipped.
func (c *Canvas) Over(src *image.NRGBA, mask *image.Gray, offset image.Point) error {
	if mask != nil {
		if err := EnsureSameSize(src, mask); err != nil {
			return err
		}
	}

	srcBounds := src.Bounds()
	w, h := srcBounds.Dx(), srcBounds.Dy()

	for y := 0; y < h; y++ {
		dstY := y + offset.Y
		if dstY < 0 || dstY >= c.Height {
			continue
		}
		si := src.PixOffset(srcBounds.Min.X, srcBounds.Min.Y+y)
		var mrow []uint8
		if mask != nil {
			mb := mask.Bounds()
			mrow = mask.Pix[mask.PixOffset(mb.Min.X, mb.Min.Y+y):]
		}

		for x := 0; x < w; x++ {
			dstX := x + offset.X
			if dstX < 0 || dstX >= c.Width {
				continue
			}

			a := src.Pix[si+x*4+3]
			if mask != nil {
				a = mrow[x]
			}
			if a == 0 {
				continue
			}

			di := c.img.PixOffset(dstX, dstY)
			if a == 255 {
				c.img.Pix[di+0] = src.Pix[si+x*4+0]
				c.img.Pix[di+1] = src.Pix[si+x*4+1]
				c.img.Pix[di+2] = src.Pix[si+x*4+2]
				c.img.Pix[di+3] = 255
				continue
			}

			c.blendAt(di, src.Pix[si+x*4:si+x*4+3], a)
		}
	}
	return nil
}

// blendAt merges one straight-alpha source pixel into the canvas at pix index di.
func (c *Canvas) blendAt(di int, srcRGB []uint8, a uint8) {
	sa := float64(a) / 255.0
	da := float64(c.img.Pix[di+3]) / 255.0

	outA := sa + da*(1-sa)
	if outA == 0 {
		c.img.Pix[di+0] = 0
		c.img.Pix[di+1] = 0
		c.img.Pix[di+2] = 0
		c.img.Pix[di+3] = 0
		return
	}

	for ch := 0; ch < 3; ch++ {
		sc := float64(srcRGB[ch])
		dc := float64(c.img.Pix[di+ch])
		out := (sc*sa + dc*da*(1-sa)) / outA
		c.img.Pix[di+ch] = uint8(math.Round(clamp(out, 0, 255)))
	}
	c.img.Pix[di+3] = uint8(math.Round(outA * 255))
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
