// Package geometry provides planar types for placing subjects on a canvas.
package geometry

import (
	"image"
	"math"
)

// Point2D is a position in continuous pixel coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PointInt is a position in whole pixels, such as a placement offset.
type PointInt struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PointIntFromImage converts a stdlib image point.
func PointIntFromImage(p image.Point) PointInt {
	return PointInt{X: p.X, Y: p.Y}
}

// RectInt is a pixel-aligned rectangle, such as a subject bounding box.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RectIntFromImage converts a stdlib image rectangle.
func RectIntFromImage(r image.Rectangle) RectInt {
	return RectInt{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// AffineTransform is a 2x3 affine matrix mapping source pixel coordinates
// to canvas coordinates:
//
//	x' = a*x + b*y + tx
//	y' = c*x + d*y + ty
//
// Placement transforms compose scale and translation only, so b and c
// stay zero there.
type AffineTransform struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	TX float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	TY float64 `json:"ty"`
}

// Translation returns a transform that shifts by (tx, ty).
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// Scale returns a transform that scales by (sx, sy) about the origin.
func Scale(sx, sy float64) AffineTransform {
	return AffineTransform{A: sx, D: sy}
}

// Apply maps a point through the transform.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Compose returns the transform that applies other first, then t.
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}
