package tracker

import (
	"math"
)

// Tlwh (top, left, width, height) represents a 1x4 matrix
type Tlwh [4]float64

// Centroid is the geometric center point of a BoundingBox
type Centroid struct {
	X, Y float64
}

// BoundingBox is an axis aligned box stored as its two corners (x0, y0) and
// (x1, y1).  The corners are expected to be ordered with x0<=x1 and y0<=y1
// but this is not enforced, a degenerate box simply has no overlap with
// anything
type BoundingBox struct {
	X0, Y0, X1, Y1 float64
}

// NewBoundingBox creates a new BoundingBox from its corner coordinates
func NewBoundingBox(x0, y0, x1, y1 float64) BoundingBox {
	return BoundingBox{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// NewBoundingBoxFromTlwh creates a BoundingBox from Tlwh (top, left, width,
// height) format as used by MOT files and gocv rectangles
func NewBoundingBoxFromTlwh(tlwh Tlwh) BoundingBox {
	return BoundingBox{
		X0: tlwh[0],
		Y0: tlwh[1],
		X1: tlwh[0] + tlwh[2],
		Y1: tlwh[1] + tlwh[3],
	}
}

// Width returns the width of the box
func (b BoundingBox) Width() float64 {
	return b.X1 - b.X0
}

// Height returns the height of the box
func (b BoundingBox) Height() float64 {
	return b.Y1 - b.Y0
}

// Area returns the area of the box
func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}

// Centroid returns the midpoint of the box
func (b BoundingBox) Centroid() Centroid {
	return Centroid{
		X: (b.X0 + b.X1) / 2,
		Y: (b.Y0 + b.Y1) / 2,
	}
}

// Recenter returns a box of the same width and height moved so its center
// sits on c
func (b BoundingBox) Recenter(c Centroid) BoundingBox {
	w := b.Width()
	h := b.Height()

	return BoundingBox{
		X0: c.X - w/2,
		Y0: c.Y - h/2,
		X1: c.X + w/2,
		Y1: c.Y + h/2,
	}
}

// Tlwh converts the box to Tlwh (top, left, width, height) format
func (b BoundingBox) Tlwh() Tlwh {
	return Tlwh{b.X0, b.Y0, b.Width(), b.Height()}
}

// IoU calculates the Intersection over Union of two boxes.  Boxes that do not
// overlap, or only share an edge, return exactly 0
func IoU(a, b BoundingBox) float64 {

	// get the overlap rectangle
	ox0 := math.Max(a.X0, b.X0)
	oy0 := math.Max(a.Y0, b.Y0)
	ox1 := math.Min(a.X1, b.X1)
	oy1 := math.Min(a.Y1, b.Y1)

	iw := ox1 - ox0
	ih := oy1 - oy0

	if iw <= 0 || ih <= 0 {
		return 0
	}

	// a positive overlap implies both boxes have a positive area so union
	// is never zero here
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	iou := inter / union

	// non finite coordinates never overlap anything
	if math.IsNaN(iou) || math.IsInf(iou, 0) {
		return 0
	}

	return iou
}

// IsFinite reports whether every coordinate of the box is a finite number
func (b BoundingBox) IsFinite() bool {
	for _, v := range [4]float64{b.X0, b.Y0, b.X1, b.Y1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// bestIoU returns the index and value of the highest IoU between box and the
// given detections.  The first index wins on ties and an empty slice returns
// an index of -1
func bestIoU(box BoundingBox, dets []BoundingBox) (int, float64) {

	bestIdx := -1
	best := 0.0

	for i, det := range dets {
		iou := IoU(box, det)

		if bestIdx == -1 || iou > best {
			bestIdx = i
			best = iou
		}
	}

	return bestIdx, best
}
