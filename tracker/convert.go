package tracker

import (
	"image"
	"math"
)

// FromRectangles converts integer pixel rectangles, such as those produced by
// an object detector, into detections for Step
func FromRectangles(rects []image.Rectangle) []BoundingBox {

	dets := make([]BoundingBox, 0, len(rects))

	for _, r := range rects {
		dets = append(dets, NewBoundingBox(float64(r.Min.X), float64(r.Min.Y),
			float64(r.Max.X), float64(r.Max.Y)))
	}

	return dets
}

// Rectangle returns the box rounded to integer pixel coordinates for drawing
func (b BoundingBox) Rectangle() image.Rectangle {
	return image.Rect(
		int(math.Round(b.X0)), int(math.Round(b.Y0)),
		int(math.Round(b.X1)), int(math.Round(b.Y1)),
	)
}

// Point returns the centroid rounded to integer pixel coordinates
func (c Centroid) Point() image.Point {
	return image.Pt(int(math.Round(c.X)), int(math.Round(c.Y)))
}
