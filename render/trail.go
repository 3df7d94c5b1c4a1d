package render

import (
	"image/color"

	"github.com/swdee/go-ioutracker/tracker"
	"gocv.io/x/gocv"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame defines if the color of the trail line should be the
	// same color as that of the bounding box.  If set to false then use
	// the color specified at LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// CircleSame defines if the color of the centroid circle should be the
	// same color as that of the bounding box.  If set to false then use
	// the color specified at CircleColor
	CircleSame   bool
	CircleColor  color.RGBA
	CircleRadius int
	// MaxPoints is the number of most recent centroids drawn, zero draws the
	// whole history
	MaxPoints int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  3,
		MaxPoints:     90,
	}
}

// Trails draws the centroid history of each track as a line ending in a
// circle on the most recent centroid
func Trails(img *gocv.Mat, tracks []*tracker.Track, style TrailStyle) {

	for _, t := range tracks {

		objClr := trackColor(t.GetTrackID())

		// determine style colors to use
		lineClr := objClr
		circleClr := objClr

		if !style.LineSame {
			lineClr = style.LineColor
		}

		if !style.CircleSame {
			circleClr = style.CircleColor
		}

		points := trailPoints(t.Centroids(), style.MaxPoints)

		if len(points) == 0 {
			continue
		}

		for i := 1; i < len(points); i++ {
			gocv.Line(img, points[i-1].Point(), points[i].Point(),
				lineClr, style.LineThickness)
		}

		gocv.Circle(img, points[len(points)-1].Point(), style.CircleRadius,
			circleClr, -1)
	}
}

// trailPoints returns the most recent n centroids
func trailPoints(centroids []tracker.Centroid, n int) []tracker.Centroid {
	if n <= 0 || len(centroids) <= n {
		return centroids
	}

	return centroids[len(centroids)-n:]
}
