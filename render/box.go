package render

import (
	"fmt"
	"image/color"

	"github.com/swdee/go-ioutracker/tracker"
	"gocv.io/x/gocv"
)

// Tracks renders the last associated bounding box of each track labelled
// with its track ID.  Tracks that were not matched in the current frame are
// drawn with a thinner line
func Tracks(img *gocv.Mat, tracks []*tracker.Track, font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	labels := make([]boxLabel, 0, len(tracks))

	for _, t := range tracks {

		if t.Len() == 0 {
			continue
		}

		clr := trackColor(t.GetTrackID())
		rect := t.LastBoundingBox().Rectangle()

		thickness := lineThickness
		text := fmt.Sprintf("%d", t.GetTrackID())

		if t.GetState() == tracker.Missed {
			thickness = max(1, lineThickness/2)
			text = fmt.Sprintf("%d (%d)", t.GetTrackID(), t.GetMisses())
		}

		gocv.Rectangle(img, rect, clr, thickness)

		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)
		bg, textPos := placeLabel(rect, textSize, font, thickness)

		labels = append(labels, boxLabel{
			rect:    bg,
			clr:     clr,
			text:    text,
			textPos: textPos,
		})
	}

	// draw labels last so they are not overlapped by other boxes
	drawLabels(img, labels, font)
}

// PredictedBoxes renders the most recent predicted box of each track, the
// box the track was scored with when searching for a match
func PredictedBoxes(img *gocv.Mat, tracks []*tracker.Track, clr color.RGBA,
	lineThickness int) {

	for _, t := range tracks {
		gocv.Rectangle(img, t.LastPredictedBox().Rectangle(), clr, lineThickness)
	}
}
