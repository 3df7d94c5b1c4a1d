// Package trajectory plots the centroid paths of tracks to an image file
package trajectory

import (
	"fmt"

	"github.com/swdee/go-ioutracker/tracker"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// maxLegendEntries limits the legend so long videos stay readable
const maxLegendEntries = 20

// Plot builds a plot of each track's centroid path in image coordinates.  The
// Y axis is inverted so the plot matches the video frame orientation.  A
// width or height of zero lets the axis fit the data
func Plot(tracks []*tracker.Track, width, height float64) (*plot.Plot, error) {

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track trajectories (%d tracks)", len(tracks))
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	p.Add(plotter.NewGrid())

	for i, t := range tracks {

		centroids := t.Centroids()

		if len(centroids) == 0 {
			continue
		}

		pts := make(plotter.XYs, len(centroids))

		for j, c := range centroids {
			pts[j] = plotter.XY{X: c.X, Y: c.Y}
		}

		clr := plotutil.Color(i)

		line, err := plotter.NewLine(pts)

		if err != nil {
			return nil, fmt.Errorf("track %d line: %w", t.GetTrackID(), err)
		}

		line.Color = clr
		line.Width = vg.Points(1)

		// mark where the track started
		start, err := plotter.NewScatter(pts[:1])

		if err != nil {
			return nil, fmt.Errorf("track %d start: %w", t.GetTrackID(), err)
		}

		start.Color = clr
		start.Shape = draw.CircleGlyph{}
		start.Radius = vg.Points(2)

		p.Add(line, start)

		if i < maxLegendEntries {
			p.Legend.Add(fmt.Sprintf("track %d", t.GetTrackID()), line)
		}
	}

	if width > 0 {
		p.X.Min = 0
		p.X.Max = width
	}

	if height > 0 {
		p.Y.Min = 0
		p.Y.Max = height
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

// Save writes the trajectory plot of tracks to path.  The image format is
// chosen from the file extension, eg: .png, .svg or .pdf
func Save(path string, tracks []*tracker.Track, width, height float64) error {

	p, err := Plot(tracks, width, height)

	if err != nil {
		return err
	}

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save trajectory plot: %w", err)
	}

	return nil
}
