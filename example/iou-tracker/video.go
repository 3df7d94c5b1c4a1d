package main

import (
	"fmt"
	"log"

	"github.com/swdee/go-ioutracker/render"
	"github.com/swdee/go-ioutracker/tracker"
	"gocv.io/x/gocv"
)

// Annotator reads frames from the source video, draws the tracking results
// on them and writes them to the output video
type Annotator struct {
	video  *gocv.VideoCapture
	writer *gocv.VideoWriter
	img    gocv.Mat
	// frameNum is the MOT frame number of the last frame read, MOT frames
	// are numbered from 1
	frameNum int
	font     render.Font
	trail    render.TrailStyle
}

// NewAnnotator opens the source video and creates the output video with the
// same frame size
func NewAnnotator(vidFile, outFile string, fps float64) (*Annotator, error) {

	video, err := gocv.VideoCaptureFile(vidFile)

	if err != nil {
		if video != nil {
			video.Close()
		}
		return nil, fmt.Errorf("failed to open video file: %w", err)
	}

	width := int(video.Get(gocv.VideoCaptureFrameWidth))
	height := int(video.Get(gocv.VideoCaptureFrameHeight))

	writer, err := gocv.VideoWriterFile(outFile, "mp4v", fps, width, height, true)

	if err != nil {
		video.Close()
		return nil, fmt.Errorf("failed to create output video: %w", err)
	}

	log.Printf("Annotating video %s (%dx%d) to %s", vidFile, width, height, outFile)

	return &Annotator{
		video:  video,
		writer: writer,
		img:    gocv.NewMat(),
		font:   render.DefaultFont(),
		trail:  render.DefaultTrailStyle(),
	}, nil
}

// Size returns the video frame width and height
func (a *Annotator) Size() (float64, float64) {
	return a.video.Get(gocv.VideoCaptureFrameWidth), a.video.Get(gocv.VideoCaptureFrameHeight)
}

// Annotate advances the source video to MOT frame number frame, draws the
// tracks on it and writes it out.  It returns false once the video has no
// more frames
func (a *Annotator) Annotate(frame int, tracks []*tracker.Track) (bool, error) {

	for a.frameNum < frame {
		if ok := a.video.Read(&a.img); !ok {
			return false, nil
		}

		a.frameNum++
	}

	if a.img.Empty() {
		return true, nil
	}

	render.PredictedBoxes(&a.img, tracks, render.Gray, 1)
	render.Trails(&a.img, tracks, a.trail)
	render.Tracks(&a.img, tracks, a.font, 2)

	if err := a.writer.Write(a.img); err != nil {
		return false, fmt.Errorf("failed to write frame %d: %w", frame, err)
	}

	return true, nil
}

// Close releases the video handles
func (a *Annotator) Close() {
	a.img.Close()
	a.writer.Close()
	a.video.Close()
}
