package tracker

import (
	"fmt"
)

// TrackState represents the lifecycle state of a track
type TrackState int

const (
	// Track was associated with a detection in the most recent frame
	Active TrackState = 0
	// Track was not associated in one or more consecutive frames
	Missed TrackState = 1
	// Track has been retired from the active set
	Finished TrackState = 2
)

// String returns a readable name of the state
func (s TrackState) String() string {
	switch s {
	case Active:
		return "active"
	case Missed:
		return "missed"
	case Finished:
		return "finished"
	}

	return fmt.Sprintf("TrackState(%d)", int(s))
}

// Track is a persistent identity linking detections across frames
type Track struct {
	// Unique ID for the track
	trackID int
	// bboxes are the associated detections, one per successful association
	bboxes []BoundingBox
	// predictedBoxes are the estimator predicted boxes, one per frame the
	// track took part in matching, seeded with the creation detection
	predictedBoxes []BoundingBox
	// centroids of bboxes, parallel to bboxes
	centroids []Centroid
	// estimator is exclusively owned by this track
	estimator StateEstimator
	// Current state of the track
	state TrackState
	// misses is the number of consecutive frames without an association
	misses int
	// startTime is the timestamp the track was created at
	startTime float64
	// lastTime is the timestamp of the most recent association
	lastTime float64
	// startFrame is the frame number the track was created on
	startFrame int
	// lastFrame is the frame number of the most recent association
	lastFrame int
}

// newTrack creates a track seeded with a single detection
func newTrack(trackID int, det BoundingBox, estimator StateEstimator,
	timestamp float64, frame int) *Track {

	return &Track{
		trackID:        trackID,
		bboxes:         []BoundingBox{det},
		predictedBoxes: []BoundingBox{det},
		centroids:      []Centroid{det.Centroid()},
		estimator:      estimator,
		state:          Active,
		startTime:      timestamp,
		lastTime:       timestamp,
		startFrame:     frame,
		lastFrame:      frame,
	}
}

// GetTrackID returns the unique ID for the track
func (t *Track) GetTrackID() int {
	return t.trackID
}

// GetState returns the current state of the track
func (t *Track) GetState() TrackState {
	return t.state
}

// GetMisses returns the number of consecutive frames the track went unmatched
func (t *Track) GetMisses() int {
	return t.misses
}

// GetStartTime returns the timestamp the track was created at
func (t *Track) GetStartTime() float64 {
	return t.startTime
}

// GetLastTime returns the timestamp of the most recent association
func (t *Track) GetLastTime() float64 {
	return t.lastTime
}

// GetStartFrame returns the frame number the track was created on
func (t *Track) GetStartFrame() int {
	return t.startFrame
}

// GetLastFrame returns the frame number of the most recent association
func (t *Track) GetLastFrame() int {
	return t.lastFrame
}

// Len returns the number of detections associated with the track
func (t *Track) Len() int {
	return len(t.bboxes)
}

// LastBoundingBox returns the most recently associated detection
func (t *Track) LastBoundingBox() BoundingBox {
	return t.bboxes[len(t.bboxes)-1]
}

// LastPredictedBox returns the most recent predicted box
func (t *Track) LastPredictedBox() BoundingBox {
	return t.predictedBoxes[len(t.predictedBoxes)-1]
}

// BoundingBoxes returns a copy of the associated detection history
func (t *Track) BoundingBoxes() []BoundingBox {
	return append([]BoundingBox(nil), t.bboxes...)
}

// PredictedBoxes returns a copy of the predicted box history
func (t *Track) PredictedBoxes() []BoundingBox {
	return append([]BoundingBox(nil), t.predictedBoxes...)
}

// Centroids returns a copy of the centroid history
func (t *Track) Centroids() []Centroid {
	return append([]Centroid(nil), t.centroids...)
}

// Estimator returns the track's state estimator
func (t *Track) Estimator() StateEstimator {
	return t.estimator
}

// isYoung reports whether the track has too little history for its motion
// estimate to be trusted over raw box overlap
func (t *Track) isYoung(minHistory int) bool {
	return len(t.centroids) < minHistory
}

// predictBox asks the estimator for the centroid at timestamp and rebuilds a
// box around it using the size of the last associated detection
func (t *Track) predictBox(timestamp float64) (BoundingBox, error) {

	cg, err := t.estimator.PredictAssociation(timestamp)

	if err != nil {
		return BoundingBox{}, fmt.Errorf("track %d prediction: %w", t.trackID, err)
	}

	box := t.LastBoundingBox().Recenter(cg)
	t.predictedBoxes = append(t.predictedBoxes, box)

	return box, nil
}

// update advances the estimator to timestamp, corrects it with the
// detection's centroid and appends the detection to the history
func (t *Track) update(det BoundingBox, timestamp float64, frame int) error {

	cg := det.Centroid()

	// time update first as an associated measurement has been found
	if err := t.estimator.Advance(timestamp); err != nil {
		return fmt.Errorf("track %d advance: %w", t.trackID, err)
	}

	if err := t.estimator.Correct(cg); err != nil {
		return fmt.Errorf("track %d correct: %w", t.trackID, err)
	}

	t.bboxes = append(t.bboxes, det)
	t.centroids = append(t.centroids, cg)
	t.state = Active
	t.misses = 0
	t.lastTime = timestamp
	t.lastFrame = frame

	return nil
}

// markMissed records a frame in which the track was not associated
func (t *Track) markMissed() {
	t.state = Missed
	t.misses++
}

// markFinished retires the track
func (t *Track) markFinished() {
	t.state = Finished
}
