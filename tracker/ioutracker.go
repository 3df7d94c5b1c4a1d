package tracker

import (
	"fmt"
	"log"
	"math"
)

// matchMethod names which score won the association for a track
type matchMethod string

const (
	// instantMethod is the raw IoU between the last box and a detection
	instantMethod matchMethod = "instant"
	// filteredMethod is the IoU between the estimator predicted box and a
	// detection
	filteredMethod matchMethod = "filtered"
)

// match is the best detection found for a track in the current frame
type match struct {
	index  int
	iou    float64
	method matchMethod
}

// IOUTracker associates per frame detections into tracks by scoring the IoU
// of each track's last box and its estimator predicted box against the
// frame's detections.
//
// An IOUTracker is not safe for concurrent use, calls to Step must be
// serialized by the caller
type IOUTracker struct {
	config Config
	// newEstimator creates the state estimator of each new track
	newEstimator EstimatorFactory
	// Current frame ID
	frameID int
	// Counter for assigning unique track IDs
	trackIDCount int
	// lastTimestamp is the timestamp of the previous Step call
	lastTimestamp float64
	// List of tracks eligible for matching in creation order
	activeTracks []*Track
	// List of retired tracks that met the minimum length
	finishedTracks []*Track
	// optional debug logger
	logger *log.Logger
}

// NewIOUTracker returns a tracker with the given configuration.  If factory
// is nil the constant velocity Kalman filter described by the configuration
// is used as the state estimator
func NewIOUTracker(cfg Config, factory EstimatorFactory) (*IOUTracker, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if factory == nil {
		factory = cfg.EstimatorFactory()
	}

	return &IOUTracker{
		config:       cfg,
		newEstimator: factory,
	}, nil
}

// SetLogger enables per frame debug logging of associations.  Pass nil to
// disable it again
func (it *IOUTracker) SetLogger(logger *log.Logger) {
	it.logger = logger
}

// Config returns the tracker configuration
func (it *IOUTracker) Config() Config {
	return it.config
}

// Reset clears all tracks and restarts the frame counter.  Track IDs keep
// increasing so an ID is never handed out twice by the same tracker
func (it *IOUTracker) Reset() {
	it.frameID = 0
	it.lastTimestamp = 0
	it.activeTracks = nil
	it.finishedTracks = nil
}

// FrameCount returns the number of frames processed
func (it *IOUTracker) FrameCount() int {
	return it.frameID
}

// ActiveTracks returns the tracks currently eligible for matching in
// creation order
func (it *IOUTracker) ActiveTracks() []*Track {
	return append([]*Track(nil), it.activeTracks...)
}

// FinishedTracks returns the retired tracks that met the minimum track length
func (it *IOUTracker) FinishedTracks() []*Track {
	return append([]*Track(nil), it.finishedTracks...)
}

// Track returns the active or finished track with the given ID, or nil
func (it *IOUTracker) Track(id int) *Track {

	for _, track := range it.activeTracks {
		if track.trackID == id {
			return track
		}
	}

	for _, track := range it.finishedTracks {
		if track.trackID == id {
			return track
		}
	}

	return nil
}

// Step processes the detections of one frame captured at timestamp.  Active
// tracks claim detections scoring an IoU above sigmaIOU, unclaimed detections
// start new tracks, and tracks retired this frame are kept as finished only
// if they hold at least tMin detections.  The active tracks are returned
func (it *IOUTracker) Step(detections []BoundingBox, timestamp float64,
	sigmaIOU float64, tMin int) ([]*Track, error) {

	if err := validateThreshold(sigmaIOU); err != nil {
		return nil, err
	}

	if tMin < 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidMinLength, tMin)
	}

	if math.IsNaN(timestamp) || math.IsInf(timestamp, 0) {
		return nil, fmt.Errorf("timestamp must be a finite number, got %v", timestamp)
	}

	for i, det := range detections {
		if !det.IsFinite() {
			return nil, fmt.Errorf("%w: detection %d is %v", ErrInvalidDetection, i, det)
		}
	}

	if it.frameID > 0 && timestamp < it.lastTimestamp {
		return nil, fmt.Errorf("%w: %v before %v", ErrTimestampRegression,
			timestamp, it.lastTimestamp)
	}

	it.frameID++
	it.lastTimestamp = timestamp

	it.debugf("frame %d, timestamp %v, %d detections, %d active tracks",
		it.frameID, timestamp, len(detections), len(it.activeTracks))

	pool := newDetectionPool(detections)

	var matched []bool
	var err error

	switch it.config.Assignment {
	case Optimal:
		matched, err = it.associateOptimal(pool, timestamp, sigmaIOU)
	default:
		matched, err = it.associateGreedy(pool, timestamp, sigmaIOU)
	}

	if err != nil {
		return nil, err
	}

	it.retire(matched, tMin)

	if err := it.spawn(pool, timestamp); err != nil {
		return nil, err
	}

	return it.ActiveTracks(), nil
}

// Flush retires every active track at the end of a stream.  Tracks holding at
// least tMin detections are added to the finished tracks and returned
func (it *IOUTracker) Flush(tMin int) ([]*Track, error) {

	if tMin < 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidMinLength, tMin)
	}

	var flushed []*Track

	for _, track := range it.activeTracks {
		if it.finish(track, tMin) {
			flushed = append(flushed, track)
		}
	}

	it.activeTracks = nil

	return flushed, nil
}

// associateGreedy visits the active tracks in creation order, each claiming
// its best scoring remaining detection.  An earlier track wins a contested
// detection even if a later track scores higher against it
func (it *IOUTracker) associateGreedy(pool *detectionPool, timestamp float64,
	sigmaIOU float64) ([]bool, error) {

	matched := make([]bool, len(it.activeTracks))

	for idx, track := range it.activeTracks {

		if pool.Len() == 0 {
			break
		}

		best, err := it.bestMatch(track, pool.boxes, timestamp)

		if err != nil {
			return nil, err
		}

		it.debugf("track %d best iou %.4f (%s) with detection %v",
			track.trackID, best.iou, best.method, pool.boxes[best.index])

		if !(best.iou > sigmaIOU) {
			continue
		}

		// remove the detection from the pool so no other track can claim it
		det := pool.take(best.index)

		if err := track.update(det, timestamp, it.frameID); err != nil {
			return nil, err
		}

		matched[idx] = true
	}

	return matched, nil
}

// bestMatch scores a track against the detections.  Young tracks are scored
// on the IoU with their last box as well as the predicted box, the predicted
// box wins unless the instantaneous IoU is strictly greater
func (it *IOUTracker) bestMatch(track *Track, dets []BoundingBox,
	timestamp float64) (match, error) {

	instant := match{index: -1, iou: 0, method: instantMethod}

	if track.isYoung(it.config.YoungTrackLength) {
		instant.index, instant.iou = bestIoU(track.LastBoundingBox(), dets)
	}

	predicted, err := track.predictBox(timestamp)

	if err != nil {
		return match{}, err
	}

	it.debugf("track %d predicted box %v", track.trackID, predicted)

	filtered := match{method: filteredMethod}
	filtered.index, filtered.iou = bestIoU(predicted, dets)

	if instant.iou > filtered.iou {
		return instant, nil
	}

	return filtered, nil
}

// associateOptimal scores every track against every detection with the same
// hybrid score as the greedy strategy, then solves the assignment jointly
func (it *IOUTracker) associateOptimal(pool *detectionPool, timestamp float64,
	sigmaIOU float64) ([]bool, error) {

	nTracks := len(it.activeTracks)
	nDets := pool.Len()
	matched := make([]bool, nTracks)

	if nTracks == 0 || nDets == 0 {
		return matched, nil
	}

	scores := make([][]float64, nTracks)
	cost := make([][]float64, nTracks)

	for i, track := range it.activeTracks {

		young := track.isYoung(it.config.YoungTrackLength)
		last := track.LastBoundingBox()

		predicted, err := track.predictBox(timestamp)

		if err != nil {
			return nil, err
		}

		scores[i] = make([]float64, nDets)
		cost[i] = make([]float64, nDets)

		for j, det := range pool.boxes {
			score := IoU(predicted, det)

			if young {
				score = math.Max(score, IoU(last, det))
			}

			scores[i][j] = score
			cost[i][j] = 1 - score
		}
	}

	matches, _, _, err := linearAssignment(cost, nTracks, nDets, 1-sigmaIOU)

	if err != nil {
		return nil, err
	}

	claimed := make(map[int]bool)

	// matches are ordered by track so updates happen in creation order
	for _, m := range matches {
		ti, di := m[0], m[1]
		track := it.activeTracks[ti]

		it.debugf("track %d assigned detection %v with iou %.4f",
			track.trackID, pool.boxes[di], scores[ti][di])

		if !(scores[ti][di] > sigmaIOU) {
			continue
		}

		if err := track.update(pool.boxes[di], timestamp, it.frameID); err != nil {
			return nil, err
		}

		matched[ti] = true
		claimed[di] = true
	}

	pool.removeAll(claimed)

	return matched, nil
}

// retire marks unmatched tracks as missed and moves tracks exceeding the
// configured number of misses out of the active set
func (it *IOUTracker) retire(matched []bool, tMin int) {

	kept := it.activeTracks[:0]

	for idx, track := range it.activeTracks {

		if !matched[idx] {
			track.markMissed()
		}

		if it.config.MaxMisses > 0 && track.misses > it.config.MaxMisses {
			it.finish(track, tMin)
			continue
		}

		kept = append(kept, track)
	}

	// clear the tail so retired tracks are not kept alive by the array
	for i := len(kept); i < len(it.activeTracks); i++ {
		it.activeTracks[i] = nil
	}

	it.activeTracks = kept
}

// finish marks a track finished and keeps it when it holds at least tMin
// detections.  It reports whether the track was kept
func (it *IOUTracker) finish(track *Track, tMin int) bool {

	track.markFinished()

	if track.Len() < tMin {
		it.debugf("track %d dropped with %d detections", track.trackID, track.Len())
		return false
	}

	it.debugf("track %d finished with %d detections", track.trackID, track.Len())
	it.finishedTracks = append(it.finishedTracks, track)

	return true
}

// spawn starts a new track for every detection left in the pool
func (it *IOUTracker) spawn(pool *detectionPool, timestamp float64) error {

	for _, det := range pool.boxes {

		estimator, err := it.newEstimator(det.Centroid(), timestamp)

		if err != nil {
			return fmt.Errorf("error creating estimator for new track: %w", err)
		}

		it.trackIDCount++
		track := newTrack(it.trackIDCount, det, estimator, timestamp, it.frameID)
		it.activeTracks = append(it.activeTracks, track)

		it.debugf("starting new track %d from detection %v", track.trackID, det)
	}

	return nil
}

func (it *IOUTracker) debugf(format string, args ...interface{}) {
	if it.logger != nil {
		it.logger.Printf(format, args...)
	}
}
