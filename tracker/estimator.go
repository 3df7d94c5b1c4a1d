package tracker

import "errors"

var (
	// ErrTimestampRegression is returned when a timestamp earlier than the one
	// already seen is passed to the tracker or an estimator
	ErrTimestampRegression = errors.New("timestamp is earlier than previous timestamp")
)

// StateEstimator is the predictive filter owned by each Track.  It estimates
// where the track's centroid will be at a given time and is refined with the
// centroids of associated detections
type StateEstimator interface {
	// PredictAssociation returns the predicted centroid at timestamp without
	// changing the estimator state.  It is used for scoring detections
	PredictAssociation(timestamp float64) (Centroid, error)
	// Advance moves the internal state forward to timestamp without a
	// measurement
	Advance(timestamp float64) error
	// Correct applies a measurement update with the observed centroid
	Correct(measured Centroid) error
}

// EstimatorFactory constructs a new StateEstimator seeded with the initial
// centroid observed at timestamp.  Any motion model is bound into the factory
// when it is created, eg: KalmanFactory(NewConstantVelocityModel(2, q), noise)
type EstimatorFactory func(initial Centroid, timestamp float64) (StateEstimator, error)
