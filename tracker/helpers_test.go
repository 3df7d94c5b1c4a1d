package tracker

import (
	"errors"
	"math"
)

// identityEstimator predicts the last corrected centroid
type identityEstimator struct {
	c Centroid
}

func (e *identityEstimator) PredictAssociation(float64) (Centroid, error) {
	return e.c, nil
}

func (e *identityEstimator) Advance(float64) error {
	return nil
}

func (e *identityEstimator) Correct(measured Centroid) error {
	e.c = measured
	return nil
}

func identityFactory(initial Centroid, _ float64) (StateEstimator, error) {
	return &identityEstimator{c: initial}, nil
}

// fixedEstimator always predicts the same centroid
type fixedEstimator struct {
	at       Centroid
	advances int
	corrects int
}

func (e *fixedEstimator) PredictAssociation(float64) (Centroid, error) {
	return e.at, nil
}

func (e *fixedEstimator) Advance(float64) error {
	e.advances++
	return nil
}

func (e *fixedEstimator) Correct(Centroid) error {
	e.corrects++
	return nil
}

func fixedFactory(at Centroid) EstimatorFactory {
	return func(Centroid, float64) (StateEstimator, error) {
		return &fixedEstimator{at: at}, nil
	}
}

var errEstimator = errors.New("estimator failure")

// failingEstimator fails to correct
type failingEstimator struct {
	identityEstimator
}

func (e *failingEstimator) Correct(Centroid) error {
	return errEstimator
}

func failingFactory(initial Centroid, _ float64) (StateEstimator, error) {
	return &failingEstimator{identityEstimator{c: initial}}, nil
}

// testConfig returns the default configuration with the given overrides
func testConfig(opts ...func(*Config)) Config {
	cfg := DefaultConfig()

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// almostEqual checks if two float64 values are approximately equal
func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func box(x0, y0, x1, y1 float64) BoundingBox {
	return NewBoundingBox(x0, y0, x1, y1)
}

func trackIDs(tracks []*Track) []int {
	ids := make([]int, 0, len(tracks))

	for _, t := range tracks {
		ids = append(ids, t.GetTrackID())
	}

	return ids
}
