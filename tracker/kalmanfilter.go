package tracker

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// KalmanNoise holds the variances used to seed and correct a KalmanFilter
type KalmanNoise struct {
	// InitialPositionVar is the variance of the position components of the
	// initial state covariance
	InitialPositionVar float64
	// InitialVelocityVar is the variance of the velocity components of the
	// initial state covariance.  It is large as a new track has no velocity
	// observation yet
	InitialVelocityVar float64
	// MeasurementVar is the variance of an observed centroid coordinate
	MeasurementVar float64
}

// DefaultKalmanNoise returns noise settings suitable for pixel coordinates
// with timestamps in seconds
func DefaultKalmanNoise() KalmanNoise {
	return KalmanNoise{
		InitialPositionVar: 10,
		InitialVelocityVar: 1e4,
		MeasurementVar:     10,
	}
}

// KalmanFilter is a linear Kalman filter over a track's centroid.  The motion
// model provides the state layout, transition and process noise
type KalmanFilter struct {
	model MotionModel
	// mean state vector, positions followed by velocities
	mean *mat.VecDense
	// covariance of the state
	covariance *mat.Dense
	// measurementCov is the observation noise covariance R
	measurementCov *mat.SymDense
	// timestamp the state is valid for
	timestamp float64
}

// NewKalmanFilter initializes a filter at the initial centroid observed at
// timestamp with zero velocity
func NewKalmanFilter(initial Centroid, timestamp float64, model MotionModel,
	noise KalmanNoise) (*KalmanFilter, error) {

	dims := model.Dims()

	if dims != 2 {
		return nil, fmt.Errorf("kalman filter tracks 2D centroids, motion model has %d dimensions", dims)
	}

	n := model.StateSize()

	mean := mat.NewVecDense(n, nil)
	mean.SetVec(0, initial.X)
	mean.SetVec(1, initial.Y)

	// set the diagonal elements of the covariance matrix to the variances
	covariance := mat.NewDense(n, n, nil)

	for i := 0; i < n; i++ {
		if i < dims {
			covariance.Set(i, i, noise.InitialPositionVar)
		} else {
			covariance.Set(i, i, noise.InitialVelocityVar)
		}
	}

	measurementCov := mat.NewSymDense(dims, nil)

	for i := 0; i < dims; i++ {
		measurementCov.SetSym(i, i, noise.MeasurementVar)
	}

	return &KalmanFilter{
		model:          model,
		mean:           mean,
		covariance:     covariance,
		measurementCov: measurementCov,
		timestamp:      timestamp,
	}, nil
}

// KalmanFactory returns an EstimatorFactory creating KalmanFilters bound to
// the given motion model and noise settings
func KalmanFactory(model MotionModel, noise KalmanNoise) EstimatorFactory {
	return func(initial Centroid, timestamp float64) (StateEstimator, error) {
		return NewKalmanFilter(initial, timestamp, model, noise)
	}
}

// PredictAssociation returns the centroid predicted at timestamp, the filter
// state is left unchanged
func (kf *KalmanFilter) PredictAssociation(timestamp float64) (Centroid, error) {

	mean, _, err := kf.propagate(timestamp)

	if err != nil {
		return Centroid{}, err
	}

	return kf.position(mean), nil
}

// Advance performs the time update, moving the state and covariance forward
// to timestamp
func (kf *KalmanFilter) Advance(timestamp float64) error {

	mean, covariance, err := kf.propagate(timestamp)

	if err != nil {
		return err
	}

	kf.mean = mean
	kf.covariance = covariance
	kf.timestamp = timestamp

	return nil
}

// Correct performs the measurement update with the observed centroid
func (kf *KalmanFilter) Correct(measured Centroid) error {

	h := kf.model.Observation()
	dims := kf.model.Dims()
	n := kf.model.StateSize()

	// project the state covariance to measurement space, S = H P H' + R
	var hp mat.Dense
	hp.Mul(h, kf.covariance)

	var hph mat.Dense
	hph.Mul(&hp, h.T())

	innovationCov := mat.NewSymDense(dims, nil)

	for i := 0; i < dims; i++ {
		for j := i; j < dims; j++ {
			v := (hph.At(i, j)+hph.At(j, i))/2 + kf.measurementCov.At(i, j)
			innovationCov.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky

	if ok := chol.Factorize(innovationCov); !ok {
		return errors.New("failed to factorize innovation covariance")
	}

	// the transposed gain K' = S^-1 H P as P is symmetric
	var gainT mat.Dense

	if err := chol.SolveTo(&gainT, &hp); err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	projected := mat.NewVecDense(dims, nil)
	projected.MulVec(h, kf.mean)

	innovation := mat.NewVecDense(dims, []float64{
		measured.X - projected.AtVec(0),
		measured.Y - projected.AtVec(1),
	})

	delta := mat.NewVecDense(n, nil)
	delta.MulVec(gainT.T(), innovation)

	mean := mat.NewVecDense(n, nil)
	mean.AddVec(kf.mean, delta)

	// P = P - K H P
	var khp mat.Dense
	khp.Mul(gainT.T(), &hp)

	covariance := mat.NewDense(n, n, nil)
	covariance.Sub(kf.covariance, &khp)

	kf.mean = mean
	kf.covariance = covariance

	return nil
}

// State returns a copy of the state vector
func (kf *KalmanFilter) State() []float64 {
	out := make([]float64, kf.mean.Len())

	for i := range out {
		out[i] = kf.mean.AtVec(i)
	}

	return out
}

// Covariance returns a copy of the state covariance
func (kf *KalmanFilter) Covariance() *mat.Dense {
	return mat.DenseCopyOf(kf.covariance)
}

// Timestamp returns the time the filter state is valid for
func (kf *KalmanFilter) Timestamp() float64 {
	return kf.timestamp
}

// propagate runs the motion model from the filter timestamp to timestamp and
// returns the new mean and covariance without storing them
func (kf *KalmanFilter) propagate(timestamp float64) (*mat.VecDense, *mat.Dense, error) {

	dt := timestamp - kf.timestamp

	if dt < 0 {
		return nil, nil, fmt.Errorf("%w: %v before %v", ErrTimestampRegression,
			timestamp, kf.timestamp)
	}

	n := kf.model.StateSize()
	f := kf.model.Transition(dt)

	mean := mat.NewVecDense(n, nil)
	mean.MulVec(f, kf.mean)

	var fp mat.Dense
	fp.Mul(f, kf.covariance)

	covariance := mat.NewDense(n, n, nil)
	covariance.Mul(&fp, f.T())
	covariance.Add(covariance, kf.model.ProcessNoise(dt))

	return mean, covariance, nil
}

// position returns the observed part of a state vector as a Centroid
func (kf *KalmanFilter) position(mean *mat.VecDense) Centroid {

	z := mat.NewVecDense(kf.model.Dims(), nil)
	z.MulVec(kf.model.Observation(), mean)

	return Centroid{X: z.AtVec(0), Y: z.AtVec(1)}
}
