package tracker

import (
	"gonum.org/v1/gonum/mat"
)

// MotionModel describes the kinematics a KalmanFilter uses to propagate its
// state.  The state vector is laid out as positions followed by their
// derivatives, and only the positions are observed
type MotionModel interface {
	// Dims is the number of observed spatial dimensions
	Dims() int
	// StateSize is the length of the state vector
	StateSize() int
	// Transition returns the state transition matrix F for a time step dt
	Transition(dt float64) *mat.Dense
	// ProcessNoise returns the process noise covariance Q for a time step dt
	ProcessNoise(dt float64) *mat.Dense
	// Observation returns the Dims x StateSize measurement matrix H
	Observation() *mat.Dense
}

// ConstantVelocityModel models objects moving with constant velocity and
// white noise acceleration.  For dims=2 the state is [x, y, vx, vy]
type ConstantVelocityModel struct {
	dims int
	// accelVar is the variance of the random acceleration driving the
	// process noise
	accelVar float64
}

// NewConstantVelocityModel returns a constant velocity model with the given
// number of spatial dimensions and acceleration variance
func NewConstantVelocityModel(dims int, accelVar float64) *ConstantVelocityModel {
	return &ConstantVelocityModel{
		dims:     dims,
		accelVar: accelVar,
	}
}

// Dims returns the number of observed spatial dimensions
func (m *ConstantVelocityModel) Dims() int {
	return m.dims
}

// StateSize returns the length of the state vector, a position and velocity
// per dimension
func (m *ConstantVelocityModel) StateSize() int {
	return 2 * m.dims
}

// Transition returns F = [[I, dt*I], [0, I]]
func (m *ConstantVelocityModel) Transition(dt float64) *mat.Dense {

	n := m.StateSize()
	f := mat.NewDense(n, n, nil)

	for i := 0; i < n; i++ {
		f.Set(i, i, 1.0)
	}

	for i := 0; i < m.dims; i++ {
		f.Set(i, m.dims+i, dt)
	}

	return f
}

// ProcessNoise returns the discrete white noise acceleration covariance
// q * [[dt^4/4, dt^3/2], [dt^3/2, dt^2]] applied per dimension
func (m *ConstantVelocityModel) ProcessNoise(dt float64) *mat.Dense {

	n := m.StateSize()
	q := mat.NewDense(n, n, nil)

	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt

	for i := 0; i < m.dims; i++ {
		p := i
		v := m.dims + i

		q.Set(p, p, m.accelVar*dt4/4)
		q.Set(p, v, m.accelVar*dt3/2)
		q.Set(v, p, m.accelVar*dt3/2)
		q.Set(v, v, m.accelVar*dt2)
	}

	return q
}

// Observation returns H = [I 0]
func (m *ConstantVelocityModel) Observation() *mat.Dense {

	h := mat.NewDense(m.dims, m.StateSize(), nil)

	for i := 0; i < m.dims; i++ {
		h.Set(i, i, 1.0)
	}

	return h
}
