package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidThreshold is returned when an IoU threshold is outside [0,1]
	ErrInvalidThreshold = errors.New("iou threshold must be within [0,1]")
	// ErrInvalidMinLength is returned when the minimum track length is negative
	ErrInvalidMinLength = errors.New("minimum track length must not be negative")
	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errors.New("invalid tracker configuration")
	// ErrInvalidDetection is returned when a detection has a non finite
	// coordinate
	ErrInvalidDetection = errors.New("detection coordinates must be finite")
)

// AssignmentStrategy selects how tracks and detections are paired each frame
type AssignmentStrategy int

const (
	// Greedy visits tracks in creation order, each claiming its best
	// remaining detection
	Greedy AssignmentStrategy = 0
	// Optimal solves a minimum cost assignment over all tracks and
	// detections with LAPJV
	Optimal AssignmentStrategy = 1
)

// String returns the name of the strategy
func (a AssignmentStrategy) String() string {
	switch a {
	case Greedy:
		return "greedy"
	case Optimal:
		return "optimal"
	}

	return fmt.Sprintf("AssignmentStrategy(%d)", int(a))
}

// ParseAssignmentStrategy converts a strategy name to an AssignmentStrategy
func ParseAssignmentStrategy(s string) (AssignmentStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "greedy", "":
		return Greedy, nil
	case "optimal", "lapjv":
		return Optimal, nil
	}

	return Greedy, fmt.Errorf("unknown assignment strategy %q, use 'greedy' or 'optimal'", s)
}

// MarshalText implements encoding.TextMarshaler
func (a AssignmentStrategy) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *AssignmentStrategy) UnmarshalText(text []byte) error {
	v, err := ParseAssignmentStrategy(string(text))

	if err != nil {
		return err
	}

	*a = v
	return nil
}

// Config holds the tracker parameters
type Config struct {
	// SigmaIOU is the default IoU threshold drivers pass to Step
	SigmaIOU float64 `json:"sigma_iou"`
	// TMin is the default minimum track length drivers pass to Step
	TMin int `json:"t_min"`
	// MaxMisses is the number of consecutive unmatched frames a track may
	// have before it is retired.  Zero disables retirement and tracks stay
	// in the active set forever
	MaxMisses int `json:"max_misses"`
	// Assignment selects greedy or optimal matching
	Assignment AssignmentStrategy `json:"assignment"`
	// YoungTrackLength is the history length below which the raw IoU with
	// the last box is also scored against detections
	YoungTrackLength int `json:"young_track_length"`
	// AccelerationVar is the constant velocity model process noise
	AccelerationVar float64 `json:"acceleration_var"`
	// Kalman filter noise settings
	InitialPositionVar float64 `json:"initial_position_var"`
	InitialVelocityVar float64 `json:"initial_velocity_var"`
	MeasurementVar     float64 `json:"measurement_var"`
}

// DefaultConfig returns the default tracker configuration
func DefaultConfig() Config {
	noise := DefaultKalmanNoise()

	return Config{
		SigmaIOU:           0.3,
		TMin:               0,
		MaxMisses:          0,
		Assignment:         Greedy,
		YoungTrackLength:   3,
		AccelerationVar:    100,
		InitialPositionVar: noise.InitialPositionVar,
		InitialVelocityVar: noise.InitialVelocityVar,
		MeasurementVar:     noise.MeasurementVar,
	}
}

// Validate checks the configuration values are usable
func (c Config) Validate() error {

	if err := validateThreshold(c.SigmaIOU); err != nil {
		return fmt.Errorf("%w: sigma_iou: %w", ErrInvalidConfig, err)
	}

	if c.TMin < 0 {
		return fmt.Errorf("%w: t_min: %w", ErrInvalidConfig, ErrInvalidMinLength)
	}

	if c.MaxMisses < 0 {
		return fmt.Errorf("%w: max_misses must not be negative, got %d",
			ErrInvalidConfig, c.MaxMisses)
	}

	if c.Assignment != Greedy && c.Assignment != Optimal {
		return fmt.Errorf("%w: unknown assignment %v", ErrInvalidConfig, c.Assignment)
	}

	if c.YoungTrackLength < 0 {
		return fmt.Errorf("%w: young_track_length must not be negative, got %d",
			ErrInvalidConfig, c.YoungTrackLength)
	}

	if c.AccelerationVar < 0 {
		return fmt.Errorf("%w: acceleration_var must not be negative, got %v",
			ErrInvalidConfig, c.AccelerationVar)
	}

	if c.InitialPositionVar <= 0 || c.InitialVelocityVar <= 0 || c.MeasurementVar <= 0 {
		return fmt.Errorf("%w: kalman variances must be positive", ErrInvalidConfig)
	}

	return nil
}

// KalmanNoise returns the Kalman filter noise settings
func (c Config) KalmanNoise() KalmanNoise {
	return KalmanNoise{
		InitialPositionVar: c.InitialPositionVar,
		InitialVelocityVar: c.InitialVelocityVar,
		MeasurementVar:     c.MeasurementVar,
	}
}

// EstimatorFactory returns a factory for constant velocity Kalman filters
// using the configured noise settings
func (c Config) EstimatorFactory() EstimatorFactory {
	return KalmanFactory(NewConstantVelocityModel(2, c.AccelerationVar), c.KalmanNoise())
}

// LoadConfig loads a Config from a JSON file.  Fields omitted from the file
// keep their default values
func LoadConfig(path string) (Config, error) {

	cleanPath := filepath.Clean(path)

	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)

	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}

	const maxFileSize = 1 * 1024 * 1024

	if fileInfo.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)",
			fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)

	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// validateThreshold checks an IoU threshold is a number within [0,1]
func validateThreshold(sigma float64) error {
	if math.IsNaN(sigma) || sigma < 0 || sigma > 1 {
		return fmt.Errorf("%w, got %v", ErrInvalidThreshold, sigma)
	}

	return nil
}
