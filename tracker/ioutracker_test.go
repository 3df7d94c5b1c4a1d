package tracker

import (
	"bytes"
	"log"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, factory EstimatorFactory, opts ...func(*Config)) *IOUTracker {
	t.Helper()

	it, err := NewIOUTracker(testConfig(opts...), factory)
	require.NoError(t, err)

	return it
}

func TestStepSpawnsTrackFromFirstDetection(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory)

	tracks, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	track := tracks[0]
	assert.Equal(t, 1, track.GetTrackID())
	assert.Equal(t, []BoundingBox{box(0, 0, 10, 10)}, track.BoundingBoxes())
	assert.Equal(t, []BoundingBox{box(0, 0, 10, 10)}, track.PredictedBoxes())
	assert.Equal(t, []Centroid{{X: 5, Y: 5}}, track.Centroids())
	assert.Equal(t, Active, track.GetState())
	assert.Equal(t, 1, it.FrameCount())
}

func TestStepUpdatesMatchingTrack(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory)

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
	require.NoError(t, err)

	tracks, err := it.Step([]BoundingBox{box(1, 1, 11, 11)}, 1, 0.3, 0)
	require.NoError(t, err)
	require.Len(t, tracks, 1, "no new track should be spawned")

	track := tracks[0]
	assert.Equal(t, 2, track.Len())
	assert.Equal(t, box(1, 1, 11, 11), track.LastBoundingBox())
	assert.Equal(t, []Centroid{{X: 5, Y: 5}, {X: 6, Y: 6}}, track.Centroids())
	assert.Len(t, track.PredictedBoxes(), 2)
	assert.Equal(t, 1.0, track.GetLastTime())
	assert.Equal(t, 2, track.GetLastFrame())
}

func TestStepContestedDetectionGoesToEarlierTrack(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory)

	// two overlapping detections in the first frame both start tracks
	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10), box(2, 0, 12, 10)}, 0, 0.3, 0)
	require.NoError(t, err)

	// the detection matches track 2 perfectly but track 1 is visited first
	tracks, err := it.Step([]BoundingBox{box(2, 0, 12, 10)}, 1, 0.3, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, trackIDs(tracks))

	assert.Equal(t, 2, tracks[0].Len())
	assert.Equal(t, box(2, 0, 12, 10), tracks[0].LastBoundingBox())

	// the pool was empty by the time track 2 was visited so it was not scored
	assert.Equal(t, 1, tracks[1].Len())
	assert.Len(t, tracks[1].PredictedBoxes(), 1)
	assert.Equal(t, Missed, tracks[1].GetState())
	assert.Equal(t, 1, tracks[1].GetMisses())
}

func TestStepOptimalAssignmentResolvesContest(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory, func(c *Config) {
		c.Assignment = Optimal
	})

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10), box(2, 0, 12, 10)}, 0, 0.3, 0)
	require.NoError(t, err)

	tracks, err := it.Step([]BoundingBox{box(2, 0, 12, 10)}, 1, 0.3, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, trackIDs(tracks))

	assert.Equal(t, 1, tracks[0].Len())
	assert.Equal(t, Missed, tracks[0].GetState())
	assert.Equal(t, 2, tracks[1].Len())
	assert.Equal(t, box(2, 0, 12, 10), tracks[1].LastBoundingBox())

	// every track is scored when detections are present
	assert.Len(t, tracks[0].PredictedBoxes(), 2)
	assert.Len(t, tracks[1].PredictedBoxes(), 2)
}

func TestStepOptimalAssignmentMatchesAll(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory, func(c *Config) {
		c.Assignment = Optimal
	})

	_, err := it.Step([]BoundingBox{
		box(0, 0, 10, 10),
		box(50, 50, 60, 60),
		box(200, 0, 220, 40),
	}, 0, 0.3, 0)
	require.NoError(t, err)

	// detections arrive in a different order and one is new
	tracks, err := it.Step([]BoundingBox{
		box(300, 300, 310, 310),
		box(201, 1, 221, 41),
		box(1, 0, 11, 10),
		box(51, 51, 61, 61),
	}, 1, 0.3, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4}, trackIDs(tracks))

	assert.Equal(t, box(1, 0, 11, 10), tracks[0].LastBoundingBox())
	assert.Equal(t, box(51, 51, 61, 61), tracks[1].LastBoundingBox())
	assert.Equal(t, box(201, 1, 221, 41), tracks[2].LastBoundingBox())
	assert.Equal(t, []BoundingBox{box(300, 300, 310, 310)}, tracks[3].BoundingBoxes())
}

func TestStepBelowThresholdSpawnsNewTrack(t *testing.T) {
	t.Parallel()

	for _, strategy := range []AssignmentStrategy{Greedy, Optimal} {
		strategy := strategy
		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()

			it := newTestTracker(t, identityFactory, func(c *Config) {
				c.Assignment = strategy
			})

			_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.5, 0)
			require.NoError(t, err)

			// iou of 1/3 is below the threshold
			tracks, err := it.Step([]BoundingBox{box(5, 0, 15, 10)}, 1, 0.5, 0)
			require.NoError(t, err)
			require.Equal(t, []int{1, 2}, trackIDs(tracks))

			assert.Equal(t, 1, tracks[0].Len())
			assert.Equal(t, []BoundingBox{box(5, 0, 15, 10)}, tracks[1].BoundingBoxes())
		})
	}
}

func TestStepThresholdIsStrict(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory)

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.5, 0)
	require.NoError(t, err)

	// iou is exactly 0.5 which does not exceed the threshold
	half := box(0, 0, 10, 5)
	require.Equal(t, 0.5, IoU(box(0, 0, 10, 10), half))

	tracks, err := it.Step([]BoundingBox{half}, 1, 0.5, 0)
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
}

func TestStepYoungTrackUsesInstantIoU(t *testing.T) {
	t.Parallel()

	// the estimator predicts far away from every detection so only the
	// instantaneous score can match
	far := fixedFactory(Centroid{X: 1000, Y: 1000})
	it := newTestTracker(t, far)

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		tracks, err := it.Step([]BoundingBox{box(float64(i), 0, float64(10+i), 10)}, float64(i), 0.3, 0)
		require.NoError(t, err)
		require.Len(t, tracks, 1, "frame %d", i)
	}

	track := it.Track(1)
	require.NotNil(t, track)
	assert.Equal(t, 3, track.Len())

	est := track.Estimator().(*fixedEstimator)
	assert.Equal(t, 2, est.advances)
	assert.Equal(t, 2, est.corrects)

	// with three centroids the track is no longer young and the far
	// prediction cannot match
	tracks, err := it.Step([]BoundingBox{box(3, 0, 13, 10)}, 3, 0.3, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, trackIDs(tracks))
	assert.Equal(t, 3, tracks[0].Len())
	assert.Equal(t, box(1000-5, 1000-5, 1000+5, 1000+5), tracks[0].LastPredictedBox())
}

func TestStepPredictedBoxKeepsLastSize(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, fixedFactory(Centroid{X: 20, Y: 30}))

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 20)}, 0, 0.3, 0)
	require.NoError(t, err)

	_, err = it.Step([]BoundingBox{box(500, 500, 510, 510)}, 1, 0.3, 0)
	require.NoError(t, err)

	want := []BoundingBox{box(0, 0, 10, 20), box(15, 20, 25, 40)}
	if diff := cmp.Diff(want, it.Track(1).PredictedBoxes()); diff != "" {
		t.Errorf("predicted boxes mismatch (-want +got):\n%s", diff)
	}
}

func TestStepEmptyFrames(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory)

	tracks, err := it.Step(nil, 0, 0.3, 0)
	require.NoError(t, err)
	assert.Empty(t, tracks)

	_, err = it.Step([]BoundingBox{box(0, 0, 10, 10)}, 1, 0.3, 0)
	require.NoError(t, err)

	tracks, err = it.Step([]BoundingBox{}, 2, 0.3, 0)
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	// no state is appended to an unmatched track
	assert.Equal(t, 1, tracks[0].Len())
	assert.Len(t, tracks[0].PredictedBoxes(), 1)
	assert.Equal(t, Missed, tracks[0].GetState())
}

func TestStepDoesNotModifyDetections(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory)

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
	require.NoError(t, err)

	dets := []BoundingBox{box(1, 1, 11, 11), box(100, 100, 110, 110)}
	orig := append([]BoundingBox(nil), dets...)

	_, err = it.Step(dets, 1, 0.3, 0)
	require.NoError(t, err)

	assert.Equal(t, orig, dets)
}

func TestTrackIDsStrictlyIncrease(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory, func(c *Config) {
		c.MaxMisses = 1
	})

	seen := make(map[int]bool)
	last := 0

	for frame := 0; frame < 20; frame++ {

		// a moving object plus a new object every frame
		dets := []BoundingBox{
			box(float64(frame), 0, float64(frame+10), 10),
			box(float64(frame*50), 500, float64(frame*50+5), 505),
		}

		tracks, err := it.Step(dets, float64(frame), 0.3, 0)
		require.NoError(t, err)

		for _, track := range tracks {
			id := track.GetTrackID()

			if !seen[id] {
				assert.Greater(t, id, last, "new track ids must increase")
				last = id
				seen[id] = true
			}
		}
	}

	// the moving object kept id 1 and every frame spawned one new track
	assert.Equal(t, 20, it.Track(1).Len())
	assert.Equal(t, 21, last)
}

func TestStepEndToEndWithKalman(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, nil)

	tracks, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1}, trackIDs(tracks))
	assert.Equal(t, []BoundingBox{box(0, 0, 10, 10)}, tracks[0].BoundingBoxes())

	tracks, err = it.Step([]BoundingBox{box(1, 1, 11, 11)}, 1, 0.3, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1}, trackIDs(tracks))
	assert.Equal(t, 2, tracks[0].Len())

	tracks, err = it.Step([]BoundingBox{box(100, 100, 110, 110)}, 2, 0.3, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, trackIDs(tracks))
	assert.Equal(t, 2, tracks[0].Len())
	assert.Equal(t, 1, tracks[1].Len())

	kf, ok := tracks[0].Estimator().(*KalmanFilter)
	require.True(t, ok)
	assert.Equal(t, 1.0, kf.Timestamp())
}

func TestStepPredictionBridgesMissedFrame(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, nil, func(c *Config) {
		c.AccelerationVar = 1
		c.MeasurementVar = 1
	})

	// an object moving 4 pixels per frame
	for frame := 0; frame < 10; frame++ {
		x := float64(frame * 4)

		tracks, err := it.Step([]BoundingBox{box(x, 0, x+10, 10)}, float64(frame), 0.3, 0)
		require.NoError(t, err)
		require.Len(t, tracks, 1, "frame %d", frame)
	}

	// the detection is lost for one frame
	_, err := it.Step(nil, 10, 0.3, 0)
	require.NoError(t, err)

	// after the gap the object has moved 8 pixels from its last box, an
	// iou of 2/18, so only the predicted box can match it
	last := it.Track(1).LastBoundingBox()
	next := box(44, 0, 54, 10)
	require.Less(t, IoU(last, next), 0.3)

	tracks, err := it.Step([]BoundingBox{next}, 11, 0.3, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1}, trackIDs(tracks))
	assert.Equal(t, 11, tracks[0].Len())
	assert.Equal(t, Active, tracks[0].GetState())
}

func TestStepRetiresMissedTracks(t *testing.T) {
	t.Parallel()

	t.Run("short track dropped", func(t *testing.T) {
		t.Parallel()

		it := newTestTracker(t, identityFactory, func(c *Config) {
			c.MaxMisses = 2
		})

		_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 2)
		require.NoError(t, err)

		for frame := 1; frame <= 2; frame++ {
			tracks, err := it.Step(nil, float64(frame), 0.3, 2)
			require.NoError(t, err)
			require.Len(t, tracks, 1)
			assert.Equal(t, frame, tracks[0].GetMisses())
		}

		tracks, err := it.Step(nil, 3, 0.3, 2)
		require.NoError(t, err)
		assert.Empty(t, tracks)
		assert.Empty(t, it.FinishedTracks())
		assert.Nil(t, it.Track(1))
	})

	t.Run("long track kept", func(t *testing.T) {
		t.Parallel()

		it := newTestTracker(t, identityFactory, func(c *Config) {
			c.MaxMisses = 1
		})

		_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 2)
		require.NoError(t, err)
		_, err = it.Step([]BoundingBox{box(1, 0, 11, 10)}, 1, 0.3, 2)
		require.NoError(t, err)
		_, err = it.Step(nil, 2, 0.3, 2)
		require.NoError(t, err)

		tracks, err := it.Step(nil, 3, 0.3, 2)
		require.NoError(t, err)
		assert.Empty(t, tracks)

		finished := it.FinishedTracks()
		require.Len(t, finished, 1)
		assert.Equal(t, 1, finished[0].GetTrackID())
		assert.Equal(t, Finished, finished[0].GetState())
		assert.Equal(t, 2, finished[0].Len())
	})

	t.Run("match resets misses", func(t *testing.T) {
		t.Parallel()

		it := newTestTracker(t, identityFactory, func(c *Config) {
			c.MaxMisses = 1
		})

		_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
		require.NoError(t, err)
		tracks, err := it.Step(nil, 1, 0.3, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, tracks[0].GetMisses())

		tracks, err = it.Step([]BoundingBox{box(0, 0, 10, 10)}, 2, 0.3, 0)
		require.NoError(t, err)
		require.Len(t, tracks, 1)
		assert.Equal(t, 0, tracks[0].GetMisses())
		assert.Equal(t, Active, tracks[0].GetState())
	})

	t.Run("disabled by default", func(t *testing.T) {
		t.Parallel()

		it := newTestTracker(t, identityFactory)

		_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
		require.NoError(t, err)

		var tracks []*Track
		for frame := 1; frame <= 50; frame++ {
			tracks, err = it.Step(nil, float64(frame), 0.3, 0)
			require.NoError(t, err)
		}

		require.Len(t, tracks, 1)
		assert.Equal(t, 50, tracks[0].GetMisses())
	})
}

func TestFlush(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory)

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10), box(100, 0, 110, 10)}, 0, 0.3, 0)
	require.NoError(t, err)
	_, err = it.Step([]BoundingBox{box(1, 0, 11, 10)}, 1, 0.3, 0)
	require.NoError(t, err)

	_, err = it.Flush(-1)
	require.ErrorIs(t, err, ErrInvalidMinLength)

	flushed, err := it.Flush(2)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, trackIDs(flushed))
	assert.Equal(t, []int{1}, trackIDs(it.FinishedTracks()))
	assert.Empty(t, it.ActiveTracks())
	assert.Equal(t, Finished, it.Track(1).GetState())
}

func TestStepValidation(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory)

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 5, 0.3, 0)
	require.NoError(t, err)

	tests := []struct {
		name      string
		timestamp float64
		sigma     float64
		tMin      int
		want      error
	}{
		{"negative sigma", 6, -0.1, 0, ErrInvalidThreshold},
		{"sigma above one", 6, 1.1, 0, ErrInvalidThreshold},
		{"nan sigma", 6, math.NaN(), 0, ErrInvalidThreshold},
		{"negative t_min", 6, 0.3, -1, ErrInvalidMinLength},
		{"time regression", 4, 0.3, 0, ErrTimestampRegression},
	}

	for _, tc := range tests {
		_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, tc.timestamp, tc.sigma, tc.tMin)
		assert.ErrorIs(t, err, tc.want, tc.name)
	}

	_, err = it.Step(nil, math.Inf(1), 0.3, 0)
	assert.Error(t, err)

	_, err = it.Step([]BoundingBox{box(0, 0, 10, 10), box(0, math.Inf(1), 10, 10)}, 6, 0.3, 0)
	assert.ErrorIs(t, err, ErrInvalidDetection)

	// failed steps leave the tracker untouched
	assert.Equal(t, 1, it.FrameCount())
	require.Len(t, it.ActiveTracks(), 1)
	assert.Equal(t, 1, it.ActiveTracks()[0].Len())

	// equal timestamps are allowed
	_, err = it.Step(nil, 5, 0.3, 0)
	assert.NoError(t, err)
}

func TestStepRejectsNonFiniteDetection(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory)

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
	require.NoError(t, err)

	nan := box(math.NaN(), 0, 10, 10)

	_, err = it.Step([]BoundingBox{nan, box(1, 1, 11, 11)}, 1, 0.3, 0)
	require.ErrorIs(t, err, ErrInvalidDetection)

	assert.Equal(t, 1, it.FrameCount())
	require.Equal(t, []int{1}, trackIDs(it.ActiveTracks()))
	assert.Equal(t, []BoundingBox{box(0, 0, 10, 10)}, it.Track(1).BoundingBoxes())

	// the same frame without the bad detection matches the existing track
	tracks, err := it.Step([]BoundingBox{box(1, 1, 11, 11)}, 1, 0.3, 0)
	require.NoError(t, err)
	require.Equal(t, []int{1}, trackIDs(tracks))
	assert.Equal(t, box(1, 1, 11, 11), tracks[0].LastBoundingBox())
}

func TestAssociationIgnoresNaNDetection(t *testing.T) {
	t.Parallel()

	for _, strategy := range []AssignmentStrategy{Greedy, Optimal} {
		strategy := strategy
		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()

			it := newTestTracker(t, identityFactory, func(c *Config) {
				c.Assignment = strategy
			})

			_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
			require.NoError(t, err)

			// bypass Step validation to score a nan box directly
			pool := newDetectionPool([]BoundingBox{box(math.NaN(), 0, 10, 10), box(1, 1, 11, 11)})

			var matched []bool

			if strategy == Optimal {
				matched, err = it.associateOptimal(pool, 1, 0.3)
			} else {
				matched, err = it.associateGreedy(pool, 1, 0.3)
			}

			require.NoError(t, err)
			assert.Equal(t, []bool{true}, matched)
			assert.Equal(t, box(1, 1, 11, 11), it.Track(1).LastBoundingBox())

			for _, b := range it.Track(1).PredictedBoxes() {
				assert.True(t, b.IsFinite(), "predicted box %v", b)
			}
		})
	}
}

func TestStepEstimatorFailure(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, failingFactory)

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
	require.NoError(t, err)

	_, err = it.Step([]BoundingBox{box(0, 0, 10, 10)}, 1, 0.3, 0)
	require.ErrorIs(t, err, errEstimator)

	// the failed update appended nothing
	assert.Equal(t, 1, it.Track(1).Len())
	assert.Equal(t, len(it.Track(1).BoundingBoxes()), len(it.Track(1).Centroids()))
}

func TestNewIOUTrackerRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewIOUTracker(testConfig(func(c *Config) { c.MaxMisses = -1 }), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReset(t *testing.T) {
	t.Parallel()

	it := newTestTracker(t, identityFactory)

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 10, 0.3, 0)
	require.NoError(t, err)

	it.Reset()
	assert.Empty(t, it.ActiveTracks())
	assert.Equal(t, 0, it.FrameCount())

	// timestamps may start again from zero after a reset but track ids are
	// not reused
	tracks, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, trackIDs(tracks))
	assert.Nil(t, it.Track(1))
}

func TestSetLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	it := newTestTracker(t, identityFactory)
	it.SetLogger(log.New(&buf, "", 0))

	_, err := it.Step([]BoundingBox{box(0, 0, 10, 10)}, 0, 0.3, 0)
	require.NoError(t, err)
	_, err = it.Step([]BoundingBox{box(1, 1, 11, 11)}, 1, 0.3, 0)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "starting new track 1")
	assert.Contains(t, out, "track 1 best iou")

	buf.Reset()
	it.SetLogger(nil)
	_, err = it.Step(nil, 2, 0.3, 0)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
