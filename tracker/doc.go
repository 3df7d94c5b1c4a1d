/*
Package tracker links per frame object detections into persistent tracks.

Each frame's detections are passed to IOUTracker.Step.  A track claims the
detection with the highest IoU against either its last box or the box its
state estimator predicts for the frame, provided the IoU exceeds the
threshold.  Young tracks, with too little history for their motion estimate
to be trusted, are also scored on the raw overlap with their last box.
Detections left unclaimed start new tracks.

Tracks are visited in creation order and the first track to claim a
detection keeps it.  Setting Config.Assignment to Optimal instead solves
the pairing of all tracks and detections jointly with LAPJV.

The default state estimator is a constant velocity Kalman filter over the
box centroid.  Any type implementing StateEstimator can be used by passing
an EstimatorFactory to NewIOUTracker.
*/
package tracker
