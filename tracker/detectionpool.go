package tracker

// detectionPool holds the detections of a single frame that have not been
// claimed by a track yet.  It is owned by one Step call and never shared
type detectionPool struct {
	boxes []BoundingBox
}

// newDetectionPool copies the frame detections so the caller's slice is never
// modified
func newDetectionPool(dets []BoundingBox) *detectionPool {
	return &detectionPool{
		boxes: append([]BoundingBox(nil), dets...),
	}
}

// Len returns the number of unclaimed detections
func (p *detectionPool) Len() int {
	return len(p.boxes)
}

// take removes the detection at index i and returns it.  The order of the
// remaining detections is preserved
func (p *detectionPool) take(i int) BoundingBox {
	det := p.boxes[i]
	p.boxes = append(p.boxes[:i], p.boxes[i+1:]...)
	return det
}

// removeAll removes every detection whose index is in claimed
func (p *detectionPool) removeAll(claimed map[int]bool) {

	if len(claimed) == 0 {
		return
	}

	kept := p.boxes[:0]

	for i, det := range p.boxes {
		if !claimed[i] {
			kept = append(kept, det)
		}
	}

	p.boxes = kept
}
