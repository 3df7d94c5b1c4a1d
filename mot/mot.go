// Package mot reads MOTChallenge detection files and writes tracking results
// in the MOTChallenge format
package mot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/swdee/go-ioutracker/tracker"
)

// ErrEmptySequence is returned when a detection file holds no detections
var ErrEmptySequence = errors.New("no detections found")

// Sequence holds the detections of a video grouped by frame
type Sequence struct {
	// FirstFrame is the frame number of Frames[0]
	FirstFrame int
	// Frames holds the detections of each frame from FirstFrame to the last
	// frame with a detection.  Frames without detections are empty
	Frames [][]tracker.BoundingBox
	// Scores are the detector confidences parallel to Frames
	Scores [][]float64
}

// Len returns the number of frames in the sequence
func (s *Sequence) Len() int {
	return len(s.Frames)
}

// LastFrame returns the frame number of the last frame
func (s *Sequence) LastFrame() int {
	return s.FirstFrame + len(s.Frames) - 1
}

// Frame returns the detections of frame number n, or nil when n is outside
// the sequence
func (s *Sequence) Frame(n int) []tracker.BoundingBox {
	i := n - s.FirstFrame

	if i < 0 || i >= len(s.Frames) {
		return nil
	}

	return s.Frames[i]
}

// row is a single parsed detection line
type row struct {
	frame int
	box   tracker.BoundingBox
	score float64
}

// LoadDetectionsFile loads a MOTChallenge det.txt file
func LoadDetectionsFile(path string, minScore float64) (*Sequence, error) {

	f, err := os.Open(path)

	if err != nil {
		return nil, fmt.Errorf("failed to open detections: %w", err)
	}

	defer f.Close()

	return LoadDetections(f, minScore)
}

// LoadDetections parses MOTChallenge detection rows of the form
// frame,id,x,y,w,h,score[,...].  Rows scoring below minScore are skipped.  A
// missing score column counts as a score of 1
func LoadDetections(r io.Reader, minScore float64) (*Sequence, error) {

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var rows []row
	first, last := 0, 0

	for {
		record, err := reader.Read()

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read detections: %w", err)
		}

		line, _ := reader.FieldPos(0)
		det, err := parseRow(record)

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if det.score < minScore {
			continue
		}

		if len(rows) == 0 || det.frame < first {
			first = det.frame
		}

		if len(rows) == 0 || det.frame > last {
			last = det.frame
		}

		rows = append(rows, det)
	}

	if len(rows) == 0 {
		return nil, ErrEmptySequence
	}

	seq := &Sequence{
		FirstFrame: first,
		Frames:     make([][]tracker.BoundingBox, last-first+1),
		Scores:     make([][]float64, last-first+1),
	}

	for _, det := range rows {
		i := det.frame - first
		seq.Frames[i] = append(seq.Frames[i], det.box)
		seq.Scores[i] = append(seq.Scores[i], det.score)
	}

	return seq, nil
}

// parseRow converts the fields of one detection line
func parseRow(record []string) (row, error) {

	if len(record) < 6 {
		return row{}, fmt.Errorf("expected at least 6 fields, got %d", len(record))
	}

	frame, err := strconv.Atoi(strings.TrimSpace(record[0]))

	if err != nil {
		// some tools write the frame number as a float
		f, ferr := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)

		if ferr != nil || f != float64(int(f)) {
			return row{}, fmt.Errorf("invalid frame number %q", record[0])
		}

		frame = int(f)
	}

	var v [5]float64

	// x, y, w, h and the optional score
	for i := 0; i < 5; i++ {
		col := i + 2

		if col >= len(record) {
			v[i] = 1
			break
		}

		v[i], err = strconv.ParseFloat(strings.TrimSpace(record[col]), 64)

		if err != nil || math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return row{}, fmt.Errorf("invalid value %q in column %d", record[col], col+1)
		}
	}

	return row{
		frame: frame,
		box:   tracker.NewBoundingBoxFromTlwh(tracker.Tlwh{v[0], v[1], v[2], v[3]}),
		score: v[4],
	}, nil
}

// WriteResults writes a MOTChallenge result row frame,id,x,y,w,h,1,-1,-1,-1
// for every track associated with a detection in the current frame
func WriteResults(w io.Writer, frame int, tracks []*tracker.Track) error {

	writer := csv.NewWriter(w)

	for _, t := range tracks {

		if t.GetState() != tracker.Active {
			continue
		}

		tlwh := t.LastBoundingBox().Tlwh()

		err := writer.Write([]string{
			strconv.Itoa(frame),
			strconv.Itoa(t.GetTrackID()),
			formatFloat(tlwh[0]),
			formatFloat(tlwh[1]),
			formatFloat(tlwh[2]),
			formatFloat(tlwh[3]),
			"1", "-1", "-1", "-1",
		})

		if err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	writer.Flush()

	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
