// Command iou-tracker runs the IOU tracker over a MOTChallenge detection file
// and writes the tracking results in the MOTChallenge format
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/swdee/go-ioutracker/mot"
	"github.com/swdee/go-ioutracker/store"
	"github.com/swdee/go-ioutracker/tracker"
	"github.com/swdee/go-ioutracker/trajectory"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	loadEnv()

	// read in cli flags
	detFile := flag.String("d", getEnv("IOU_DETECTIONS", ""), "MOTChallenge detection file (det.txt)")
	outFile := flag.String("o", getEnv("IOU_OUTPUT", ""), "Output file for tracking results, defaults to stdout")
	sigma := flag.Float64("sigma", getEnvAsFloat("IOU_SIGMA", 0.3), "IoU threshold a detection must exceed to match a track")
	tMin := flag.Int("tmin", getEnvAsInt("IOU_TMIN", 3), "Minimum number of detections a finished track must hold")
	fps := flag.Float64("fps", getEnvAsFloat("IOU_FPS", 30), "Frame rate used to convert frame numbers to timestamps")
	maxMisses := flag.Int("max-misses", getEnvAsInt("IOU_MAX_MISSES", 0), "Consecutive missed frames before a track is finished, 0 keeps tracks forever")
	assign := flag.String("assign", getEnv("IOU_ASSIGN", "greedy"), "Assignment strategy, 'greedy' or 'optimal'")
	minScore := flag.Float64("min-score", getEnvAsFloat("IOU_MIN_SCORE", 0), "Skip detections scoring below this confidence")
	configFile := flag.String("config", getEnv("IOU_CONFIG", ""), "JSON tracker configuration file, flags override its values")
	dbFile := flag.String("db", getEnv("IOU_DB", ""), "SQLite database to store finished tracks in")
	plotFile := flag.String("plot", getEnv("IOU_PLOT", ""), "Save a trajectory plot of the finished tracks, eg: traj.png")
	vidFile := flag.String("v", getEnv("IOU_VIDEO", ""), "Source video to annotate with the tracking results")
	annotatedFile := flag.String("out", getEnv("IOU_ANNOTATED", "annotated.mp4"), "Output file for the annotated video")
	debug := flag.Bool("debug", getEnvAsBool("IOU_DEBUG", false), "Log per frame association details")

	flag.Parse()

	if *detFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	if *fps <= 0 {
		log.Fatalf("Frame rate must be positive, got %v", *fps)
	}

	cfg := tracker.DefaultConfig()

	// when a config file is given only the flags set on the command line
	// override it, otherwise every flag including its environment default
	// is used
	set := make(map[string]bool)

	if *configFile != "" {
		var err error
		cfg, err = tracker.LoadConfig(*configFile)

		if err != nil {
			log.Fatalf("Error loading tracker config: %v", err)
		}

		flag.Visit(func(f *flag.Flag) {
			set[f.Name] = true
		})
	} else {
		flag.VisitAll(func(f *flag.Flag) {
			set[f.Name] = true
		})
	}

	if set["sigma"] {
		cfg.SigmaIOU = *sigma
	}

	if set["tmin"] {
		cfg.TMin = *tMin
	}

	if set["max-misses"] {
		cfg.MaxMisses = *maxMisses
	}

	if set["assign"] {
		strategy, err := tracker.ParseAssignmentStrategy(*assign)

		if err != nil {
			log.Fatalf("Error parsing flags: %v", err)
		}

		cfg.Assignment = strategy
	}

	opts := options{
		detFile:       *detFile,
		fps:           *fps,
		minScore:      *minScore,
		dbFile:        *dbFile,
		plotFile:      *plotFile,
		vidFile:       *vidFile,
		annotatedFile: *annotatedFile,
		debug:         *debug,
	}

	if err := execute(cfg, opts, *outFile); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// options holds the command line settings used by a tracking run
type options struct {
	detFile       string
	fps           float64
	minScore      float64
	dbFile        string
	plotFile      string
	vidFile       string
	annotatedFile string
	debug         bool
}

// execute opens the results file, or stdout when outFile is empty, and runs
// the tracker into it
func execute(cfg tracker.Config, opts options, outFile string) error {

	if outFile == "" {
		_, err := run(cfg, opts, os.Stdout)
		return err
	}

	f, err := os.Create(outFile)

	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	defer f.Close()

	if _, err := run(cfg, opts, f); err != nil {
		return err
	}

	return f.Close()
}

// run tracks every frame of the detection file writing MOTChallenge results
// to out.  The database and annotated video are closed on every return.  The
// database run id is returned when a database is used
func run(cfg tracker.Config, opts options, out io.Writer) (string, error) {

	seq, err := mot.LoadDetectionsFile(opts.detFile, opts.minScore)

	if err != nil {
		return "", fmt.Errorf("failed to load detections: %w", err)
	}

	log.Printf("Loaded %d frames (%d to %d) from %s", seq.Len(), seq.FirstFrame,
		seq.LastFrame(), opts.detFile)

	it, err := tracker.NewIOUTracker(cfg, nil)

	if err != nil {
		return "", fmt.Errorf("failed to create tracker: %w", err)
	}

	if opts.debug {
		it.SetLogger(log.New(os.Stderr, "tracker: ", log.Lmicroseconds))
	}

	var db *store.Store
	var runID string

	if opts.dbFile != "" {
		db, err = store.Open(opts.dbFile)

		if err != nil {
			return "", fmt.Errorf("failed to open track database: %w", err)
		}

		defer db.Close()

		runID, err = db.StartRun(opts.detFile, cfg)

		if err != nil {
			return "", fmt.Errorf("failed to start run: %w", err)
		}

		log.Printf("Storing tracks in %s under run %s", opts.dbFile, runID)
	}

	var annotator *Annotator
	var width, height float64

	if opts.vidFile != "" {
		annotator, err = NewAnnotator(opts.vidFile, opts.annotatedFile, opts.fps)

		if err != nil {
			return runID, fmt.Errorf("failed to open video: %w", err)
		}

		defer func() {
			if annotator != nil {
				annotator.Close()
			}
		}()

		width, height = annotator.Size()
	}

	start := time.Now()
	saved := 0

	for i, dets := range seq.Frames {

		frame := seq.FirstFrame + i
		timestamp := float64(frame) / opts.fps

		tracks, err := it.Step(dets, timestamp, cfg.SigmaIOU, cfg.TMin)

		if err != nil {
			return runID, fmt.Errorf("failed to track frame %d: %w", frame, err)
		}

		if err := mot.WriteResults(out, frame, tracks); err != nil {
			return runID, fmt.Errorf("failed to write results of frame %d: %w", frame, err)
		}

		// persist tracks as they finish
		if db != nil {
			finished := it.FinishedTracks()

			if err := db.SaveTracks(runID, finished[saved:]); err != nil {
				return runID, fmt.Errorf("failed to save tracks: %w", err)
			}

			saved = len(finished)
		}

		if annotator != nil {
			ok, err := annotator.Annotate(frame, tracks)

			if err != nil {
				return runID, fmt.Errorf("failed to annotate video: %w", err)
			}

			if !ok {
				log.Printf("Video ended at frame %d, stopping annotation", frame)
				annotator.Close()
				annotator = nil
			}
		}
	}

	flushed, err := it.Flush(cfg.TMin)

	if err != nil {
		return runID, fmt.Errorf("failed to flush tracks: %w", err)
	}

	if db != nil {
		if err := db.SaveTracks(runID, flushed); err != nil {
			return runID, fmt.Errorf("failed to save tracks: %w", err)
		}
	}

	elapsed := time.Since(start)
	finished := it.FinishedTracks()

	log.Printf("Tracked %d frames in %s (%.1f FPS), %d tracks with at least %d detections",
		it.FrameCount(), elapsed, float64(it.FrameCount())/elapsed.Seconds(),
		len(finished), cfg.TMin)

	if opts.plotFile != "" {
		if err := trajectory.Save(opts.plotFile, finished, width, height); err != nil {
			return runID, fmt.Errorf("failed to save trajectory plot: %w", err)
		}

		log.Printf("Saved trajectory plot to %s", opts.plotFile)
	}

	return runID, nil
}
