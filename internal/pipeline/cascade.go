// Package pipeline chains the accident, severity and object detectors over a clip.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
	"github.com/mvahmadali/CrashAnalytix/internal/metrics"
	"github.com/mvahmadali/CrashAnalytix/internal/video"
	"github.com/mvahmadali/CrashAnalytix/internal/vision"
	"github.com/mvahmadali/CrashAnalytix/internal/vote"
)

type Config struct {
	AccidentStride      int
	CropSize            int
	SnapshotCount       int
	Workers             int
	ObjectMinConfidence float64
}

func (c Config) withDefaults() Config {
	if c.AccidentStride <= 0 {
		c.AccidentStride = 1
	}
	if c.CropSize <= 0 {
		c.CropSize = 224
	}
	if c.SnapshotCount <= 0 {
		c.SnapshotCount = 8
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.ObjectMinConfidence <= 0 {
		c.ObjectMinConfidence = 0.4
	}
	return c
}

// Scan is the outcome of one accident pass over a clip.
type Scan struct {
	Detected bool
	// StoppedAt is the index of the frame that tripped the accident class, or
	// of the last frame read when none did. -1 for an empty clip.
	StoppedAt  int
	FramesRead int
	Frames     []accident.FrameLabelSet
	Crops      []string
}

type Aggregation struct {
	SeverityLabel    int
	Severity         accident.Severity
	SeverityFallback bool
	Objects          vote.ObjectVerdict
	CropsSkipped     int
}

type Cascade struct {
	accident vision.Detector
	severity vision.Detector
	object   vision.Detector
	cfg      Config
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewCascade(accidentDet, severityDet, objectDet vision.Detector, cfg Config, m *metrics.Metrics, log zerolog.Logger) *Cascade {
	return &Cascade{
		accident: accidentDet,
		severity: severityDet,
		object:   objectDet,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		log:      log,
	}
}

// DetectAccident submits every stride-th frame to the accident detector and
// stops at the first frame containing the accident class. Every box of every
// submitted frame is cropped, resized and written to cropDir.
func (c *Cascade) DetectAccident(ctx context.Context, src video.Source, stride int, cropDir string) (Scan, error) {
	if stride <= 0 {
		stride = c.cfg.AccidentStride
	}

	frame := gocv.NewMat()
	defer frame.Close()

	scan := Scan{StoppedAt: -1}
	for {
		if err := ctx.Err(); err != nil {
			return scan, err
		}
		idx, err := src.Next(&frame)
		if errors.Is(err, video.ErrEndOfStream) {
			break
		}
		if err != nil {
			return scan, fmt.Errorf("failed to read frame: %w", err)
		}
		scan.FramesRead++
		scan.StoppedAt = idx
		if idx%stride != 0 {
			continue
		}

		c.metrics.FrameScanned("accident")
		detections, err := c.accident.Detect(ctx, frame, vision.DetectOptions{})
		if err != nil {
			if ctx.Err() != nil {
				return scan, ctx.Err()
			}
			c.log.Warn().Err(err).Int("frame", idx).Msg("accident detection failed, skipping frame")
			continue
		}

		labels := accident.FrameLabelSet{FrameIndex: idx, ClassIDs: make([]int, 0, len(detections))}
		for _, det := range detections {
			labels.ClassIDs = append(labels.ClassIDs, det.ClassID)
		}
		scan.Frames = append(scan.Frames, labels)
		scan.Crops = append(scan.Crops, c.writeCrops(frame, idx, detections, cropDir)...)

		if containsAccident(labels.ClassIDs) {
			scan.Detected = true
			c.log.Info().Int("frame", idx).Ints("classes", labels.ClassIDs).Msg("accident detected")
			break
		}
	}
	return scan, nil
}

func containsAccident(classIDs []int) bool {
	for _, id := range classIDs {
		if id == accident.AccidentClassID {
			return true
		}
	}
	return false
}

func (c *Cascade) writeCrops(frame gocv.Mat, idx int, detections []accident.Detection, dir string) []string {
	size := image.Pt(c.cfg.CropSize, c.cfg.CropSize)
	paths := make([]string, 0, len(detections))
	for i, det := range detections {
		crop, err := vision.CropResized(frame, det.Box, size)
		if err != nil {
			c.log.Debug().Err(err).Int("frame", idx).Msg("skipping crop")
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("frame%06d_box%02d.jpg", idx, i))
		ok := gocv.IMWrite(path, crop)
		crop.Close()
		if !ok {
			c.log.Warn().Str("path", path).Msg("failed to write crop")
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// CaptureSnapshots reopens the clip and writes evenly spaced whole frames to dir.
func (c *Cascade) CaptureSnapshots(ctx context.Context, opener video.Opener, path, dir string) ([]string, error) {
	src, err := opener.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	wanted := video.SnapshotIndexes(src.Metadata(), c.cfg.SnapshotCount)
	if len(wanted) == 0 {
		return nil, nil
	}
	pending := make(map[int]bool, len(wanted))
	for _, idx := range wanted {
		pending[idx] = true
	}

	frame := gocv.NewMat()
	defer frame.Close()

	var paths []string
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		idx, err := src.Next(&frame)
		if errors.Is(err, video.ErrEndOfStream) {
			break
		}
		if err != nil {
			return paths, fmt.Errorf("failed to read frame: %w", err)
		}
		if !pending[idx] {
			continue
		}
		delete(pending, idx)

		c.metrics.FrameScanned("snapshot")
		out := filepath.Join(dir, fmt.Sprintf("snapshot_%06d.jpg", idx))
		if !gocv.IMWrite(out, frame) {
			c.log.Warn().Str("path", out).Msg("failed to write snapshot")
			continue
		}
		paths = append(paths, out)
	}
	return paths, nil
}

// ClassifyCrops runs the severity and object classifiers on every crop.
// Crops are processed in parallel; outcomes keep the crop order.
func (c *Cascade) ClassifyCrops(ctx context.Context, crops []string) (severity, objects []vote.Outcome, err error) {
	severity = make([]vote.Outcome, len(crops))
	objects = make([]vote.Outcome, len(crops))
	objectOpts := vision.DetectOptions{
		MinConfidence: c.cfg.ObjectMinConfidence,
		Classes:       accident.ObjectClasses,
	}

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Workers)
	for i, path := range crops {
		g.Go(func() error {
			img := gocv.IMRead(path, gocv.IMReadColor)
			defer img.Close()
			if img.Empty() {
				reason := fmt.Errorf("unreadable crop %s", filepath.Base(path))
				severity[i], objects[i] = vote.Skip(reason), vote.Skip(reason)
				return nil
			}
			severity[i] = classify(ctx, c.severity, img, vision.DetectOptions{})
			objects[i] = classify(ctx, c.object, img, objectOpts)
			return nil
		})
	}
	_ = g.Wait()

	for i := range crops {
		c.metrics.CropClassified("severity", severity[i].Skipped())
		c.metrics.CropClassified("object", objects[i].Skipped())
	}
	return severity, objects, ctx.Err()
}

func classify(ctx context.Context, det vision.Detector, img gocv.Mat, opts vision.DetectOptions) vote.Outcome {
	detections, err := det.Detect(ctx, img, opts)
	if err != nil {
		return vote.Skip(fmt.Errorf("%s: %w", det.Name(), err))
	}
	labels := make([]int, 0, len(detections))
	for _, d := range detections {
		labels = append(labels, d.ClassID)
	}
	return vote.Ok(labels...)
}

// Aggregate classifies the crops and votes severity and involved objects.
func (c *Cascade) Aggregate(ctx context.Context, crops []string) (Aggregation, error) {
	sevOutcomes, objOutcomes, err := c.ClassifyCrops(ctx, crops)
	if err != nil {
		return Aggregation{}, err
	}

	var agg Aggregation
	for i := range sevOutcomes {
		if sevOutcomes[i].Skipped() {
			agg.CropsSkipped++
			c.log.Debug().Err(sevOutcomes[i].Reason).Msg("crop skipped")
		}
	}

	agg.SeverityLabel, agg.SeverityFallback = vote.Severity(sevOutcomes)
	agg.Severity = accident.SeverityFromLabel(agg.SeverityLabel)
	agg.Objects = vote.Objects(objOutcomes)

	c.log.Info().
		Int("crops", len(crops)).
		Int("crops_skipped", agg.CropsSkipped).
		Str("severity", string(agg.Severity)).
		Bool("severity_fallback", agg.SeverityFallback).
		Int("vehicle_count", agg.Objects.Count).
		Ints("classes", agg.Objects.ClassIDs).
		Msg("crops aggregated")
	return agg, nil
}
