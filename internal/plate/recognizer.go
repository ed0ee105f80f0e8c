package plate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/mvahmadali/CrashAnalytix/internal/metrics"
	"github.com/mvahmadali/CrashAnalytix/internal/ocr"
	"github.com/mvahmadali/CrashAnalytix/internal/utils"
	"github.com/mvahmadali/CrashAnalytix/internal/video"
	"github.com/mvahmadali/CrashAnalytix/internal/vision"
)

type Config struct {
	Stride           int
	MinOCRConfidence float64
	MinCropSide      int
}

func (c Config) withDefaults() Config {
	if c.Stride <= 0 {
		c.Stride = 15
	}
	if c.MinOCRConfidence <= 0 {
		c.MinOCRConfidence = 0.4
	}
	if c.MinCropSide <= 0 {
		c.MinCropSide = 100
	}
	return c
}

type Result struct {
	Plate         string  `json:"plate,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	Candidates    int     `json:"candidates"`
	FramesScanned int     `json:"frames_scanned"`
}

// Plates returns the recognized plate as a zero or one element list.
func (r Result) Plates() []string {
	if r.Plate == "" {
		return []string{}
	}
	return []string{r.Plate}
}

// Recognizer scans a clip on its own pass and returns at most one plate.
type Recognizer struct {
	opener   video.Opener
	detector vision.Detector
	engine   ocr.Engine
	cfg      Config
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewRecognizer(opener video.Opener, detector vision.Detector, engine ocr.Engine, cfg Config, m *metrics.Metrics, log zerolog.Logger) *Recognizer {
	return &Recognizer{
		opener:   opener,
		detector: detector,
		engine:   engine,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		log:      log,
	}
}

// Recognize scans every stride-th frame of the clip. A stride <= 0 uses the
// configured default.
func (r *Recognizer) Recognize(ctx context.Context, path string, stride int) (Result, error) {
	if stride <= 0 {
		stride = r.cfg.Stride
	}

	src, err := r.opener.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	set := NewCandidateSet()
	var res Result
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		idx, err := src.Next(&frame)
		if errors.Is(err, video.ErrEndOfStream) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("failed to read frame: %w", err)
		}
		if idx%stride != 0 {
			continue
		}

		res.FramesScanned++
		r.metrics.FrameScanned("plate")
		r.scanFrame(ctx, idx, frame, set)
	}

	res.Candidates = set.Len()
	if text, conf, ok := set.Best(); ok {
		res.Plate, res.Confidence = text, conf
	}

	r.log.Debug().
		Str("plate", res.Plate).
		Float64("confidence", res.Confidence).
		Int("candidates", res.Candidates).
		Int("frames_scanned", res.FramesScanned).
		Msg("plate scan finished")
	return res, nil
}

// scanFrame OCRs every detection box of one frame. Failures only skip the box.
func (r *Recognizer) scanFrame(ctx context.Context, idx int, frame gocv.Mat, set *CandidateSet) {
	detections, err := r.detector.Detect(ctx, frame, vision.DetectOptions{})
	if err != nil {
		r.log.Warn().Err(err).Int("frame", idx).Msg("plate detection failed, skipping frame")
		return
	}

	for _, det := range detections {
		crop, err := vision.Crop(frame, det.Box)
		if err != nil {
			r.metrics.CropClassified("plate", true)
			continue
		}
		prepared := vision.PrepareForOCR(crop, r.cfg.MinCropSide)
		crop.Close()

		candidates, err := r.engine.Read(ctx, prepared)
		prepared.Close()
		r.metrics.CropClassified("plate", err != nil)
		if err != nil {
			r.log.Debug().Err(err).Int("frame", idx).Msg("ocr failed, skipping crop")
			continue
		}

		r.collect(candidates, set)
	}
}

func (r *Recognizer) collect(candidates []ocr.Candidate, set *CandidateSet) {
	for _, c := range candidates {
		if c.Confidence <= r.cfg.MinOCRConfidence {
			r.metrics.PlateCandidate("low_confidence")
			continue
		}
		normalized := utils.NormalizePlate(c.Text)
		if !utils.IsValidPlate(normalized) {
			r.metrics.PlateCandidate("invalid")
			continue
		}
		r.metrics.PlateCandidate("valid")
		set.Add(normalized, c.Confidence)
	}
}
