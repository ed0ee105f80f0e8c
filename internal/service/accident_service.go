package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvahmadali/CrashAnalytix/internal/collage"
	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
	"github.com/mvahmadali/CrashAnalytix/internal/metrics"
	"github.com/mvahmadali/CrashAnalytix/internal/pipeline"
	"github.com/mvahmadali/CrashAnalytix/internal/plate"
	"github.com/mvahmadali/CrashAnalytix/internal/repository"
	"github.com/mvahmadali/CrashAnalytix/internal/video"
	"github.com/mvahmadali/CrashAnalytix/internal/workspace"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

const (
	DetectionMethod = "yolo+tesseract"
	collagePrefix   = "accident_"
	collageExt      = ".jpg"
)

type Config struct {
	WorkDir        string
	CollageDir     string
	Collage        collage.Options
	PlateStride    int
	RequestTimeout time.Duration
}

type AccidentService struct {
	opener     video.Opener
	cascade    *pipeline.Cascade
	recognizer *plate.Recognizer
	store      repository.Store
	cfg        Config
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

func NewAccidentService(
	opener video.Opener,
	cascade *pipeline.Cascade,
	recognizer *plate.Recognizer,
	store repository.Store,
	cfg Config,
	m *metrics.Metrics,
	log zerolog.Logger,
) *AccidentService {
	if cfg.CollageDir == "" {
		cfg.CollageDir = "collages"
	}
	if cfg.Collage.CellWidth == 0 {
		cfg.Collage = collage.DefaultOptions()
	}
	return &AccidentService{
		opener:     opener,
		cascade:    cascade,
		recognizer: recognizer,
		store:      store,
		cfg:        cfg,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

func (s *AccidentService) StoreBackend() string {
	return s.store.Backend()
}

// CheckVideo runs the full accident pipeline over an uploaded clip. A record
// is persisted only when an accident is detected; persistence failures are
// logged and do not fail the request.
func (s *AccidentService) CheckVideo(ctx context.Context, upload io.Reader, filename string) (*accident.Response, error) {
	started := s.now()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ws, err := workspace.New(s.cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer s.release(ws)

	clip, err := s.storeUpload(ws, upload, filename)
	if err != nil {
		return nil, err
	}

	scan, err := s.scan(ctx, clip, ws)
	if err != nil {
		return nil, err
	}

	if !scan.Detected {
		s.log.Info().
			Str("request_id", ws.ID).
			Int("frames_read", scan.FramesRead).
			Msg("no accident detected")
		s.metrics.ClipProcessed("accident", "not_detected", s.now().Sub(started))
		return &accident.Response{Result: accident.ResultNotDetected}, nil
	}

	agg, err := s.cascade.Aggregate(ctx, scan.Crops)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate crops: %w", err)
	}

	plates := s.recognizePlates(ctx, clip, ws.ID)
	entities := accident.BuildEntities(agg.Objects.ClassIDs, plates)

	id := uuid.NewString()
	collageName := s.composeEvidence(ctx, clip, ws, scan.Crops, id)

	severity := agg.Severity
	elapsed := s.now().Sub(started).Seconds()
	record := &accident.Record{
		ID:             id,
		Timestamp:      s.now().UTC().Truncate(time.Microsecond),
		Result:         accident.ResultDetected,
		Severity:       &severity,
		Entities:       entities,
		ProcessingTime: &elapsed,
	}
	if collageName != "" {
		record.CollageReference = &collageName
	}

	resp := &accident.Response{
		Result:         accident.ResultDetected,
		Severity:       &severity,
		Entities:       entities,
		Filename:       collageName,
		ProcessingTime: &elapsed,
	}

	savedID, err := s.store.Save(context.WithoutCancel(ctx), record)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("id", id).
			Msg("failed to persist accident record, returning result anyway")
	} else {
		resp.ID = savedID
	}

	s.log.Info().
		Str("id", id).
		Str("request_id", ws.ID).
		Str("severity", string(severity)).
		Int("entities", len(entities)).
		Int("plates", len(plates)).
		Str("collage", collageName).
		Float64("processing_time", elapsed).
		Msg("accident processed")
	s.metrics.ClipProcessed("accident", "detected", s.now().Sub(started))
	return resp, nil
}

func (s *AccidentService) scan(ctx context.Context, clip string, ws *workspace.Workspace) (pipeline.Scan, error) {
	src, err := s.opener.Open(clip)
	if err != nil {
		return pipeline.Scan{}, s.openError(err)
	}
	defer src.Close()

	scan, err := s.cascade.DetectAccident(ctx, src, 0, ws.CropsDir())
	if err != nil {
		return pipeline.Scan{}, fmt.Errorf("failed to scan clip: %w", err)
	}
	if scan.FramesRead == 0 {
		return pipeline.Scan{}, fmt.Errorf("%w: video contains no frames", ErrInvalidInput)
	}
	return scan, nil
}

// recognizePlates never fails the accident check; a failed plate pass only
// leaves the entities without plates.
func (s *AccidentService) recognizePlates(ctx context.Context, clip, requestID string) []string {
	if s.recognizer == nil {
		return []string{}
	}
	res, err := s.recognizer.Recognize(ctx, clip, s.cfg.PlateStride)
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Msg("plate recognition failed")
		return []string{}
	}
	return res.Plates()
}

// composeEvidence writes the collage for record id and returns its file
// name, or "" when nothing could be composed.
func (s *AccidentService) composeEvidence(ctx context.Context, clip string, ws *workspace.Workspace, crops []string, id string) string {
	images, err := s.cascade.CaptureSnapshots(ctx, s.opener, clip, ws.SnapshotsDir())
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", ws.ID).Msg("failed to capture snapshots")
	}
	if len(images) == 0 {
		images = crops
	}

	name := collagePrefix + id + collageExt
	grid, err := collage.Compose(images, filepath.Join(s.cfg.CollageDir, name), s.cfg.Collage)
	if err != nil {
		if errors.Is(err, collage.ErrNoImages) {
			s.log.Info().Str("request_id", ws.ID).Msg("no evidence images, skipping collage")
		} else {
			s.log.Warn().Err(err).Str("request_id", ws.ID).Msg("failed to compose collage")
		}
		return ""
	}

	s.log.Debug().
		Str("collage", name).
		Int("images", len(images)).
		Int("cols", grid.Cols).
		Int("rows", grid.Rows).
		Msg("collage composed")
	return name
}

// CheckPlates runs only the plate recognizer over an uploaded clip. Input
// errors are returned; recognizer failures are reported in the payload.
func (s *AccidentService) CheckPlates(ctx context.Context, upload io.Reader, filename string) (*accident.PlateResponse, error) {
	started := s.now()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ws, err := workspace.New(s.cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer s.release(ws)

	clip, err := s.storeUpload(ws, upload, filename)
	if err != nil {
		return nil, err
	}

	resp := &accident.PlateResponse{
		LicensePlates:   []string{},
		Timestamp:       s.now().UTC(),
		DetectionMethod: DetectionMethod,
	}

	if s.recognizer == nil {
		resp.Status = accident.PlateStatusError
		resp.Error = "plate recognition is not configured"
		return resp, nil
	}

	res, err := s.recognizer.Recognize(ctx, clip, s.cfg.PlateStride)
	switch {
	case errors.Is(err, video.ErrDecode):
		return nil, s.openError(err)
	case err != nil:
		s.log.Error().Err(err).Str("request_id", ws.ID).Msg("plate recognition failed")
		resp.Status = accident.PlateStatusError
		resp.Error = "plate recognition failed"
		s.metrics.ClipProcessed("plate", string(resp.Status), s.now().Sub(started))
		return resp, nil
	}

	resp.LicensePlates = res.Plates()
	resp.Status = accident.PlateStatusSuccess
	if len(resp.LicensePlates) == 0 {
		resp.Status = accident.PlateStatusNoDetection
	}

	s.log.Info().
		Str("request_id", ws.ID).
		Strs("plates", resp.LicensePlates).
		Int("frames_scanned", res.FramesScanned).
		Msg("plate check finished")
	s.metrics.ClipProcessed("plate", string(resp.Status), s.now().Sub(started))
	return resp, nil
}

func (s *AccidentService) ListAccidents(ctx context.Context, sortBySeverity bool) ([]accident.Record, error) {
	records, err := s.store.List(ctx, sortBySeverity)
	if err != nil {
		return nil, fmt.Errorf("failed to list accidents: %w", err)
	}
	if records == nil {
		records = []accident.Record{}
	}
	return records, nil
}

func (s *AccidentService) GetAccident(ctx context.Context, id string) (*accident.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	rec, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: accident %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get accident: %w", err)
	}
	return rec, nil
}

// CollagePath resolves a collage file name inside the collage directory.
// Names that would escape the directory are rejected.
func (s *AccidentService) CollagePath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: invalid collage name", ErrInvalidInput)
	}

	path := filepath.Join(s.cfg.CollageDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: collage %s", ErrNotFound, name)
	}
	return path, nil
}

func (s *AccidentService) storeUpload(ws *workspace.Workspace, upload io.Reader, filename string) (string, error) {
	if upload == nil {
		return "", fmt.Errorf("%w: no file uploaded", ErrInvalidInput)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".mp4"
	}
	path := ws.File("upload" + ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	n, err := io.Copy(f, upload)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: uploaded file is empty", ErrInvalidInput)
	}
	return path, nil
}

func (s *AccidentService) openError(err error) error {
	if errors.Is(err, video.ErrDecode) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return fmt.Errorf("failed to open video: %w", err)
}

func (s *AccidentService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

func (s *AccidentService) release(ws *workspace.Workspace) {
	if err := ws.Remove(); err != nil {
		s.log.Warn().Err(err).Str("root", ws.Root()).Msg("failed to remove workspace")
	}
}
