package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
	"github.com/mvahmadali/CrashAnalytix/internal/ocr"
	"github.com/mvahmadali/CrashAnalytix/internal/pipeline"
	"github.com/mvahmadali/CrashAnalytix/internal/plate"
	"github.com/mvahmadali/CrashAnalytix/internal/repository"
	"github.com/mvahmadali/CrashAnalytix/internal/testutil"
	"github.com/mvahmadali/CrashAnalytix/internal/video"
	"github.com/mvahmadali/CrashAnalytix/internal/vision"
)

type fixture struct {
	svc        *AccidentService
	store      *repository.MemoryStore
	opener     *testutil.Opener
	accident   *testutil.Detector
	ocr        *testutil.OCR
	workDir    string
	collageDir string
}

// accidentAt reports the accident class on the frame-th call and nothing
// before it.
func accidentAt(frame int) testutil.DetectFunc {
	return func(call int, _ gocv.Mat, _ vision.DetectOptions) ([]accident.Detection, error) {
		if call == frame {
			return []accident.Detection{testutil.Box(accident.AccidentClassID, 0.9)}, nil
		}
		return nil, nil
	}
}

func always(dets ...accident.Detection) testutil.DetectFunc {
	return func(int, gocv.Mat, vision.DetectOptions) ([]accident.Detection, error) {
		return dets, nil
	}
}

func plateText(text string, conf float64) testutil.OCRFunc {
	return func(int) ([]ocr.Candidate, error) {
		return []ocr.Candidate{{Text: text, Confidence: conf}}, nil
	}
}

func newFixture(t *testing.T, store repository.Store) *fixture {
	t.Helper()
	f := &fixture{
		opener:     &testutil.Opener{Frames: 30, FPS: 10},
		accident:   &testutil.Detector{DetectorName: "accident", Fn: accidentAt(2)},
		ocr:        &testutil.OCR{Fn: plateText("ab-123", 0.9)},
		workDir:    t.TempDir(),
		collageDir: t.TempDir(),
	}
	if store == nil {
		f.store = repository.NewMemoryStore()
		store = f.store
	}

	severity := &testutil.Detector{DetectorName: "severity", Fn: always(testutil.Box(accident.SeverityLabelSevere, 0.8))}
	objects := &testutil.Detector{DetectorName: "object", Fn: always(
		testutil.Box(accident.ClassCar, 0.9),
		testutil.Box(accident.ClassTruck, 0.7),
	)}
	plateDetector := &testutil.Detector{DetectorName: "plate", Fn: always(testutil.Box(accident.AccidentClassID, 0.9))}

	log := zerolog.Nop()
	cascade := pipeline.NewCascade(f.accident, severity, objects, pipeline.Config{}, nil, log)
	recognizer := plate.NewRecognizer(f.opener, plateDetector, f.ocr, plate.Config{}, nil, log)
	f.svc = NewAccidentService(f.opener, cascade, recognizer, store, Config{
		WorkDir:    f.workDir,
		CollageDir: f.collageDir,
	}, nil, log)
	return f
}

func (f *fixture) assertWorkspaceReclaimed(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func upload() *strings.Reader {
	return strings.NewReader("not really a video")
}

func TestCheckVideoAccidentDetected(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.svc.CheckVideo(context.Background(), upload(), "clip.mp4")
	require.NoError(t, err)

	assert.Equal(t, accident.ResultDetected, resp.Result)
	require.NotNil(t, resp.Severity)
	assert.Equal(t, accident.SeveritySevere, *resp.Severity)

	plate := "AB123"
	empty := ""
	assert.Equal(t, []accident.Entity{
		{Type: accident.EntityCar, LicensePlate: &plate},
		{Type: accident.EntityTruck, LicensePlate: &empty},
	}, resp.Entities)

	require.NotEmpty(t, resp.ID)
	assert.Equal(t, "accident_"+resp.ID+".jpg", resp.Filename)
	assert.FileExists(t, filepath.Join(f.collageDir, resp.Filename))
	require.NotNil(t, resp.ProcessingTime)

	rec, err := f.store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, accident.ResultDetected, rec.Result)
	require.NotNil(t, rec.CollageReference)
	assert.Equal(t, resp.Filename, *rec.CollageReference)
	assert.Equal(t, resp.Entities, rec.Entities)

	assert.Equal(t, 3, f.accident.Calls())
	f.assertWorkspaceReclaimed(t)
}

func TestCheckVideoStoresMicrosecondTimestamp(t *testing.T) {
	f := newFixture(t, nil)
	at := time.Date(2025, 5, 6, 7, 8, 9, 123456789, time.UTC)
	f.svc.now = func() time.Time { return at }

	resp, err := f.svc.CheckVideo(context.Background(), upload(), "clip.mp4")
	require.NoError(t, err)

	rec, err := f.store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 6, 7, 8, 9, 123456000, time.UTC), rec.Timestamp)
}

func TestCheckVideoWithoutCollage(t *testing.T) {
	f := newFixture(t, nil)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	f.svc.cfg.CollageDir = filepath.Join(blocker, "collages")

	resp, err := f.svc.CheckVideo(context.Background(), upload(), "clip.mp4")
	require.NoError(t, err)

	assert.Equal(t, accident.ResultDetected, resp.Result)
	assert.Empty(t, resp.Filename)
	require.NotEmpty(t, resp.ID)

	rec, err := f.store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Nil(t, rec.CollageReference)
	f.assertWorkspaceReclaimed(t)
}

func TestCheckVideoNoAccident(t *testing.T) {
	f := newFixture(t, nil)
	f.accident.Fn = nil

	resp, err := f.svc.CheckVideo(context.Background(), upload(), "clip.mp4")
	require.NoError(t, err)

	assert.Equal(t, &accident.Response{Result: accident.ResultNotDetected}, resp)
	assert.Equal(t, 30, f.accident.Calls())
	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.ocr.Calls())
	f.assertWorkspaceReclaimed(t)
}

func TestCheckVideoUndecodableClip(t *testing.T) {
	f := newFixture(t, nil)
	f.opener.Err = fmt.Errorf("%w: moov atom not found", video.ErrDecode)

	_, err := f.svc.CheckVideo(context.Background(), upload(), "clip.mp4")
	assert.ErrorIs(t, err, ErrInvalidInput)
	f.assertWorkspaceReclaimed(t)
}

func TestCheckVideoEmptyUpload(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.CheckVideo(context.Background(), strings.NewReader(""), "clip.mp4")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.CheckVideo(context.Background(), nil, "clip.mp4")
	assert.ErrorIs(t, err, ErrInvalidInput)
	f.assertWorkspaceReclaimed(t)
}

func TestCheckVideoEmptyClip(t *testing.T) {
	f := newFixture(t, nil)
	f.opener.Frames = 0

	_, err := f.svc.CheckVideo(context.Background(), upload(), "clip.mp4")
	assert.ErrorIs(t, err, ErrInvalidInput)
	f.assertWorkspaceReclaimed(t)
}

func TestCheckVideoWithoutPlates(t *testing.T) {
	f := newFixture(t, nil)
	f.ocr.Fn = nil

	resp, err := f.svc.CheckVideo(context.Background(), upload(), "clip.mp4")
	require.NoError(t, err)

	empty := ""
	assert.Equal(t, []accident.Entity{
		{Type: accident.EntityCar, LicensePlate: &empty},
		{Type: accident.EntityTruck, LicensePlate: &empty},
	}, resp.Entities)
}

type brokenStore struct{}

func (brokenStore) Save(context.Context, *accident.Record) (string, error) {
	return "", errors.New("disk full")
}
func (brokenStore) List(context.Context, bool) ([]accident.Record, error) { return nil, nil }
func (brokenStore) Get(context.Context, string) (*accident.Record, error) {
	return nil, repository.ErrNotFound
}
func (brokenStore) Backend() string { return "broken" }

func TestCheckVideoPersistenceFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, brokenStore{})

	resp, err := f.svc.CheckVideo(context.Background(), upload(), "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, accident.ResultDetected, resp.Result)
	assert.Empty(t, resp.ID)
	assert.NotEmpty(t, resp.Filename)
	f.assertWorkspaceReclaimed(t)
}

func TestCheckVideoCancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.CheckVideo(ctx, upload(), "clip.mp4")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.store.Len())
	f.assertWorkspaceReclaimed(t)
}

func TestCheckPlates(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.svc.CheckPlates(context.Background(), upload(), "clip.mov")
	require.NoError(t, err)
	assert.Equal(t, accident.PlateStatusSuccess, resp.Status)
	assert.Equal(t, []string{"AB123"}, resp.LicensePlates)
	assert.Equal(t, DetectionMethod, resp.DetectionMethod)
	assert.False(t, resp.Timestamp.IsZero())
	// 30 frames at the default stride of 15.
	assert.Equal(t, 2, f.ocr.Calls())
	f.assertWorkspaceReclaimed(t)
}

func TestCheckPlatesNoDetection(t *testing.T) {
	f := newFixture(t, nil)
	f.ocr.Fn = plateText("??", 0.95)

	resp, err := f.svc.CheckPlates(context.Background(), upload(), "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, accident.PlateStatusNoDetection, resp.Status)
	assert.NotNil(t, resp.LicensePlates)
	assert.Empty(t, resp.LicensePlates)
}

func TestCheckPlatesRecognizerFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.opener.Err = errors.New("decoder crashed")

	resp, err := f.svc.CheckPlates(context.Background(), upload(), "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, accident.PlateStatusError, resp.Status)
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.LicensePlates)
}

func TestCheckPlatesUndecodableClip(t *testing.T) {
	f := newFixture(t, nil)
	f.opener.Err = fmt.Errorf("%w: not a video", video.ErrDecode)

	_, err := f.svc.CheckPlates(context.Background(), upload(), "clip.mp4")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListAndGetAccidents(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	records, err := f.svc.ListAccidents(ctx, true)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	resp, err := f.svc.CheckVideo(ctx, upload(), "clip.mp4")
	require.NoError(t, err)

	records, err = f.svc.ListAccidents(ctx, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, resp.ID, records[0].ID)

	rec, err := f.svc.GetAccident(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, rec.ID)

	_, err = f.svc.GetAccident(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetAccident(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCollagePath(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(f.collageDir, "accident_x.jpg"), []byte("jpeg"), 0o600))

	path, err := f.svc.CollagePath("accident_x.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.collageDir, "accident_x.jpg"), path)

	_, err = f.svc.CollagePath("accident_missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"", "../secret.jpg", "sub/accident_x.jpg", ".."} {
		_, err = f.svc.CollagePath(name)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}
}
