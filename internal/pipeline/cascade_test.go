package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gocv.io/x/gocv"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
	"github.com/mvahmadali/CrashAnalytix/internal/testutil"
	"github.com/mvahmadali/CrashAnalytix/internal/vision"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newCascade(acc, sev, obj vision.Detector) *Cascade {
	return NewCascade(acc, sev, obj, Config{}, nil, zerolog.Nop())
}

func classAt(trigger int, classID int) testutil.DetectFunc {
	return func(call int, _ gocv.Mat, _ vision.DetectOptions) ([]accident.Detection, error) {
		if call == trigger {
			return []accident.Detection{testutil.Box(classID, 0.9)}, nil
		}
		return []accident.Detection{testutil.Box(accident.ClassCar, 0.7)}, nil
	}
}

func TestDetectAccidentScansEverySampledFrameWithoutAccident(t *testing.T) {
	src := &testutil.Source{Frames: 10}
	det := &testutil.Detector{Fn: classAt(-1, 0)}

	scan, err := newCascade(det, nil, nil).DetectAccident(context.Background(), src, 2, t.TempDir())
	require.NoError(t, err)

	assert.False(t, scan.Detected)
	assert.Equal(t, 5, det.Calls())
	assert.Equal(t, 10, src.Reads())
	assert.Equal(t, 9, scan.StoppedAt)
	require.Len(t, scan.Frames, 5)
	for i, f := range scan.Frames {
		assert.Equal(t, i*2, f.FrameIndex)
	}
	assert.Len(t, scan.Crops, 5)
}

func TestDetectAccidentStopsAtFirstAccidentFrame(t *testing.T) {
	src := &testutil.Source{Frames: 20}
	det := &testutil.Detector{Fn: classAt(3, accident.AccidentClassID)}

	scan, err := newCascade(det, nil, nil).DetectAccident(context.Background(), src, 1, t.TempDir())
	require.NoError(t, err)

	assert.True(t, scan.Detected)
	assert.Equal(t, 3, scan.StoppedAt)
	assert.Equal(t, 4, src.Reads())
	assert.Equal(t, 4, det.Calls())
	assert.Len(t, scan.Frames, 4)
}

func TestDetectAccidentWithStrideReadsNothingPastTrigger(t *testing.T) {
	src := &testutil.Source{Frames: 50}
	det := &testutil.Detector{Fn: classAt(2, accident.AccidentClassID)}

	scan, err := newCascade(det, nil, nil).DetectAccident(context.Background(), src, 5, t.TempDir())
	require.NoError(t, err)

	assert.True(t, scan.Detected)
	assert.Equal(t, 10, scan.StoppedAt)
	assert.Equal(t, 11, src.Reads())
}

func TestDetectAccidentCropsEveryBoxOfSubmittedFrames(t *testing.T) {
	dir := t.TempDir()
	src := &testutil.Source{Frames: 3}
	det := &testutil.Detector{Fn: func(int, gocv.Mat, vision.DetectOptions) ([]accident.Detection, error) {
		return []accident.Detection{
			testutil.Box(accident.ClassCar, 0.8),
			testutil.Box(accident.ClassTruck, 0.6),
			{ClassID: accident.ClassBus, Box: accident.Box{X1: 500, Y1: 500, X2: 600, Y2: 600}},
		}, nil
	}}

	scan, err := newCascade(det, nil, nil).DetectAccident(context.Background(), src, 1, dir)
	require.NoError(t, err)

	assert.Len(t, scan.Crops, 6)
	for _, p := range scan.Crops {
		img := gocv.IMRead(p, gocv.IMReadColor)
		assert.Equal(t, 224, img.Cols())
		assert.Equal(t, 224, img.Rows())
		img.Close()
	}
}

func TestDetectAccidentSkipsFailedFrames(t *testing.T) {
	src := &testutil.Source{Frames: 3}
	det := &testutil.Detector{Fn: func(call int, _ gocv.Mat, _ vision.DetectOptions) ([]accident.Detection, error) {
		if call == 0 {
			return nil, vision.ErrInference
		}
		return []accident.Detection{testutil.Box(accident.AccidentClassID, 0.9)}, nil
	}}

	scan, err := newCascade(det, nil, nil).DetectAccident(context.Background(), src, 1, t.TempDir())
	require.NoError(t, err)
	assert.True(t, scan.Detected)
	assert.Equal(t, 1, scan.StoppedAt)
}

func TestDetectAccidentEmptyClip(t *testing.T) {
	scan, err := newCascade(&testutil.Detector{}, nil, nil).DetectAccident(context.Background(), &testutil.Source{}, 1, t.TempDir())
	require.NoError(t, err)
	assert.False(t, scan.Detected)
	assert.Equal(t, -1, scan.StoppedAt)
}

func TestDetectAccidentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &testutil.Source{Frames: 5}
	_, err := newCascade(&testutil.Detector{}, nil, nil).DetectAccident(ctx, src, 1, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, src.Reads())
}

func TestCaptureSnapshots(t *testing.T) {
	dir := t.TempDir()
	opener := &testutil.Opener{Frames: 300, FPS: 30}

	paths, err := newCascade(nil, nil, nil).CaptureSnapshots(context.Background(), opener, "clip.mp4", dir)
	require.NoError(t, err)

	require.Len(t, paths, 8)
	assert.Equal(t, filepath.Join(dir, "snapshot_000030.jpg"), paths[0])
	assert.Equal(t, filepath.Join(dir, "snapshot_000261.jpg"), paths[7])
	for _, p := range paths {
		assert.FileExists(t, p)
	}
	require.Len(t, opener.Sources, 1)
	assert.True(t, opener.Sources[0].Closed())
	assert.Equal(t, 262, opener.Sources[0].Reads())
}

func writeCrops(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		img := gocv.NewMatWithSize(224, 224, gocv.MatTypeCV8UC3)
		p := filepath.Join(dir, "crop_"+string(rune('a'+i))+".jpg")
		require.True(t, gocv.IMWrite(p, img))
		img.Close()
		paths = append(paths, p)
	}
	return paths
}

func TestAggregate(t *testing.T) {
	crops := writeCrops(t, 4)
	broken := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(broken, []byte("nope"), 0o644))
	crops = append(crops, broken)

	sev := &testutil.Detector{Fn: func(int, gocv.Mat, vision.DetectOptions) ([]accident.Detection, error) {
		return []accident.Detection{testutil.Box(accident.SeverityLabelMinor, 0.8)}, nil
	}}
	obj := &testutil.Detector{Fn: func(int, gocv.Mat, vision.DetectOptions) ([]accident.Detection, error) {
		return []accident.Detection{testutil.Box(accident.ClassCar, 0.8)}, nil
	}}

	agg, err := newCascade(nil, sev, obj).Aggregate(context.Background(), crops)
	require.NoError(t, err)

	assert.Equal(t, accident.SeverityMinor, agg.Severity)
	assert.False(t, agg.SeverityFallback)
	assert.Equal(t, 1, agg.CropsSkipped)
	assert.Equal(t, 1, agg.Objects.Count)
	assert.Equal(t, []int{accident.ClassCar}, agg.Objects.ClassIDs)
	assert.Equal(t, 4, sev.Calls())
	assert.Equal(t, 4, obj.Calls())

	for _, opts := range obj.Options() {
		assert.Equal(t, 0.4, opts.MinConfidence)
		assert.Equal(t, accident.ObjectClasses, opts.Classes)
	}
}

func TestAggregateFallsBackToModerate(t *testing.T) {
	crops := writeCrops(t, 2)
	sev := &testutil.Detector{Fn: func(int, gocv.Mat, vision.DetectOptions) ([]accident.Detection, error) {
		return nil, vision.ErrInference
	}}

	agg, err := newCascade(nil, sev, &testutil.Detector{}).Aggregate(context.Background(), crops)
	require.NoError(t, err)
	assert.Equal(t, accident.SeverityModerate, agg.Severity)
	assert.True(t, agg.SeverityFallback)
	assert.Empty(t, agg.Objects.ClassIDs)
}
