package video

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	ErrDecode      = errors.New("video decode failed")
	ErrEndOfStream = errors.New("end of stream")
)

type Metadata struct {
	FPS        float64 `json:"fps"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameCount int     `json:"frame_count"`
}

// Source yields the frames of one clip in read order.
type Source interface {
	// Next reads the next frame into dst and returns its 0-based index, or
	// ErrEndOfStream once the clip is exhausted.
	Next(dst *gocv.Mat) (int, error)
	Metadata() Metadata
	Close() error
}

// Opener opens clips. Reopening a path restarts it from frame 0.
type Opener interface {
	Open(path string) (Source, error)
}

type FileOpener struct{}

func (FileOpener) Open(path string) (Source, error) {
	return Open(path)
}

type captureSource struct {
	capture *gocv.VideoCapture
	meta    Metadata
	next    int
}

func Open(path string) (Source, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s: cannot open", ErrDecode, path)
	}

	return &captureSource{
		capture: capture,
		meta: Metadata{
			FPS:        capture.Get(gocv.VideoCaptureFPS),
			Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
			Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
			FrameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
		},
	}, nil
}

func (s *captureSource) Next(dst *gocv.Mat) (int, error) {
	if ok := s.capture.Read(dst); !ok || dst.Empty() {
		return s.next, ErrEndOfStream
	}
	idx := s.next
	s.next++
	return idx, nil
}

func (s *captureSource) Metadata() Metadata {
	return s.meta
}

func (s *captureSource) Close() error {
	return s.capture.Close()
}

// SnapshotIndexes picks count frame indexes evenly spaced across the clip,
// starting one second in. Short clips start at frame 0.
func SnapshotIndexes(meta Metadata, count int) []int {
	if count <= 0 || meta.FrameCount <= 0 {
		return nil
	}

	start := int(meta.FPS + 0.5)
	if start >= meta.FrameCount {
		start = 0
	}
	step := max(1, (meta.FrameCount-start)/count)

	indexes := make([]int, 0, count)
	for i := 0; i < count; i++ {
		idx := start + i*step
		if idx >= meta.FrameCount {
			break
		}
		indexes = append(indexes, idx)
	}
	return indexes
}
