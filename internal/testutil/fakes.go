// Package testutil provides fake collaborators for pipeline tests: clips made
// of blank frames, scripted detectors and OCR engines.
package testutil

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
	"github.com/mvahmadali/CrashAnalytix/internal/ocr"
	"github.com/mvahmadali/CrashAnalytix/internal/video"
	"github.com/mvahmadali/CrashAnalytix/internal/vision"
)

// Source is a clip of Frames blank BGR frames.
type Source struct {
	Frames int
	Width  int
	Height int
	FPS    float64

	mu     sync.Mutex
	reads  int
	closed bool
}

func (s *Source) Next(dst *gocv.Mat) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reads >= s.Frames {
		return s.reads, video.ErrEndOfStream
	}
	blank := gocv.NewMatWithSize(s.height(), s.width(), gocv.MatTypeCV8UC3)
	blank.CopyTo(dst)
	blank.Close()
	idx := s.reads
	s.reads++
	return idx, nil
}

func (s *Source) Metadata() video.Metadata {
	return video.Metadata{FPS: s.FPS, Width: s.width(), Height: s.height(), FrameCount: s.Frames}
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reads is the number of frames handed out so far.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Source) width() int {
	if s.Width == 0 {
		return 64
	}
	return s.Width
}

func (s *Source) height() int {
	if s.Height == 0 {
		return 48
	}
	return s.Height
}

// Opener hands out a fresh Source per Open call.
type Opener struct {
	Frames int
	FPS    float64
	Err    error

	mu      sync.Mutex
	Sources []*Source
}

func (o *Opener) Open(string) (video.Source, error) {
	if o.Err != nil {
		return nil, o.Err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	src := &Source{Frames: o.Frames, FPS: o.FPS}
	o.Sources = append(o.Sources, src)
	return src, nil
}

// DetectFunc answers the n-th (0-based) Detect call.
type DetectFunc func(call int, img gocv.Mat, opts vision.DetectOptions) ([]accident.Detection, error)

type Detector struct {
	DetectorName string
	Fn           DetectFunc

	mu    sync.Mutex
	calls int
	opts  []vision.DetectOptions
}

func (d *Detector) Name() string {
	if d.DetectorName == "" {
		return "fake"
	}
	return d.DetectorName
}

func (d *Detector) Detect(_ context.Context, img gocv.Mat, opts vision.DetectOptions) ([]accident.Detection, error) {
	d.mu.Lock()
	call := d.calls
	d.calls++
	d.opts = append(d.opts, opts)
	d.mu.Unlock()

	if d.Fn == nil {
		return nil, nil
	}
	return d.Fn(call, img, opts)
}

func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Options returns the options of every call in call order.
func (d *Detector) Options() []vision.DetectOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]vision.DetectOptions(nil), d.opts...)
}

// Box is a detection of class id covering most of a default-sized frame.
func Box(classID int, confidence float64) accident.Detection {
	return accident.Detection{
		ClassID:    classID,
		Confidence: confidence,
		Box:        accident.Box{X1: 4, Y1: 4, X2: 40, Y2: 30},
	}
}

type OCRFunc func(call int) ([]ocr.Candidate, error)

type OCR struct {
	Fn OCRFunc

	mu    sync.Mutex
	calls int
}

func (o *OCR) Read(context.Context, gocv.Mat) ([]ocr.Candidate, error) {
	o.mu.Lock()
	call := o.calls
	o.calls++
	o.mu.Unlock()

	if o.Fn == nil {
		return nil, nil
	}
	return o.Fn(call)
}

func (o *OCR) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}
