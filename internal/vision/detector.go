package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"slices"
	"sync"

	"gocv.io/x/gocv"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
)

var ErrInference = errors.New("inference failed")

type DetectOptions struct {
	// MinConfidence overrides the detector's default cutoff when > 0.
	MinConfidence float64
	// Classes restricts results to these class ids when non-empty.
	Classes []int
}

// Detector is an object detection model applied to a single image.
type Detector interface {
	Name() string
	Detect(ctx context.Context, img gocv.Mat, opts DetectOptions) ([]accident.Detection, error)
}

type YOLOConfig struct {
	Name          string
	ModelPath     string
	InputSize     int
	MinConfidence float64
	NMSThreshold  float64
}

// YOLO runs an exported YOLOv8 ONNX model through the OpenCV DNN module.
type YOLO struct {
	cfg YOLOConfig
	mu  sync.Mutex
	net gocv.Net
}

func NewYOLO(cfg YOLOConfig) (*YOLO, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model %s not found: %w", cfg.ModelPath, err)
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}
	if cfg.NMSThreshold <= 0 {
		cfg.NMSThreshold = 0.45
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLO{cfg: cfg, net: net}, nil
}

func (y *YOLO) Name() string {
	return y.cfg.Name
}

func (y *YOLO) Detect(ctx context.Context, img gocv.Mat, opts DetectOptions) ([]accident.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, fmt.Errorf("%w: %s: empty image", ErrInference, y.cfg.Name)
	}

	minConf := y.cfg.MinConfidence
	if opts.MinConfidence > 0 {
		minConf = opts.MinConfidence
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(y.cfg.InputSize, y.cfg.InputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.mu.Lock()
	y.net.SetInput(blob, "")
	out := y.net.Forward("")
	y.mu.Unlock()
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("%w: %s: empty output", ErrInference, y.cfg.Name)
	}

	return y.decode(out, img.Cols(), img.Rows(), minConf, opts.Classes)
}

// decode turns a [1, 4+classes, anchors] output into detections in image
// pixels, then applies per-class non-maximum suppression.
func (y *YOLO) decode(out gocv.Mat, width, height int, minConf float64, classes []int) ([]accident.Detection, error) {
	sizes := out.Size()
	if len(sizes) != 3 || sizes[1] <= 4 {
		return nil, fmt.Errorf("%w: %s: unexpected output shape %v", ErrInference, y.cfg.Name, sizes)
	}
	dims, anchors := sizes[1], sizes[2]

	flat := out.Reshape(1, dims)
	defer flat.Close()
	rows := gocv.NewMat()
	defer rows.Close()
	gocv.Transpose(flat, &rows)

	xScale := float32(width) / float32(y.cfg.InputSize)
	yScale := float32(height) / float32(y.cfg.InputSize)

	byClass := make(map[int][]int)
	var (
		boxes  []image.Rectangle
		scores []float32
		ids    []int
	)
	for i := 0; i < anchors; i++ {
		classID, score := 0, float32(0)
		for j := 4; j < dims; j++ {
			if s := rows.GetFloatAt(i, j); s > score {
				classID, score = j-4, s
			}
		}
		if float64(score) < minConf {
			continue
		}
		if len(classes) > 0 && !slices.Contains(classes, classID) {
			continue
		}

		cx, cy := rows.GetFloatAt(i, 0)*xScale, rows.GetFloatAt(i, 1)*yScale
		w, h := rows.GetFloatAt(i, 2)*xScale, rows.GetFloatAt(i, 3)*yScale
		rect := image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2))

		byClass[classID] = append(byClass[classID], len(boxes))
		boxes = append(boxes, rect)
		scores = append(scores, score)
		ids = append(ids, classID)
	}

	var detections []accident.Detection
	for _, classID := range sortedKeys(byClass) {
		members := byClass[classID]
		classBoxes := make([]image.Rectangle, len(members))
		classScores := make([]float32, len(members))
		for k, idx := range members {
			classBoxes[k] = boxes[idx]
			classScores[k] = scores[idx]
		}

		for _, k := range gocv.NMSBoxes(classBoxes, classScores, float32(minConf), float32(y.cfg.NMSThreshold)) {
			idx := members[k]
			rect, ok := ClampRect(boxes[idx], width, height)
			if !ok {
				continue
			}
			detections = append(detections, accident.Detection{
				ClassID:    ids[idx],
				Confidence: float64(scores[idx]),
				Box:        accident.Box{X1: rect.Min.X, Y1: rect.Min.Y, X2: rect.Max.X, Y2: rect.Max.Y},
			})
		}
	}
	return detections, nil
}

func (y *YOLO) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.net.Close()
}

func sortedKeys(m map[int][]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
