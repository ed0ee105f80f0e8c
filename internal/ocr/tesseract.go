package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

const plateCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-"

type Candidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Engine reads text candidates from a prepared (grayscale) image.
type Engine interface {
	Read(ctx context.Context, img gocv.Mat) ([]Candidate, error)
}

type TesseractConfig struct {
	Language string
	// Whitelist restricts recognized characters; empty uses the plate charset.
	Whitelist string
}

// Tesseract wraps a single gosseract client. The client is not safe for
// concurrent use, so reads are serialized.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func NewTesseract(cfg TesseractConfig) (*Tesseract, error) {
	client := gosseract.NewClient()

	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR page segmentation mode: %w", err)
	}
	whitelist := cfg.Whitelist
	if whitelist == "" {
		whitelist = plateCharset
	}
	if err := client.SetWhitelist(whitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR whitelist: %w", err)
	}

	return &Tesseract{client: client}, nil
}

// Read returns one candidate per recognized line with its confidence in [0,1].
func (t *Tesseract) Read(ctx context.Context, img gocv.Mat) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	defer buf.Close()

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return nil, fmt.Errorf("failed to set OCR image: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}

	candidates := make([]Candidate, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Text:       text,
			Confidence: box.Confidence / 100.0,
		})
	}
	return candidates, nil
}

func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
