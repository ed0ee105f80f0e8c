package collage

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gocv.io/x/gocv"
)

var ErrNoImages = errors.New("no images to compose")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

type Options struct {
	CellWidth  int
	CellHeight int
	Padding    int
	Background color.RGBA
}

func DefaultOptions() Options {
	return Options{
		CellWidth:  320,
		CellHeight: 240,
		Padding:    10,
		Background: color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

type Grid struct {
	Cols int
	Rows int
}

// Layout returns the near-square grid for n images.
func Layout(n int) (Grid, error) {
	if n <= 0 {
		return Grid{}, ErrNoImages
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	return Grid{Cols: cols, Rows: rows}, nil
}

// CanvasSize is the collage size in pixels for the grid and options.
func (g Grid) CanvasSize(opts Options) image.Point {
	return image.Pt(
		g.Cols*opts.CellWidth+(g.Cols+1)*opts.Padding,
		g.Rows*opts.CellHeight+(g.Rows+1)*opts.Padding,
	)
}

// Cell returns the pixel rectangle of the i-th cell, filled row by row.
func (g Grid) Cell(i int, opts Options) image.Rectangle {
	x := opts.Padding + (i%g.Cols)*(opts.CellWidth+opts.Padding)
	y := opts.Padding + (i/g.Cols)*(opts.CellHeight+opts.Padding)
	return image.Rect(x, y, x+opts.CellWidth, y+opts.CellHeight)
}

// ListImages returns the image files of dir sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// ComposeDir composes every image of dir into outPath.
func ComposeDir(dir, outPath string, opts Options) (Grid, error) {
	paths, err := ListImages(dir)
	if err != nil {
		return Grid{}, err
	}
	return Compose(paths, outPath, opts)
}

// Compose pastes the images left to right, top to bottom onto a padded
// canvas and writes it to outPath. Unreadable images leave their cell empty.
func Compose(paths []string, outPath string, opts Options) (Grid, error) {
	grid, err := Layout(len(paths))
	if err != nil {
		return Grid{}, err
	}

	size := grid.CanvasSize(opts)
	bg := gocv.NewScalar(float64(opts.Background.B), float64(opts.Background.G), float64(opts.Background.R), 0)
	canvas := gocv.NewMatWithSizeFromScalar(bg, size.Y, size.X, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	pasted := 0
	for i, path := range paths {
		if pasteCell(&canvas, path, grid.Cell(i, opts)) {
			pasted++
		}
	}
	if pasted == 0 {
		return Grid{}, fmt.Errorf("%w: none of %d files could be read", ErrNoImages, len(paths))
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return Grid{}, fmt.Errorf("failed to create collage dir: %w", err)
	}
	if ok := gocv.IMWrite(outPath, canvas); !ok {
		return Grid{}, fmt.Errorf("failed to write collage %s", outPath)
	}
	return grid, nil
}

func pasteCell(canvas *gocv.Mat, path string, cell image.Rectangle) bool {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return false
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, cell.Size(), 0, 0, gocv.InterpolationArea)

	region := canvas.Region(cell)
	defer region.Close()
	resized.CopyTo(&region)
	return true
}
