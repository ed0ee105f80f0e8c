package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/mvahmadali/CrashAnalytix/internal/domain/accident"
)

// ClampRect limits r to a width x height image. ok is false when nothing is left.
func ClampRect(r image.Rectangle, width, height int) (image.Rectangle, bool) {
	r = r.Canon().Intersect(image.Rect(0, 0, width, height))
	return r, !r.Empty()
}

// Crop copies the box region out of img. The caller owns the returned Mat;
// on error it is the zero Mat and must not be used.
func Crop(img gocv.Mat, box accident.Box) (gocv.Mat, error) {
	rect, ok := ClampRect(image.Rect(box.X1, box.Y1, box.X2, box.Y2), img.Cols(), img.Rows())
	if !ok {
		return gocv.Mat{}, fmt.Errorf("box %v outside %dx%d frame", box, img.Cols(), img.Rows())
	}
	region := img.Region(rect)
	defer region.Close()
	return region.Clone(), nil
}

// CropResized crops the box and resizes it to the canonical size.
func CropResized(img gocv.Mat, box accident.Box, size image.Point) (gocv.Mat, error) {
	crop, err := Crop(img, box)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer crop.Close()

	resized := gocv.NewMat()
	gocv.Resize(crop, &resized, size, 0, 0, gocv.InterpolationLinear)
	return resized, nil
}

// UpscaleSize grows (w, h) so the shorter side reaches minSide, keeping the
// aspect ratio. Sizes already large enough are returned unchanged.
func UpscaleSize(w, h, minSide int) (int, int) {
	short := min(w, h)
	if short <= 0 || short >= minSide {
		return w, h
	}
	scale := float64(minSide) / float64(short)
	return int(float64(w)*scale + 0.5), int(float64(h)*scale + 0.5)
}

// PrepareForOCR converts a crop to grayscale and upscales small crops.
func PrepareForOCR(crop gocv.Mat, minSide int) gocv.Mat {
	gray := gocv.NewMat()
	if crop.Channels() == 1 {
		crop.CopyTo(&gray)
	} else {
		gocv.CvtColor(crop, &gray, gocv.ColorBGRToGray)
	}

	w, h := UpscaleSize(gray.Cols(), gray.Rows(), minSide)
	if w == gray.Cols() && h == gray.Rows() {
		return gray
	}
	defer gray.Close()

	scaled := gocv.NewMat()
	gocv.Resize(gray, &scaled, image.Pt(w, h), 0, 0, gocv.InterpolationCubic)
	return scaled
}
