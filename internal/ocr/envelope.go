package ocr

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
)

// BoundToEnvelope downscales the PNG at path in place so it fits maxW x maxH,
// keeping the aspect ratio. Images already inside the envelope are left alone.
func BoundToEnvelope(path string, maxW, maxH int) error {
	src, err := decodeFile(path)
	if err != nil {
		return err
	}
	w, h := FitWithin(src.Bounds().Dx(), src.Bounds().Dy(), maxW, maxH)
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rewrite page: %w", err)
	}
	if err := png.Encode(f, dst); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode page: %w", err)
	}
	return f.Close()
}

// FitWithin returns the largest size with the same aspect ratio that fits the envelope.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 || (w <= maxW && h <= maxH) {
		return w, h
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := min(maxW, max(1, int(math.Round(float64(w)*scale))))
	nh := min(maxH, max(1, int(math.Round(float64(h)*scale))))
	return nw, nh
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
