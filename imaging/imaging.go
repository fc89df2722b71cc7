// Package imaging holds the decode / scale / recompress primitives shared by
// the ingestion transcoder and the link-metadata fetcher.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// Pasteboards hand over TIFF more often than anything else; the blank
// imports register every decoder Decode may see.

// Decode parses image bytes in any registered format.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Pixels returns the raw NRGBA pixel buffer of img. Hashing these bytes
// instead of the encoded form makes dedup independent of the encoding.
func Pixels(img image.Image) []byte {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(out, out.Bounds(), img, b.Min, xdraw.Src)
	return out.Pix
}

// ScaleToPixelBudget downscales img so width*height <= maxPixels, preserving
// aspect ratio. Images already within budget are returned unchanged.
func ScaleToPixelBudget(img image.Image, maxPixels int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w*h <= maxPixels || w == 0 || h == 0 {
		return img
	}
	// The budget caps the area; each side scales by the square root.
	side := math.Sqrt(float64(maxPixels) / float64(w*h))
	return resize(img, max(1, int(float64(w)*side)), max(1, int(float64(h)*side)))
}

// ScaleToMaxSide downscales img so its longest side is at most maxSide.
func ScaleToMaxSide(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if longest <= maxSide || longest == 0 {
		return img
	}
	scale := float64(maxSide) / float64(longest)
	return resize(img, max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)))
}

// CropMaxAspect center-crops excess height so height/width is at most
// ratio (e.g. 1.5 for a 3:2 portrait cap). Width is never touched.
func CropMaxAspect(img image.Image, ratio float64) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	maxH := int(float64(w) * ratio)
	if w == 0 || h <= maxH {
		return img
	}
	top := b.Min.Y + (h-maxH)/2
	out := image.NewNRGBA(image.Rect(0, 0, w, maxH))
	xdraw.Draw(out, out.Bounds(), img, image.Pt(b.Min.X, top), xdraw.Src)
	return out
}

// EncodeJPEG recompresses img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func resize(img image.Image, w, h int) image.Image {
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return out
}
