// Package imaging turns uploaded lesion photos into the fixed-size JPEG the
// classifiers consume.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrProcessing is returned for any input that cannot be turned into a processed image.
var ErrProcessing = errors.New("image processing failed")

// MaxDimension is the largest accepted target width or height.
const MaxDimension = 4096

const (
	// maxPixels bounds the decoded source so a small compressed upload cannot
	// expand into an oversized bitmap.
	maxPixels = MaxDimension * MaxDimension

	contrastGamma      = 1.2
	contrastBrightness = 1.05
	normalizeClipRatio = 0.01
)

// Options selects the steps applied by Process. Start from Preprocessor.DefaultOptions.
type Options struct {
	Resize          bool
	Width           int
	Height          int
	Normalize       bool
	EnhanceContrast bool
	DetectEdges     bool
}

// Preprocessor resizes, filters and re-encodes images. It holds no per-call
// state and is safe for concurrent use.
type Preprocessor struct {
	targetSize int
	quality    int
}

// NewPreprocessor returns a Preprocessor producing targetSize×targetSize JPEGs at quality.
func NewPreprocessor(targetSize, quality int) *Preprocessor {
	return &Preprocessor{targetSize: targetSize, quality: quality}
}

// DefaultOptions resizes to the model input size and normalizes; filters are off.
func (p *Preprocessor) DefaultOptions() Options {
	return Options{
		Resize:    true,
		Width:     p.targetSize,
		Height:    p.targetSize,
		Normalize: true,
	}
}

// Process decodes data (JPEG, PNG, GIF or WebP), applies opts and returns a JPEG.
//
// Resizing fits the image inside Width×Height keeping its aspect ratio and pads
// the rest with white, so the output always has exactly the requested size.
func (p *Preprocessor) Process(data []byte, opts Options) ([]byte, error) {
	if opts.Resize {
		if opts.Width <= 0 || opts.Height <= 0 {
			return nil, fmt.Errorf("%w: target dimensions must be positive, got %dx%d",
				ErrProcessing, opts.Width, opts.Height)
		}
		if opts.Width > MaxDimension || opts.Height > MaxDimension {
			return nil, fmt.Errorf("%w: target dimensions exceed %d, got %dx%d",
				ErrProcessing, MaxDimension, opts.Width, opts.Height)
		}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image header: %v", ErrProcessing, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: unsupported image size %dx%d", ErrProcessing, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrProcessing, err)
	}

	var img *image.RGBA
	if opts.Resize {
		img = fitOnCanvas(src, opts.Width, opts.Height)
	} else {
		b := src.Bounds()
		img = fitOnCanvas(src, b.Dx(), b.Dy())
	}

	switch {
	case opts.EnhanceContrast:
		normalize(img)
		applyLUT(img, contrastLUT())
	case opts.Normalize:
		normalize(img)
	}

	if opts.DetectEdges {
		img = sharpen(img)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, fmt.Errorf("%w: encode jpeg: %v", ErrProcessing, err)
	}
	return out.Bytes(), nil
}

// fitOnCanvas scales src to fit within w×h and centers it on an opaque white canvas.
func fitOnCanvas(src image.Image, w, h int) *image.RGBA {
	sb := src.Bounds()
	scale := math.Min(float64(w)/float64(sb.Dx()), float64(h)/float64(sb.Dy()))
	sw := max(1, int(math.Round(float64(sb.Dx())*scale)))
	sh := max(1, int(math.Round(float64(sb.Dy())*scale)))

	scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, sb, draw.Src, nil)

	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()
	dc.DrawImage(scaled, (w-sw)/2, (h-sh)/2)

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), dc.Image(), image.Point{}, draw.Src)
	return out
}

// normalize stretches luminance so the 1st and 99th percentiles span the full range.
func normalize(img *image.RGBA) {
	var hist [256]int
	total := 0
	for i := 0; i+3 < len(img.Pix); i += 4 {
		hist[luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])]++
		total++
	}
	if total == 0 {
		return
	}

	clip := int(float64(total) * normalizeClipRatio)
	lo, hi := 0, 255
	for acc := 0; lo < 255; lo++ {
		acc += hist[lo]
		if acc > clip {
			break
		}
	}
	for acc := 0; hi > 0; hi-- {
		acc += hist[hi]
		if acc > clip {
			break
		}
	}
	if hi <= lo {
		return
	}

	var lut [256]uint8
	span := float64(hi - lo)
	for v := 0; v < 256; v++ {
		lut[v] = clamp8((float64(v) - float64(lo)) * 255 / span)
	}
	applyLUT(img, lut)
}

// contrastLUT combines the gamma lift with a mild brightness increase.
func contrastLUT() [256]uint8 {
	var lut [256]uint8
	for v := 0; v < 256; v++ {
		g := 255 * math.Pow(float64(v)/255, 1/contrastGamma)
		lut[v] = clamp8(g * contrastBrightness)
	}
	return lut
}

func applyLUT(img *image.RGBA, lut [256]uint8) {
	for i := 0; i+3 < len(img.Pix); i += 4 {
		img.Pix[i] = lut[img.Pix[i]]
		img.Pix[i+1] = lut[img.Pix[i+1]]
		img.Pix[i+2] = lut[img.Pix[i+2]]
	}
}

// sharpen applies a 3×3 sharpening kernel. Border pixels are copied unchanged.
func sharpen(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	copy(out.Pix, img.Pix)

	kernel := [3][3]float64{
		{0, -1, 0},
		{-1, 5, -1},
		{0, -1, 0},
	}
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			var acc [3]float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					k := kernel[ky+1][kx+1]
					if k == 0 {
						continue
					}
					i := img.PixOffset(x+kx, y+ky)
					acc[0] += k * float64(img.Pix[i])
					acc[1] += k * float64(img.Pix[i+1])
					acc[2] += k * float64(img.Pix[i+2])
				}
			}
			o := out.PixOffset(x, y)
			out.Pix[o] = clamp8(acc[0])
			out.Pix[o+1] = clamp8(acc[1])
			out.Pix[o+2] = clamp8(acc[2])
		}
	}
	return out
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}
