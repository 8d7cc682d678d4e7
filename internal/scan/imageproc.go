package scan

import (
	"errors"
	"image"

	"golang.org/x/image/draw"
)

// ContrastFactor is the fixed enhancement applied to every processed frame.
const ContrastFactor = 1.2

var ErrInvalidQuality = errors.New("scan: processing quality must be in (0,1]")

// PixelBuffer is raw RGBA pixel data ready for decoding. Data is owned by
// the ImageProcessor and is overwritten by its next call.
type PixelBuffer struct {
	Data   []byte
	Width  int
	Height int
}

// Image wraps the buffer as an image without copying.
func (b *PixelBuffer) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    b.Data,
		Stride: 4 * b.Width,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// ImageProcessor downsamples and enhances frames into a single reused
// surface. It is not safe for concurrent use.
type ImageProcessor struct {
	surface *image.RGBA
	lut     [256]byte
}

// NewImageProcessor creates a processor.
func NewImageProcessor() *ImageProcessor {
	p := &ImageProcessor{}
	for i := range p.lut {
		v := (float64(i)-128)*ContrastFactor + 128
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		p.lut[i] = byte(v + 0.5)
	}
	return p
}

// OptimizeForScanning scales frame by quality, boosts contrast and returns
// the pixels.
func (p *ImageProcessor) OptimizeForScanning(frame image.Image, quality float64) (*PixelBuffer, error) {
	if quality <= 0 || quality > 1 {
		return nil, ErrInvalidQuality
	}
	src := frame.Bounds()
	if src.Empty() {
		return nil, errors.New("scan: empty frame")
	}

	w := max(int(float64(src.Dx())*quality), 1)
	h := max(int(float64(src.Dy())*quality), 1)
	dst := p.surfaceFor(w, h)

	draw.ApproxBiLinear.Scale(dst, dst.Rect, frame, src, draw.Src, nil)

	pix := dst.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i] = p.lut[pix[i]]
		pix[i+1] = p.lut[pix[i+1]]
		pix[i+2] = p.lut[pix[i+2]]
	}

	return &PixelBuffer{Data: pix, Width: w, Height: h}, nil
}

func (p *ImageProcessor) surfaceFor(w, h int) *image.RGBA {
	n := 4 * w * h
	if p.surface != nil && cap(p.surface.Pix) >= n {
		p.surface.Pix = p.surface.Pix[:n]
		p.surface.Stride = 4 * w
		p.surface.Rect = image.Rect(0, 0, w, h)
		return p.surface
	}
	p.surface = image.NewRGBA(image.Rect(0, 0, w, h))
	return p.surface
}
