package imaging

import (
	"fmt"
	"image"

	"github.com/tphakala/soilnet-go/internal/errors"
	"golang.org/x/image/draw"
)

// NormalizedBuffer is a square RGBA image of the model's input size.
type NormalizedBuffer struct {
	Size   int
	Pixels *image.RGBA
}

// ResizeAndCrop scales img so its shorter side equals targetSize and
// center-crops the longer side to targetSize. The result is deterministic
// for a given input.
func (p *Pipeline) ResizeAndCrop(img image.Image, targetSize int) (*NormalizedBuffer, error) {
	if img == nil {
		return nil, errors.New(fmt.Errorf("%w: no pixel data", errors.ErrInvalidImage)).
			Component("imaging").
			Category(errors.CategoryImageInput).
			Build()
	}
	if targetSize <= 0 {
		return nil, errors.New(fmt.Errorf("%w: target size %d", errors.ErrConversionFailed, targetSize)).
			Component("imaging").
			Category(errors.CategoryValidation).
			Build()
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, errors.New(fmt.Errorf("%w: no pixel data", errors.ErrInvalidImage)).
			Component("imaging").
			Category(errors.CategoryImageInput).
			ImageContext(w, h).
			Build()
	}

	// Uniform scale followed by a centered crop equals scaling the centered
	// square of side min(w, h) straight to the target.
	side := min(w, h)
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2
	src := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, targetSize, targetSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)

	return &NormalizedBuffer{Size: targetSize, Pixels: dst}, nil
}

// Tensor returns the buffer as float32 values in NHWC order with batch 1,
// scaled to [0, 1].
func (nb *NormalizedBuffer) Tensor() []float32 {
	out := make([]float32, nb.Size*nb.Size*defaultChannelsPerPixel)
	nb.FillTensor(out)
	return out
}

// FillTensor writes the tensor into dst, which must hold Size*Size*3 values.
func (nb *NormalizedBuffer) FillTensor(dst []float32) {
	const scale = 1.0 / 255.0
	pix := nb.Pixels.Pix
	stride := nb.Pixels.Stride
	i := 0
	for y := range nb.Size {
		row := pix[y*stride : y*stride+nb.Size*4]
		for x := range nb.Size {
			px := row[x*4 : x*4+4]
			dst[i] = float32(px[0]) * scale
			dst[i+1] = float32(px[1]) * scale
			dst[i+2] = float32(px[2]) * scale
			i += defaultChannelsPerPixel
		}
	}
}
