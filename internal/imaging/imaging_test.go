package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/soilnet-go/internal/errors"
)

// checkerboard builds a w x h image alternating lo and hi gray cells.
func checkerboard(w, h, cell int, lo, hi uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := lo
			if (x/cell+y/cell)%2 == 0 {
				v = hi
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func uniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func gray(v uint8) color.RGBA {
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

func TestValidateDimensionRange(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	tests := []struct {
		name string
		w, h int
		want bool
	}{
		{"minimum", 100, 100, true},
		{"maximum width", 4000, 100, true},
		{"maximum height", 100, 4000, true},
		{"typical", 640, 480, true},
		{"too narrow", 99, 500, false},
		{"too short", 500, 99, false},
		{"too wide", 4001, 200, false},
		{"too tall", 200, 4001, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			img := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			assert.Equal(t, tt.want, p.Validate(img))
		})
	}
}

func TestValidateRejectsMissingPixels(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	assert.False(t, p.Validate(nil))
	assert.False(t, p.Validate(image.NewRGBA(image.Rectangle{})))

	_, err := p.Process(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidImage)
}

func TestResizeAndCropAlwaysTargetSize(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	sizes := [][2]int{{1000, 300}, {150, 900}, {224, 224}, {101, 4000}, {333, 334}}
	for _, s := range sizes {
		img := checkerboard(s[0], s[1], 7, 0, 255)
		buf, err := p.ResizeAndCrop(img, DefaultTargetSize)
		require.NoError(t, err)
		assert.Equal(t, DefaultTargetSize, buf.Size)
		assert.Equal(t, image.Rect(0, 0, 224, 224), buf.Pixels.Bounds(), "input %dx%d", s[0], s[1])
	}
}

func TestResizeAndCropIsDeterministic(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	img := checkerboard(640, 480, 5, 10, 240)

	a, err := p.ResizeAndCrop(img, 224)
	require.NoError(t, err)
	b, err := p.ResizeAndCrop(img, 224)
	require.NoError(t, err)
	assert.Equal(t, a.Pixels.Pix, b.Pixels.Pix)
}

func TestResizeAndCropCentersLongerAxis(t *testing.T) {
	t.Parallel()

	// Three vertical bands; only the middle one survives a centered crop.
	img := image.NewRGBA(image.Rect(0, 0, 900, 300))
	for y := range 300 {
		for x := range 900 {
			c := color.RGBA{G: 255, A: 255}
			switch {
			case x < 300:
				c = color.RGBA{R: 255, A: 255}
			case x >= 600:
				c = color.RGBA{B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}

	buf, err := New(Config{}).ResizeAndCrop(img, 224)
	require.NoError(t, err)

	for _, pt := range []image.Point{{112, 112}, {0, 0}, {223, 0}, {0, 223}, {223, 223}} {
		c := buf.Pixels.RGBAAt(pt.X, pt.Y)
		assert.Greater(t, c.G, uint8(200), "green at %v", pt)
		assert.Less(t, c.R, uint8(30), "red at %v", pt)
		assert.Less(t, c.B, uint8(30), "blue at %v", pt)
	}
}

func TestResizeAndCropRejectsBadInput(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	_, err := p.ResizeAndCrop(nil, 224)
	require.ErrorIs(t, err, errors.ErrInvalidImage)

	_, err = p.ResizeAndCrop(checkerboard(300, 300, 4, 0, 255), 0)
	require.ErrorIs(t, err, errors.ErrConversionFailed)
}

func TestTensorLayoutAndScale(t *testing.T) {
	t.Parallel()

	buf, err := New(Config{}).ResizeAndCrop(uniform(300, 300, color.RGBA{R: 255, G: 0, B: 51, A: 255}), 224)
	require.NoError(t, err)

	tensor := buf.Tensor()
	require.Len(t, tensor, 224*224*3)
	for i := 0; i < len(tensor); i += 3 {
		assert.InDelta(t, 1.0, tensor[i], 1e-6)
		assert.InDelta(t, 0.0, tensor[i+1], 1e-6)
		assert.InDelta(t, 0.2, tensor[i+2], 1e-6)
		if t.Failed() {
			break
		}
	}
}

func TestQualityAnalyzeDeductions(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	tests := []struct {
		name       string
		img        image.Image
		score      int
		acceptable bool
		issues     []IssueKind
	}{
		{
			name:       "good image",
			img:        checkerboard(400, 400, 4, 0, 255),
			score:      100,
			acceptable: true,
			issues:     []IssueKind{},
		},
		{
			name:       "low resolution",
			img:        checkerboard(200, 400, 4, 0, 255),
			score:      70,
			acceptable: true,
			issues:     []IssueKind{IssueLowResolution},
		},
		{
			name:       "too dark",
			img:        checkerboard(400, 400, 4, 0, 60),
			score:      75,
			acceptable: true,
			issues:     []IssueKind{IssueTooDark},
		},
		{
			name:       "too bright",
			img:        checkerboard(400, 400, 4, 220, 255),
			score:      80,
			acceptable: true,
			issues:     []IssueKind{IssueTooBright},
		},
		{
			name:       "blurry",
			img:        uniform(400, 400, gray(128)),
			score:      65,
			acceptable: true,
			issues:     []IssueKind{IssueBlurry},
		},
		{
			name:       "dark and blurry",
			img:        uniform(400, 400, gray(30)),
			score:      40,
			acceptable: false,
			issues:     []IssueKind{IssueTooDark, IssueBlurry},
		},
		{
			name:       "everything wrong",
			img:        uniform(200, 200, gray(10)),
			score:      10,
			acceptable: false,
			issues:     []IssueKind{IssueLowResolution, IssueTooDark, IssueBlurry},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := p.QualityAnalyze(tt.img)
			assert.Equal(t, tt.score, v.Score)
			assert.Equal(t, tt.acceptable, v.Acceptable)
			assert.Equal(t, tt.issues, v.Issues)
			assert.Equal(t, v.Score >= AcceptableScore, v.Acceptable)
		})
	}
}

func TestQualityDeductionsAreMonotonic(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	base := p.QualityAnalyze(checkerboard(400, 400, 4, 0, 255)).Score

	degraded := []image.Image{
		checkerboard(250, 250, 4, 0, 255),
		checkerboard(400, 400, 4, 0, 40),
		checkerboard(400, 400, 4, 235, 255),
		uniform(400, 400, gray(120)),
	}
	for i, img := range degraded {
		v := p.QualityAnalyze(img)
		assert.LessOrEqual(t, v.Score, base, "degraded image %d", i)
		assert.GreaterOrEqual(t, v.Score, 0)
		assert.NotEmpty(t, v.Issues)
	}
}

func TestQualityWorstCaseAndNil(t *testing.T) {
	t.Parallel()

	p := New(Config{MinQualitySide: 4000, BlurThreshold: 1e12})
	v := p.QualityAnalyze(uniform(150, 150, gray(0)))
	assert.Equal(t, 10, v.Score)

	v = p.QualityAnalyze(nil)
	assert.Equal(t, 0, v.Score)
	assert.False(t, v.Acceptable)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, checkerboard(320, 240, 8, 0, 255)))

	img, format, err := Decode(bytes.NewReader(encoded.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 320, img.Bounds().Dx())

	_, _, err = Decode(bytes.NewReader([]byte("definitely not an image")))
	require.ErrorIs(t, err, errors.ErrInvalidImage)

	_, _, err = Decode(bytes.NewReader(nil))
	require.ErrorIs(t, err, errors.ErrInvalidImage)
}

func TestProcessReader(t *testing.T) {
	t.Parallel()

	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, checkerboard(480, 360, 4, 0, 255)))

	out, err := New(Config{}).ProcessReader(&encoded)
	require.NoError(t, err)
	assert.Equal(t, "png", out.Format)
	assert.Equal(t, 480, out.Width)
	assert.Equal(t, 360, out.Height)
	assert.True(t, out.Verdict.Acceptable)
	assert.Equal(t, 224, out.Buffer.Size)

	var tiny bytes.Buffer
	require.NoError(t, png.Encode(&tiny, checkerboard(50, 50, 4, 0, 255)))
	_, err = New(Config{}).ProcessReader(&tiny)
	require.ErrorIs(t, err, errors.ErrInvalidImage)
}

func TestCheckReportsReason(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	require.NoError(t, p.Check(checkerboard(300, 300, 4, 0, 255)))

	err := p.Check(checkerboard(5000, 300, 4, 0, 255))
	require.ErrorIs(t, err, errors.ErrInvalidImage)
	assert.Contains(t, err.Error(), "5000x300")
	assert.True(t, errors.IsCategory(err, errors.CategoryImageInput))
}
