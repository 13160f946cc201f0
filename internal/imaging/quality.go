package imaging

import (
	"image"

	"golang.org/x/image/draw"
)

// IssueKind names a single quality problem.
type IssueKind string

const (
	IssueLowResolution IssueKind = "low_resolution"
	IssueTooDark       IssueKind = "too_dark"
	IssueTooBright     IssueKind = "too_bright"
	IssueBlurry        IssueKind = "blurry"
)

// Score deductions and luminance limits.
const (
	baseQualityScore     = 100
	AcceptableScore      = 60
	lowResolutionPenalty = 30
	tooDarkPenalty       = 25
	tooBrightPenalty     = 20
	blurryPenalty        = 35
	darkLuminance        = 0.2
	brightLuminance      = 0.9
)

// QualityVerdict is the itemized quality assessment of an image.
type QualityVerdict struct {
	Acceptable    bool        `json:"acceptable"`
	Score         int         `json:"score"`
	Issues        []IssueKind `json:"issues"`
	MeanLuminance float64     `json:"mean_luminance"`
	EdgeVariance  float64     `json:"edge_variance"`
}

// Has reports whether the verdict lists kind.
func (v QualityVerdict) Has(kind IssueKind) bool {
	for _, issue := range v.Issues {
		if issue == kind {
			return true
		}
	}
	return false
}

// QualityAnalyze applies independent deductions to a base score of 100.
// Issues are listed in a fixed order: resolution, dark, bright, blur.
func (p *Pipeline) QualityAnalyze(img image.Image) QualityVerdict {
	verdict := QualityVerdict{Score: baseQualityScore, Issues: []IssueKind{}}
	if img == nil {
		verdict.Score = 0
		return verdict
	}

	b := img.Bounds()
	if b.Dx() < p.cfg.MinQualitySide || b.Dy() < p.cfg.MinQualitySide {
		verdict.Score -= lowResolutionPenalty
		verdict.Issues = append(verdict.Issues, IssueLowResolution)
	}

	gray := analysisGray(img)
	verdict.MeanLuminance = meanLuminance(gray)
	verdict.EdgeVariance = laplacianVariance(gray)

	if verdict.MeanLuminance < darkLuminance {
		verdict.Score -= tooDarkPenalty
		verdict.Issues = append(verdict.Issues, IssueTooDark)
	}
	if verdict.MeanLuminance > brightLuminance {
		verdict.Score -= tooBrightPenalty
		verdict.Issues = append(verdict.Issues, IssueTooBright)
	}
	if verdict.EdgeVariance < p.cfg.BlurThreshold {
		verdict.Score -= blurryPenalty
		verdict.Issues = append(verdict.Issues, IssueBlurry)
	}

	verdict.Score = max(verdict.Score, 0)
	verdict.Acceptable = verdict.Score >= AcceptableScore
	return verdict
}

// analysisGray converts img to 8-bit luma, downscaling large images so
// analysis cost stays bounded. Small images keep their native resolution.
func analysisGray(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)

	if longest <= DefaultMaxAnalysisSide {
		gray := image.NewGray(image.Rect(0, 0, w, h))
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
		return gray
	}

	scale := float64(DefaultMaxAnalysisSide) / float64(longest)
	dw := max(1, int(float64(w)*scale))
	dh := max(1, int(float64(h)*scale))
	gray := image.NewGray(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	return gray
}

// meanLuminance returns the mean luma in [0, 1].
func meanLuminance(gray *image.Gray) float64 {
	b := gray.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var sum uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := gray.Pix[gray.PixOffset(b.Min.X, y) : gray.PixOffset(b.Min.X, y)+b.Dx()]
		for _, v := range row {
			sum += uint64(v)
		}
	}
	return float64(sum) / float64(n) / 255.0
}

// laplacianVariance returns the variance of the 4-neighbour Laplacian over
// interior pixels. Sharp images score high, blurred or flat images near zero.
func laplacianVariance(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}
