package extraction

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ImagePreprocessor prepares a rendered page for recognition.
type ImagePreprocessor interface {
	Preprocess(srcPath, dstPath string) error
}

// Preprocessor applies grayscale, autocontrast, fixed-threshold binarization,
// a 3x3 median filter, optional deskew and optional upscale.
type Preprocessor struct {
	Threshold uint8
	Upscale   float64
	Deskew    bool
}

const (
	maxSkewDegrees  = 4.0
	skewStepDegrees = 0.25
	maxSkewSamples  = 200_000
)

func (p Preprocessor) Preprocess(srcPath, dstPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open page image: %w", err)
	}
	img, _, err := image.Decode(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("decode page image: %w", err)
	}

	gray := p.Apply(img)

	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create preprocessed image: %w", err)
	}
	if err := png.Encode(out, gray); err != nil {
		out.Close()
		return fmt.Errorf("encode preprocessed image: %w", err)
	}
	return out.Close()
}

// Apply runs the in-memory pipeline.
func (p Preprocessor) Apply(img image.Image) *image.Gray {
	threshold := p.Threshold
	if threshold == 0 {
		threshold = 180
	}

	g := toGray(img)
	autocontrast(g)
	binarize(g, threshold)
	g = median3(g)
	if p.Deskew {
		if angle := estimateSkew(g); angle != 0 {
			g = rotate(g, angle)
		}
	}
	if p.Upscale > 0 && p.Upscale != 1.0 {
		g = scale(g, p.Upscale)
	}
	return g
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

func autocontrast(g *image.Gray) {
	lo, hi := uint8(255), uint8(0)
	for _, v := range g.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return
	}
	span := float64(hi - lo)
	for i, v := range g.Pix {
		g.Pix[i] = uint8(math.Round(float64(v-lo) * 255 / span))
	}
}

func binarize(g *image.Gray, threshold uint8) {
	for i, v := range g.Pix {
		if v > threshold {
			g.Pix[i] = 255
		} else {
			g.Pix[i] = 0
		}
	}
}

func median3(g *image.Gray) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	var win [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					win[k] = g.GrayAt(clamp(x+dx, 0, w-1), clamp(y+dy, 0, h-1)).Y
					k++
				}
			}
			insertionSort(win[:])
			out.SetGray(x, y, color.Gray{Y: win[4]})
		}
	}
	return out
}

// estimateSkew returns the text-line angle in degrees, searched by maximizing
// the variance of the horizontal projection profile of dark pixels.
func estimateSkew(g *image.Gray) float64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	dark := 0
	for _, v := range g.Pix {
		if v < 128 {
			dark++
		}
	}
	if dark == 0 {
		return 0
	}
	stride := 1
	if dark > maxSkewSamples {
		stride = dark/maxSkewSamples + 1
	}

	xs := make([]float64, 0, dark/stride+1)
	ys := make([]float64, 0, dark/stride+1)
	seen := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if g.GrayAt(x, y).Y >= 128 {
				continue
			}
			if seen%stride == 0 {
				xs = append(xs, float64(x))
				ys = append(ys, float64(y))
			}
			seen++
		}
	}

	bestAngle, bestScore := 0.0, -1.0
	bins := make(map[int]int, h)
	for a := -maxSkewDegrees; a <= maxSkewDegrees+1e-9; a += skewStepDegrees {
		rad := a * math.Pi / 180
		sin, cos := math.Sin(rad), math.Cos(rad)
		clear(bins)
		for i := range xs {
			bins[int(math.Floor(ys[i]*cos-xs[i]*sin+0.5))]++
		}
		score := 0.0
		for _, c := range bins {
			score += float64(c) * float64(c)
		}
		if score > bestScore+1e-9 || (math.Abs(score-bestScore) <= 1e-9 && math.Abs(a) < math.Abs(bestAngle)) {
			bestScore, bestAngle = score, a
		}
	}
	if math.Abs(bestAngle) < skewStepDegrees/2 {
		return 0
	}
	return bestAngle
}

// rotate levels lines that run at angle degrees, filling uncovered area with white.
func rotate(g *image.Gray, angle float64) *image.Gray {
	rad := angle * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(g.Rect.Dx())/2, float64(g.Rect.Dy())/2

	out := image.NewGray(g.Rect)
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)
	s2d := f64.Aff3{
		cos, sin, cx - cx*cos - cy*sin,
		-sin, cos, cy + cx*sin - cy*cos,
	}
	draw.BiLinear.Transform(out, s2d, g, g.Rect, draw.Src, nil)
	return out
}

func scale(g *image.Gray, factor float64) *image.Gray {
	w := int(math.Round(float64(g.Rect.Dx()) * factor))
	h := int(math.Round(float64(g.Rect.Dy()) * factor))
	if w <= 0 || h <= 0 {
		return g
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(out, out.Bounds(), g, g.Rect, draw.Src, nil)
	return out
}

func insertionSort(v []uint8) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
