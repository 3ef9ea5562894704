package imagefit

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
)

// Fit selects how a non-square image becomes square.
type Fit string

const (
	FitContain        Fit = "contain"
	FitCoverCenter    Fit = "cover-center"
	FitCoverAttention Fit = "cover-attention"
)

// ParseFit maps a config value to a Fit. Unknown values select cover-attention.
func ParseFit(raw string) Fit {
	switch Fit(strings.ToLower(strings.TrimSpace(raw))) {
	case FitContain:
		return FitContain
	case FitCoverCenter:
		return FitCoverCenter
	default:
		return FitCoverAttention
	}
}

// Square decodes data (honoring EXIF orientation), fits it into a side x side
// square and returns PNG bytes.
func Square(data []byte, side int, fit Fit) ([]byte, error) {
	if side <= 0 {
		return nil, fmt.Errorf("invalid square side %d", side)
	}
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var out image.Image
	switch fit {
	case FitContain:
		fitted := imaging.Fit(src, side, side, imaging.Lanczos)
		canvas := imaging.New(side, side, color.NRGBA{0, 0, 0, 0})
		out = imaging.PasteCenter(canvas, fitted)
	case FitCoverCenter:
		out = imaging.Fill(src, side, side, imaging.Center, imaging.Lanczos)
	default:
		out = coverAttention(src, side)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

const probeSide = 64

// coverAttention scales the short side to side, then crops the window along the
// long axis with the most edge energy.
func coverAttention(src image.Image, side int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	var scaled *image.NRGBA
	if w >= h {
		scaled = imaging.Resize(src, 0, side, imaging.Lanczos)
	} else {
		scaled = imaging.Resize(src, side, 0, imaging.Lanczos)
	}
	sw, sh := scaled.Bounds().Dx(), scaled.Bounds().Dy()
	if sw == sh {
		return scaled
	}
	horizontal := sw > sh
	long := sw
	if !horizontal {
		long = sh
	}
	offset := bestOffset(scaled, horizontal) * long / probeLong(long, side)
	if offset > long-side {
		offset = long - side
	}
	if offset < 0 {
		offset = 0
	}
	if horizontal {
		return imaging.Crop(scaled, image.Rect(offset, 0, offset+side, side))
	}
	return imaging.Crop(scaled, image.Rect(0, offset, side, offset+side))
}

func probeLong(long, side int) int {
	n := long * probeSide / side
	if n < probeSide {
		n = probeSide
	}
	return n
}

// bestOffset returns the probe-scale offset of the probeSide window with the highest energy.
func bestOffset(scaled *image.NRGBA, horizontal bool) int {
	sw, sh := scaled.Bounds().Dx(), scaled.Bounds().Dy()
	var probe *image.NRGBA
	if horizontal {
		probe = imaging.Resize(scaled, probeLong(sw, sh), probeSide, imaging.Box)
	} else {
		probe = imaging.Resize(scaled, probeSide, probeLong(sh, sw), imaging.Box)
	}
	gray := imaging.Grayscale(probe)
	pw, ph := gray.Bounds().Dx(), gray.Bounds().Dy()

	lum := func(x, y int) int { return int(gray.Pix[y*gray.Stride+x*4]) }
	long := pw
	if !horizontal {
		long = ph
	}
	energy := make([]int, long)
	for y := 0; y < ph; y++ {
		for x := 0; x < pw; x++ {
			e := 0
			if x+1 < pw {
				e += abs(lum(x+1, y) - lum(x, y))
			}
			if y+1 < ph {
				e += abs(lum(x, y+1) - lum(x, y))
			}
			if horizontal {
				energy[x] += e
			} else {
				energy[y] += e
			}
		}
	}

	window := probeSide
	if window > long {
		return 0
	}
	sum := 0
	for i := 0; i < window; i++ {
		sum += energy[i]
	}
	best, bestAt := sum, 0
	for i := window; i < long; i++ {
		sum += energy[i] - energy[i-window]
		if sum > best {
			best, bestAt = sum, i-window+1
		}
	}
	return bestAt
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
