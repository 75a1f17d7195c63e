package signature

import (
	"image"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

const hashSide = 8

// perceptualHash crops box out of frame, shrinks it to an 8x8 grayscale
// grid, takes its 2-D DCT and sets one bit per coefficient that lies above
// the coefficient mean. Bits are laid out row-major starting at bit 63.
func perceptualHash(frame image.Image, box image.Rectangle) domain.PHash {
	small := imaging.Grayscale(imaging.Resize(imaging.Crop(frame, box), hashSide, hashSide, imaging.Linear))

	coeffs := dct2(luma(small))
	mean := stat.Mean(coeffs, nil)

	var h domain.PHash
	for _, c := range coeffs {
		h <<= 1
		if c > mean {
			h |= 1
		}
	}
	return h
}

// luma reads the gray level of every pixel of an 8x8 grayscale NRGBA image.
func luma(img *image.NRGBA) []float64 {
	out := make([]float64, hashSide*hashSide)
	b := img.Bounds()
	for y := 0; y < hashSide && y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < hashSide && x < b.Dx(); x++ {
			out[y*hashSide+x] = float64(row[x*4])
		}
	}
	return out
}

// dct2 applies a separable 2-D DCT to a row-major square block.
func dct2(block []float64) []float64 {
	t := fourier.NewDCT(hashSide)
	src := make([]float64, hashSide)
	dst := make([]float64, hashSide)
	out := make([]float64, len(block))

	for r := 0; r < hashSide; r++ {
		copy(src, block[r*hashSide:(r+1)*hashSide])
		t.Transform(dst, src)
		copy(out[r*hashSide:], dst)
	}
	for c := 0; c < hashSide; c++ {
		for r := 0; r < hashSide; r++ {
			src[r] = out[r*hashSide+c]
		}
		t.Transform(dst, src)
		for r := 0; r < hashSide; r++ {
			out[r*hashSide+c] = dst[r]
		}
	}
	return out
}
