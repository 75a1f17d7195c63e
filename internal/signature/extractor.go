// Package signature turns a detected object region into a visual signature:
// a 64-bit perceptual hash of its appearance and a shape attribute vector.
package signature

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/segment"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// MaskLevel is the threshold above which a mask pixel counts as foreground.
const MaskLevel uint8 = 128

// Extractor computes signatures. It holds no state and is safe for concurrent use.
type Extractor struct {
	maskLevel uint8
}

// NewExtractor creates an Extractor with the default mask threshold.
func NewExtractor() *Extractor {
	return &Extractor{maskLevel: MaskLevel}
}

// Extract computes the signature of the object in d. It returns
// domain.ErrEmptyRegion when the box misses the frame or the mask selects no
// pixel inside it. Equal inputs always produce equal signatures.
func (e *Extractor) Extract(d domain.Detection) (domain.Signature, error) {
	if d.Frame == nil {
		return domain.Signature{}, fmt.Errorf("extract: %w: no frame", domain.ErrEmptyRegion)
	}
	box := d.Region()
	if box.Empty() {
		return domain.Signature{}, fmt.Errorf("extract: %w: box %v outside frame %v",
			domain.ErrEmptyRegion, d.Box, d.Frame.Bounds())
	}

	fg := e.foreground(d.Mask, box)
	attrs, ok := measure(fg)
	if !ok {
		return domain.Signature{}, fmt.Errorf("extract: %w: no foreground in %v", domain.ErrEmptyRegion, box)
	}

	hash := perceptualHash(d.Frame, box)
	return domain.Signature{Hash: &hash, Attributes: &attrs}, nil
}

// grid is a row-major boolean foreground map of a box.
type grid struct {
	w, h int
	px   []bool
}

func (g grid) at(x, y int) bool {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return false
	}
	return g.px[y*g.w+x]
}

// foreground binarizes the part of mask that falls inside box. A nil mask
// selects the whole box; mask pixels outside the mask bounds are background.
func (e *Extractor) foreground(mask image.Image, box image.Rectangle) grid {
	g := grid{w: box.Dx(), h: box.Dy(), px: make([]bool, box.Dx()*box.Dy())}
	if mask == nil {
		for i := range g.px {
			g.px[i] = true
		}
		return g
	}

	mb := mask.Bounds()
	bin := segment.Threshold(mask, e.maskLevel)
	origin := bin.Bounds().Min
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			p := image.Pt(box.Min.X+x, box.Min.Y+y)
			if !p.In(mb) {
				continue
			}
			v := bin.GrayAt(origin.X+p.X-mb.Min.X, origin.Y+p.Y-mb.Min.Y).Y
			g.px[y*g.w+x] = v != 0
		}
	}
	return g
}
