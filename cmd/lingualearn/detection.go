package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// detectionFlags are the flags shared by teach and recall that describe one
// detected object.
type detectionFlags struct {
	image string
	mask  string
	box   string
	score float64
}

func (f *detectionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.image, "image", "", "frame image file (png, jpeg, gif, bmp, tiff)")
	fs.StringVar(&f.mask, "mask", "", "optional foreground mask image aligned with the frame")
	fs.StringVar(&f.box, "box", "", "object box as x1,y1,x2,y2 in pixels (default: whole frame)")
	fs.Float64Var(&f.score, "score", 1, "detector confidence of the object")
}

// detection loads the files named by the flags.
func (f *detectionFlags) detection() (domain.Detection, error) {
	if f.image == "" {
		return domain.Detection{}, errors.New("-image is required")
	}
	box, err := parseBox(f.box)
	if err != nil {
		return domain.Detection{}, err
	}

	frame, err := imaging.Open(f.image)
	if err != nil {
		return domain.Detection{}, fmt.Errorf("open image: %w", err)
	}

	d := domain.Detection{Frame: frame, Box: box, Score: f.score}
	if f.mask != "" {
		mask, err := imaging.Open(f.mask)
		if err != nil {
			return domain.Detection{}, fmt.Errorf("open mask: %w", err)
		}
		if mask.Bounds().Size() != frame.Bounds().Size() {
			return domain.Detection{}, fmt.Errorf("mask is %v, frame is %v", mask.Bounds().Size(), frame.Bounds().Size())
		}
		d.Mask = mask
	}
	return d, nil
}

// parseBox parses "x1,y1,x2,y2". The empty string is the zero rectangle.
func parseBox(s string) (image.Rectangle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return image.Rectangle{}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("box %q: want x1,y1,x2,y2", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("box %q: %w", s, err)
		}
		v[i] = n
	}

	r := image.Rect(v[0], v[1], v[2], v[3])
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("box %q is empty", s)
	}
	return r, nil
}
