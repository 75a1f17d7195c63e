package signature

import (
	"math"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// measure computes the shape attributes of the foreground. It reports false
// when there is no foreground pixel.
func measure(g grid) (domain.Attributes, bool) {
	var (
		area                   int
		minX, minY, maxX, maxY = g.w, g.h, -1, -1
	)
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			if !g.px[y*g.w+x] {
				continue
			}
			area++
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if area == 0 {
		return domain.Attributes{}, false
	}

	perimeter := boundary(g)

	var circularity float64
	if perimeter > 0 {
		circularity = 4 * math.Pi * float64(area) / float64(perimeter*perimeter)
	}

	var aspect float64
	if h := maxY - minY; h > 0 {
		aspect = float64(maxX-minX) / float64(h)
	}

	return domain.Attributes{
		Area:        float64(area),
		Perimeter:   float64(perimeter),
		Circularity: circularity,
		AspectRatio: aspect,
	}, true
}

// boundary counts the pixels of the morphological gradient: the 3x3 dilation
// of the foreground minus its 3x3 erosion. The grid is padded by one pixel so
// the dilation may grow past the box edge.
func boundary(g grid) int {
	n := 0
	for y := -1; y <= g.h; y++ {
		for x := -1; x <= g.w; x++ {
			dilated, eroded := false, true
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if g.at(x+dx, y+dy) {
						dilated = true
					} else {
						eroded = false
					}
				}
			}
			if dilated && !eroded {
				n++
			}
		}
	}
	return n
}
