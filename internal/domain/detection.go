package domain

import "image"

// Detection is what the external detector or segmenter hands over for one
// object: the source frame, the object's bounding box, an optional
// frame-aligned foreground mask and the detector's confidence.
type Detection struct {
	Frame image.Image
	// Box is the region of interest in frame coordinates. The zero rectangle
	// means the whole frame.
	Box image.Rectangle
	// Mask marks foreground pixels (bright = foreground). Nil means every
	// pixel inside Box is foreground.
	Mask  image.Image
	Score float64
}

// Region returns Box clipped to the frame, or the frame bounds when Box is zero.
func (d Detection) Region() image.Rectangle {
	if d.Frame == nil {
		return image.Rectangle{}
	}
	if d.Box == (image.Rectangle{}) {
		return d.Frame.Bounds()
	}
	return d.Box.Intersect(d.Frame.Bounds())
}
