// Package extractor defines the boundary to the face detection and embedding
// model. The model itself runs out of process; see package grpcclient.
package extractor

import (
	"context"
	"image"

	"github.com/example/face-verify/internal/descriptor"
)

// BoundingBox locates a detected face in pixel coordinates.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect converts the box to an integer rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
}

// Area returns the box area in square pixels.
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Face is one detection with its embedding.
type Face struct {
	Box        BoundingBox
	Score      float64
	Descriptor descriptor.Descriptor
}

// Extractor returns the most prominent face in an image, or nil when the
// image contains no face.
type Extractor interface {
	ExtractTopFace(ctx context.Context, img image.Image) (*Face, error)
}

// SelectTopFace picks the most prominent face: highest detection score, then
// largest box, then the first one returned.
func SelectTopFace(faces []Face) *Face {
	var best *Face
	for i := range faces {
		f := &faces[i]
		if len(f.Descriptor) == 0 {
			continue
		}
		if best == nil ||
			f.Score > best.Score ||
			(f.Score == best.Score && f.Box.Area() > best.Box.Area()) {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	out.Descriptor = best.Descriptor.Clone()
	return &out
}
