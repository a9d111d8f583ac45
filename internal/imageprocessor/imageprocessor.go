// Package imageprocessor turns request payloads into decoded images and
// prepares face crops for persistence.
package imageprocessor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"
)

var (
	// ErrEmptyPayload is returned when there is nothing to decode.
	ErrEmptyPayload = errors.New("image payload is empty")
	// ErrInvalidBase64 is returned when the payload is not valid base64.
	ErrInvalidBase64 = errors.New("image payload is not valid base64")
	// ErrUnsupportedImage is returned when the bytes are not a known image format.
	ErrUnsupportedImage = errors.New("image data could not be decoded")
)

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// StripDataURL removes a "data:<mime>;base64," prefix if present.
func StripDataURL(payload string) string {
	if !strings.HasPrefix(payload, "data:") {
		return payload
	}
	header, data, ok := strings.Cut(payload, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return payload
	}
	return data
}

// DecodePayload decodes a base64 image payload, optionally wrapped in a data URL.
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	data := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t', ' ':
			return -1
		}
		return r
	}, StripDataURL(payload))
	if data == "" {
		return nil, ErrEmptyPayload
	}

	for _, enc := range base64Encodings {
		raw, err := enc.DecodeString(data)
		if err == nil && len(raw) > 0 {
			return raw, nil
		}
	}
	return nil, ErrInvalidBase64
}

// DecodeImage decodes JPEG, PNG or GIF bytes into an image.
func DecodeImage(raw []byte) (image.Image, string, error) {
	if len(raw) == 0 {
		return nil, "", ErrEmptyPayload
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return img, format, nil
}

// Decode runs DecodePayload followed by DecodeImage.
func Decode(payload string) (image.Image, error) {
	raw, err := DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	img, _, err := DecodeImage(raw)
	return img, err
}

// Crop returns the part of img inside rect, clipped to the image bounds.
// It returns nil when the intersection is empty.
func Crop(img image.Image, rect image.Rectangle) image.Image {
	if img == nil {
		return nil
	}
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil
	}
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect)
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			out.Set(x-rect.Min.X, y-rect.Min.Y, img.At(x, y))
		}
	}
	return out
}

// EncodePNG serializes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
