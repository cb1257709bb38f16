// Package photo decodes uploaded card and profile images and produces the
// square thumbnails the dashboard stores.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ProfileSize is the edge of a stored profile image.
const ProfileSize = 512

var ErrUnsupported = errors.New("photo must be png, jpeg, gif, bmp or webp")

// Decode reads any supported image and reports its format name.
func Decode(raw []byte) (image.Image, string, error) {
	if len(raw) == 0 {
		return nil, "", errors.New("photo file is empty")
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", ErrUnsupported
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", errors.New("invalid image dimensions")
	}
	return img, format, nil
}

// Check validates raw without keeping the decoded pixels.
func Check(raw []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", ErrUnsupported
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", errors.New("invalid image dimensions")
	}
	return format, nil
}

// Square center-crops img to a square and scales it to size.
func Square(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	edge := min(b.Dx(), b.Dy())
	x := b.Min.X + (b.Dx()-edge)/2
	y := b.Min.Y + (b.Dy()-edge)/2

	crop := image.NewRGBA(image.Rect(0, 0, edge, edge))
	stddraw.Draw(crop, crop.Bounds(), img, image.Point{X: x, Y: y}, stddraw.Src)

	out := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(out, out.Bounds(), crop, crop.Bounds(), xdraw.Over, nil)
	return out
}

// ProfileImage turns an upload into the stored profile PNG.
func ProfileImage(raw []byte) ([]byte, error) {
	img, _, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := png.Encode(&out, Square(img, ProfileSize)); err != nil {
		return nil, fmt.Errorf("encode profile image: %w", err)
	}
	return out.Bytes(), nil
}
