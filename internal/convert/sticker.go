// Package convert turns sticker payloads into ordinary raster images.
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/webp"
)

// ErrNotSticker indicates a payload that is not a decodable sticker image.
var ErrNotSticker = errors.New("payload is not a sticker image")

// StickerToPNG decodes a WebP sticker and re-encodes it as PNG. PNG, JPEG
// and GIF inputs are accepted too, since some transports deliver stickers in
// those formats. Animated WebP stickers convert to their first frame. Pixels
// are copied as decoded; PNG is lossless.
func StickerToPNG(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrNotSticker)
	}

	mtype := mimetype.Detect(data)
	var (
		img image.Image
		err error
	)
	switch {
	case mtype.Is("image/webp"):
		if isAnimatedWebP(data) {
			still, ferr := firstFrame(data)
			if ferr != nil {
				return nil, fmt.Errorf("%w: animated webp: %v", ErrNotSticker, ferr)
			}
			data = still
		}
		img, err = webp.Decode(bytes.NewReader(data))
	case mtype.Is("image/png"), mtype.Is("image/jpeg"), mtype.Is("image/gif"):
		img, _, err = image.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: detected %s", ErrNotSticker, mtype.String())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrNotSticker, mtype.String(), err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
