// Package imaging normalizes user-supplied images for model consumption and
// converts them to and from the durable text encoding used by the message
// store.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"strings"

	_ "image/gif"
	_ "image/png"
)

var (
	// ErrUnsupportedImage marks input that cannot be decoded as a raster
	// image. Callers degrade to a text-only turn instead of failing.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrCorruptAttachment marks durable text that no longer decodes.
	// Callers drop the single attachment and keep the rest of the history.
	ErrCorruptAttachment = errors.New("corrupt attachment")
)

// NormalizedMIME is the mime type of every normalized attachment.
const NormalizedMIME = "image/jpeg"

const jpegQuality = 85

// Normalize decodes any registered raster format, flattens it to RGBA and
// re-encodes it as JPEG so that stored attachments share one format.
func Normalize(raw []byte) ([]byte, string, error) {
	if len(raw) == 0 {
		return nil, "", ErrUnsupportedImage
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), NormalizedMIME, nil
}

// ToDurable renders image bytes as text suitable for a TEXT column.
// Zero-length input yields the empty string, treated as "no attachment".
func ToDurable(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// FromDurable reverses ToDurable.
func FromDurable(text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrCorruptAttachment
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptAttachment, err)
	}
	return data, nil
}

// Verify reports whether data still parses as an image header. Used when
// re-hydrating history so a damaged row cannot reach the model.
func Verify(data []byte) error {
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptAttachment, err)
	}
	return nil
}
