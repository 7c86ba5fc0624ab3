package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeProducesJPEG(t *testing.T) {
	data, mime, err := Normalize(encodePNG(t))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if mime != NormalizedMIME {
		t.Fatalf("expected mime %s, got %s", NormalizedMIME, mime)
	}
	_, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode normalized output: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("expected jpeg output, got %s", format)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	if _, _, err := Normalize([]byte("definitely not an image")); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

func TestNormalizeRejectsEmptyBuffer(t *testing.T) {
	if _, _, err := Normalize(nil); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage for empty input, got %v", err)
	}
}

func TestDurableRoundTrip(t *testing.T) {
	data, _, err := Normalize(encodePNG(t))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	got, err := FromDurable(ToDurable(data))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: %d bytes in, %d bytes out", len(data), len(got))
	}
}

func TestFromDurableRejectsMalformedText(t *testing.T) {
	if _, err := FromDurable("%%% not base64 %%%"); !errors.Is(err, ErrCorruptAttachment) {
		t.Fatalf("expected ErrCorruptAttachment, got %v", err)
	}
	if _, err := FromDurable("   "); !errors.Is(err, ErrCorruptAttachment) {
		t.Fatalf("expected ErrCorruptAttachment for blank text, got %v", err)
	}
}

func TestToDurableEmptyBytes(t *testing.T) {
	if got := ToDurable(nil); got != "" {
		t.Fatalf("expected empty durable text, got %q", got)
	}
}

func TestVerifyRejectsTruncatedImage(t *testing.T) {
	if err := Verify([]byte{0x01, 0x02}); !errors.Is(err, ErrCorruptAttachment) {
		t.Fatalf("expected ErrCorruptAttachment, got %v", err)
	}
	data, _, err := Normalize(encodePNG(t))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := Verify(data); err != nil {
		t.Fatalf("verify normalized image: %v", err)
	}
}
