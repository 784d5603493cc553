package domain

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func pngDataURL(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func TestParseImageDataURL(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}
	data, mime, err := ParseImageDataURL(pngDataURL(raw), 1024)
	if err != nil {
		t.Fatalf("ParseImageDataURL failed: %v", err)
	}
	if mime != "image/png" {
		t.Errorf("mime = %q, want image/png", mime)
	}
	if !bytes.Equal(data, raw) {
		t.Errorf("decoded bytes do not match input")
	}
}

func TestParseImageDataURL_Rejections(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("x"))
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"no data prefix", "image/png;base64," + encoded, ErrImageFormat},
		{"disallowed mime", "data:image/svg+xml;base64," + encoded, ErrImageFormat},
		{"missing base64 marker", "data:image/png;utf8," + encoded, ErrImageFormat},
		{"no comma", "data:image/png;base64", ErrImageFormat},
		{"bad base64", "data:image/png;base64,!!!!", ErrImageFormat},
		{"plain text", "hello", ErrImageFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseImageDataURL(tt.in, 1024); !errors.Is(err, tt.want) {
				t.Errorf("got err %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseImageDataURL_SizeBound(t *testing.T) {
	raw := make([]byte, 100)
	url := pngDataURL(raw)
	if _, _, err := ParseImageDataURL(url, 100); err != nil {
		t.Fatalf("payload at the bound should pass: %v", err)
	}
	if _, _, err := ParseImageDataURL(url, 99); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("payload over the bound: got %v, want ErrImageTooLarge", err)
	}
}

func TestParseImageDataURL_EncodedLengthPreCheck(t *testing.T) {
	// Far over the bound: must be rejected from the encoded length alone.
	huge := "data:image/png;base64," + strings.Repeat("A", 4096)
	if _, _, err := ParseImageDataURL(huge, 16); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("got %v, want ErrImageTooLarge", err)
	}
}

func TestImageDataURLRoundTrip(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0xe0, 9, 8, 7}
	url := ImageDataURL("image/jpeg", raw)
	data, mime, err := ParseImageDataURL(url, 1024)
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if mime != "image/jpeg" || !bytes.Equal(data, raw) {
		t.Errorf("round trip mismatch: mime=%q", mime)
	}
}
