package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Images travel as data URLs (data:image/png;base64,...), matching what
// browser clipboard and file APIs hand out.
var allowedImageMIMEs = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

const dataURLPrefix = "data:"

// ParseImageDataURL decodes and validates a data-URL image. It enforces the
// MIME allowlist and the decoded size bound, returning the raw bytes and the
// MIME type. The size check runs against the encoded length first so an
// oversized payload is rejected before any decoding work.
func ParseImageDataURL(s string, maxBytes int64) ([]byte, string, error) {
	if !strings.HasPrefix(s, dataURLPrefix) {
		return nil, "", ErrImageFormat
	}
	rest := s[len(dataURLPrefix):]
	semi := strings.IndexByte(rest, ';')
	comma := strings.IndexByte(rest, ',')
	if semi < 0 || comma < 0 || semi > comma {
		return nil, "", ErrImageFormat
	}
	mime := rest[:semi]
	if !allowedImageMIMEs[mime] {
		return nil, "", ErrImageFormat
	}
	if rest[semi+1:comma] != "base64" {
		return nil, "", ErrImageFormat
	}
	encoded := rest[comma+1:]
	// base64 inflates by 4/3, so the decoded bound maps to an encoded one.
	if int64(len(encoded)) > (maxBytes*4)/3+4 {
		return nil, "", ErrImageTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", ErrImageFormat
	}
	if int64(len(data)) > maxBytes {
		return nil, "", ErrImageTooLarge
	}
	return data, mime, nil
}

// ImageDataURL re-encodes stored image bytes for the read response.
func ImageDataURL(mime string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}
