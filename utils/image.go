package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyImage = errors.New("empty base64 image")

// DecodeImage accepts a raw base64 payload or a data URI such as
// "data:image/jpeg;base64,...." and returns the bytes plus the mime type
// ("image/jpeg" when the input carries none).
func DecodeImage(b64 string) ([]byte, string, error) {
	b64 = strings.TrimSpace(b64)
	if b64 == "" {
		return nil, "", ErrEmptyImage
	}

	mime := "image/jpeg"
	if strings.HasPrefix(b64, "data:") {
		parts := strings.SplitN(b64, ";base64,", 2)
		if len(parts) == 2 {
			if m := strings.TrimPrefix(parts[0], "data:"); m != "" {
				mime = m
			}
			b64 = parts[1]
		} else if idx := strings.Index(b64, ","); idx != -1 {
			b64 = b64[idx+1:]
		}
	}

	// try StdEncoding then URL encoding, the browser canvas emits either
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(b64)
		if err != nil {
			return nil, "", fmt.Errorf("base64 decode failed: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	return data, mime, nil
}
