// Package credential turns a visitor's identity fields into the scannable QR
// credential printed on the slip.
package credential

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/makiuchi-d/gozxing"
	gzqrcode "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/skip2/go-qrcode"
)

// TimeLayout matches the ISO-8601 form browsers emit (millisecond precision, UTC).
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultSize is the rendered PNG edge in pixels.
const DefaultSize = 256

var (
	ErrPayloadTooLarge = errors.New("credential payload too large for QR symbology")
	ErrInvalidPayload  = errors.New("invalid credential payload")
	ErrUnreadable      = errors.New("no QR credential found in image")
)

// Payload is what the QR encodes. ID is nil for a provisional credential.
type Payload struct {
	ID        *int64 `json:"id,omitempty"`
	IDNumber  string `json:"id_number"`
	FullName  string `json:"full_name,omitempty"`
	Timestamp string `json:"time"`
}

// Provisional builds the placeholder payload used before the store assigns an id.
func Provisional(fullName, idNumber string, at time.Time) Payload {
	return Payload{
		IDNumber:  idNumber,
		FullName:  fullName,
		Timestamp: FormatTime(at),
	}
}

// Final builds the printable payload carrying the store-assigned id.
func Final(id int64, fullName, idNumber string, at time.Time) Payload {
	return Payload{
		ID:        &id,
		IDNumber:  idNumber,
		FullName:  fullName,
		Timestamp: FormatTime(at),
	}
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// IsFinal reports whether the payload carries a store-assigned id.
func (p Payload) IsFinal() bool { return p.ID != nil && *p.ID > 0 }

// Marshal returns the compact JSON text stored in the credential column.
func Marshal(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal credential: %w", err)
	}
	return string(b), nil
}

// Parse is the inverse of Marshal.
func Parse(s string) (Payload, error) {
	var p Payload
	s = strings.TrimSpace(s)
	if s == "" {
		return p, ErrInvalidPayload
	}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

// Encode renders the payload as a PNG QR code. Same payload, same bytes.
func Encode(p Payload) ([]byte, error) {
	text, err := Marshal(p)
	if err != nil {
		return nil, err
	}
	return EncodeText(text, DefaultSize)
}

// EncodeText renders an already-serialised payload.
func EncodeText(text string, size int) ([]byte, error) {
	q, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		if strings.Contains(err.Error(), "too long") {
			return nil, ErrPayloadTooLarge
		}
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	if size <= 0 {
		size = DefaultSize
	}
	return q.PNG(size)
}

// DataURL wraps PNG bytes for inline <img> use on the slip.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// Decode reads a QR image (PNG or JPEG) and returns the embedded payload.
func Decode(img []byte) (Payload, error) {
	text, err := DecodeText(img)
	if err != nil {
		return Payload{}, err
	}
	return Parse(text)
}

// DecodeText reads a QR image and returns its raw text.
func DecodeText(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	res, err := gzqrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return res.GetText(), nil
}
