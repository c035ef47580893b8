// Package pairing renders pairing material for people to scan or type.
package pairing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/skip2/go-qrcode"
)

const (
	// DefaultSize is the QR image edge in pixels.
	DefaultSize   = 256
	dataURLPrefix = "data:image/png;base64,"
)

// ErrEmptyChallenge is returned when there is nothing to encode.
var ErrEmptyChallenge = errors.New("empty pairing challenge")

// Encoder turns pairing challenges into PNG data URLs.
type Encoder struct {
	Size  int
	Level qrcode.RecoveryLevel
}

// NewEncoder creates an encoder with the default size and medium error correction.
func NewEncoder() *Encoder {
	return &Encoder{Size: DefaultSize, Level: qrcode.Medium}
}

// Image encodes the challenge as a QR code and returns it as a data URL.
func (e *Encoder) Image(challenge string) (string, error) {
	if challenge == "" {
		return "", ErrEmptyChallenge
	}
	size := e.Size
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(challenge, e.Level, size)
	if err != nil {
		return "", fmt.Errorf("encoding qr code: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// FormatCode upper-cases a pairing code and groups an eight character code as XXXX-XXXX.
func (e *Encoder) FormatCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	clean := b.String()
	if len(clean) == 8 {
		return clean[:4] + "-" + clean[4:]
	}
	return clean
}

// DecodeImage returns the PNG bytes of a data URL produced by Image.
func DecodeImage(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, dataURLPrefix) {
		return nil, errors.New("not a png data url")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, dataURLPrefix))
}
