// Package frame decodes the image payloads clients stream to a monitor.
package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
)

var (
	ErrEmpty       = errors.New("frame: empty payload")
	ErrMalformed   = errors.New("frame: payload is not valid base64")
	ErrUnsupported = errors.New("frame: unsupported image format")
)

var dataURLRe = regexp.MustCompile(`^data:image/([a-zA-Z0-9.+-]+);base64,`)

// Frame is one decoded client image.
type Frame struct {
	Data      []byte
	Format    string
	Width     int
	Height    int
	Timestamp time.Time
	Seq       uint64
}

// Decode parses a data URL or bare base64 string and validates that it holds a jpeg, png or webp image.
// Only the image header is decoded.
func Decode(payload string) (*Frame, error) {
	s := strings.TrimSpace(payload)
	if s == "" {
		return nil, ErrEmpty
	}
	if m := dataURLRe.FindStringSubmatch(s); m != nil {
		s = s[len(m[0]):]
	} else if strings.HasPrefix(s, "data:") {
		return nil, fmt.Errorf("%w: %.40q", ErrUnsupported, s)
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, ErrMalformed
		}
	}
	if len(raw) == 0 {
		return nil, ErrEmpty
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupported)
	}

	return &Frame{Data: raw, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Base64 returns the image bytes in standard base64.
func (f *Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}
