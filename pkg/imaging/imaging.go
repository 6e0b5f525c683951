package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"regexp"
	"strings"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxWidth       = 1200
	DefaultQuality        = 85
	DefaultMaxUploadBytes = 20 << 20
	OutputMIMEType        = "image/jpeg"
)

var (
	ErrEmptyImage     = errors.New("image is empty")
	ErrInvalidBase64  = errors.New("image data is not valid base64")
	ErrTooLarge       = errors.New("image exceeds maximum upload size")
	ErrUnsupportedImg = errors.New("unsupported image format")
)

var dataURLPrefix = regexp.MustCompile(`(?i)^data:image/[a-z0-9.+-]+;base64,`)

// StripDataURL removes a leading data:image/<subtype>;base64, prefix.
func StripDataURL(s string) string {
	s = strings.TrimSpace(s)
	return dataURLPrefix.ReplaceAllString(s, "")
}

// DecodeBase64 strips any data URL prefix and decodes the payload.
func DecodeBase64(s string) ([]byte, error) {
	payload := StripDataURL(s)
	if payload == "" {
		return nil, ErrEmptyImage
	}
	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		data, err := enc.DecodeString(payload)
		if err != nil {
			continue
		}
		if len(data) == 0 {
			return nil, ErrEmptyImage
		}
		return data, nil
	}
	return nil, ErrInvalidBase64
}

// DataURL renders bytes as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = OutputMIMEType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// CheckSize enforces the upload limit. A non-positive limit disables the check.
func CheckSize(data []byte, limit int64) error {
	if len(data) == 0 {
		return ErrEmptyImage
	}
	if limit > 0 && int64(len(data)) > limit {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), limit)
	}
	return nil
}

// Image is a normalized JPEG ready to be sent to the vision API.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Base64 returns the payload without a data URL prefix.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Normalizer downsamples images onto a white backing and re-encodes them as JPEG.
type Normalizer struct {
	MaxWidth int
	Quality  int
}

// NewNormalizer returns a Normalizer, substituting defaults for zero values.
func NewNormalizer(maxWidth, quality int) Normalizer {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return Normalizer{MaxWidth: maxWidth, Quality: quality}
}

// Normalize decodes JPEG, PNG, GIF or WebP bytes and returns a JPEG no wider
// than MaxWidth. Transparent pixels end up white.
func (n Normalizer) Normalize(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrUnsupportedImg, err)
	}
	n = NewNormalizer(n.MaxWidth, n.Quality)

	bounds := src.Bounds()
	width, height := TargetSize(bounds.Dx(), bounds.Dy(), n.MaxWidth)

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(canvas, canvas.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(canvas, canvas.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: n.Quality}); err != nil {
		return Image{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Image{Data: buf.Bytes(), MIMEType: OutputMIMEType, Width: width, Height: height}, nil
}

// TargetSize keeps the aspect ratio while capping width at maxWidth.
// Images already within the limit keep their size.
func TargetSize(width, height, maxWidth int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	if maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	scaled := int(float64(height)*float64(maxWidth)/float64(width) + 0.5)
	if scaled < 1 {
		scaled = 1
	}
	return maxWidth, scaled
}

// Metadata describes an uploaded image without re-encoding it.
type Metadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	SizeKB int    `json:"sizeKb"`
}

// ReadMetadata reads dimensions and format from the image header.
func ReadMetadata(data []byte) (Metadata, error) {
	if len(data) == 0 {
		return Metadata{}, ErrEmptyImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrUnsupportedImg, err)
	}
	return Metadata{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
		SizeKB: (len(data) + 1023) / 1024,
	}, nil
}
