package photo

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

var (
	ErrEmpty    = errors.New("photo is empty")
	ErrTooLarge = errors.New("photo is too large")
	ErrNotImage = errors.New("file is not an image")
)

// Image is an encoded photo held in memory. The bytes are never decoded here.
type Image struct {
	Data     []byte
	MimeType string
}

// Analysis is the critique returned by the analysis model.
type Analysis struct {
	Lighting    string   `json:"lighting"`
	Composition string   `json:"composition"`
	Optics      string   `json:"optics"`
	Color       string   `json:"color"`
	Suggestions []string `json:"suggestions"`
}

func (a Analysis) HasSuggestions() bool {
	for _, s := range a.Suggestions {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

// Read loads an upload into memory. declaredMIME is whatever the client sent
// (multipart header, Telegram content-type); it may be empty.
func Read(r io.Reader, declaredMIME string, limit int64) (Image, error) {
	if limit <= 0 {
		limit = 25 << 20
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return Image{}, fmt.Errorf("read photo: %w", err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmpty
	}
	if int64(len(data)) > limit {
		return Image{}, ErrTooLarge
	}

	img := Image{Data: data, MimeType: ResolveMimeType(declaredMIME, data)}
	if !strings.HasPrefix(img.MimeType, "image/") {
		return Image{}, ErrNotImage
	}
	return img, nil
}

// ResolveMimeType prefers the declared type, falls back to sniffing and finally to image/jpeg.
func ResolveMimeType(declared string, data []byte) string {
	mimeType := stripParams(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = stripParams(http.DetectContentType(data))
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

func (img Image) IsZero() bool {
	return len(img.Data) == 0
}

// Extension returns a file extension suitable for downloads, including the dot.
func (img Image) Extension() string {
	switch img.mimeOrDefault() {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	if exts, _ := mime.ExtensionsByType(img.mimeOrDefault()); len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}

func (img Image) Clone() Image {
	return Image{Data: bytes.Clone(img.Data), MimeType: img.MimeType}
}

func (img Image) mimeOrDefault() string {
	if img.MimeType == "" {
		return "image/jpeg"
	}
	return img.MimeType
}

// ParseDataURL decodes "data:<mime>;base64,<payload>". A bare base64 payload
// is accepted and treated as JPEG.
func ParseDataURL(value string) (Image, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Image{}, errors.New("empty data url")
	}

	mimeType := "image/jpeg"
	payload := value

	const prefix = "data:"
	if strings.HasPrefix(value, prefix) {
		parts := strings.SplitN(value, ",", 2)
		if len(parts) != 2 {
			return Image{}, errors.New("invalid data url")
		}
		meta := strings.Split(strings.TrimPrefix(parts[0], prefix), ";")
		if m := strings.TrimSpace(meta[0]); m != "" {
			mimeType = m
		}
		payload = parts[1]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode base64: %w", err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmpty
	}
	return Image{Data: data, MimeType: mimeType}, nil
}

func stripParams(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return strings.ToLower(mimeType)
}
