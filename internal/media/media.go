// Package media stores images sent in messages and profile updates and hands
// back a URI clients can load them from.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

// DefaultMaxBytes caps a decoded image.
const DefaultMaxBytes = 4 << 20

// Uploader stores an image given as a data URI or raw base64 and returns its
// public URI.
type Uploader interface {
	Upload(ctx context.Context, data string) (string, error)
}

// Image is a decoded, validated upload.
type Image struct {
	ContentType string
	Bytes       []byte
}

// Ext is the file extension used when storing the image.
func (i Image) Ext() string {
	switch i.ContentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".img"
	}
}

// DataURI re-encodes the image for uploaders that take data URIs.
func (i Image) DataURI() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Bytes)
}

// Decode parses data and checks it is an image no larger than maxBytes.
// Errors wrap domain.ErrInvalidInput.
func Decode(data string, maxBytes int) (Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data = strings.TrimSpace(data)
	if data == "" {
		return Image{}, fmt.Errorf("%w: empty image", domain.ErrInvalidInput)
	}

	declared := ""
	payload := data
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		meta, body, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return Image{}, fmt.Errorf("%w: image must be a base64 data URI", domain.ErrInvalidInput)
		}
		declared = strings.TrimSuffix(meta, ";base64")
		payload = body
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+3 {
		return Image{}, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidInput, maxBytes)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: image is not valid base64", domain.ErrInvalidInput)
	}
	if len(raw) == 0 {
		return Image{}, fmt.Errorf("%w: empty image", domain.ErrInvalidInput)
	}
	if len(raw) > maxBytes {
		return Image{}, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidInput, maxBytes)
	}

	ct := declared
	if ct == "" || ct == "image/*" {
		ct = http.DetectContentType(raw)
	}
	if !strings.HasPrefix(ct, "image/") {
		return Image{}, fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidInput, ct)
	}
	return Image{ContentType: ct, Bytes: raw}, nil
}
