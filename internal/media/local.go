package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

// PathPrefix is where locally stored files are served from.
const PathPrefix = "/uploads/"

// Local writes images into a directory served by FileHandler.
type Local struct {
	dir      string
	baseURL  string
	maxBytes int
}

var _ Uploader = (*Local)(nil)

func NewLocal(dir, baseURL string, maxBytes int) *Local {
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}
}

func (l *Local) Upload(ctx context.Context, data string) (string, error) {
	img, err := Decode(data, l.maxBytes)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: upload dir: %v", domain.ErrUpstream, err)
	}
	name := uuid.NewString() + img.Ext()
	if err := os.WriteFile(filepath.Join(l.dir, name), img.Bytes, 0o644); err != nil {
		return "", fmt.Errorf("%w: write upload: %v", domain.ErrUpstream, err)
	}
	return l.baseURL + PathPrefix + name, nil
}

// FileHandler serves a single stored file named by the last path segment.
func (l *Local) FileHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
			http.Error(w, "invalid filename", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(l.dir, name))
	}
}
