package media

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

// 1x1 transparent PNG.
var pngBytes, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

func pngDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

func TestDecode(t *testing.T) {
	img, err := Decode(pngDataURI(), 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, ".png", img.Ext())
	assert.Equal(t, pngBytes, img.Bytes)

	raw, err := Decode(base64.StdEncoding.EncodeToString(pngBytes), 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", raw.ContentType, "content type sniffed from bytes")
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not base64", "data:image/png;base64,@@@"},
		{"not a data uri body", "data:image/png,abc"},
		{"not an image", "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"too large", "data:image/png;base64," + base64.StdEncoding.EncodeToString(make([]byte, 64))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, 32)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestLocalUploadAndServe(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, "http://localhost:5000/", 0)

	uri, err := l.Upload(context.Background(), pngDataURI())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "http://localhost:5000/uploads/"), uri)

	name := strings.TrimPrefix(uri, "http://localhost:5000/uploads/")
	stored, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)

	rec := httptest.NewRecorder()
	l.FileHandler(name)(rec, httptest.NewRequest(http.MethodGet, "/uploads/"+name, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	l.FileHandler("../secret")(rec, httptest.NewRequest(http.MethodGet, "/uploads/x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubUploader struct {
	calls int
	err   error
}

func (s *stubUploader) Upload(_ context.Context, data string) (string, error) {
	s.calls++
	if _, err := Decode(data, 0); err != nil {
		return "", err
	}
	if s.err != nil {
		return "", s.err
	}
	return "https://cdn.example/img.png", nil
}

func TestBreakerOpensOnUpstreamFailures(t *testing.T) {
	stub := &stubUploader{err: errors.New("boom")}
	b := NewBreaker(stub, BreakerConfig{Name: "test-open", ConsecutiveFailures: 2, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := b.Upload(context.Background(), pngDataURI())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Upload(context.Background(), pngDataURI())
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, 2, stub.calls, "open breaker does not call upstream")
}

func TestBreakerIgnoresInvalidInput(t *testing.T) {
	stub := &stubUploader{}
	b := NewBreaker(stub, BreakerConfig{Name: "test-input", ConsecutiveFailures: 1})

	for i := 0; i < 3; i++ {
		_, err := b.Upload(context.Background(), "not-an-image!")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())

	uri, err := b.Upload(context.Background(), pngDataURI())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/img.png", uri)
}

func TestNewCloudinaryFromParams(t *testing.T) {
	c, err := NewCloudinary(CloudinaryConfig{CloudName: "demo", APIKey: "k", APISecret: "s", Folder: "quickchat"})
	require.NoError(t, err)
	assert.Equal(t, "quickchat", c.folder)

	_, err = c.Upload(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
