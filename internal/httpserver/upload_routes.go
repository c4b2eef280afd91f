package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aaronBIOO/QuickChat/internal/media"
)

// UploadRoutes serves files stored by the local media backend. It is mounted
// at media.PathPrefix. Uploads themselves arrive inline in profile and
// message requests.
func UploadRoutes(files *media.Local) chi.Router {
	r := chi.NewRouter()
	r.Get("/{filename}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.FileHandler(chi.URLParam(r, "filename"))(w, r)
	})
	return r
}
