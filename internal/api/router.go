package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pders01/foro/internal/remote"
)

// Backend is what the server exposes: rows and blobs that can be read back.
type Backend interface {
	remote.Store
	remote.BlobReader
}

type Options struct {
	// APIKey, when set, is required on every REST and upload request.
	APIKey string
	// MaxUploadBytes caps upload bodies; zero uses DefaultMaxUploadBytes.
	MaxUploadBytes int64
}

// NewRouter serves backend over the same REST and storage endpoints the
// hosted service offers, so remote.Client can run against a local process.
//
//	GET   /health
//	GET   /rest/v1/{table}?select=*&order={col}.{asc|desc}
//	POST  /rest/v1/{table}
//	PATCH /rest/v1/{table}?id=eq.{id}
//	POST  /storage/v1/object/{bucket}/{path...}
//	GET   /storage/v1/object/public/{bucket}/{path...}
func NewRouter(backend Backend, opts Options) http.Handler {
	h := NewHandler(backend, opts.MaxUploadBytes)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/rest/v1", func(r chi.Router) {
		r.Use(requireAPIKey(opts.APIKey))
		r.Get("/{table}", h.HandleSelect)
		r.Post("/{table}", h.HandleInsert)
		r.Patch("/{table}", h.HandleUpdate)
	})

	r.Route("/storage/v1/object", func(r chi.Router) {
		r.Get("/public/{bucket}/*", h.HandleReadObject)
		r.With(requireAPIKey(opts.APIKey)).Post("/{bucket}/*", h.HandleUploadObject)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NotFound", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})
	return r
}
