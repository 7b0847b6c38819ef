package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the middleware stack and every route onto h
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	r.Get("/health", h.Health)

	r.Route("/api/try-on", func(r chi.Router) {
		r.Post("/generate", h.Generate)
		r.Post("/upload-and-generate", h.UploadAndGenerate)
		r.Get("/status/{taskId}", h.Status)
	})

	if h.wardrobe != nil {
		r.Route("/api/wardrobe", func(r chi.Router) {
			r.Get("/item/{itemId}", h.GetWardrobeItem)
			r.Get("/{userId}", h.ListWardrobe)
			r.Post("/{itemId}/try-on", h.WardrobeTryOn)
			r.Post("/{itemId}/try-on-upload", h.WardrobeTryOnUpload)
		})
	}

	uploads := http.StripPrefix("/uploads/", http.FileServer(newUploadFS(h.storage.UploadDir, h.storage.TempDir)))
	r.Get("/uploads/*", uploads.ServeHTTP)

	return r
}
