package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter は API のルーティングを組み立てます。
// ヘルスチェックとルート以外はすべて認証ミドルウェアの背後に置きます。
func NewRouter(h *Handler, auth *Authenticator, apiPrefix string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/", h.Root)
	r.Get("/healthz", h.Healthz)

	r.Route(apiPrefix, func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Post("/transcriptions", h.CreateTranscription)
		r.Get("/transcriptions", h.ListTranscriptions)
		r.Get("/transcriptions/{jobID}", h.GetTranscription)
		r.Post("/transcriptions/{jobID}/cancel", h.CancelTranscription)
		r.Post("/uploadfile/", h.UploadFile)
	})

	return r
}
