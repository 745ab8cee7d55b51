package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes registers all admin API routes using chi router
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", NewRouter(handlers)))

	log.Info().Msg("Admin endpoints enabled at /admin/config and /admin/excluded")
}

// NewRouter builds the chi router served under /admin
func NewRouter(handlers *AdminHandlers) chi.Router {
	r := chi.NewRouter()
	r.Use(handlers.AuthMiddleware)

	r.Route("/config", func(r chi.Router) {
		r.Get("/", handlers.handleConfig)
		r.Get("/string", handlers.handleConfigString)
		r.Get("/valid", handlers.handleConfigValid)

		// Suffixes may contain '/', so they are matched with a wildcard
		r.Get("/keys/*", handlers.wrapWithSuffix(handlers.handleGetKey))
		r.Put("/keys/*", handlers.wrapWithSuffix(handlers.handleSetKey))
		r.Delete("/keys", handlers.handleClearKeys)
	})

	r.Route("/excluded", func(r chi.Router) {
		r.Get("/", handlers.handleListExcluded)
		r.Get("/{addr}", handlers.wrapWithAddr(handlers.handleCheckExcluded))
		r.Put("/{addr}", handlers.wrapWithAddr(handlers.handleExclude))
		r.Delete("/{addr}", handlers.wrapWithAddr(handlers.handleInclude))
	})

	return r
}

// Wrapper helpers that extract URL params and call handlers

func (h *AdminHandlers) wrapWithSuffix(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suffix := chi.URLParam(r, "*")
		if suffix == "" {
			writeErrorResponse(w, http.StatusBadRequest, "key suffix is required")
			return
		}
		fn(w, r, suffix)
	}
}

func (h *AdminHandlers) wrapWithAddr(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr := chi.URLParam(r, "addr")
		if addr == "" {
			writeErrorResponse(w, http.StatusBadRequest, "address is required")
			return
		}
		fn(w, r, addr)
	}
}
