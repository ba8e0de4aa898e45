package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	// Upload (входная стадия pipeline)
	mux.Handle("POST /api/v1/upload", chain(http.HandlerFunc(h.Upload)))

	// Analyses
	mux.Handle("GET /api/v1/analyses", chain(http.HandlerFunc(h.ListAnalyses)))
	mux.Handle("GET /api/v1/analyses/{id}", chain(http.HandlerFunc(h.GetAnalysis)))
	mux.Handle("GET /api/v1/owners/{owner}/analyses", chain(http.HandlerFunc(h.ListOwnerAnalyses)))

	// Super Advisor
	mux.Handle("POST /api/v1/advisor", chain(http.HandlerFunc(h.Advise)))
}
