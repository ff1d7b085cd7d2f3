// Package router wires the image API routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	ingesthandler "github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion/handler"
	searchhandler "github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/middleware"
)

// Deps collects the handlers and optional middleware collaborators.
// Metrics and Limiter may be nil; a zero Timeout disables the deadline.
type Deps struct {
	Search  *searchhandler.Handler
	Ingest  *ingesthandler.Handler
	Health  *health.Checker
	Metrics *metrics.Metrics
	Limiter *middleware.ClientLimiter
	Timeout time.Duration
}

// New builds the full HTTP handler.
//
// Route table:
//
//	GET    /api/v1/images                → export every image with its histogram
//	POST   /api/v1/images                → add by histogram (?async=true queues on Kafka)
//	PUT    /api/v1/images/{id}/content   → add by raw image bytes
//	GET    /api/v1/images/{id}           → stored histogram
//	DELETE /api/v1/images/{id}           → remove (?async=true queues on Kafka)
//	POST   /api/v1/search                → search by histogram
//	POST   /api/v1/search/image          → search by raw image bytes
//	GET    /api/v1/stats                 → index and cache statistics
//	GET    /health/live, /health/ready   → probes
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → RateLimit → Timeout → mux
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/images", d.Search.ListImages)
	mux.HandleFunc("POST /api/v1/images", d.Ingest.Add)
	mux.HandleFunc("PUT /api/v1/images/{id}/content", d.Ingest.PutContent)
	mux.HandleFunc("GET /api/v1/images/{id}", d.Search.GetImage)
	mux.HandleFunc("DELETE /api/v1/images/{id}", d.Ingest.Remove)

	mux.HandleFunc("POST /api/v1/search", d.Search.Search)
	mux.HandleFunc("POST /api/v1/search/image", d.Search.SearchImage)
	mux.HandleFunc("GET /api/v1/stats", d.Search.Stats)

	if d.Health != nil {
		mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	if d.Timeout > 0 {
		chain = middleware.Timeout(d.Timeout)(chain)
	}
	if d.Limiter != nil {
		chain = middleware.RateLimit(d.Limiter)(chain)
	}
	if d.Metrics != nil {
		chain = middleware.Metrics(d.Metrics)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)
	return chain
}
