// Package router mounts the search API, health probes and metrics on one
// mux and applies the middleware chain.
package router

import (
	"net/http"
	"time"

	gwmw "github.com/gesetzesinfo/lawsearch/internal/gateway/middleware"
	"github.com/gesetzesinfo/lawsearch/internal/gateway/ratelimit"
	"github.com/gesetzesinfo/lawsearch/pkg/health"
	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
	pkgmw "github.com/gesetzesinfo/lawsearch/pkg/middleware"
)

// API registers its routes on a mux.
type API interface {
	Register(mux *http.ServeMux)
}

type Options struct {
	AllowOrigins   []string
	Limiter        *ratelimit.Limiter
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
	Health         *health.Checker
}

// New builds the HTTP handler serving every api.
//
// Route table (beyond what the apis register):
//
//	GET /health/live
//	GET /health/ready
//	GET /metrics
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → RateLimit → Metrics → Timeout → mux
func New(opts Options, apis ...API) http.Handler {
	mux := http.NewServeMux()
	for _, api := range apis {
		api.Register(mux)
	}

	if opts.Health != nil {
		mux.HandleFunc("GET /health/live", opts.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Health.ReadyHandler())
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	var chain http.Handler = mux
	if opts.RequestTimeout > 0 {
		chain = pkgmw.Timeout(opts.RequestTimeout)(chain)
	}
	if opts.Metrics != nil {
		chain = pkgmw.Metrics(opts.Metrics)(chain)
	}
	if opts.Limiter != nil {
		chain = gwmw.RateLimit(opts.Limiter, opts.Metrics)(chain)
	}
	chain = gwmw.CORS(gwmw.NewCORSConfig(opts.AllowOrigins))(chain)
	chain = pkgmw.RequestID(chain)
	return chain
}
