// Package handler forwards the analytics API from the search service to the
// analytics service so clients talk to a single origin.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gesetzesinfo/lawsearch/pkg/logger"
)

type AnalyticsProxy struct {
	proxy  *httputil.ReverseProxy
	logger *slog.Logger
}

// NewAnalyticsProxy forwards to the analytics service at target.
func NewAnalyticsProxy(target string) (*AnalyticsProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing analytics url %q: %w", target, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("analytics url %q must be absolute", target)
	}
	p := &AnalyticsProxy{
		proxy:  httputil.NewSingleHostReverseProxy(u),
		logger: slog.Default().With("component", "analytics-proxy"),
	}
	p.proxy.ErrorHandler = p.handleError
	return p, nil
}

func (p *AnalyticsProxy) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/analytics", p)
	mux.Handle("GET /api/analytics/snapshots", p)
}

func (p *AnalyticsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}

func (p *AnalyticsProxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Error("analytics service unreachable", "path", r.URL.Path, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	json.NewEncoder(w).Encode(map[string]string{"error": "analytics service unavailable"})
}
