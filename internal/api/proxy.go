package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/gate"
)

// SubjectHeader carries the resolved subject id to the upstream site. It is
// stripped from every inbound request so callers cannot forge it.
const SubjectHeader = "X-Subject-Id"

// NewUpstreamProxy forwards requests that passed the gate to the site at target.
func NewUpstreamProxy(target string, timeout time.Duration) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid upstream url %q: scheme must be http or https", target)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q: missing host", target)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		transport.ResponseHeaderTimeout = timeout
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host

			pr.Out.Header.Del(SubjectHeader)
			if s, ok := gate.SubjectFromContext(pr.In.Context()); ok && s.IsAuthenticated() {
				pr.Out.Header.Set(SubjectHeader, s.ID())
			}
		},
		Transport:    transport,
		ErrorHandler: proxyErrorHandler,
	}, nil
}

func proxyErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	slog.Warn("Upstream request failed",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path)
	gate.WriteJSONError(w, http.StatusBadGateway, "upstream unavailable")
}
