// Package proxy forwards authorized requests to the configured upstreams.
package proxy

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/mkorchagin/authgate/internal/config"
	"github.com/mkorchagin/authgate/internal/observability"
)

// ErrNoUpstreamAvailable indicates that no upstream is configured.
var ErrNoUpstreamAvailable = errors.New("no upstream available")

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ReverseProxy forwards requests to an upstream chosen by the balancer.
// The upstream list can be swapped at runtime through UpdateUpstreams.
type ReverseProxy struct {
	balancer      Balancer
	logger        observability.Logger
	transport     http.RoundTripper
	flushInterval time.Duration
}

// ProxyOption is a functional option for configuring the proxy.
type ProxyOption func(*ReverseProxy)

// WithProxyLogger sets the logger for the proxy.
func WithProxyLogger(logger observability.Logger) ProxyOption {
	return func(p *ReverseProxy) {
		p.logger = logger
	}
}

// WithTransport sets the transport for the proxy.
func WithTransport(transport http.RoundTripper) ProxyOption {
	return func(p *ReverseProxy) {
		p.transport = transport
	}
}

// WithFlushInterval sets the flush interval for streaming responses.
func WithFlushInterval(interval time.Duration) ProxyOption {
	return func(p *ReverseProxy) {
		p.flushInterval = interval
	}
}

// NewReverseProxy creates a reverse proxy over the given balancer.
func NewReverseProxy(balancer Balancer, opts ...ProxyOption) *ReverseProxy {
	p := &ReverseProxy{
		balancer:      balancer,
		logger:        observability.NopLogger(),
		flushInterval: -1, // Immediate flush
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// UpdateUpstreams replaces the upstream list. In-flight requests keep the
// upstream they already picked.
func (p *ReverseProxy) UpdateUpstreams(cfg config.UpstreamsConfig) error {
	upstreams, err := UpstreamsFromConfig(cfg)
	if err != nil {
		return err
	}

	p.balancer.SetUpstreams(upstreams)
	p.logger.Info("upstreams updated",
		observability.Int("count", len(upstreams)),
	)
	return nil
}

// ServeHTTP implements http.Handler.
func (p *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upstream := p.balancer.Pick()
	if upstream == nil {
		p.handleNoUpstream(w, r)
		return
	}

	metrics().requestsTotal.WithLabelValues(upstream.Name).Inc()

	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			p.director(req, upstream.URL, r)
		},
		Transport:     p.transport,
		FlushInterval: p.flushInterval,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.handleUpstreamError(w, r, upstream, err)
		},
	}

	proxy.ServeHTTP(w, r)
}

// director modifies the request before forwarding.
func (p *ReverseProxy) director(req *http.Request, target *url.URL, originalReq *http.Request) {
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host

	if originalReq.URL.RawQuery != "" {
		req.URL.RawQuery = originalReq.URL.RawQuery
	}

	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	if clientIP, _, err := net.SplitHostPort(originalReq.RemoteAddr); err == nil {
		if prior := originalReq.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	if originalReq.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}

	req.Header.Set("X-Forwarded-Host", originalReq.Host)
	req.Host = target.Host
}

func (p *ReverseProxy) handleNoUpstream(w http.ResponseWriter, r *http.Request) {
	p.logger.Error("no upstream available",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
	)
	metrics().errorsTotal.WithLabelValues("none").Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, `{"error":"no upstream available"}`)
}

func (p *ReverseProxy) handleUpstreamError(w http.ResponseWriter, r *http.Request, upstream *Upstream, err error) {
	p.logger.Error("proxy error",
		observability.String("upstream", upstream.Name),
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.Error(err),
	)
	metrics().errorsTotal.WithLabelValues(upstream.Name).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = io.WriteString(w, `{"error":"bad gateway"}`)
}
