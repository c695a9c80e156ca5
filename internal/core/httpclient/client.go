// Package httpclient configures the HTTP client used to fetch sources and call
// the metric service.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

type Options struct {
	// Timeout bounds a whole request; per-load deadlines come from the caller's context.
	Timeout   time.Duration
	UserAgent string
}

// NewOutbound creates a pooled outbound client that stamps every request with
// the configured User-Agent.
func NewOutbound(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "civic-choropleth"
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: &userAgent{base: transport, ua: opts.UserAgent},
		Timeout:   opts.Timeout,
	}
}

type userAgent struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(r)
}
