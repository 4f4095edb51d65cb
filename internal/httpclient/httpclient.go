package httpclient

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type Options struct {
	PreferIPv4 bool
	Timeout    time.Duration
	UserAgent  string
	// Logger, when set, receives one debug line per outbound request.
	Logger *slog.Logger
}

// New returns the client shared by the Gemini SDK and the Telegram API.
// Image round-trips are slow, so the overall timeout is generous.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if opts.PreferIPv4 {
				return dialer.DialContext(ctx, "tcp4", addr)
			}
			return dialer.DialContext(ctx, network, addr)
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &roundTripper{
			next:      transport,
			userAgent: opts.UserAgent,
			logger:    opts.Logger,
		},
	}
}

type roundTripper struct {
	next      http.RoundTripper
	userAgent string
	logger    *slog.Logger
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", rt.userAgent)
	}

	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	if rt.logger != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		rt.logger.Debug("outbound http",
			"method", req.Method,
			"host", req.URL.Host,
			"status", status,
			"dur_ms", time.Since(start).Milliseconds(),
		)
	}
	return resp, err
}
