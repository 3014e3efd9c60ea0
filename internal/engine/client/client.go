// Package client builds the single pooled HTTP client the engine shares
// across the manifest resolver, HEAD-probes, and chunk workers. Grounded on
// internal/engine/concurrent.newConcurrentClient, generalized from a
// per-download client into one client shared by a whole run.
package client

import (
	"net"
	"net/http"

	"github.com/hfdownloader/hfd/internal/engine/types"
)

// New builds the single pooled http.Client the engine shares across the
// manifest resolver, HEAD-probes, and every chunk/file worker for one run:
// keepalive, TCP nodelay via the dialer, HTTP/2 left on (net/http
// negotiates it through ALPN on TLS connections — nothing here disables
// it; there is no prior-knowledge HTTP/2, so plain-http endpoints use
// HTTP/1.1), generous idle-connection headroom, and the
// documented timeout bounds including a hard per-request ceiling.
func New(maxConnsPerHost int) *http.Client {
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = types.PerHostMax
	}

	transport := &http.Transport{
		MaxIdleConns:        types.DefaultMaxIdleConns,
		MaxIdleConnsPerHost: 2 * maxConnsPerHost,
		MaxConnsPerHost:     maxConnsPerHost,

		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: types.DefaultExpectContinueTimeout,

		DisableCompression: true,
		ForceAttemptHTTP2:  true,

		DialContext: (&net.Dialer{
			Timeout:   types.DialTimeout,
			KeepAlive: types.KeepAliveDuration,
		}).DialContext,
	}

	return &http.Client{Transport: transport, Timeout: types.RequestTimeout}
}

// SetCommonHeaders applies the headers every outbound request needs:
// bearer auth when a token is configured, identity
// encoding (so Content-Length/Range arithmetic isn't disturbed by
// transparent decompression), keep-alive, and no-cache.
func SetCommonHeaders(req *http.Request, userAgent, token string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "no-cache")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
