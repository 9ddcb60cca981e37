// Package cleanhttp builds the HTTP clients used for registry fetches and
// artifact downloads. Both use a fresh transport rather than
// http.DefaultTransport.
package cleanhttp

import (
	"net"
	"net/http"
	"time"
)

// Connection-level limits shared by every transport.
const (
	DialTimeout         = 30 * time.Second
	TLSHandshakeTimeout = 10 * time.Second
)

// NewTransport returns a transport that bounds connecting, the TLS handshake
// and the wait for response headers. Reading the body is not bounded.
func NewTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewClient returns a client whose timeout covers the whole request,
// including the body. Use it for small documents such as registry JSON.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: NewTransport(timeout),
		Timeout:   timeout,
	}
}

// NewStreamingClient returns a client for large downloads: the server must
// answer within headerTimeout, after which the body may take as long as it
// needs. Cancel the request context to abort a transfer.
func NewStreamingClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: NewTransport(headerTimeout),
	}
}
