// Package transport builds the fasthttp clients used to reach the chat
// service. ChatClient and HealthMonitor each get their own pool so that
// long chat requests cannot starve the liveness probe.
package transport

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const userAgent = "ragchat"

const (
	// MaxConnsPerHost bounds the pool of a client built by New.
	MaxConnsPerHost = 16

	// MaxConnWaitTimeout is how long a request waits for a free connection
	// once the pool is full. DoTimeout still caps the whole request.
	MaxConnWaitTimeout = 30 * time.Second
)

// New returns a fasthttp client tuned for a single backend. Per-request
// deadlines are set by the callers through DoTimeout. Requests beyond
// MaxConnsPerHost queue for a connection instead of failing at once.
func New() *fasthttp.Client {
	return &fasthttp.Client{
		Name:                userAgent,
		MaxConnsPerHost:     MaxConnsPerHost,
		MaxConnWaitTimeout:  MaxConnWaitTimeout,
		MaxIdleConnDuration: 30 * time.Second,
		MaxResponseBodySize: 8 << 20,
	}
}

// NewProbe returns a small client reserved for liveness probes.
func NewProbe() *fasthttp.Client {
	return &fasthttp.Client{
		Name:                userAgent,
		MaxConnsPerHost:     2,
		MaxConnWaitTimeout:  5 * time.Second,
		MaxIdleConnDuration: time.Minute,
		MaxResponseBodySize: 64 << 10,
	}
}

// Endpoint joins the service root and a path without doubling slashes.
func Endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
