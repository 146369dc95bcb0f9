package utils

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Extractor represents the way we will extract a client key from an HTTP request. It must not
// read the body of the request.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

type httpHeaderExtractor struct {
	headers []string
}

// NewHTTPHeadersExtractor creates a new HTTP header extractor
func NewHTTPHeadersExtractor(headers ...string) Extractor {
	return &httpHeaderExtractor{headers: headers}
}

// Extract extracts a collection of http headers and joins them to build the key that will be used for
// rate limiting. You should use headers that are guaranteed to be unique for a client.
func (h *httpHeaderExtractor) Extract(r *http.Request) (string, error) {
	values := make([]string, 0, len(h.headers))

	for _, key := range h.headers {
		// if we can't find a value for the headers, give up and return an error.
		value := strings.TrimSpace(r.Header.Get(key))
		if value == "" {
			return "", fmt.Errorf("the header %v must have a value set", key)
		}
		values = append(values, value)
	}

	return strings.Join(values, "-"), nil
}

type remoteAddrExtractor struct{}

// NewRemoteAddrExtractor keys requests by the host part of the peer address, as-is.
// IPv4 and IPv4-mapped IPv6 forms of one client are different keys.
func NewRemoteAddrExtractor() Extractor {
	return remoteAddrExtractor{}
}

func (remoteAddrExtractor) Extract(r *http.Request) (string, error) {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return "", fmt.Errorf("request has no remote address")
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, nil
	}
	return host, nil
}
