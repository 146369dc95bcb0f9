package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPHeadersExtractor(t *testing.T) {
	extractor := NewHTTPHeadersExtractor("X-Forwarded-For", "X-Api-Key")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.10 ")
	req.Header.Set("X-Api-Key", "abc123")

	key, err := extractor.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.10-abc123", key)

	req.Header.Del("X-Api-Key")
	_, err = extractor.Extract(req)
	assert.Error(t, err)
}

func TestRemoteAddrExtractor(t *testing.T) {
	var tests = []struct {
		remoteAddr string
		want       string
		wantErr    bool
	}{
		{remoteAddr: "10.0.0.1:52311", want: "10.0.0.1"},
		{remoteAddr: "[::ffff:10.0.0.1]:52311", want: "::ffff:10.0.0.1"},
		{remoteAddr: "10.0.0.1", want: "10.0.0.1"},
		{remoteAddr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.remoteAddr, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr

			key, err := NewRemoteAddrExtractor().Extract(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}
