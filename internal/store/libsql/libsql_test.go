package libsql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	var tests = []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "memory", cfg: Config{Path: ":memory:"}, want: ":memory:"},
		{name: "relative path", cfg: Config{Path: "limiter.db"}, want: "file:limiter.db"},
		{name: "file uri kept", cfg: Config{Path: "file:/var/lib/limiter.db"}, want: "file:/var/lib/limiter.db"},
		{name: "url wins over path", cfg: Config{Path: "limiter.db", URL: "libsql://limiter.turso.io"}, want: "libsql://limiter.turso.io"},
		{name: "url with token", cfg: Config{URL: "libsql://limiter.turso.io", AuthToken: "token123"}, want: "libsql://limiter.turso.io?authToken=token123"},
		{name: "url with token and query", cfg: Config{URL: "libsql://limiter.turso.io?tls=1", AuthToken: "token123"}, want: "libsql://limiter.turso.io?authToken=token123&tls=1"},
		{name: "nothing configured", cfg: Config{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := buildDSN(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, dsn)
		})
	}
}
