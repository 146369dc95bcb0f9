package observability

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestInit_Validation(t *testing.T) {
	var tests = []struct {
		name string
		opts Options
	}{
		{name: "missing writer", opts: Options{ExportInterval: time.Second, SampleRatio: 1}},
		{name: "zero interval", opts: Options{Writer: &syncBuffer{}, SampleRatio: 1}},
		{name: "ratio above one", opts: Options{Writer: &syncBuffer{}, ExportInterval: time.Second, SampleRatio: 1.5}},
		{name: "negative ratio", opts: Options{Writer: &syncBuffer{}, ExportInterval: time.Second, SampleRatio: -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Init(context.Background(), tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestInit_ExportsOnShutdown(t *testing.T) {
	out := &syncBuffer{}
	providers, err := Init(context.Background(), Options{
		Writer:         out,
		ExportInterval: time.Hour,
		SampleRatio:    1,
		StoreType:      "memory",
		Serialization:  "keylock",
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, span := otel.Tracer("observability-test").Start(ctx, "evaluate-window")
	span.End()
	counter, err := otel.Meter("observability-test").Int64Counter("ratelimiter.decisions")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	require.NoError(t, providers.Shutdown(ctx))

	exported := out.String()
	assert.Contains(t, exported, "evaluate-window")
	assert.Contains(t, exported, "ratelimiter.decisions")
	assert.Contains(t, exported, serviceName)
	assert.Contains(t, exported, "keylock")
}
