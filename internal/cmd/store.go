package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lowc1012/window-log-limiter/internal/config"
	"github.com/lowc1012/window-log-limiter/internal/log"
	"github.com/lowc1012/window-log-limiter/internal/store"
	"github.com/lowc1012/window-log-limiter/internal/store/libsql"
	"github.com/lowc1012/window-log-limiter/internal/store/memory"
	redisstore "github.com/lowc1012/window-log-limiter/internal/store/redis"
)

// openStore connects the configured store and returns it with its close func.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "redis":
		s, err := redisstore.New(ctx, redisstore.Config{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, closer("redis", s.Close), nil
	case "libsql":
		s, err := libsql.Open(ctx, libsql.Config{
			Path:      cfg.Libsql.Path,
			URL:       cfg.Libsql.URL,
			AuthToken: cfg.Libsql.AuthToken,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, closer("libsql", s.Close), nil
	case "memory":
		return memory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

func closer(name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			log.Logger().Warn("Failed to close store", zap.String("store", name), zap.Error(err))
		}
	}
}
