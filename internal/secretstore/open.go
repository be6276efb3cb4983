package secretstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erauner12/urshop-admin/internal/config"
	"github.com/rs/zerolog/log"
)

// connectAttempts bounds retries of the initial connection to network backends.
const connectAttempts = 3

// Open creates the store selected by cfg.
func Open(ctx context.Context, cfg config.SecretsConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemory(), nil

	case config.BackendFile:
		return NewFile(cfg.Path, cfg.Passphrase)

	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: failed to create directory: %w", err)
		}
		return NewSQLite(cfg.Path)

	case config.BackendMySQL:
		return connect(ctx, cfg.Backend, func() (Store, error) {
			return NewMySQL(ctx, cfg.DSN)
		})

	case config.BackendPostgres:
		return connect(ctx, cfg.Backend, func() (Store, error) {
			return NewPostgres(ctx, cfg.DSN)
		})

	case config.BackendRedis:
		return connect(ctx, cfg.Backend, func() (Store, error) {
			return NewRedis(ctx, RedisConfig{
				Addr:      cfg.RedisAddr,
				Password:  cfg.RedisPassword,
				DB:        cfg.RedisDB,
				KeyPrefix: cfg.KeyPrefix,
			})
		})

	default:
		return nil, fmt.Errorf("secretstore: unknown backend %q", cfg.Backend)
	}
}

// connect retries dial with exponential backoff until it succeeds,
// connectAttempts is exhausted, or ctx is done.
func connect(ctx context.Context, backend config.SecretBackend, dial func() (Store, error)) (Store, error) {
	var store Store

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond

	err := backoff.RetryNotify(func() error {
		s, err := dial()
		if err != nil {
			return err
		}
		store = s
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, connectAttempts), ctx),
		func(err error, next time.Duration) {
			log.Warn().
				Err(err).
				Str("backend", string(backend)).
				Dur("retryIn", next).
				Msg("secret store connection failed, retrying")
		})
	if err != nil {
		return nil, err
	}
	return store, nil
}
