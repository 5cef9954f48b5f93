package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/xMathyu/hvac-scanner/internal/resilience"
	"github.com/xMathyu/hvac-scanner/internal/scanner"
	"github.com/xMathyu/hvac-scanner/internal/store"
	"github.com/xMathyu/hvac-scanner/pkg/anthropic"
)

// scanEnv holds the dependencies shared by the commands.
type scanEnv struct {
	Store   store.Store
	Scanner *scanner.Service
}

// Close releases the store.
func (e *scanEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "hvac-scanner.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates the store config, opens the store and migrates it.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newBreaker() *resilience.Breaker {
	return resilience.NewBreaker(
		cfg.Scanner.BreakerThreshold,
		time.Duration(cfg.Scanner.BreakerCooldownSecs)*time.Second,
		nil,
	)
}

func newScanner(st store.Store) *scanner.Service {
	client := anthropic.NewClient(anthropic.Options{
		APIKey:  cfg.Anthropic.Key,
		BaseURL: cfg.Anthropic.BaseURL,
	})
	return scanner.New(client, st, scanner.ConfigFrom(cfg), newBreaker())
}

// initEnv validates config for mode and builds the scanner, backed by a
// store when withStore is set.
func initEnv(ctx context.Context, mode string, withStore bool) (*scanEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	env := &scanEnv{}
	if withStore {
		st, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}
	env.Scanner = newScanner(env.Store)
	return env, nil
}
