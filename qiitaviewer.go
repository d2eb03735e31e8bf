// Copyright 2025 bookii
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package qiitaviewer assembles the browsing client from configuration:
// the remote data source, the search-history store on the configured
// backend, and the Application tying them together. It is a library; the
// embedding program owns the process lifecycle and calls Close on the way
// out.
package qiitaviewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/rueidislock"

	"github.com/bookii/qiitaviewer/core/qiita/adapters/persistence/pg"
	"github.com/bookii/qiitaviewer/core/qiita/adapters/qiitaapi"
	"github.com/bookii/qiitaviewer/core/qiita/domain"
	"github.com/bookii/qiitaviewer/modules/appconfig"
	"github.com/bookii/qiitaviewer/modules/clock"
	"github.com/bookii/qiitaviewer/modules/db"
	"github.com/bookii/qiitaviewer/modules/db/file"
	"github.com/bookii/qiitaviewer/modules/db/postgres"
	"github.com/bookii/qiitaviewer/modules/db/redis"
	"github.com/bookii/qiitaviewer/modules/db/redis/counter"
	"github.com/bookii/qiitaviewer/modules/db/redis/locking"
	"github.com/bookii/qiitaviewer/modules/ratelimit"
	"github.com/bookii/qiitaviewer/modules/telemetry"
)

// Qiita allows 1000 authenticated requests per hour per token; the shared
// budget mirrors that so several processes on one token stay inside it.
const (
	sharedBudgetLimit  = 1000
	sharedBudgetWindow = time.Hour
)

// App is the assembled client plus the resources it owns.
type App struct {
	*domain.Application

	closers []func(context.Context) error
}

// InitTelemetry installs the OTel providers from cfg. Optional; without it
// the client runs on the no-op globals.
func InitTelemetry(ctx context.Context, cfg *appconfig.Config) (telemetry.ShutdownFunc, error) {
	return telemetry.Init(ctx, cfg.Otel)
}

// New builds an App from cfg. The history backend is selected by
// cfg.History.Backend. The redis and postgres backends both guard history
// mutations with a cross-process lock (rueidislock and an advisory lock
// respectively), since a shared store implies concurrent writers. The
// shared request budget is redis-only: its counter store lives in Redis,
// and the other backends have no equivalent shared counter.
func New(ctx context.Context, cfg *appconfig.Config) (*App, error) {
	app := &App{}

	var (
		kv          db.KV
		historyOpts []domain.HistoryOption
		clientOpts  []qiitaapi.ClientOption
	)

	switch cfg.History.Backend {
	case appconfig.HistoryBackendRedis:
		client, err := redis.NewRueidisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("qiitaviewer: redis: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error {
			client.Close()
			return nil
		})

		kv = redis.NewRedisKV(client, redis.WithKeyPrefix("qiitaviewer"))

		lock, err := redisMutationLock(cfg.Redis.URL)
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		historyOpts = append(historyOpts, domain.WithMutationLock(lock))

		store := counter.NewInstrumentedRedisCounterStore(client, "qiitaviewer:", slog.Default())
		limiter := ratelimit.SlidingWindowFactory(
			clock.RealClockProvider(), store, "budget:",
		)(sharedBudgetLimit, sharedBudgetWindow)
		clientOpts = append(clientOpts,
			qiitaapi.WithRequestBudget(limiter, ratelimit.Key(cfg.Qiita.AccessToken)))

	case appconfig.HistoryBackendPostgres:
		pool, err := postgres.New(ctx, &cfg.Postgres, postgres.PostgresOptions{
			Migrations:    pg.Migrations,
			MigrationsDir: pg.MigrationsDir,
		})
		if err != nil {
			return nil, fmt.Errorf("qiitaviewer: postgres: %w", err)
		}
		app.closers = append(app.closers, pool.Shutdown)

		if err := pool.MigrateUp(ctx); err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("qiitaviewer: %w", err)
		}
		kv = pg.NewPostgresKV(pool, pg.DefaultTable)
		historyOpts = append(historyOpts,
			domain.WithMutationLock(pg.NewAdvisoryMutationLock(pool, domain.HistoryKey)))

	default:
		dir := cfg.History.Dir
		if dir == "" {
			base, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("qiitaviewer: resolve config dir: %w", err)
			}
			dir = filepath.Join(base, "qiitaviewer")
		}
		fkv, err := file.NewFileKV(dir)
		if err != nil {
			return nil, fmt.Errorf("qiitaviewer: %w", err)
		}
		kv = fkv
	}

	source, err := qiitaapi.NewClient(cfg.Qiita, clientOpts...)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("qiitaviewer: %w", err)
	}

	history := domain.NewSearchHistoryStore(kv, historyOpts...)
	app.Application = domain.NewApplication(source, history)
	return app, nil
}

// redisMutationLock builds a cross-process lock around history mutations
// on its own connection, as rueidislock owns its client.
func redisMutationLock(redisURL string) (domain.MutationLock, error) {
	opt, err := rueidis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("qiitaviewer: lock client: %w", err)
	}
	locker, err := rueidislock.NewLocker(rueidislock.LockerOption{
		ClientOption: opt,
		KeyMajority:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("qiitaviewer: locker: %w", err)
	}

	executor := locking.NewLockingTaskExecutor(locker,
		locking.WithWaitForLock(true),
		locking.WithNamePrefix("qiitaviewer:"),
	)
	cfg := locking.LockConfiguration{
		Name:          "searchHistories",
		LockAtMostFor: 10 * time.Second,
	}
	return func(ctx context.Context, task func(context.Context) error) error {
		return executor.Execute(ctx, cfg, locking.TaskFunc(task))
	}, nil
}

// Close releases everything New acquired, last-in first-out.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
