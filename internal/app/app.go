// Package app wires the process: configuration, connections, adapters,
// use cases and the scheduler, built once at start and passed explicitly.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/storewatch/internal/adapter/httpprobe"
	"github.com/user/storewatch/internal/adapter/postgres"
	redis_adapter "github.com/user/storewatch/internal/adapter/redis"
	"github.com/user/storewatch/internal/adapter/telegram"
	"github.com/user/storewatch/internal/classifier"
	"github.com/user/storewatch/internal/delay"
	"github.com/user/storewatch/internal/delivery/http/handler"
	"github.com/user/storewatch/internal/delivery/http/router"
	"github.com/user/storewatch/internal/proxy"
	"github.com/user/storewatch/internal/repository"
	"github.com/user/storewatch/internal/scheduler"
	"github.com/user/storewatch/internal/usecase"
	"github.com/user/storewatch/pkg/config"
	"github.com/user/storewatch/pkg/metrics"
)

// App owns every long-lived component. The manual and the scheduled
// pipelines each get their own rotator and probe.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Pool  *pgxpool.Pool
	Redis *redis.Client

	Repo     *postgres.StoreRepoImpl
	Cache    repository.CountCache
	Notifier *telegram.Notifier
	Delay    *delay.Policy

	ManualRotator    *proxy.Rotator
	ScheduledRotator *proxy.Rotator
	ManualProbe      *httpprobe.Probe
	ScheduledProbe   *httpprobe.Probe

	Checks    *usecase.Monitor
	Scheduled *usecase.Monitor
	Stores    *usecase.StoreManager
	Scheduler *scheduler.Scheduler
}

// New connects to PostgreSQL (and Redis when configured) and builds the App.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	a.Pool = pool
	logger.Info("PostgreSQL connection pool established")

	a.Cache = redis_adapter.NoopCountCache{}
	if cfg.CacheEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			pool.Close()
			return nil, fmt.Errorf("unable to connect to Redis: %w", err)
		}
		a.Redis = rdb
		a.Cache = redis_adapter.NewCountCache(rdb, cfg.CountsCacheTTL())
		logger.Info("Redis connection established", zap.String("addr", cfg.RedisAddr))
	}

	a.Repo = postgres.NewStoreRepo(pool, cfg.DisplayTimezone)
	a.Notifier = telegram.New(telegram.Config{
		BotToken: cfg.TelegramBotToken,
		ChatID:   cfg.TelegramChatID,
		APIURL:   cfg.TelegramAPIURL,
		Location: cfg.Location(),
	}, nil, logger)

	if err := a.buildPipelines(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildPipelines() error {
	cfg := a.Config

	policy, err := delay.New(delay.Config{
		MinDelay: cfg.CheckMinDelay,
		MaxDelay: cfg.CheckMaxDelay,
		Smart:    cfg.UseSmartDelay,
	})
	if err != nil {
		return fmt.Errorf("invalid delay settings: %w", err)
	}
	a.Delay = policy
	a.Logger.Info("Delay policy configured",
		zap.Duration("min_delay", cfg.MinDelay()),
		zap.Duration("max_delay", cfg.MaxDelay()),
		zap.Bool("smart", cfg.UseSmartDelay),
	)

	endpoints, err := proxy.ParseList(cfg.ProxyURL, cfg.ProxyList)
	if err != nil {
		return fmt.Errorf("invalid proxy settings: %w", err)
	}
	if len(endpoints) > 0 {
		a.Logger.Info("Proxy rotation enabled", zap.Int("proxies", len(endpoints)))
	}
	a.ManualRotator = proxy.NewRotator(endpoints)
	a.ScheduledRotator = proxy.NewRotator(endpoints)

	probeCfg := httpprobe.Config{Timeout: cfg.RequestTimeout(), VerifyDelay: cfg.VerifyDelay()}
	cls := classifier.New()
	a.ManualProbe = httpprobe.New(probeCfg, cls, a.ManualRotator, policy, a.Metrics, a.Logger.Named("manual"))
	a.ScheduledProbe = httpprobe.New(probeCfg, cls, a.ScheduledRotator, policy, a.Metrics, a.Logger.Named("scheduled"))

	a.Checks = usecase.NewMonitor(a.Repo, a.ManualProbe, a.Notifier, a.Cache, a.Metrics, a.Logger.Named("manual"))
	a.Scheduled = usecase.NewMonitor(a.Repo, a.ScheduledProbe, a.Notifier, a.Cache, a.Metrics, a.Logger.Named("scheduled"))
	a.Stores = usecase.NewStoreManager(a.Repo, a.Cache, a.Logger)
	a.Scheduler = scheduler.New(a.Scheduled.ScheduledPass, cfg.CheckIntervalMinutes, a.Logger.Named("scheduler"))
	return nil
}

// Proxies returns the override control shared by both pipelines.
func (a *App) Proxies() *Proxies {
	return &Proxies{manual: a.ManualRotator, scheduled: a.ScheduledRotator}
}

// HTTPHandler builds the control API. ctx bounds a scheduler started through it.
func (a *App) HTTPHandler(ctx context.Context) http.Handler {
	h := handler.NewHandler(handler.Deps{
		Stores:           a.Stores,
		Checks:           a.Checks,
		Scheduler:        a.Scheduler,
		SchedulerContext: ctx,
		Proxy:            a.Proxies(),
		Regions:          a.Delay,
		Notifier:         a.Notifier,
		Logger:           a.Logger,
	})
	return router.New(h, a.Metrics, a.Registry, a.Logger)
}

// Close stops the scheduler and releases connections.
func (a *App) Close() {
	if a.Scheduler != nil && a.Scheduler.Running() {
		_ = a.Scheduler.Stop()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// Proxies pins or clears the manual proxy on both pipelines at once.
type Proxies struct {
	manual    *proxy.Rotator
	scheduled *proxy.Rotator
}

func (p *Proxies) Info() proxy.Info { return p.manual.Info() }

func (p *Proxies) SetOverride(raw string) error {
	if err := p.manual.SetOverride(raw); err != nil {
		return err
	}
	return p.scheduled.SetOverride(raw)
}
