package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"dreamkeys/audit"
	"dreamkeys/auth"
	"dreamkeys/bid"
	"dreamkeys/config"
	"dreamkeys/db"
	"dreamkeys/logger"
	"dreamkeys/outbox"
	"dreamkeys/policy"
	"dreamkeys/property"
	"dreamkeys/wishlist"
)

// App is the wired process: HTTP server plus the optional outbox relay.
type App struct {
	pool   *pgxpool.Pool
	rdb    *goredis.Client
	pub    *outbox.RabbitPublisher
	relay  *outbox.Relay
	server *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	app := &App{pool: pool}

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
			app.Close()
			return nil, err
		}
	}

	var users auth.Repository = auth.NewRepository(pool)
	if cfg.RedisURL != "" {
		rdb, err := newRedis(ctx, cfg.RedisURL)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.rdb = rdb
		users = auth.NewCachedRepository(users, rdb, cfg.RoleCacheTTL)
	} else {
		zlog.Warn().Msg("REDIS_URL is empty; role cache disabled")
	}

	tokens := auth.NewTokenService(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)
	trail := audit.Default()
	dir := auth.NewDirectory(users, tokens).WithAudit(trail)
	eval := policy.NewEvaluator(tokens, dir)

	props := property.NewService(pool, property.NewRepository(pool), eval, nil).
		WithVerifiedAdvertising(cfg.RequireVerifiedToAdvertise).
		WithAudit(trail)
	bids := bid.NewService(pool, bid.NewRepository(pool), props, eval, nil).WithAudit(trail)
	wl := wishlist.NewService(wishlist.NewRepository(pool), props, eval)

	if cfg.RabbitURL != "" {
		pub, err := outbox.NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.pub = pub
		app.relay = outbox.NewRelay(pool, pub,
			outbox.WithBatch(cfg.OutboxBatch),
			outbox.WithInterval(cfg.OutboxInterval),
		)
	} else {
		zlog.Warn().Msg("RABBIT_URL is empty; outbox relay disabled, events stay pending")
	}

	srv := &Server{
		users:      dir,
		authz:      eval,
		properties: props,
		bids:       bids,
		wishlist:   wl,
		rl:         rateLimit{enabled: cfg.RLEnabled, limit: cfg.RLLimit, window: cfg.RLWindow},
		ping:       pool.Ping,
	}
	app.server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
	return app, nil
}

func newRedis(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlog.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		zlog.Info().Msg("shutting down")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Close() {
	if a.pub != nil {
		_ = a.pub.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.pool.Close()
}

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("load config")
	}
	logger.InitWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("bootstrap")
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		zlog.Error().Err(err).Msg("server stopped")
	}
}
