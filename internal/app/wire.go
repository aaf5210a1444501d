package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	s3blob "github.com/alanyoungcy/hmtengine/internal/blob/s3"
	"github.com/alanyoungcy/hmtengine/internal/cache/redis"
	"github.com/alanyoungcy/hmtengine/internal/changelistener"
	"github.com/alanyoungcy/hmtengine/internal/config"
	"github.com/alanyoungcy/hmtengine/internal/executor"
	"github.com/alanyoungcy/hmtengine/internal/notify"
	"github.com/alanyoungcy/hmtengine/internal/server"
	"github.com/alanyoungcy/hmtengine/internal/server/handler"
	"github.com/alanyoungcy/hmtengine/internal/service"
	"github.com/alanyoungcy/hmtengine/internal/statewriter"
	"github.com/alanyoungcy/hmtengine/internal/store/postgres"
	"github.com/alanyoungcy/hmtengine/internal/supervisor"
	"github.com/alanyoungcy/hmtengine/internal/triggerindex"
	"github.com/alanyoungcy/hmtengine/internal/webhookgw"
)

// Dependencies holds every fully wired component the application needs to
// run the engine and serve its HTTP surface.
type Dependencies struct {
	pg  *postgres.Client
	rdb *redis.Client

	Supervisor *supervisor.Supervisor
	Listener   *changelistener.Listener
	Gateway    *webhookgw.Gateway
	Server     *server.Server
	Archiver   *s3blob.ArchiveImpl
}

// Wire constructs every store, cache, and service from cfg and assembles
// the Supervisor, Change Listener, Webhook Gateway, and HTTP server. It
// returns a cleanup function that releases every acquired resource in
// reverse order; callers must invoke it exactly once, typically deferred.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	noopCleanup := func() {}

	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Store.DSN,
		Host:     cfg.Store.Host,
		Port:     cfg.Store.Port,
		Database: cfg.Store.Database,
		User:     cfg.Store.User,
		Password: cfg.Store.Password,
		SSLMode:  cfg.Store.SSLMode,
		MaxConns: cfg.Store.PoolMaxConns,
		MinConns: cfg.Store.PoolMinConns,
	})
	if err != nil {
		return nil, noopCleanup, fmt.Errorf("app: connect postgres: %w", err)
	}
	closers = append(closers, pg.Close)

	if cfg.Store.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, noopCleanup, fmt.Errorf("app: run migrations: %w", err)
		}
	}

	rdb, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, noopCleanup, fmt.Errorf("app: connect redis: %w", err)
	}
	closers = append(closers, func() { _ = rdb.Close() })

	pool := pg.Pool()
	triggers := postgres.NewTriggerStore(pool)
	tradeLogs := postgres.NewTradeLogStore(pool)
	brokerConns := postgres.NewBrokerConnectionStore(pool)
	engineState := postgres.NewEngineStateStore(pool)
	positions := postgres.NewPositionStore(pool)
	orders := postgres.NewOrderStore(pool)
	riskLimits := postgres.NewRiskLimitStore(pool)
	notifications := postgres.NewNotificationStore(pool)
	webhookKeys := postgres.NewWebhookKeyStore(pool)
	nfoInstruments := postgres.NewNFOInstrumentStore(pool)
	webhookLogs := postgres.NewWebhookLogStore(pool)
	auditLog := postgres.NewAuditStore(pool)

	instrumentCache := redis.NewInstrumentCache(rdb)
	webhookKeyCache := redis.NewWebhookKeyCache(rdb)
	rateLimiter := redis.NewRateLimiter(rdb)

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	var archiver *s3blob.ArchiveImpl
	if cfg.Archive.Enabled {
		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, noopCleanup, fmt.Errorf("app: connect object store: %w", err)
		}
		writer := s3blob.NewWriter(s3c)
		archiver = s3blob.NewArchiver(writer, tradeLogs, auditLog)
	}

	index := triggerindex.New()

	riskSvc := service.NewRiskService(riskLimits, logger)
	stateWriter := statewriter.New(triggers, tradeLogs, logger)

	execCfg := executor.Config{
		MaxRetries:   cfg.Engine.MaxRetries,
		RetryBackoff: cfg.Engine.RetryBackoff.Duration,
	}

	sup := supervisor.New(
		supervisor.Config{
			InstanceID:           instanceID(),
			HealthCheckInterval:  cfg.Engine.HealthCheckInterval.Duration,
			HeartbeatInterval:    cfg.Engine.HeartbeatInterval.Duration,
			ReconnectDelay:       cfg.Engine.ReconnectDelay.Duration,
			FeedWSURL:            cfg.Feed.WSURL,
			BrokerBaseURL:        cfg.Broker.BaseURL,
			ExecutorMaxRetries:   cfg.Engine.MaxRetries,
			ExecutorRetryBackoff: cfg.Engine.RetryBackoff.Duration,
		},
		engineState, triggers, brokerConns, riskSvc, stateWriter, notifier, index, instrumentCache, logger,
	)

	listener := changelistener.New(pool, triggers, index, sup, logger)
	sup.SetListener(listener)

	gw := webhookgw.New(
		webhookgw.Config{
			CashExchange:  "NSE",
			BrokerBaseURL: cfg.Broker.BaseURL,
		},
		webhookKeys, webhookKeyCache, brokerConns, nfoInstruments,
		orders, triggers, positions, webhookLogs, notifications, notifier,
		execCfg, logger,
	)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(sup, logger),
		Control: handler.NewControlHandler(sup),
		Webhook: gw,
	}
	srv := server.NewServer(server.Config{
		Port:               cfg.Server.Port,
		CORSOrigins:        cfg.Server.CORSOrigins,
		APIKey:             cfg.Broker.APIKey,
		RateLimitPerMinute: 120,
	}, handlers, rateLimiter, logger)

	deps := &Dependencies{
		pg:         pg,
		rdb:        rdb,
		Supervisor: sup,
		Listener:   listener,
		Gateway:    gw,
		Server:     srv,
		Archiver:   archiver,
	}

	return deps, cleanup, nil
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "hmtengine"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
