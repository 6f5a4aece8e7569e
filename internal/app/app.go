package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libdb "chargewatch/libs/db"
	libredis "chargewatch/libs/redis"

	"chargewatch/internal/config"
	"chargewatch/internal/feed"
	httpserver "chargewatch/internal/http"
	"chargewatch/internal/http/handlers"
	"chargewatch/internal/livestate"
	"chargewatch/internal/notify"
	"chargewatch/internal/rebuild"
	"chargewatch/internal/repository"
	"chargewatch/internal/service"
	"chargewatch/internal/tracker"
	"chargewatch/internal/ws"
)

// App wires chargewatch dependencies.
type App struct {
	cfg         *config.Config
	server      *httpserver.Server
	feedClient  *feed.Client
	trk         *tracker.Tracker
	monitor     *service.MonitorService
	hub         *ws.Hub
	notifier    *notify.MQTTNotifier
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN, libdb.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	eventRepo := repository.NewEventRepository(sqlDB, cfg.Tracker.MinPowerKW)
	sessionRepo := repository.NewSessionRepository(sqlDB)
	snapshots := livestate.NewStore(redisClient)

	trk := tracker.New(tracker.Config{
		StalenessThreshold: cfg.Tracker.StalenessThreshold,
		SessionCeiling:     cfg.Tracker.SessionCeiling,
	}, snapshots, logger)

	rebuilder := rebuild.NewRebuilder(eventRepo, sessionRepo, rebuild.Policy{
		Ceiling: cfg.Tracker.SessionCeiling,
	}, logger)

	hub := ws.NewHub(logger)

	var notifier *notify.MQTTNotifier
	if cfg.MQTTEnabled() {
		notifier, err = notify.NewMQTTNotifier(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID, cfg.MQTT.Topic, logger)
		if err != nil {
			sqlDB.Close()
			redisClient.Close()
			return nil, err
		}
	}

	var notifierIface service.Notifier
	if notifier != nil {
		notifierIface = notifier
	}
	monitor := service.NewMonitorService(eventRepo, sessionRepo, trk, rebuilder, hub, notifierIface, logger)

	adminHandler := handlers.NewAdminHandler(monitor, logger)

	routes := httpserver.Routes{
		Sessions:     handlers.NewSessionsHandler(monitor),
		SessionStats: handlers.NewSessionStatsHandler(monitor),
		Rebuild:      adminHandler.HandleRebuild,
		WipeEvents:   adminHandler.HandleWipeEvents,
		LiveStream:   hub.Handler(),
		Health:       handlers.NewHealthHandler(),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		cfg:         cfg,
		server:      server,
		feedClient:  feed.NewClient(cfg.Feed.URL, cfg.Feed.Timeout, logger),
		trk:         trk,
		monitor:     monitor,
		hub:         hub,
		notifier:    notifier,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run recovers persisted live state, then drives the poll loop, the
// staleness sweep, the persistence worker and the HTTP server until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.trk.Restore(ctx); err != nil {
		a.logger.Warn("live state recovery failed, starting cold", zap.Error(err))
	}

	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error { return a.pollLoop(ctx) })
	grp.Go(func() error { return a.stalenessLoop(ctx) })
	grp.Go(func() error { return a.monitor.RunPersistWorker(ctx) })
	grp.Go(func() error { return a.hub.Run(ctx) })
	grp.Go(func() error { return a.server.Run(ctx) })

	err := grp.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) pollLoop(ctx context.Context) error {
	a.poll(ctx)

	ticker := time.NewTicker(a.cfg.Tracker.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.poll(ctx)
		}
	}
}

// poll fetches one snapshot. A failed fetch skips the tick and mutates
// nothing; the staleness sweep handles prolonged silence. The feed client's
// stamp is the single instant for both the event log and the tracker.
func (a *App) poll(ctx context.Context) {
	events, at, err := a.feedClient.Poll(ctx)
	if err != nil {
		a.logger.Warn("poll failed, tick skipped", zap.Error(err))
		return
	}
	a.monitor.IngestSnapshot(ctx, events, at)
}

func (a *App) stalenessLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Tracker.StalenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.trk.MarkStale(ctx, time.Now().UTC())
		}
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
