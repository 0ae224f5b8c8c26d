// internal/di/container.go
package di

import (
	"context"
	"fmt"
	"time"

	"collision-hub/internal/config"
	"collision-hub/internal/conflict"
	"collision-hub/internal/database"
	"collision-hub/internal/dispatch"
	"collision-hub/internal/geometry"
	"collision-hub/internal/hub"
	"collision-hub/internal/ingest"
	"collision-hub/internal/interfaces"
	"collision-hub/internal/manifest"
	"collision-hub/internal/messaging"
	"collision-hub/internal/metrics"
	"collision-hub/internal/mirror"
	"collision-hub/internal/ops"
	"collision-hub/internal/persistence"
	"collision-hub/internal/query"
	"collision-hub/internal/redis"
	"collision-hub/internal/services"
	"collision-hub/internal/store"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sourcegraph/conc"
)

// Container 의존성 주입 컨테이너
type Container struct {
	Config  *config.Config
	Logger  interfaces.Logger
	Metrics *metrics.Recorder

	// Infrastructure; Database is nil when persistence is disabled.
	Database         interfaces.DatabaseService
	Cache            interfaces.CacheService
	MessagePublisher interfaces.MessagePublisher

	// Domain
	Manifest   *manifest.Manifest
	Footprints conflict.FootprintTable
	Store      *store.PoseStore
	Registry   *persistence.Registry
	Audit      *persistence.AuditWriter
	Dispatcher *dispatch.Dispatcher
	Hub        *hub.Hub
	Ingest     *ingest.Handler
	Mirror     *mirror.Mirror

	// Surfaces
	QueryServer *query.Server
	OpsServer   *ops.Server

	// Service
	HubService *HubService

	health  map[string]ops.HealthFunc
	closers []func()
}

// NewContainer 새로운 컨테이너 생성
func NewContainer(cfg *config.Config) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  services.NewLogger(cfg.LogLevel),
		Metrics: metrics.NewRecorder(),
		health:  make(map[string]ops.HealthFunc),
	}

	// 1. 인프라 서비스들 초기화
	if err := c.initInfraServices(cfg); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to init infra services: %w", err)
	}

	// 2. 도메인 컴포넌트 초기화
	if err := c.initDomain(); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to init hub: %w", err)
	}
	return c, nil
}

// initInfraServices 인프라 서비스들 초기화
func (c *Container) initInfraServices(cfg *config.Config) error {
	if cfg.PersistenceEnabled {
		db, err := database.NewPostgresDB(cfg)
		if err != nil {
			return fmt.Errorf("database init failed: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("database init failed: %w", err)
		}
		c.Database = services.NewDatabaseService(db)
		c.closers = append(c.closers, func() { _ = sqlDB.Close() })
		c.health["postgres"] = func() error { return sqlDB.Ping() }
	}

	redisClient, err := redis.NewRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("redis init failed: %w", err)
	}
	c.Cache = services.NewCacheService(redisClient)
	c.closers = append(c.closers, func() { _ = redisClient.Close() })
	c.health["redis"] = redisHealth(redisClient)

	mqttClient, err := messaging.NewMQTTClient(cfg)
	if err != nil {
		return fmt.Errorf("mqtt init failed: %w", err)
	}
	c.MessagePublisher = mqttClient
	c.health["mqtt"] = mqttClient.Health

	return nil
}

// initDomain wires the hub pipeline on top of whatever infrastructure the
// container holds.
func (c *Container) initDomain() error {
	cfg := c.Config

	if cfg.ManifestPath != "" {
		m, err := manifest.Load(cfg.ManifestPath)
		if err != nil {
			return err
		}
		c.Manifest = m
	}
	c.Footprints = c.Manifest.Footprints(geometry.Footprint{
		Length: cfg.FootprintLength,
		Width:  cfg.FootprintWidth,
	})

	storeOpts := []store.Option{store.WithMetrics(c.Metrics)}
	dispatchOpts := []dispatch.Option{
		dispatch.WithRetries(cfg.DispatchRetries),
		dispatch.WithOutboxSize(cfg.OutboxSize),
		dispatch.WithMetrics(c.Metrics),
	}
	if c.Database != nil {
		c.Registry = persistence.NewRegistry(c.Database, c.Footprints)
		c.Audit = persistence.NewAuditWriter(c.Database, 100, time.Second)
		storeOpts = append(storeOpts, store.WithRegisterHook(c.Registry.OnRegister))
		dispatchOpts = append(dispatchOpts, dispatch.WithAudit(c.Audit))
	}
	c.Store = store.New(storeOpts...)

	if c.Registry != nil {
		n, err := c.Registry.Restore(c.Store)
		if err != nil {
			return err
		}
		c.Logger.Infof("Restored %d agents from registry", n)
	}
	if c.Manifest != nil {
		for _, a := range c.Manifest.Agents {
			c.Store.Register(a.DeviceID, a.Path)
		}
		c.Logger.Infof("Registered %d agents from manifest %s", len(c.Manifest.Agents), cfg.ManifestPath)
	}

	c.Dispatcher = dispatch.New(c.MessagePublisher, cfg.CommandTopic, dispatchOpts...)
	c.Hub = hub.New(
		c.Store,
		conflict.NewBuilder(c.Footprints, cfg.SafetyMargin),
		c.Dispatcher,
		c.Metrics,
		hub.OptionsFromConfig(cfg),
	)
	c.Ingest = ingest.NewHandler(c.Store, c.MessagePublisher, cfg.ErrorTopic(), c.Metrics)

	if c.Cache != nil {
		c.Mirror = mirror.New(c.Cache, c.Store, c.Hub, cfg.MirrorInterval)
	}

	c.QueryServer = query.NewServer(cfg.HTTPAddr, query.NewService(c.Store), c.Ingest)
	var opsOpts []ops.Option
	if c.Database != nil {
		opsOpts = append(opsOpts, ops.WithCommandLogs(c.Database))
	}
	c.OpsServer = ops.NewServer(cfg.OpsAddr, c.Hub, c.Metrics.Handler(), c.health, opsOpts...)

	c.HubService = NewHubService(c)
	return nil
}

// Cleanup 리소스 정리
func (c *Container) Cleanup() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func redisHealth(client *goredis.Client) ops.HealthFunc {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}

// =============================================================================
// Hub Service
// =============================================================================

// HubService runs the container's loops and servers and stops them in
// dependency order.
type HubService struct {
	container *Container

	tickLoop   conc.WaitGroup
	mirrorLoop conc.WaitGroup
	errs       chan error
}

func NewHubService(container *Container) *HubService {
	return &HubService{container: container, errs: make(chan error, 2)}
}

// Start subscribes to reports and launches the tick loop, the mirror and
// both HTTP listeners. The loops stop when ctx is cancelled.
func (s *HubService) Start(ctx context.Context) error {
	c := s.container

	if err := c.MessagePublisher.Subscribe(c.Config.ReportTopic(), 1, c.Ingest.HandleReport); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.Config.ReportTopic(), err)
	}

	s.tickLoop.Go(func() { c.Hub.Run(ctx) })
	if c.Mirror != nil {
		s.mirrorLoop.Go(func() { c.Mirror.Run(ctx) })
	}

	go s.serve("query", c.QueryServer.Start)
	go s.serve("ops", c.OpsServer.Start)

	c.Logger.Infof("🚀 Collision hub started")
	return nil
}

// Errors delivers listener failures.
func (s *HubService) Errors() <-chan error {
	return s.errs
}

func (s *HubService) serve(name string, start func() error) {
	if err := start(); err != nil {
		s.errs <- fmt.Errorf("%s listener: %w", name, err)
	}
}

// Shutdown runs after the Start context has been cancelled. Queued
// commands are delivered before the broker connection closes.
func (s *HubService) Shutdown(ctx context.Context) {
	c := s.container

	s.tickLoop.Wait()
	c.Dispatcher.Close()
	if c.Audit != nil {
		c.Audit.Close()
	}
	if c.Registry != nil {
		c.Registry.Close()
	}
	s.mirrorLoop.Wait()

	c.MessagePublisher.Disconnect(250)

	if err := c.QueryServer.Shutdown(ctx); err != nil {
		c.Logger.Warnf("Query API shutdown: %v", err)
	}
	if err := c.OpsServer.Shutdown(ctx); err != nil {
		c.Logger.Warnf("Ops listener shutdown: %v", err)
	}
	c.Cleanup()
	c.Logger.Infof("Collision hub stopped")
}

// =============================================================================
// 팩토리 함수들 (테스트용)
// =============================================================================

// NewTestContainer builds the full hub on caller-supplied infrastructure.
// database may be nil to run without persistence.
func NewTestContainer(
	cfg *config.Config,
	database interfaces.DatabaseService,
	cache interfaces.CacheService,
	messagePublisher interfaces.MessagePublisher,
) (*Container, error) {
	c := &Container{
		Config:           cfg,
		Logger:           services.NewLogger(cfg.LogLevel),
		Metrics:          metrics.NewRecorder(),
		Database:         database,
		Cache:            cache,
		MessagePublisher: messagePublisher,
		health: map[string]ops.HealthFunc{
			"mqtt": func() error {
				if !messagePublisher.IsConnected() {
					return fmt.Errorf("disconnected")
				}
				return nil
			},
		},
	}
	if err := c.initDomain(); err != nil {
		return nil, err
	}
	return c, nil
}
