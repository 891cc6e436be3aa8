package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"parent-wellness/common/database"
	commonmqtt "parent-wellness/common/mqtt"
	commonredis "parent-wellness/common/redis"
	"parent-wellness/internal/config"
	"parent-wellness/internal/docstore"
	"parent-wellness/internal/httpapi"
	"parent-wellness/internal/localcache"
	"parent-wellness/internal/realtime"
	"parent-wellness/internal/scheduler"
	"parent-wellness/internal/sensor"
	"parent-wellness/internal/service"
	"parent-wellness/internal/worker"
)

// GatewayService the device side: watch listeners, local cache, background
// sync jobs and the HTTP API
type GatewayService struct {
	config      *config.Config
	logger      *zap.Logger
	sqlite      *sql.DB
	redisClient *redis.Client
	mqttClient  *commonmqtt.Client
	store       docstore.Store
	scheduler   *scheduler.Scheduler
	listeners   []sensor.Listener
	feed        *sensor.Feed
	jobs        []periodicJob
	server      *http.Server
}

type periodicJob struct {
	name string
	req  scheduler.PeriodicRequest
	w    scheduler.Worker
}

// NewGatewayService wires every gateway component from cfg
func NewGatewayService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*GatewayService, error) {
	s := &GatewayService{config: cfg, logger: logger}
	if err := s.init(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *GatewayService) init(ctx context.Context) error {
	cfg, logger := s.config, s.logger

	// 1. local cache
	db, err := database.NewSQLiteDB(&cfg.SQLite)
	if err != nil {
		return err
	}
	s.sqlite = db
	cache, err := localcache.New(ctx, db, logger)
	if err != nil {
		return err
	}

	// 2. redis: realtime cache and write events
	s.redisClient = commonredis.NewRedisClient(&cfg.Redis)
	if err := commonredis.Ping(ctx, s.redisClient); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	mirror := realtime.NewMirror(realtime.NewRedisKVStore(s.redisClient), cfg.Realtime.KeyPrefix, cfg.RealtimeTTL(), logger)

	// 3. cloud store, publishing healthData writes for the trigger
	inner, err := docstore.NewStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open cloud store: %w", err)
	}
	s.store = docstore.NewPublishingStore(inner, docstore.NewStreamPublisher(s.redisClient, cfg.CloudStore.WriteStream), logger)

	// 4. scheduler and sync
	network := scheduler.NewPingMonitor(inner.Ping, 5*time.Second, logger)
	s.scheduler = scheduler.New(network, scheduler.Options{}, logger)
	syncWorker := worker.NewSyncWorker(cache, s.store, network, cfg.StaleSyncing(), logger)
	s.jobs = append(s.jobs, periodicJob{
		name: worker.JobPeriodicSync,
		req: scheduler.PeriodicRequest{
			Interval:    cfg.SyncInterval(),
			Flex:        cfg.SyncFlex(),
			Constraints: scheduler.Constraints{RequiresNetwork: true},
		},
		w: syncWorker,
	})

	// 5. watch listeners when a watch is paired
	if cfg.Sensor.UserID != "" {
		if err := s.initSensors(cache, mirror, syncWorker); err != nil {
			return err
		}
	} else {
		logger.Info("No paired watch, sensor listeners disabled")
	}

	// 6. HTTP API
	readings := service.NewReadingService(cache, s.scheduler, syncWorker, logger)
	profiles := service.NewProfileService(s.store, logger)
	checks := map[string]httpapi.Pinger{
		"cloud_store": inner.Ping,
		"redis":       func(ctx context.Context) error { return commonredis.Ping(ctx, s.redisClient) },
		"local_cache": db.PingContext,
	}
	handler := httpapi.NewHandler(readings, profiles, mirror, checks, logger)
	if s.feed != nil {
		handler.WithLiveFeed(s.feed)
	}
	// live streams never go idle, so end them when shutdown begins
	streamCtx, endStreams := context.WithCancel(context.Background())
	s.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
	}
	s.server.RegisterOnShutdown(endStreams)
	return nil
}

func (s *GatewayService) initSensors(cache *localcache.Cache, mirror *realtime.Mirror, syncWorker *worker.SyncWorker) error {
	cfg, logger := s.config, s.logger

	adapter, err := sensor.NewAdapter(cfg.Sensor.SDKShape)
	if err != nil {
		return err
	}
	client, err := commonmqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to mqtt: %w", err)
	}
	s.mqttClient = client

	opts := sensor.Options{UserID: cfg.Sensor.UserID, HistorySize: cfg.Sensor.HistorySize}
	prefix, uid, qos := cfg.Sensor.TopicPrefix, cfg.Sensor.UserID, cfg.MQTT.QoS

	hr := sensor.NewHeartRateListener(
		sensor.NewMQTTTracker(client, prefix, uid, sensor.TrackerHeartRate, qos, logger),
		adapter, cache, mirror, opts, logger)
	steps := sensor.NewStepsListener(
		sensor.NewMQTTTracker(client, prefix, uid, sensor.TrackerSteps, qos, logger),
		adapter, cache, mirror, opts, logger)
	s.listeners = []sensor.Listener{hr, steps}
	s.feed = sensor.NewFeed(hr, steps)
	refreshers := []worker.Refresher{hr, steps}

	connector := worker.NewMQTTConnector(client, prefix, uid, qos, logger)
	sensorSync := worker.NewSensorSyncWorker(connector, cfg.HandshakeTimeout(), refreshers, cfg.FlushTimeout(), syncWorker, resolutionLogger{logger}, logger)
	flush := worker.NewFlushWorker(refreshers, cfg.FlushTimeout(), logger)

	s.jobs = append(s.jobs,
		periodicJob{
			name: worker.JobSensorSync,
			req: scheduler.PeriodicRequest{
				Interval:    cfg.SensorSyncInterval(),
				Constraints: scheduler.Constraints{RequiresNetwork: true},
			},
			w: sensorSync,
		},
		periodicJob{
			name: worker.JobFlush,
			req:  scheduler.PeriodicRequest{Interval: cfg.FlushInterval()},
			w:    flush,
		},
	)
	return nil
}

// Handler the HTTP API
func (s *GatewayService) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the listeners and jobs, then serves HTTP until Stop
func (s *GatewayService) Start(ctx context.Context) error {
	s.logger.Info("Starting wellness gateway",
		zap.String("addr", s.config.HTTP.Addr),
		zap.String("cloud_store", s.config.CloudStore.Backend),
		zap.Int("listeners", len(s.listeners)),
	)

	// 1. listeners
	for _, l := range s.listeners {
		if err := l.Start(); err != nil {
			return fmt.Errorf("failed to start %s listener: %w", l.Metric(), err)
		}
	}

	// 2. background jobs, existing schedules are kept
	for _, j := range s.jobs {
		if _, err := s.scheduler.EnqueueUniquePeriodic(j.name, scheduler.Keep, j.req, j.w); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
	}

	// 3. HTTP
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts everything down in reverse order
func (s *GatewayService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping wellness gateway")

	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Error shutting down http server", zap.Error(err))
		}
	}
	s.close()

	s.logger.Info("Wellness gateway stopped")
	return nil
}

func (s *GatewayService) close() {
	for _, l := range s.listeners {
		l.Cleanup()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Error closing cloud store", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := commonredis.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing redis connection", zap.Error(err))
		}
	}
	if s.sqlite != nil {
		if err := s.sqlite.Close(); err != nil {
			s.logger.Error("Error closing local cache", zap.Error(err))
		}
	}
}

// resolutionLogger reports vendor resolution requests; the gateway has no
// foreground UI to prompt the user from
type resolutionLogger struct {
	logger *zap.Logger
}

func (r resolutionLogger) ResolutionRequired(_ context.Context, err error) {
	r.logger.Warn("Watch connection needs user action in the companion app", zap.Error(err))
}
