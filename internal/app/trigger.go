package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	commonredis "parent-wellness/common/redis"
	"parent-wellness/internal/config"
	"parent-wellness/internal/docstore"
	"parent-wellness/internal/push"
	"parent-wellness/internal/trigger"
)

// TriggerService the cloud side: alert trigger on health-data writes and
// the weekly report job
type TriggerService struct {
	config      *config.Config
	logger      *zap.Logger
	redisClient *redis.Client
	store       docstore.Store
	consumer    *trigger.WriteConsumer
	reporter    *trigger.WeeklyReporter
	wg          sync.WaitGroup
}

// NewTriggerService wires the trigger from cfg; sender overrides the FCM
// client when non-nil
func NewTriggerService(ctx context.Context, cfg *config.Config, sender push.Sender, logger *zap.Logger) (*TriggerService, error) {
	store, err := docstore.NewStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open cloud store: %w", err)
	}

	redisClient := commonredis.NewRedisClient(&cfg.Redis)
	if err := commonredis.Ping(ctx, redisClient); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if sender == nil {
		if cfg.Push.ServerKey == "" {
			logger.Warn("FCM_SERVER_KEY is empty, push requests will be rejected")
		}
		sender = push.NewFCMClient(cfg.Push.BaseURL, cfg.Push.ServerKey, time.Duration(cfg.Push.TimeoutSec)*time.Second, logger)
	}

	alertTrigger := trigger.NewAlertTrigger(store, sender, logger)
	consumer := trigger.NewWriteConsumer(redisClient, trigger.ConsumerConfig{
		Stream:        cfg.CloudStore.WriteStream,
		ConsumerGroup: cfg.Trigger.ConsumerGroup,
		ConsumerName:  cfg.Trigger.ConsumerName,
		BatchSize:     int64(cfg.Trigger.BatchSize),
		RetryInterval: cfg.TriggerRetryInterval(),
	}, alertTrigger, logger)
	reporter := trigger.NewWeeklyReporter(store, sender, trigger.ReportSchedule{
		Weekday: cfg.Trigger.ReportWeekday,
		Hour:    cfg.Trigger.ReportHour,
		Check:   cfg.ReportCheckInterval(),
	}, logger)

	return &TriggerService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		store:       store,
		consumer:    consumer,
		reporter:    reporter,
	}, nil
}

// Start runs the report job in the background and consumes writes until ctx is done
func (s *TriggerService) Start(ctx context.Context) error {
	s.logger.Info("Starting wellness trigger",
		zap.String("stream", s.config.CloudStore.WriteStream),
		zap.String("cloud_store", s.config.CloudStore.Backend),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reporter.Start(ctx)
	}()

	return s.consumer.Start(ctx)
}

// Reporter the weekly report job, for on-demand runs
func (s *TriggerService) Reporter() *trigger.WeeklyReporter {
	return s.reporter
}

// Stop waits for the report job and closes connections; call after the Start ctx is done
func (s *TriggerService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping wellness trigger")
	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		s.logger.Error("Error closing cloud store", zap.Error(err))
	}
	if err := commonredis.Close(s.redisClient); err != nil {
		s.logger.Error("Error closing redis connection", zap.Error(err))
	}

	s.logger.Info("Wellness trigger stopped")
	return nil
}
