package docstore

import (
	"context"
	"fmt"

	"parent-wellness/common/database"
	"parent-wellness/internal/config"

	"go.uber.org/zap"
)

// NewStore opens the backend selected by CLOUD_STORE_BACKEND
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.CloudStore.Backend {
	case "postgres":
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		s := NewPostgresStore(db, logger)
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Cloud store: postgres", zap.String("host", cfg.Database.Host))
		return s, nil

	case "mongo":
		s, err := ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Cloud store: mongo", zap.String("database", cfg.Mongo.Database))
		return s, nil

	case "memory":
		// each process gets its own store: the trigger never sees the
		// gateway's users or readings, so fan-out finds no recipients
		logger.Warn("Cloud store: memory, single-process only",
			zap.String("detail", "documents are not shared between wellness-gateway and wellness-trigger and are lost on exit"),
		)
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown cloud store backend: %q", cfg.CloudStore.Backend)
}
