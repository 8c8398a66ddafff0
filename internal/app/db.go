package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/tempizhere/redirector/internal/config"
	"github.com/tempizhere/redirector/internal/ratelimit"
	"github.com/tempizhere/redirector/internal/repository"
	"go.uber.org/zap"
)

// NewDB открывает подключение к PostgreSQL и применяет миграции
func NewDB(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	if err := repository.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// NewStore выбирает хранилище по конфигурации: PostgreSQL, файл или память.
// Возвращаемая функция закрывает ресурсы хранилища.
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func() error, error) {
	switch {
	case cfg.DatabaseDSN != "":
		db, err := NewDB(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		repo, err := repository.NewPostgresRepository(db, logger)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Using PostgreSQL storage")
		return repo, db.Close, nil
	case cfg.FileStoragePath != "":
		repo, err := repository.NewFileRepository(cfg.FileStoragePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file storage: %w", err)
		}
		logger.Info("Using file storage", zap.String("path", cfg.FileStoragePath))
		return repo, func() error { return nil }, nil
	default:
		logger.Info("Using in-memory storage")
		return repository.NewMemoryRepository(), func() error { return nil }, nil
	}
}

// NewRateStore выбирает хранилище счётчиков: Redis, если задан адрес, иначе память
func NewRateStore(ctx context.Context, redisURL string, logger *zap.Logger) (ratelimit.Store, func() error, error) {
	if redisURL == "" {
		logger.Info("Using in-memory rate limit counters")
		return ratelimit.NewMemoryStore(), func() error { return nil }, nil
	}
	client, err := ratelimit.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Using Redis rate limit counters")
	return ratelimit.NewRedisStore(client), client.Close, nil
}
