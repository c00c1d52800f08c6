package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dividi/internal/amqp"
	"dividi/internal/store/memory"
	"dividi/internal/storage"
)

type DefaultFactory struct {
	logger *slog.Logger
	dial   func(amqp.Options) (*amqp.Client, error)
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger, dial: amqp.NewClient}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var result *BackendResult
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		result = &BackendResult{Store: repo, Refresher: repo, Cleanup: repo.Close}
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		result = &BackendResult{Store: memory.New()}
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	result.Feed = f.connectFeed(ctx, config)
	storeCleanup := result.Cleanup
	feed := result.Feed
	result.Cleanup = func() error {
		var errs []error
		if feed != nil {
			if err := feed.Close(); err != nil {
				errs = append(errs, fmt.Errorf("amqp: %w", err))
			}
		}
		if storeCleanup != nil {
			if err := storeCleanup(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
		}
		return errors.Join(errs...)
	}
	return result, nil
}

// connectFeed dials AMQP when configured. Failure is not fatal: the
// process keeps working on its own store and misses foreign changes until
// its next resync.
func (f *DefaultFactory) connectFeed(ctx context.Context, config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	if config.Type == MemoryBackend {
		f.logger.WarnContext(ctx, "AMQP configured with the memory backend; other processes cannot read this store")
	}
	client, err := f.dial(amqp.Options{
		URL:      config.AMQPURL,
		Exchange: config.AMQPExchange,
		Queue:    config.AMQPQueue,
	})
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change feed", "error", err)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
