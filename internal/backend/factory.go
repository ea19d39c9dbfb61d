package backend

import (
	"context"
	"fmt"
	"log/slog"

	"splitledger/internal/amqp"
	"splitledger/internal/ledger"
	"splitledger/internal/ledger/memory"
	"splitledger/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		inner ledger.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		inner, err = storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		f.logger.Info("Initialized sqlite backend", "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		inner, err = storage.NewPostgresStore(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		f.logger.Info("Initialized postgres backend")
	case MemoryBackend:
		inner = memory.New()
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	store := ledger.NewCachedStore(inner)

	// AMQP is optional; a broker outage must not keep the API down.
	var publisher *amqp.Client
	if config.AMQPURL != "" {
		publisher, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without activity events", "error", err)
			publisher = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	cleanup := func() error {
		var firstErr error
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				firstErr = err
			}
		}
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}

	return &Result{
		Store:     store,
		Publisher: publisher,
		Cleanup:   cleanup,
	}, nil
}
