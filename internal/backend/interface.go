// Package backend builds the expense store and change feed a binary runs on.
package backend

import (
	"context"
	"fmt"

	"dividi/internal/amqp"
	"dividi/internal/config"
	"dividi/internal/store"
)

// BackendType selects the store implementation.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
)

func (t BackendType) String() string { return string(t) }

func (t BackendType) IsValid() bool {
	return t == MemoryBackend || t == SQLiteBackend
}

// Refresher re-reads a store shared with other processes and notifies
// local subscribers of anything new.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult is everything a binary needs to talk to the store.
type BackendResult struct {
	Store store.ExpenseStore
	// Refresher is nil for stores that live only in this process.
	Refresher Refresher
	// Feed is nil when AMQP is disabled or unreachable.
	Feed    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type         BackendType
	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	// AMQPQueue names a durable queue; empty asks the broker for an
	// exclusive one that disappears with the connection.
	AMQPQueue string
}

// FromAppConfig converts the application config to backend config. The
// queue is left to the caller: only the worker wants a durable one.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
	}, nil
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	return nil
}
