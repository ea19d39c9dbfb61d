package backend

import (
	"context"

	"splitledger/internal/amqp"
	"splitledger/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the store, the optional activity publisher and a cleanup
// function releasing both.
type Result struct {
	Store     ledger.Store
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	PostgresDSN string

	// Activity event publishing (optional for every backend)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// Type represents the kind of persistence backend
type Type string

const (
	SQLiteBackend   Type = "sqlite"
	PostgresBackend Type = "postgres"
	MemoryBackend   Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
