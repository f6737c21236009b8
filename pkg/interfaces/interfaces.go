// Package interfaces defines the core interfaces for the user registry components
package interfaces

import (
	"context"

	"github.com/overlaykit/userdir/pkg/types"
)

// Catalog defines the read-only port onto the authoritative upstream
// catalog. Implementations must be side-effect free: no call may mutate
// upstream state.
type Catalog interface {
	// FetchAll retrieves the full catalog listing
	FetchAll(ctx context.Context) ([]types.User, error)

	// FetchByID retrieves a single record by id
	FetchByID(ctx context.Context, id uint64) (types.User, error)
}

// Overlay defines the read-write port onto the local overlay store.
type Overlay interface {
	// GetByID retrieves a record by id, returning nil when absent
	GetByID(ctx context.Context, id uint64) (*types.User, error)

	// ListAll retrieves every record held by the overlay
	ListAll(ctx context.Context) ([]types.User, error)

	// ExistsByID reports whether a record with the given id is present
	ExistsByID(ctx context.Context, id uint64) (bool, error)

	// Upsert atomically creates or replaces the record keyed by its id
	Upsert(ctx context.Context, user types.User) error

	// HealthCheck verifies the store is reachable
	HealthCheck(ctx context.Context) error

	// Close releases the underlying store handle
	Close() error
}

// Allocator defines the port for minting new user ids.
type Allocator interface {
	// Allocate returns an id disjoint from the given set of known ids,
	// verified against the overlay store before being handed out
	Allocate(ctx context.Context, known map[uint64]struct{}) (uint64, error)
}

// Registry defines the reconciliation service exposed to the boundary.
type Registry interface {
	// ListUsers returns the merged view of both sources, ascending by id
	ListUsers(ctx context.Context) ([]types.User, error)

	// GetUser returns the record for an id, overlay first, catalog second
	GetUser(ctx context.Context, id uint64) (types.User, error)

	// CreateUser stores a new record under a freshly allocated id
	CreateUser(ctx context.Context, user types.User) (types.User, error)

	// UpdateUser applies a patch to the record for an id, materializing
	// catalog records into the overlay when needed
	UpdateUser(ctx context.Context, id uint64, patch types.UserPatch) (types.User, error)
}

// AuditTrail defines the optional port for recording mutating operations.
// Recording is best effort; implementations must not block the operation
// outcome on audit failures.
type AuditTrail interface {
	// Record appends one audit entry
	Record(ctx context.Context, entry types.AuditEntry) error
}

// Metrics defines the instrumentation port shared by the boundary and the
// reconciliation service.
type Metrics interface {
	// Counter increments a counter metric
	Counter(name string, value float64, labels map[string]string)

	// Gauge sets a gauge metric
	Gauge(name string, value float64, labels map[string]string)

	// Histogram records a distribution sample
	Histogram(name string, value float64, labels map[string]string)

	// Timer records a duration in milliseconds
	Timer(name string, duration float64, labels map[string]string)
}

// Logger defines the interface for logging implementations
type Logger interface {
	// Debug logs debug level messages
	Debug(msg string, fields ...map[string]interface{})

	// Info logs info level messages
	Info(msg string, fields ...map[string]interface{})

	// Warn logs warning level messages
	Warn(msg string, fields ...map[string]interface{})

	// Error logs error level messages
	Error(msg string, err error, fields ...map[string]interface{})

	// Fatal logs fatal level messages and exits
	Fatal(msg string, err error, fields ...map[string]interface{})

	// WithFields returns a logger with additional fields
	WithFields(fields map[string]interface{}) Logger
}
