// Package store provides overlay store implementations. The overlay is the
// single mutable side of the registry: records edited or created through the
// service land here, keyed by user id, while the upstream catalog stays
// untouched.
package store

import (
	"fmt"

	"github.com/overlaykit/userdir/pkg/config"
	"github.com/overlaykit/userdir/pkg/interfaces"
)

// New opens the overlay store selected by the configuration
func New(cfg config.StoreConfig) (interfaces.Overlay, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteStore(cfg)
	case "redis":
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
