// Package registry implements the reconciliation rules that present the
// read-only upstream catalog and the mutable local overlay as one consistent
// user collection. All cross-source logic lives here: listing merges, lookup
// fallback, overlay materialization on update, and id minting on create.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/overlaykit/userdir/pkg/errors"
	"github.com/overlaykit/userdir/pkg/interfaces"
	"github.com/overlaykit/userdir/pkg/types"
)

// Service composes the catalog, the overlay store and the id allocator into
// the four user-facing operations.
type Service struct {
	catalog   interfaces.Catalog
	overlay   interfaces.Overlay
	allocator interfaces.Allocator
	audit     interfaces.AuditTrail
	metrics   interfaces.Metrics
	logger    interfaces.Logger
}

// NewService creates a new reconciliation service. The audit trail may be
// nil, in which case mutating operations are not recorded.
func NewService(catalog interfaces.Catalog, overlay interfaces.Overlay, allocator interfaces.Allocator, audit interfaces.AuditTrail, metrics interfaces.Metrics, log interfaces.Logger) *Service {
	return &Service{
		catalog:   catalog,
		overlay:   overlay,
		allocator: allocator,
		audit:     audit,
		metrics:   metrics,
		logger:    log,
	}
}

var _ interfaces.Registry = (*Service)(nil)

// User operations

// ListUsers returns the union of both sources keyed by id, ascending. Where
// both sources hold an id, the overlay's version wins. A catalog failure
// fails the whole listing: an overlay-only answer would silently drop every
// record that exists only upstream.
func (s *Service) ListUsers(ctx context.Context) ([]types.User, error) {
	start := time.Now()
	defer func() {
		s.metrics.Timer("registry_list_duration", float64(time.Since(start).Milliseconds()), nil)
	}()

	remote, local, err := s.fetchBoth(ctx)
	if err != nil {
		s.metrics.Counter("registry_list_count", 1, map[string]string{"status": "error"})
		return nil, err
	}

	merged := mergeUsers(remote, local)
	s.metrics.Counter("registry_list_count", 1, map[string]string{"status": "success"})
	s.metrics.Gauge("registry_list_merged_total", float64(len(merged)), nil)
	return merged, nil
}

// GetUser returns the record for an id. The overlay answers first; only on
// an overlay miss is the catalog consulted, and the fallback never writes
// anything back.
func (s *Service) GetUser(ctx context.Context, id uint64) (types.User, error) {
	if id == 0 {
		return types.User{}, errors.NewInvalidInputError("user id must be positive")
	}

	start := time.Now()
	defer func() {
		s.metrics.Timer("registry_get_duration", float64(time.Since(start).Milliseconds()), nil)
	}()

	stored, err := s.overlay.GetByID(ctx, id)
	if err != nil {
		s.metrics.Counter("registry_get_count", 1, map[string]string{"status": "error"})
		return types.User{}, err
	}
	if stored != nil {
		s.metrics.Counter("registry_get_count", 1, map[string]string{"status": "success", "source": "local"})
		user := *stored
		user.Origin = types.OriginLocal
		return user, nil
	}

	s.logger.Debug("overlay miss, consulting catalog", map[string]interface{}{
		"user_id": id,
	})

	user, err := s.catalog.FetchByID(ctx, id)
	if err != nil {
		// Not-found and unavailable pass through untouched: a caller must
		// be able to tell "does not exist" from "cannot know right now".
		s.metrics.Counter("registry_get_count", 1, map[string]string{"status": "error"})
		return types.User{}, err
	}

	s.metrics.Counter("registry_get_count", 1, map[string]string{"status": "success", "source": "remote"})
	user.Origin = types.OriginRemote
	return user, nil
}

// CreateUser stores the submitted record under a freshly allocated id. The
// known-id set needs both full listings, so a failure of either source
// aborts the create rather than risk a colliding id. Any id carried by the
// submitted record is discarded.
func (s *Service) CreateUser(ctx context.Context, user types.User) (types.User, error) {
	start := time.Now()
	defer func() {
		s.metrics.Timer("registry_create_duration", float64(time.Since(start).Milliseconds()), nil)
	}()

	remote, local, err := s.fetchBoth(ctx)
	if err != nil {
		s.metrics.Counter("registry_create_count", 1, map[string]string{"status": "error"})
		return types.User{}, err
	}

	known := make(map[uint64]struct{}, len(remote)+len(local))
	for _, u := range remote {
		known[u.ID] = struct{}{}
	}
	for _, u := range local {
		known[u.ID] = struct{}{}
	}

	id, err := s.allocator.Allocate(ctx, known)
	if err != nil {
		s.metrics.Counter("registry_create_count", 1, map[string]string{"status": "error"})
		return types.User{}, err
	}

	user.ID = id
	if err := s.overlay.Upsert(ctx, user); err != nil {
		s.recordAudit(ctx, types.AuditActionCreate, id, false, err.Error())
		s.metrics.Counter("registry_create_count", 1, map[string]string{"status": "error"})
		return types.User{}, err
	}

	s.recordAudit(ctx, types.AuditActionCreate, id, true,
		fmt.Sprintf("created user %q", user.Name))
	s.metrics.Counter("registry_create_count", 1, map[string]string{"status": "success"})
	s.logger.Info("user created", map[string]interface{}{
		"user_id": id,
	})

	user.Origin = types.OriginLocal
	return user, nil
}

// UpdateUser applies the patch to the record for an id. A record already in
// the overlay is patched in place. A record known only to the catalog is
// patched and the result written into the overlay, which from then on
// answers for that id. An id in neither source is not-found; a catalog
// failure while the answer is still needed is upstream-unavailable, never
// not-found.
func (s *Service) UpdateUser(ctx context.Context, id uint64, patch types.UserPatch) (types.User, error) {
	if id == 0 {
		return types.User{}, errors.NewInvalidInputError("user id must be positive")
	}

	start := time.Now()
	defer func() {
		s.metrics.Timer("registry_update_duration", float64(time.Since(start).Milliseconds()), nil)
	}()

	stored, err := s.overlay.GetByID(ctx, id)
	if err != nil {
		s.metrics.Counter("registry_update_count", 1, map[string]string{"status": "error"})
		return types.User{}, err
	}

	materialized := false
	var base types.User
	if stored != nil {
		base = *stored
	} else {
		base, err = s.catalog.FetchByID(ctx, id)
		if err != nil {
			s.metrics.Counter("registry_update_count", 1, map[string]string{"status": "error"})
			return types.User{}, err
		}
		materialized = true
		s.logger.Debug("materializing catalog record into overlay", map[string]interface{}{
			"user_id": id,
		})
	}

	updated := patch.Apply(base)
	updated.ID = id

	if err := s.overlay.Upsert(ctx, updated); err != nil {
		s.recordAudit(ctx, types.AuditActionUpdate, id, false, err.Error())
		s.metrics.Counter("registry_update_count", 1, map[string]string{"status": "error"})
		return types.User{}, err
	}

	s.recordAudit(ctx, types.AuditActionUpdate, id, true,
		fmt.Sprintf("updated user %q", updated.Name))
	s.metrics.Counter("registry_update_count", 1, map[string]string{
		"status":       "success",
		"materialized": fmt.Sprintf("%t", materialized),
	})

	updated.Origin = types.OriginLocal
	return updated, nil
}

// fetchBoth retrieves both full listings concurrently. The catalog error
// takes precedence so callers fail closed on upstream trouble.
func (s *Service) fetchBoth(ctx context.Context) (remote, local []types.User, err error) {
	var (
		wg        sync.WaitGroup
		remoteErr error
		localErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		remote, remoteErr = s.catalog.FetchAll(ctx)
	}()
	go func() {
		defer wg.Done()
		local, localErr = s.overlay.ListAll(ctx)
	}()
	wg.Wait()

	if remoteErr != nil {
		s.logger.Error("catalog listing failed", remoteErr)
		return nil, nil, remoteErr
	}
	if localErr != nil {
		return nil, nil, localErr
	}
	return remote, local, nil
}

// mergeUsers builds the deduplicated union of both listings. Overlay
// records shadow catalog records with the same id.
func mergeUsers(remote, local []types.User) []types.User {
	merged := make(map[uint64]types.User, len(remote)+len(local))

	for _, u := range remote {
		u.Origin = types.OriginRemote
		merged[u.ID] = u
	}
	for _, u := range local {
		u.Origin = types.OriginLocal
		merged[u.ID] = u
	}

	out := make([]types.User, 0, len(merged))
	for _, u := range merged {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// recordAudit appends an audit entry when a trail is configured. Audit
// failures are logged and never fail the operation.
func (s *Service) recordAudit(ctx context.Context, action string, userID uint64, success bool, detail string) {
	if s.audit == nil {
		return
	}

	entry := types.AuditEntry{
		Action:   action,
		UserID:   userID,
		ClientID: types.GetRequestContext(ctx).ClientID,
		Detail:   detail,
		Success:  success,
	}

	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry", map[string]interface{}{
			"action": action,
			"error":  err.Error(),
		})
	}
}
