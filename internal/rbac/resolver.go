package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

const cacheKeyPrefix = "user_permissions:"

// DefaultCacheTTL bounds how long a computed set may be served.
const DefaultCacheTTL = 5 * time.Minute

// Store is the read side of the credential store used for decisions.
type Store interface {
	// FindPermission returns the permission for (type, key, action). An exact
	// action match wins over an action-agnostic row. shared.ErrNotFound when
	// neither exists.
	FindPermission(ctx context.Context, resourceType ResourceType, resourceKey, action string) (Permission, error)
	RoleGrantsForUser(ctx context.Context, userID int64) ([]RoleGrant, error)
	UserOverrides(ctx context.Context, userID int64) ([]UserOverride, error)
	UserIDsForRole(ctx context.Context, roleID int64) ([]int64, error)
}

// Cache is the shared key-value backend holding computed sets.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Resolver answers authorization questions from the store, caching each
// user's effective permission set.
type Resolver struct {
	store   Store
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
	group   singleflight.Group
}

// NewResolver wires a Resolver. A non-positive ttl falls back to DefaultCacheTTL.
func NewResolver(store Store, cache Cache, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, cache: cache, ttl: ttl, logger: logger, metrics: metrics}
}

// CacheKey is the cache entry holding userID's effective set.
func CacheKey(userID int64) string {
	return cacheKeyPrefix + strconv.FormatInt(userID, 10)
}

// IsGranted reports whether userID may perform action on the resource.
// Unknown and disabled permissions are denied.
func (r *Resolver) IsGranted(ctx context.Context, userID int64, resourceType ResourceType, resourceKey, action string) (bool, error) {
	perm, err := r.store.FindPermission(ctx, resourceType, resourceKey, action)
	if errors.Is(err, shared.ErrNotFound) {
		r.metrics.ObserveDecision("unknown")
		return false, nil
	}
	if err != nil {
		return false, shared.Unavailable("rbac: find permission", err)
	}
	if !perm.Enabled {
		r.metrics.ObserveDecision("disabled")
		return false, nil
	}
	set, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	if set.Has(perm.ID) {
		r.metrics.ObserveDecision("granted")
		return true, nil
	}
	r.metrics.ObserveDecision("denied")
	return false, nil
}

// EffectivePermissions returns the cached set for userID, recomputing it on a
// miss. Cache read and write failures fall back to the store.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) (PermissionSet, error) {
	key := CacheKey(userID)
	if set, ok := r.cached(ctx, key); ok {
		r.metrics.ObservePermissionCache(true)
		return set, nil
	}
	r.metrics.ObservePermissionCache(false)

	resultCh := r.group.DoChan(key, func() (any, error) {
		// Shared by every waiter, so it must outlive the first caller.
		return r.recompute(context.WithoutCancel(ctx), userID, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet), nil
	}
}

func (r *Resolver) cached(ctx context.Context, key string) (PermissionSet, bool) {
	payload, found, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("rbac cache get", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal(payload, &ids); err != nil {
		r.logger.Warn("rbac cache decode", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	return permissionSetOf(ids), true
}

func (r *Resolver) recompute(ctx context.Context, userID int64, key string) (PermissionSet, error) {
	var (
		grants    []RoleGrant
		overrides []UserOverride
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		grants, err = r.store.RoleGrantsForUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		overrides, err = r.store.UserOverrides(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, shared.Unavailable("rbac: load grants", err)
	}

	set := EffectivePermissionIDs(grants, overrides)
	payload, err := json.Marshal(set.IDs())
	if err != nil {
		return nil, fmt.Errorf("rbac: encode permission set: %w", err)
	}
	if err := r.cache.Set(ctx, key, payload, r.ttl); err != nil {
		r.logger.Warn("rbac cache set", slog.String("key", key), slog.Any("error", err))
	}
	return set, nil
}

// Invalidate drops the cached set of userID. Deleting an absent entry
// succeeds.
func (r *Resolver) Invalidate(ctx context.Context, userID int64) error {
	if err := r.cache.Delete(ctx, CacheKey(userID)); err != nil {
		return shared.Unavailable("rbac: invalidate", err)
	}
	return nil
}

// InvalidateUsers drops the cached sets of all given users in one round trip.
func (r *Resolver) InvalidateUsers(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, CacheKey(id))
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		return shared.Unavailable("rbac: invalidate users", err)
	}
	return nil
}

// InvalidateForRole drops the cached set of every current member of roleID.
// A role without members is a no-op.
func (r *Resolver) InvalidateForRole(ctx context.Context, roleID int64) error {
	userIDs, err := r.store.UserIDsForRole(ctx, roleID)
	if err != nil {
		return shared.Unavailable("rbac: role members", err)
	}
	return r.InvalidateUsers(ctx, userIDs)
}
