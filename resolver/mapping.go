package resolver

import (
	"context"
	"log/slog"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/metric"
	"github.com/diazhh/petroedge-sub003/pkg/cache"
	"github.com/diazhh/petroedge-sub003/pkg/retry"
	"github.com/diazhh/petroedge-sub003/types"
)

// MappingResolver turns a (dataSourceID, tenantID) pair into the full
// resolved mapping via four independently cached lookups chained by
// foreign key.
type MappingResolver struct {
	store MappingStore

	bindings       *cache.Typed[types.DeviceBinding]
	connectivity   *cache.Typed[types.ConnectivityProfile]
	deviceProfiles *cache.Typed[types.DeviceProfile]
	twins          *cache.Typed[types.DigitalTwinInstance]

	retryCfg retry.Config
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// NewMappingResolver creates a mapping resolver over the given store and
// cache backend. metrics may be nil in tests.
func NewMappingResolver(st MappingStore, cacheStore cache.Store, metrics *metric.Metrics) *MappingResolver {
	return &MappingResolver{
		store:          st,
		bindings:       cache.NewTyped[types.DeviceBinding](cacheStore, bindingPrefix, BindingTTL),
		connectivity:   cache.NewTyped[types.ConnectivityProfile](cacheStore, connectivityPrefix, ProfileTTL),
		deviceProfiles: cache.NewTyped[types.DeviceProfile](cacheStore, devicePrefix, ProfileTTL),
		twins:          cache.NewTyped[types.DigitalTwinInstance](cacheStore, twinPrefix, TwinTTL),
		retryCfg:       retry.Reads(),
		metrics:        metrics,
		logger:         slog.Default().With("component", "mapping-resolver"),
	}
}

// Resolve returns the binding, connectivity profile, device profile and twin
// instance governing one data source. A missing or inactive binding
// terminates resolution with ErrBindingNotFound; the caller reports and
// drops rather than retrying, since an absent row will not self-heal.
func (r *MappingResolver) Resolve(ctx context.Context, dataSourceID, tenantID string) (*types.ResolvedMapping, error) {
	binding, err := r.resolveBinding(ctx, dataSourceID, tenantID)
	if err != nil {
		return nil, err
	}

	profile, err := lookup(ctx, r, "connectivity_profile", r.connectivity, binding.ConnectivityProfileID,
		func(ctx context.Context) (*types.ConnectivityProfile, error) {
			return r.store.GetConnectivityProfile(ctx, tenantID, binding.ConnectivityProfileID)
		})
	if err != nil {
		return nil, errors.Wrap(err, "MappingResolver", "Resolve", "connectivity profile lookup")
	}

	deviceProfile, err := lookup(ctx, r, "device_profile", r.deviceProfiles, profile.DeviceProfileID,
		func(ctx context.Context) (*types.DeviceProfile, error) {
			return r.store.GetDeviceProfile(ctx, tenantID, profile.DeviceProfileID)
		})
	if err != nil {
		return nil, errors.Wrap(err, "MappingResolver", "Resolve", "device profile lookup")
	}

	twin, err := lookup(ctx, r, "twin", r.twins, binding.DigitalTwinID,
		func(ctx context.Context) (*types.DigitalTwinInstance, error) {
			return r.store.GetTwin(ctx, tenantID, binding.DigitalTwinID)
		})
	if err != nil {
		return nil, errors.Wrap(err, "MappingResolver", "Resolve", "twin lookup")
	}

	return &types.ResolvedMapping{
		Binding:             binding,
		ConnectivityProfile: profile,
		DeviceProfile:       deviceProfile,
		Twin:                twin,
	}, nil
}

// resolveBinding looks up the active binding under its composite cache key.
func (r *MappingResolver) resolveBinding(ctx context.Context, dataSourceID, tenantID string) (*types.DeviceBinding, error) {
	key := bindingKey(tenantID, dataSourceID)
	binding, err := lookup(ctx, r, "binding", r.bindings, key,
		func(ctx context.Context) (*types.DeviceBinding, error) {
			return r.store.GetActiveBinding(ctx, tenantID, dataSourceID)
		})
	if err != nil {
		return nil, err
	}
	// The store query already filters on is_active, but a cached binding
	// may have been deactivated and repopulated by an older serialization.
	if !binding.IsActive {
		return nil, errors.ErrBindingNotFound
	}
	return binding, nil
}

// lookup is the shared cache-aside read: cache hit wins, a miss queries the
// store with bounded retry for transient failures only, then populates the
// cache. Cache write failures degrade to uncached operation, never to a
// message failure.
func lookup[V any](
	ctx context.Context,
	r *MappingResolver,
	kind string,
	typed *cache.Typed[V],
	id string,
	fetch func(ctx context.Context) (*V, error),
) (*V, error) {
	if cached, found, err := typed.Get(ctx, id); err == nil && found {
		r.observeCache(kind, "hit")
		return cached, nil
	} else if err != nil {
		r.logger.Warn("Cache read failed, falling through to store", "kind", kind, "error", err)
	}
	r.observeCache(kind, "miss")

	value, err := retry.DoWithResult(ctx, r.retryCfg, func() (*V, error) {
		v, err := fetch(ctx)
		if err != nil && !errors.IsTransient(err) {
			return nil, retry.NonRetryable(err)
		}
		return v, err
	})
	if err != nil {
		return nil, unwrapNonRetryable(err)
	}

	if err := typed.Set(ctx, id, value); err != nil {
		r.logger.Warn("Cache populate failed", "kind", kind, "id", id, "error", err)
	}
	return value, nil
}

// InvalidateBinding removes one binding cache entry. Called by the admin
// plane after a binding edit.
func (r *MappingResolver) InvalidateBinding(ctx context.Context, tenantID, dataSourceID string) error {
	return r.bindings.Delete(ctx, bindingKey(tenantID, dataSourceID))
}

// InvalidateConnectivityProfile removes one connectivity profile cache entry.
func (r *MappingResolver) InvalidateConnectivityProfile(ctx context.Context, id string) error {
	return r.connectivity.Delete(ctx, id)
}

// InvalidateDeviceProfile removes one device profile cache entry.
func (r *MappingResolver) InvalidateDeviceProfile(ctx context.Context, id string) error {
	return r.deviceProfiles.Delete(ctx, id)
}

// InvalidateTwin removes one twin cache entry.
func (r *MappingResolver) InvalidateTwin(ctx context.Context, id string) error {
	return r.twins.Delete(ctx, id)
}

func (r *MappingResolver) observeCache(kind, outcome string) {
	if r.metrics != nil {
		r.metrics.CacheLookups.WithLabelValues(kind, outcome).Inc()
	}
}

func bindingKey(tenantID, dataSourceID string) string {
	return tenantID + ":" + dataSourceID
}

// unwrapNonRetryable strips the retry wrapper so callers can match
// resolution-miss sentinels directly.
func unwrapNonRetryable(err error) error {
	var nre *retry.NonRetryableError
	if errors.As(err, &nre) {
		return nre.Err
	}
	return err
}
