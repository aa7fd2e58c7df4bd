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

// ChainResolution is the outcome of one hierarchy walk: the selected chain
// and the tier that supplied it.
type ChainResolution struct {
	ChainID string
	Chain   *types.RuleChain
	Source  types.ChainSource
}

// ChainResolver applies the three-tier override hierarchy - binding,
// connectivity profile, device profile - and falls back to the tenant-wide
// default chain. First resolvable ACTIVE chain wins; a dangling or inactive
// override id degrades to the next tier rather than failing hard, so one
// stale override never silences a device.
type ChainResolver struct {
	store ChainStore

	chains        *cache.Typed[types.RuleChain]
	defaultChains *cache.Typed[types.RuleChain]

	retryCfg retry.Config
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// NewChainResolver creates a chain resolver over the given store and cache
// backend. metrics may be nil in tests.
func NewChainResolver(st ChainStore, cacheStore cache.Store, metrics *metric.Metrics) *ChainResolver {
	return &ChainResolver{
		store:         st,
		chains:        cache.NewTyped[types.RuleChain](cacheStore, chainPrefix, ChainTTL),
		defaultChains: cache.NewTyped[types.RuleChain](cacheStore, defaultChainPrefix, ChainTTL),
		retryCfg:      retry.Reads(),
		metrics:       metrics,
		logger:        slog.Default().With("component", "chain-resolver"),
	}
}

// Resolve walks the hierarchy in strict priority order and returns the first
// ACTIVE chain owned by the tenant. When no tier resolves, the error is
// ErrChainNotResolvable: a configuration gap surfaced to the caller, not
// retried.
func (r *ChainResolver) Resolve(ctx context.Context, overrides types.ChainOverrides, tenantID string) (*ChainResolution, error) {
	tiers := []struct {
		chainID string
		source  types.ChainSource
	}{
		{overrides.BindingRuleChainID, types.SourceBinding},
		{overrides.ConnectivityProfileRuleChainID, types.SourceConnectivityProfile},
		{overrides.DeviceProfileRuleChainID, types.SourceDeviceProfile},
	}

	for _, tier := range tiers {
		if tier.chainID == "" {
			continue
		}
		chain, err := r.chainByID(ctx, tenantID, tier.chainID)
		if err != nil {
			if errors.IsResolutionMiss(err) {
				r.logger.Warn("Override points at missing chain, degrading to next tier",
					"chain_id", tier.chainID, "source", string(tier.source), "tenant_id", tenantID)
				continue
			}
			return nil, errors.Wrap(err, "ChainResolver", "Resolve", "chain lookup")
		}
		if !chain.IsActive() || chain.TenantID != tenantID {
			r.logger.Warn("Override chain not usable, degrading to next tier",
				"chain_id", tier.chainID, "source", string(tier.source),
				"status", string(chain.Status))
			continue
		}
		r.observeResolution(tier.source)
		return &ChainResolution{ChainID: chain.ID, Chain: chain, Source: tier.source}, nil
	}

	chain, err := r.defaultChain(ctx, tenantID)
	if err != nil {
		if errors.IsResolutionMiss(err) {
			return nil, errors.ErrChainNotResolvable
		}
		return nil, errors.Wrap(err, "ChainResolver", "Resolve", "default chain lookup")
	}
	if !chain.IsActive() {
		return nil, errors.ErrChainNotResolvable
	}

	r.observeResolution(types.SourceDefault)
	return &ChainResolution{ChainID: chain.ID, Chain: chain, Source: types.SourceDefault}, nil
}

// chainByID reads one chain through the cache. Status is checked by the
// caller so the cached entity stays a faithful copy of the stored row.
func (r *ChainResolver) chainByID(ctx context.Context, tenantID, chainID string) (*types.RuleChain, error) {
	if cached, found, err := r.chains.Get(ctx, chainID); err == nil && found {
		r.observeCache("hit")
		return cached, nil
	} else if err != nil {
		r.logger.Warn("Cache read failed, falling through to store", "chain_id", chainID, "error", err)
	}
	r.observeCache("miss")

	chain, err := r.fetchWithRetry(ctx, func(ctx context.Context) (*types.RuleChain, error) {
		return r.store.GetRuleChain(ctx, tenantID, chainID)
	})
	if err != nil {
		return nil, err
	}

	if err := r.chains.Set(ctx, chainID, chain); err != nil {
		r.logger.Warn("Cache populate failed", "chain_id", chainID, "error", err)
	}
	return chain, nil
}

// defaultChain reads the tenant fallback chain under its per-tenant key.
func (r *ChainResolver) defaultChain(ctx context.Context, tenantID string) (*types.RuleChain, error) {
	if cached, found, err := r.defaultChains.Get(ctx, tenantID); err == nil && found {
		r.observeCache("hit")
		return cached, nil
	} else if err != nil {
		r.logger.Warn("Cache read failed, falling through to store", "tenant_id", tenantID, "error", err)
	}
	r.observeCache("miss")

	chain, err := r.fetchWithRetry(ctx, func(ctx context.Context) (*types.RuleChain, error) {
		return r.store.GetDefaultRuleChain(ctx, tenantID, types.DefaultChainName)
	})
	if err != nil {
		return nil, err
	}

	if err := r.defaultChains.Set(ctx, tenantID, chain); err != nil {
		r.logger.Warn("Cache populate failed", "tenant_id", tenantID, "error", err)
	}
	return chain, nil
}

func (r *ChainResolver) fetchWithRetry(
	ctx context.Context,
	fetch func(ctx context.Context) (*types.RuleChain, error),
) (*types.RuleChain, error) {
	chain, err := retry.DoWithResult(ctx, r.retryCfg, func() (*types.RuleChain, error) {
		c, err := fetch(ctx)
		if err != nil && !errors.IsTransient(err) {
			return nil, retry.NonRetryable(err)
		}
		return c, err
	})
	if err != nil {
		return nil, unwrapNonRetryable(err)
	}
	return chain, nil
}

// InvalidateChain removes one chain cache entry. Called by the admin plane
// after a chain edit.
func (r *ChainResolver) InvalidateChain(ctx context.Context, chainID string) error {
	return r.chains.Delete(ctx, chainID)
}

// InvalidateDefaultChain removes the tenant default chain cache entry.
func (r *ChainResolver) InvalidateDefaultChain(ctx context.Context, tenantID string) error {
	return r.defaultChains.Delete(ctx, tenantID)
}

func (r *ChainResolver) observeCache(outcome string) {
	if r.metrics != nil {
		r.metrics.CacheLookups.WithLabelValues("rule_chain", outcome).Inc()
	}
}

func (r *ChainResolver) observeResolution(source types.ChainSource) {
	if r.metrics != nil {
		r.metrics.ChainResolutions.WithLabelValues(string(source)).Inc()
	}
}
