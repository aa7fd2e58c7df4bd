package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/pkg/cache"
	"github.com/diazhh/petroedge-sub003/pkg/retry"
	"github.com/diazhh/petroedge-sub003/types"
)

type fakeChainStore struct {
	chains   map[string]*types.RuleChain // by chain id
	defaults map[string]*types.RuleChain // by tenant id

	chainCalls   int
	defaultCalls int

	failChainTimes int
}

func (f *fakeChainStore) GetRuleChain(_ context.Context, _, id string) (*types.RuleChain, error) {
	f.chainCalls++
	if f.failChainTimes > 0 {
		f.failChainTimes--
		return nil, errors.ErrStorageUnavailable
	}
	if c, ok := f.chains[id]; ok {
		return c, nil
	}
	return nil, errors.ErrChainNotResolvable
}

func (f *fakeChainStore) GetDefaultRuleChain(_ context.Context, tenantID, _ string) (*types.RuleChain, error) {
	f.defaultCalls++
	if c, ok := f.defaults[tenantID]; ok && c.Status == types.ChainStatusActive {
		return c, nil
	}
	return nil, errors.ErrChainNotResolvable
}

func testChain(id, tenantID string, status types.ChainStatus) *types.RuleChain {
	return &types.RuleChain{ID: id, TenantID: tenantID, Name: "chain-" + id, Status: status}
}

func newChainResolverForTest(t *testing.T, st ChainStore) *ChainResolver {
	t.Helper()
	mem := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = mem.Close() })
	r := NewChainResolver(st, mem, nil)
	r.retryCfg = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2.0}
	return r
}

func TestChainResolvePriorityOrder(t *testing.T) {
	st := &fakeChainStore{
		chains: map[string]*types.RuleChain{
			"c-binding": testChain("c-binding", "t-1", types.ChainStatusActive),
			"c-conn":    testChain("c-conn", "t-1", types.ChainStatusActive),
			"c-device":  testChain("c-device", "t-1", types.ChainStatusActive),
		},
		defaults: map[string]*types.RuleChain{
			"t-1": testChain("c-default", "t-1", types.ChainStatusActive),
		},
	}
	r := newChainResolverForTest(t, st)

	tests := []struct {
		name       string
		overrides  types.ChainOverrides
		wantChain  string
		wantSource types.ChainSource
	}{
		{
			name: "binding override wins over all lower tiers",
			overrides: types.ChainOverrides{
				BindingRuleChainID:             "c-binding",
				ConnectivityProfileRuleChainID: "c-conn",
				DeviceProfileRuleChainID:       "c-device",
			},
			wantChain:  "c-binding",
			wantSource: types.SourceBinding,
		},
		{
			name: "connectivity profile wins when binding has no override",
			overrides: types.ChainOverrides{
				ConnectivityProfileRuleChainID: "c-conn",
				DeviceProfileRuleChainID:       "c-device",
			},
			wantChain:  "c-conn",
			wantSource: types.SourceConnectivityProfile,
		},
		{
			name:       "device profile default when no higher tier set",
			overrides:  types.ChainOverrides{DeviceProfileRuleChainID: "c-device"},
			wantChain:  "c-device",
			wantSource: types.SourceDeviceProfile,
		},
		{
			name:       "tenant default when no tier sets anything",
			overrides:  types.ChainOverrides{},
			wantChain:  "c-default",
			wantSource: types.SourceDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(context.Background(), tt.overrides, "t-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantChain, res.ChainID)
			assert.Equal(t, tt.wantSource, res.Source)
			require.NotNil(t, res.Chain)
			assert.Equal(t, tt.wantChain, res.Chain.ID)
		})
	}
}

func TestChainResolveInactiveOverrideDegrades(t *testing.T) {
	// Binding points at an INACTIVE chain, the connectivity profile has no
	// override, and the device profile default is ACTIVE: the device profile
	// chain must win with its tier reported as the source.
	st := &fakeChainStore{
		chains: map[string]*types.RuleChain{
			"c-stale":  testChain("c-stale", "t-1", types.ChainStatusInactive),
			"c-device": testChain("c-device", "t-1", types.ChainStatusActive),
		},
	}
	r := newChainResolverForTest(t, st)

	res, err := r.Resolve(context.Background(), types.ChainOverrides{
		BindingRuleChainID:       "c-stale",
		DeviceProfileRuleChainID: "c-device",
	}, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "c-device", res.ChainID)
	assert.Equal(t, types.SourceDeviceProfile, res.Source)
}

func TestChainResolveDanglingOverrideDegrades(t *testing.T) {
	st := &fakeChainStore{
		chains: map[string]*types.RuleChain{},
		defaults: map[string]*types.RuleChain{
			"t-1": testChain("c-default", "t-1", types.ChainStatusActive),
		},
	}
	r := newChainResolverForTest(t, st)

	res, err := r.Resolve(context.Background(), types.ChainOverrides{
		BindingRuleChainID: "c-deleted",
	}, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "c-default", res.ChainID)
	assert.Equal(t, types.SourceDefault, res.Source)
}

func TestChainResolveForeignTenantChainDegrades(t *testing.T) {
	st := &fakeChainStore{
		chains: map[string]*types.RuleChain{
			"c-other": testChain("c-other", "t-other", types.ChainStatusActive),
		},
		defaults: map[string]*types.RuleChain{
			"t-1": testChain("c-default", "t-1", types.ChainStatusActive),
		},
	}
	r := newChainResolverForTest(t, st)

	res, err := r.Resolve(context.Background(), types.ChainOverrides{
		BindingRuleChainID: "c-other",
	}, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "c-default", res.ChainID)
	assert.Equal(t, types.SourceDefault, res.Source)
}

func TestChainResolveNothingResolvable(t *testing.T) {
	r := newChainResolverForTest(t, &fakeChainStore{})

	_, err := r.Resolve(context.Background(), types.ChainOverrides{
		BindingRuleChainID: "c-gone",
	}, "t-1")
	assert.ErrorIs(t, err, errors.ErrChainNotResolvable)
}

func TestChainResolveInactiveCachedDefault(t *testing.T) {
	st := &fakeChainStore{
		defaults: map[string]*types.RuleChain{
			"t-1": testChain("c-default", "t-1", types.ChainStatusActive),
		},
	}
	r := newChainResolverForTest(t, st)
	ctx := context.Background()

	_, err := r.Resolve(ctx, types.ChainOverrides{}, "t-1")
	require.NoError(t, err)

	// The default chain is archived and the cache still holds the old row
	// under an updated serialization.
	archived := testChain("c-default", "t-1", types.ChainStatusArchived)
	require.NoError(t, r.defaultChains.Set(ctx, "t-1", archived))

	_, err = r.Resolve(ctx, types.ChainOverrides{}, "t-1")
	assert.ErrorIs(t, err, errors.ErrChainNotResolvable)
}

func TestChainResolveCachedAndInvalidated(t *testing.T) {
	st := &fakeChainStore{
		chains: map[string]*types.RuleChain{
			"c-1": testChain("c-1", "t-1", types.ChainStatusActive),
		},
	}
	r := newChainResolverForTest(t, st)
	ctx := context.Background()
	overrides := types.ChainOverrides{BindingRuleChainID: "c-1"}

	first, err := r.Resolve(ctx, overrides, "t-1")
	require.NoError(t, err)
	require.Equal(t, 1, st.chainCalls)

	second, err := r.Resolve(ctx, overrides, "t-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, st.chainCalls, "second resolution served from cache")

	require.NoError(t, r.InvalidateChain(ctx, "c-1"))

	_, err = r.Resolve(ctx, overrides, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.chainCalls, "invalidation must force a fresh store read")
}

func TestChainResolveTransientErrorRetried(t *testing.T) {
	st := &fakeChainStore{
		chains: map[string]*types.RuleChain{
			"c-1": testChain("c-1", "t-1", types.ChainStatusActive),
		},
		failChainTimes: 1,
	}
	r := newChainResolverForTest(t, st)

	res, err := r.Resolve(context.Background(), types.ChainOverrides{BindingRuleChainID: "c-1"}, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", res.ChainID)
	assert.Equal(t, 2, st.chainCalls, "one transient failure, one successful retry")
}
