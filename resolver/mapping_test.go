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

type fakeMappingStore struct {
	bindings map[string]*types.DeviceBinding
	profiles map[string]*types.ConnectivityProfile
	devices  map[string]*types.DeviceProfile
	twins    map[string]*types.DigitalTwinInstance

	bindingCalls int
	profileCalls int
	deviceCalls  int
	twinCalls    int

	// failBindingTimes injects transient errors into the next N binding reads
	failBindingTimes int
}

func (f *fakeMappingStore) GetActiveBinding(_ context.Context, tenantID, dataSourceID string) (*types.DeviceBinding, error) {
	f.bindingCalls++
	if f.failBindingTimes > 0 {
		f.failBindingTimes--
		return nil, errors.ErrStorageUnavailable
	}
	if b, ok := f.bindings[tenantID+":"+dataSourceID]; ok && b.IsActive {
		return b, nil
	}
	return nil, errors.ErrBindingNotFound
}

func (f *fakeMappingStore) GetConnectivityProfile(_ context.Context, _, id string) (*types.ConnectivityProfile, error) {
	f.profileCalls++
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	return nil, errors.ErrProfileNotFound
}

func (f *fakeMappingStore) GetDeviceProfile(_ context.Context, _, id string) (*types.DeviceProfile, error) {
	f.deviceCalls++
	if p, ok := f.devices[id]; ok {
		return p, nil
	}
	return nil, errors.ErrProfileNotFound
}

func (f *fakeMappingStore) GetTwin(_ context.Context, _, id string) (*types.DigitalTwinInstance, error) {
	f.twinCalls++
	if t, ok := f.twins[id]; ok {
		return t, nil
	}
	return nil, errors.ErrTwinNotFound
}

func fullyWiredStore() *fakeMappingStore {
	return &fakeMappingStore{
		bindings: map[string]*types.DeviceBinding{
			"t-1:ds-1": {
				ID: "b-1", TenantID: "t-1", DataSourceID: "ds-1",
				ConnectivityProfileID: "cp-1", DigitalTwinID: "twin-1",
				CustomRuleChainID: "chain-override", IsActive: true,
			},
		},
		profiles: map[string]*types.ConnectivityProfile{
			"cp-1": {ID: "cp-1", TenantID: "t-1", Name: "modbus-wellhead", DeviceProfileID: "dp-1"},
		},
		devices: map[string]*types.DeviceProfile{
			"dp-1": {ID: "dp-1", TenantID: "t-1", Name: "plc-generic", TransportType: "modbus",
				DefaultRuleChainID: "chain-default"},
		},
		twins: map[string]*types.DigitalTwinInstance{
			"twin-1": {ID: "twin-1", TenantID: "t-1", Name: "wellhead-07", RootAssetID: "asset-9"},
		},
	}
}

func newMappingResolverForTest(t *testing.T, st MappingStore) *MappingResolver {
	t.Helper()
	mem := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = mem.Close() })
	r := NewMappingResolver(st, mem, nil)
	r.retryCfg = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2.0}
	return r
}

func TestResolveMappingHappyPath(t *testing.T) {
	st := fullyWiredStore()
	r := newMappingResolverForTest(t, st)

	m, err := r.Resolve(context.Background(), "ds-1", "t-1")
	require.NoError(t, err)

	assert.Equal(t, "b-1", m.Binding.ID)
	assert.Equal(t, "cp-1", m.ConnectivityProfile.ID)
	assert.Equal(t, "dp-1", m.DeviceProfile.ID)
	assert.Equal(t, "twin-1", m.Twin.ID)

	overrides := m.ChainOverrides()
	assert.Equal(t, "chain-override", overrides.BindingRuleChainID)
	assert.Empty(t, overrides.ConnectivityProfileRuleChainID)
	assert.Equal(t, "chain-default", overrides.DeviceProfileRuleChainID)
}

func TestResolveMappingIdempotentAndCached(t *testing.T) {
	st := fullyWiredStore()
	r := newMappingResolverForTest(t, st)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "ds-1", "t-1")
	require.NoError(t, err)

	second, err := r.Resolve(ctx, "ds-1", "t-1")
	require.NoError(t, err)

	// Identical results whether served from cache or store.
	assert.Equal(t, first, second)

	// The second resolution is served entirely from cache.
	assert.Equal(t, 1, st.bindingCalls)
	assert.Equal(t, 1, st.profileCalls)
	assert.Equal(t, 1, st.deviceCalls)
	assert.Equal(t, 1, st.twinCalls)
}

func TestResolveMappingNoBinding(t *testing.T) {
	st := fullyWiredStore()
	r := newMappingResolverForTest(t, st)

	_, err := r.Resolve(context.Background(), "ds-unknown", "t-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBindingNotFound)

	// A miss is not retried: one store read per attempt.
	assert.Equal(t, 1, st.bindingCalls)

	// And not negatively cached: the next attempt reads the store again.
	_, err = r.Resolve(context.Background(), "ds-unknown", "t-1")
	require.Error(t, err)
	assert.Equal(t, 2, st.bindingCalls)
}

func TestResolveMappingTransientStoreErrorRetried(t *testing.T) {
	st := fullyWiredStore()
	st.failBindingTimes = 1
	r := newMappingResolverForTest(t, st)

	m, err := r.Resolve(context.Background(), "ds-1", "t-1")
	require.NoError(t, err)
	assert.Equal(t, "b-1", m.Binding.ID)
	assert.Equal(t, 2, st.bindingCalls, "one transient failure, one successful retry")
}

func TestInvalidateBindingForcesStoreRead(t *testing.T) {
	st := fullyWiredStore()
	r := newMappingResolverForTest(t, st)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "ds-1", "t-1")
	require.NoError(t, err)
	require.Equal(t, 1, st.bindingCalls)

	require.NoError(t, r.InvalidateBinding(ctx, "t-1", "ds-1"))

	_, err = r.Resolve(ctx, "ds-1", "t-1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.bindingCalls, "invalidation must force a fresh store read")
	assert.Equal(t, 1, st.profileCalls, "other namespaces stay cached")
}

func TestResolveMappingDeactivatedCachedBinding(t *testing.T) {
	st := fullyWiredStore()
	r := newMappingResolverForTest(t, st)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "ds-1", "t-1")
	require.NoError(t, err)

	// The binding is deactivated upstream and an edit repopulates the
	// cache with the inactive row before invalidation lands.
	inactive := *st.bindings["t-1:ds-1"]
	inactive.IsActive = false
	require.NoError(t, r.bindings.Set(ctx, bindingKey("t-1", "ds-1"), &inactive))

	_, err = r.Resolve(ctx, "ds-1", "t-1")
	assert.ErrorIs(t, err, errors.ErrBindingNotFound)
}

func TestResolveMappingBrokenForeignKey(t *testing.T) {
	st := fullyWiredStore()
	delete(st.twins, "twin-1")
	r := newMappingResolverForTest(t, st)

	_, err := r.Resolve(context.Background(), "ds-1", "t-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTwinNotFound)
}
