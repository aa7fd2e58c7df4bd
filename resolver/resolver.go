// Package resolver implements the two resolution stages between a raw
// telemetry event and rule execution: mapping resolution (data source ->
// binding, profiles, twin) and rule-chain resolution (three-tier override
// hierarchy with tenant default fallback).
//
// Both resolvers follow the same cache-aside pattern: check the distributed
// cache under a deterministic per-kind key, fall back to the relational
// store on miss, populate the cache with the kind's TTL, return. Explicit
// invalidation methods let the admin plane delete single keys after an edit
// instead of waiting out the TTL.
package resolver

import (
	"context"
	"time"

	"github.com/diazhh/petroedge-sub003/types"
)

// Cache TTLs per entity kind. Bindings change more often than profiles and
// twins, so they expire sooner.
const (
	BindingTTL = 5 * time.Minute
	ProfileTTL = 10 * time.Minute
	TwinTTL    = 10 * time.Minute
	ChainTTL   = 10 * time.Minute
)

// Cache key prefixes. One namespace per entity kind keeps invalidation
// targeted to single keys.
const (
	bindingPrefix      = "mapping:binding"
	connectivityPrefix = "mapping:connectivity_profile"
	devicePrefix       = "mapping:device_profile"
	twinPrefix         = "mapping:twin"
	chainPrefix        = "rule_chain"
	defaultChainPrefix = "rule_chain:default"
)

// MappingStore is the relational read surface mapping resolution needs.
// Satisfied by *store.Store.
type MappingStore interface {
	GetActiveBinding(ctx context.Context, tenantID, dataSourceID string) (*types.DeviceBinding, error)
	GetConnectivityProfile(ctx context.Context, tenantID, id string) (*types.ConnectivityProfile, error)
	GetDeviceProfile(ctx context.Context, tenantID, id string) (*types.DeviceProfile, error)
	GetTwin(ctx context.Context, tenantID, id string) (*types.DigitalTwinInstance, error)
}

// ChainStore is the relational read surface chain resolution needs.
// Satisfied by *store.Store.
type ChainStore interface {
	GetRuleChain(ctx context.Context, tenantID, id string) (*types.RuleChain, error)
	GetDefaultRuleChain(ctx context.Context, tenantID, name string) (*types.RuleChain, error)
}
