// Package types defines the domain entities shared across the PetroEdge
// processing core: device bindings, connectivity and device profiles, digital
// twin instances, rule chains and execution records.
//
// All configuration entities are owned by the relational store and consumed
// read-only here; only RuleExecutionRecord rows are written by this core.
package types

import (
	"time"
)

// DeviceBinding links one data source to one digital twin instance through
// one connectivity profile. At most one active binding exists per
// (tenantID, dataSourceID) pair.
type DeviceBinding struct {
	ID                    string         `json:"id"`
	TenantID              string         `json:"tenantId"`
	DataSourceID          string         `json:"dataSourceId"`
	ConnectivityProfileID string         `json:"connectivityProfileId"`
	DigitalTwinID         string         `json:"digitalTwinId"`
	CustomRuleChainID     string         `json:"customRuleChainId,omitempty"`
	CustomMappings        []FieldMapping `json:"customMappings,omitempty"`
	IsActive              bool           `json:"isActive"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

// FieldMapping describes one field translation from raw telemetry to the
// twin document.
type FieldMapping struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Scale  float64 `json:"scale,omitempty"`
	Unit   string  `json:"unit,omitempty"`
}

// ConnectivityProfile is reusable configuration bridging a device profile to
// an asset template. Its RuleChainID, when set, is the mid-priority chain
// override.
type ConnectivityProfile struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenantId"`
	Name            string         `json:"name"`
	DeviceProfileID string         `json:"deviceProfileId"`
	AssetTemplateID string         `json:"assetTemplateId,omitempty"`
	RuleChainID     string         `json:"ruleChainId,omitempty"`
	Mappings        []FieldMapping `json:"mappings,omitempty"`
}

// DeviceProfile is the broadest reusable device configuration. Its
// DefaultRuleChainID is the lowest-priority chain override.
type DeviceProfile struct {
	ID                 string         `json:"id"`
	TenantID           string         `json:"tenantId"`
	Name               string         `json:"name"`
	TransportType      string         `json:"transportType"`
	TelemetrySchema    map[string]any `json:"telemetrySchema,omitempty"`
	DefaultRuleChainID string         `json:"defaultRuleChainId,omitempty"`
}

// DigitalTwinInstance is the addressable twin object a telemetry event
// ultimately updates. Resolved but never mutated by this core; the write
// happens in a publish node downstream.
type DigitalTwinInstance struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenantId"`
	Name         string   `json:"name"`
	RootAssetID  string   `json:"rootAssetId"`
	ComponentIDs []string `json:"componentIds,omitempty"`
}

// ResolvedMapping is the result of mapping resolution for one data source:
// the binding plus the three entities reachable from it by foreign key.
type ResolvedMapping struct {
	Binding             *DeviceBinding       `json:"binding"`
	ConnectivityProfile *ConnectivityProfile `json:"connectivityProfile"`
	DeviceProfile       *DeviceProfile       `json:"deviceProfile"`
	Twin                *DigitalTwinInstance `json:"twin"`
}

// ChainOverrides carries the three override ids surfaced by a resolved
// mapping, in priority order.
func (m *ResolvedMapping) ChainOverrides() ChainOverrides {
	o := ChainOverrides{}
	if m.Binding != nil {
		o.BindingRuleChainID = m.Binding.CustomRuleChainID
	}
	if m.ConnectivityProfile != nil {
		o.ConnectivityProfileRuleChainID = m.ConnectivityProfile.RuleChainID
	}
	if m.DeviceProfile != nil {
		o.DeviceProfileRuleChainID = m.DeviceProfile.DefaultRuleChainID
	}
	return o
}

// ChainOverrides holds the per-tier rule chain override ids. An empty id
// means that tier declares no preference.
type ChainOverrides struct {
	BindingRuleChainID             string
	ConnectivityProfileRuleChainID string
	DeviceProfileRuleChainID       string
}
