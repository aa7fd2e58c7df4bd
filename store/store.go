// Package store implements the relational access layer over the tables owned
// by the admin plane: device bindings, connectivity and device profiles,
// digital twin instances and rule definitions are read here, and one
// rule_executions row is written per chain run.
//
// All configuration reads are tenant-scoped and filtered on the relevant
// is_active / status predicate; an absent row surfaces as the matching
// resolution-miss sentinel from the errors package, never as a raw
// sql.ErrNoRows.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	// Postgres driver registration
	_ "github.com/lib/pq"

	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/types"
)

// Config holds Postgres connection settings.
type Config struct {
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty"`
}

// Store provides read access to configuration tables and write access to the
// execution audit trail.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Store", "Open", "postgres dsn")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "Open", "open postgres")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WrapTransient(err, "Store", "Open", "ping postgres")
	}

	return New(db), nil
}

// New wraps an existing database handle. Used by tests with sqlmock.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "store"),
	}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity. Used by health probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.WrapTransient(err, "Store", "Ping", "ping database")
	}
	return nil
}

// GetActiveBinding returns the single active binding for one
// (tenant, data source) pair, or ErrBindingNotFound.
func (s *Store) GetActiveBinding(ctx context.Context, tenantID, dataSourceID string) (*types.DeviceBinding, error) {
	const q = `
		SELECT id, tenant_id, data_source_id, connectivity_profile_id, digital_twin_id,
		       COALESCE(custom_rule_chain_id, ''), COALESCE(custom_mappings, '[]'),
		       is_active, created_at, updated_at
		FROM device_bindings
		WHERE tenant_id = $1 AND data_source_id = $2 AND is_active = true`

	var (
		b           types.DeviceBinding
		rawMappings []byte
	)
	err := s.db.QueryRowContext(ctx, q, tenantID, dataSourceID).Scan(
		&b.ID, &b.TenantID, &b.DataSourceID, &b.ConnectivityProfileID, &b.DigitalTwinID,
		&b.CustomRuleChainID, &rawMappings, &b.IsActive, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrBindingNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "GetActiveBinding", "query device_bindings")
	}

	if err := json.Unmarshal(rawMappings, &b.CustomMappings); err != nil {
		s.logger.Warn("Discarding malformed custom mappings", "binding_id", b.ID, "error", err)
		b.CustomMappings = nil
	}
	return &b, nil
}

// GetConnectivityProfile returns one connectivity profile by id, or
// ErrProfileNotFound.
func (s *Store) GetConnectivityProfile(ctx context.Context, tenantID, id string) (*types.ConnectivityProfile, error) {
	const q = `
		SELECT id, tenant_id, name, device_profile_id,
		       COALESCE(asset_template_id, ''), COALESCE(rule_chain_id, ''),
		       COALESCE(mappings, '[]')
		FROM connectivity_profiles
		WHERE tenant_id = $1 AND id = $2`

	var (
		p           types.ConnectivityProfile
		rawMappings []byte
	)
	err := s.db.QueryRowContext(ctx, q, tenantID, id).Scan(
		&p.ID, &p.TenantID, &p.Name, &p.DeviceProfileID,
		&p.AssetTemplateID, &p.RuleChainID, &rawMappings,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrProfileNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "GetConnectivityProfile", "query connectivity_profiles")
	}

	if err := json.Unmarshal(rawMappings, &p.Mappings); err != nil {
		s.logger.Warn("Discarding malformed profile mappings", "profile_id", p.ID, "error", err)
		p.Mappings = nil
	}
	return &p, nil
}

// GetDeviceProfile returns one device profile by id, or ErrProfileNotFound.
func (s *Store) GetDeviceProfile(ctx context.Context, tenantID, id string) (*types.DeviceProfile, error) {
	const q = `
		SELECT id, tenant_id, name, transport_type,
		       COALESCE(telemetry_schema, '{}'), COALESCE(default_rule_chain_id, '')
		FROM device_profiles
		WHERE tenant_id = $1 AND id = $2`

	var (
		p         types.DeviceProfile
		rawSchema []byte
	)
	err := s.db.QueryRowContext(ctx, q, tenantID, id).Scan(
		&p.ID, &p.TenantID, &p.Name, &p.TransportType, &rawSchema, &p.DefaultRuleChainID,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrProfileNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "GetDeviceProfile", "query device_profiles")
	}

	if err := json.Unmarshal(rawSchema, &p.TelemetrySchema); err != nil {
		p.TelemetrySchema = nil
	}
	return &p, nil
}

// GetTwin returns one digital twin instance by id, or ErrTwinNotFound.
func (s *Store) GetTwin(ctx context.Context, tenantID, id string) (*types.DigitalTwinInstance, error) {
	const q = `
		SELECT id, tenant_id, name, root_asset_id, COALESCE(component_ids, '[]')
		FROM digital_twin_instances
		WHERE tenant_id = $1 AND id = $2`

	var (
		t        types.DigitalTwinInstance
		rawComps []byte
	)
	err := s.db.QueryRowContext(ctx, q, tenantID, id).Scan(
		&t.ID, &t.TenantID, &t.Name, &t.RootAssetID, &rawComps,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTwinNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "Store", "GetTwin", "query digital_twin_instances")
	}

	if err := json.Unmarshal(rawComps, &t.ComponentIDs); err != nil {
		t.ComponentIDs = nil
	}
	return &t, nil
}
