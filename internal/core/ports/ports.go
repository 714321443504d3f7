// Package ports defines the boundaries between the DNS core and its
// adapters (persistence, cache invalidation).
package ports

import (
	"context"

	"github.com/heimdall-dns/heimdall/internal/core/domain"
)

// ZoneRepository is the optional durable persistence backend for zones and
// their records. The primary store consulted on every query is the
// in-memory zone store (internal/zone); a ZoneRepository, when configured,
// is loaded at startup and written through on every mutating operation so
// zone state survives a restart.
type ZoneRepository interface {
	GetZone(ctx context.Context, name string) (*domain.Zone, error)
	ListZones(ctx context.Context) ([]domain.Zone, error)
	ListRecordsForZone(ctx context.Context, zoneID string) ([]domain.Record, error)
	GetRecord(ctx context.Context, id string, zoneID string) (*domain.Record, error)
	// GetRecords is the hot lookup path: records at name, optionally
	// filtered to a single type (qType == "" matches every type).
	GetRecords(ctx context.Context, name string, qType domain.RecordType) ([]domain.Record, error)
	// GetIPsForName returns only the A-record addresses at name, for glue
	// record resolution.
	GetIPsForName(ctx context.Context, name string) ([]string, error)
	CreateZoneWithRecords(ctx context.Context, zone *domain.Zone, records []domain.Record) error
	CreateRecord(ctx context.Context, record *domain.Record) error
	DeleteZone(ctx context.Context, zoneID string) error
	DeleteRecord(ctx context.Context, recordID string, zoneID string) error
	DeleteRecordsByNameAndType(ctx context.Context, zoneID string, name string, qType domain.RecordType) error
	DeleteRecordsByName(ctx context.Context, zoneID string, name string) error
	DeleteRecordSpecific(ctx context.Context, zoneID string, name string, qType domain.RecordType, content string) error
	RecordZoneChange(ctx context.Context, change *domain.ZoneChange) error
	ListZoneChanges(ctx context.Context, zoneID string, fromSerial uint32) ([]domain.ZoneChange, error)
	Ping(ctx context.Context) error

	// DNSSEC key management, for zones this server signs as authoritative.
	CreateKey(ctx context.Context, key *domain.DNSSECKey) error
	ListKeysForZone(ctx context.Context, zoneID string) ([]domain.DNSSECKey, error)
	UpdateKey(ctx context.Context, key *domain.DNSSECKey) error
}

// ZoneService defines the core zone-management operations exposed to the
// admin surface: create/list/delete zones and records, re-importing a
// zone file, and a liveness check across configured backends.
type ZoneService interface {
	CreateZone(ctx context.Context, zone *domain.Zone) error
	CreateRecord(ctx context.Context, record *domain.Record) error
	Resolve(ctx context.Context, name string, qType domain.RecordType, clientIP string) ([]domain.Record, error)
	ListZones(ctx context.Context) ([]domain.Zone, error)
	ListRecordsForZone(ctx context.Context, zoneID string) ([]domain.Record, error)
	DeleteZone(ctx context.Context, zoneID string) error
	DeleteRecord(ctx context.Context, recordID string, zoneID string) error
	HealthCheck(ctx context.Context) map[string]error
}

// CacheInvalidator defines the interface for triggering cross-node cache
// invalidation, e.g. via a Redis pub/sub channel.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, name string, qType domain.RecordType) error
	Ping(ctx context.Context) error
}
