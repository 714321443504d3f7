package zone

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/heimdall-dns/heimdall/internal/core/domain"
	"github.com/heimdall-dns/heimdall/internal/core/ports"
)

// StoreRepository adapts the in-memory Store to ports.ZoneRepository, so it
// becomes the primary store server.Server talks to on every query, rather
// than requiring server.go to special-case the zone engine. An optional
// durable ports.ZoneRepository is written through on every mutation and
// used to seed the store at startup (LoadFromDurable).
type StoreRepository struct {
	store   *Store
	durable ports.ZoneRepository // optional; nil means in-memory/zone-file only

	mu         sync.Mutex
	idToOrigin map[string]string              // zone ID -> origin, since the ZoneRepository surface is ID-keyed
	changes    map[string][]domain.ZoneChange // zone ID -> IXFR history, append-only
	keys       map[string][]domain.DNSSECKey  // zone ID -> DNSSEC signing keys
}

var _ ports.ZoneRepository = (*StoreRepository)(nil)

// NewStoreRepository wraps store as a ports.ZoneRepository. durable may be
// nil for a purely in-memory/zone-file deployment.
func NewStoreRepository(store *Store, durable ports.ZoneRepository) *StoreRepository {
	return &StoreRepository{
		store:      store,
		durable:    durable,
		idToOrigin: make(map[string]string),
		changes:    make(map[string][]domain.ZoneChange),
		keys:       make(map[string][]domain.DNSSECKey),
	}
}

// LoadZoneFile parses an RFC 1035 master file and registers it in the
// store, assigning it a fresh zone ID so the rest of the ports.ZoneRepository
// surface (which is ID-keyed) can address it afterwards.
func (r *StoreRepository) LoadZoneFile(rd io.Reader) (*Zone, error) {
	z, err := LoadMasterFile(rd)
	if err != nil {
		return nil, err
	}
	if z.Meta.ID == "" {
		z.Meta.ID = uuid.New().String()
	}
	r.register(z)
	return z, nil
}

// LoadFromDurable seeds the store from the configured durable repository,
// if any, so zones created through the admin surface in a previous run are
// available again after a restart.
func (r *StoreRepository) LoadFromDurable(ctx context.Context) error {
	if r.durable == nil {
		return nil
	}
	zones, err := r.durable.ListZones(ctx)
	if err != nil {
		return fmt.Errorf("loading zones from durable repository: %w", err)
	}
	for i := range zones {
		meta := zones[i]
		records, err := r.durable.ListRecordsForZone(ctx, meta.ID)
		if err != nil {
			return fmt.Errorf("loading records for zone %s: %w", meta.Name, err)
		}
		r.register(NewZone(meta).WithRecords(records))
	}
	return nil
}

func (r *StoreRepository) register(z *Zone) {
	r.store.AddZone(z)
	r.mu.Lock()
	r.idToOrigin[z.Meta.ID] = z.Origin
	r.mu.Unlock()
}

func (r *StoreRepository) originForID(zoneID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	origin, ok := r.idToOrigin[zoneID]
	return origin, ok
}

// GetZone returns the zone registered at the exact origin name, or nil if
// none is loaded (not an error — callers walk labels upward themselves).
func (r *StoreRepository) GetZone(_ context.Context, name string) (*domain.Zone, error) {
	z := r.store.GetZone(name)
	if z == nil {
		return nil, nil
	}
	meta := z.Meta
	return &meta, nil
}

func (r *StoreRepository) ListZones(_ context.Context) ([]domain.Zone, error) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.idToOrigin))
	for id := range r.idToOrigin {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	zones := make([]domain.Zone, 0, len(ids))
	for _, id := range ids {
		origin, ok := r.originForID(id)
		if !ok {
			continue
		}
		if z := r.store.GetZone(origin); z != nil {
			zones = append(zones, z.Meta)
		}
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Name < zones[j].Name })
	return zones, nil
}

func (r *StoreRepository) ListRecordsForZone(_ context.Context, zoneID string) ([]domain.Record, error) {
	origin, ok := r.originForID(zoneID)
	if !ok {
		return nil, nil
	}
	z := r.store.GetZone(origin)
	if z == nil {
		return nil, nil
	}
	return z.AllRecords(), nil
}

func (r *StoreRepository) GetRecord(_ context.Context, id string, zoneID string) (*domain.Record, error) {
	origin, ok := r.originForID(zoneID)
	if !ok {
		return nil, nil
	}
	z := r.store.GetZone(origin)
	if z == nil {
		return nil, nil
	}
	for _, rec := range z.AllRecords() {
		if rec.ID == id {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

// GetRecords is the hot lookup path: it finds the closest enclosing zone
// for name (so a query need not be the zone's own origin) and returns the
// records at that exact name, optionally filtered to qType.
func (r *StoreRepository) GetRecords(_ context.Context, name string, qType domain.RecordType) ([]domain.Record, error) {
	z := r.store.FindZone(name)
	if z == nil {
		return nil, nil
	}
	return filterType(z.recordsAt(name), qType), nil
}

func (r *StoreRepository) GetIPsForName(_ context.Context, name string) ([]string, error) {
	z := r.store.FindZone(name)
	if z == nil {
		return nil, nil
	}
	a := filterType(z.recordsAt(name), domain.TypeA)
	ips := make([]string, 0, len(a))
	for _, rec := range a {
		ips = append(ips, rec.Content)
	}
	return ips, nil
}

func (r *StoreRepository) CreateZoneWithRecords(ctx context.Context, z *domain.Zone, records []domain.Record) error {
	if z.ID == "" {
		z.ID = uuid.New().String()
	}
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.New().String()
		}
		records[i].ZoneID = z.ID
	}
	r.register(NewZone(*z).WithRecords(records))
	if r.durable != nil {
		if err := r.durable.CreateZoneWithRecords(ctx, z, records); err != nil {
			return fmt.Errorf("writing zone through to durable repository: %w", err)
		}
	}
	return nil
}

func (r *StoreRepository) CreateRecord(ctx context.Context, record *domain.Record) error {
	origin, ok := r.originForID(record.ZoneID)
	if !ok {
		return fmt.Errorf("zone %s not found", record.ZoneID)
	}
	existing := r.store.GetZone(origin)
	if existing == nil {
		return fmt.Errorf("zone %s not found", origin)
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	r.store.AddZone(existing.WithRecords(append(existing.AllRecords(), *record)))
	if r.durable != nil {
		if err := r.durable.CreateRecord(ctx, record); err != nil {
			return fmt.Errorf("writing record through to durable repository: %w", err)
		}
	}
	return nil
}

func (r *StoreRepository) DeleteZone(ctx context.Context, zoneID string) error {
	origin, ok := r.originForID(zoneID)
	if !ok {
		return nil
	}
	r.store.RemoveZone(origin)
	r.mu.Lock()
	delete(r.idToOrigin, zoneID)
	delete(r.changes, zoneID)
	delete(r.keys, zoneID)
	r.mu.Unlock()
	if r.durable != nil {
		if err := r.durable.DeleteZone(ctx, zoneID); err != nil {
			return fmt.Errorf("deleting zone through to durable repository: %w", err)
		}
	}
	return nil
}

func (r *StoreRepository) withFilteredRecords(zoneID string, keep func(domain.Record) bool) error {
	origin, ok := r.originForID(zoneID)
	if !ok {
		return nil
	}
	existing := r.store.GetZone(origin)
	if existing == nil {
		return nil
	}
	all := existing.AllRecords()
	out := make([]domain.Record, 0, len(all))
	for _, rec := range all {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	r.store.AddZone(existing.WithRecords(out))
	return nil
}

func (r *StoreRepository) DeleteRecord(ctx context.Context, recordID string, zoneID string) error {
	if err := r.withFilteredRecords(zoneID, func(rec domain.Record) bool { return rec.ID != recordID }); err != nil {
		return err
	}
	if r.durable != nil {
		if err := r.durable.DeleteRecord(ctx, recordID, zoneID); err != nil {
			return fmt.Errorf("deleting record through to durable repository: %w", err)
		}
	}
	return nil
}

func (r *StoreRepository) DeleteRecordsByNameAndType(ctx context.Context, zoneID string, name string, qType domain.RecordType) error {
	target := normalizeName(name)
	if err := r.withFilteredRecords(zoneID, func(rec domain.Record) bool {
		return !(normalizeName(rec.Name) == target && rec.Type == qType)
	}); err != nil {
		return err
	}
	if r.durable != nil {
		if err := r.durable.DeleteRecordsByNameAndType(ctx, zoneID, name, qType); err != nil {
			return fmt.Errorf("deleting records through to durable repository: %w", err)
		}
	}
	return nil
}

func (r *StoreRepository) DeleteRecordsByName(ctx context.Context, zoneID string, name string) error {
	target := normalizeName(name)
	if err := r.withFilteredRecords(zoneID, func(rec domain.Record) bool {
		return normalizeName(rec.Name) != target
	}); err != nil {
		return err
	}
	if r.durable != nil {
		if err := r.durable.DeleteRecordsByName(ctx, zoneID, name); err != nil {
			return fmt.Errorf("deleting records through to durable repository: %w", err)
		}
	}
	return nil
}

func (r *StoreRepository) DeleteRecordSpecific(ctx context.Context, zoneID string, name string, qType domain.RecordType, content string) error {
	target := normalizeName(name)
	if err := r.withFilteredRecords(zoneID, func(rec domain.Record) bool {
		return !(normalizeName(rec.Name) == target && rec.Type == qType && rec.Content == content)
	}); err != nil {
		return err
	}
	if r.durable != nil {
		if err := r.durable.DeleteRecordSpecific(ctx, zoneID, name, qType, content); err != nil {
			return fmt.Errorf("deleting record through to durable repository: %w", err)
		}
	}
	return nil
}

func (r *StoreRepository) RecordZoneChange(ctx context.Context, change *domain.ZoneChange) error {
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	r.mu.Lock()
	r.changes[change.ZoneID] = append(r.changes[change.ZoneID], *change)
	r.mu.Unlock()
	if r.durable != nil {
		if err := r.durable.RecordZoneChange(ctx, change); err != nil {
			return fmt.Errorf("recording zone change through to durable repository: %w", err)
		}
	}
	return nil
}

func (r *StoreRepository) ListZoneChanges(_ context.Context, zoneID string, fromSerial uint32) ([]domain.ZoneChange, error) {
	r.mu.Lock()
	all := append([]domain.ZoneChange(nil), r.changes[zoneID]...)
	r.mu.Unlock()

	out := make([]domain.ZoneChange, 0, len(all))
	for _, c := range all {
		if c.Serial > fromSerial {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Serial != out[j].Serial {
			return out[i].Serial < out[j].Serial
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *StoreRepository) Ping(ctx context.Context) error {
	if r.durable != nil {
		return r.durable.Ping(ctx)
	}
	return nil
}

func (r *StoreRepository) CreateKey(ctx context.Context, key *domain.DNSSECKey) error {
	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	r.mu.Lock()
	r.keys[key.ZoneID] = append(r.keys[key.ZoneID], *key)
	r.mu.Unlock()
	if r.durable != nil {
		if err := r.durable.CreateKey(ctx, key); err != nil {
			return fmt.Errorf("writing DNSSEC key through to durable repository: %w", err)
		}
	}
	return nil
}

func (r *StoreRepository) ListKeysForZone(_ context.Context, zoneID string) ([]domain.DNSSECKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DNSSECKey(nil), r.keys[zoneID]...), nil
}

func (r *StoreRepository) UpdateKey(ctx context.Context, key *domain.DNSSECKey) error {
	r.mu.Lock()
	keys := r.keys[key.ZoneID]
	for i := range keys {
		if keys[i].ID == key.ID {
			keys[i] = *key
			break
		}
	}
	r.mu.Unlock()
	if r.durable != nil {
		if err := r.durable.UpdateKey(ctx, key); err != nil {
			return fmt.Errorf("updating DNSSEC key through to durable repository: %w", err)
		}
	}
	return nil
}
