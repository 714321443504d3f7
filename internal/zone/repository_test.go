package zone

import (
	"context"
	"errors"
	"testing"

	"github.com/heimdall-dns/heimdall/internal/core/domain"
)

// fakeDurable is a minimal in-memory ports.ZoneRepository double used to
// verify StoreRepository's write-through and startup-seed behavior without
// pulling in a real Postgres connection.
type fakeDurable struct {
	zones      []domain.Zone
	recordsets map[string][]domain.Record

	createZoneCalls int
	deleteZoneCalls int
	createRecCalls  int
	pingErr         error
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{recordsets: make(map[string][]domain.Record)}
}

func (f *fakeDurable) GetZone(context.Context, string) (*domain.Zone, error) { return nil, nil }
func (f *fakeDurable) ListZones(context.Context) ([]domain.Zone, error)      { return f.zones, nil }
func (f *fakeDurable) ListRecordsForZone(_ context.Context, zoneID string) ([]domain.Record, error) {
	return f.recordsets[zoneID], nil
}
func (f *fakeDurable) GetRecord(context.Context, string, string) (*domain.Record, error) {
	return nil, nil
}
func (f *fakeDurable) GetRecords(context.Context, string, domain.RecordType) ([]domain.Record, error) {
	return nil, nil
}
func (f *fakeDurable) GetIPsForName(context.Context, string) ([]string, error) { return nil, nil }
func (f *fakeDurable) CreateZoneWithRecords(_ context.Context, z *domain.Zone, records []domain.Record) error {
	f.createZoneCalls++
	f.zones = append(f.zones, *z)
	f.recordsets[z.ID] = records
	return nil
}
func (f *fakeDurable) CreateRecord(_ context.Context, record *domain.Record) error {
	f.createRecCalls++
	f.recordsets[record.ZoneID] = append(f.recordsets[record.ZoneID], *record)
	return nil
}
func (f *fakeDurable) DeleteZone(_ context.Context, zoneID string) error {
	f.deleteZoneCalls++
	delete(f.recordsets, zoneID)
	return nil
}
func (f *fakeDurable) DeleteRecord(context.Context, string, string) error                     { return nil }
func (f *fakeDurable) DeleteRecordsByNameAndType(context.Context, string, string, domain.RecordType) error {
	return nil
}
func (f *fakeDurable) DeleteRecordsByName(context.Context, string, string) error { return nil }
func (f *fakeDurable) DeleteRecordSpecific(context.Context, string, string, domain.RecordType, string) error {
	return nil
}
func (f *fakeDurable) RecordZoneChange(context.Context, *domain.ZoneChange) error { return nil }
func (f *fakeDurable) ListZoneChanges(context.Context, string, uint32) ([]domain.ZoneChange, error) {
	return nil, nil
}
func (f *fakeDurable) Ping(context.Context) error { return f.pingErr }
func (f *fakeDurable) CreateKey(context.Context, *domain.DNSSECKey) error { return nil }
func (f *fakeDurable) ListKeysForZone(context.Context, string) ([]domain.DNSSECKey, error) {
	return nil, nil
}
func (f *fakeDurable) UpdateKey(context.Context, *domain.DNSSECKey) error { return nil }

func TestStoreRepositoryCreateZoneWritesThroughAndIsQueryable(t *testing.T) {
	durable := newFakeDurable()
	repo := NewStoreRepository(NewStore(), durable)
	ctx := context.Background()

	z := &domain.Zone{Name: "example.com."}
	records := []domain.Record{{Name: "example.com.", Type: domain.TypeA, Content: "192.0.2.1", TTL: 300}}
	if err := repo.CreateZoneWithRecords(ctx, z, records); err != nil {
		t.Fatalf("CreateZoneWithRecords: %v", err)
	}
	if z.ID == "" {
		t.Fatal("expected CreateZoneWithRecords to assign a zone ID")
	}
	if durable.createZoneCalls != 1 {
		t.Fatalf("expected 1 write-through call, got %d", durable.createZoneCalls)
	}

	got, err := repo.GetRecords(ctx, "example.com.", domain.TypeA)
	if err != nil || len(got) != 1 || got[0].Content != "192.0.2.1" {
		t.Fatalf("expected the record to be queryable from the store, got %v, err %v", got, err)
	}
}

func TestStoreRepositoryLoadFromDurableSeedsStore(t *testing.T) {
	durable := newFakeDurable()
	durable.zones = []domain.Zone{{ID: "z1", Name: "example.net."}}
	durable.recordsets["z1"] = []domain.Record{{Name: "example.net.", Type: domain.TypeA, Content: "198.51.100.1"}}

	repo := NewStoreRepository(NewStore(), durable)
	if err := repo.LoadFromDurable(context.Background()); err != nil {
		t.Fatalf("LoadFromDurable: %v", err)
	}

	zones, err := repo.ListZones(context.Background())
	if err != nil || len(zones) != 1 || zones[0].Name != "example.net." {
		t.Fatalf("expected the durable zone to be loaded, got %v, err %v", zones, err)
	}

	ips, err := repo.GetIPsForName(context.Background(), "example.net.")
	if err != nil || len(ips) != 1 || ips[0] != "198.51.100.1" {
		t.Fatalf("expected the seeded A record to resolve, got %v, err %v", ips, err)
	}
}

func TestStoreRepositoryDeleteRecordsByNameAndType(t *testing.T) {
	repo := NewStoreRepository(NewStore(), nil)
	ctx := context.Background()

	z := &domain.Zone{Name: "example.org."}
	records := []domain.Record{
		{Name: "www.example.org.", Type: domain.TypeA, Content: "203.0.113.1"},
		{Name: "www.example.org.", Type: domain.TypeAAAA, Content: "2001:db8::1"},
	}
	if err := repo.CreateZoneWithRecords(ctx, z, records); err != nil {
		t.Fatalf("CreateZoneWithRecords: %v", err)
	}

	if err := repo.DeleteRecordsByNameAndType(ctx, z.ID, "www.example.org.", domain.TypeA); err != nil {
		t.Fatalf("DeleteRecordsByNameAndType: %v", err)
	}

	remaining, err := repo.ListRecordsForZone(ctx, z.ID)
	if err != nil || len(remaining) != 1 || remaining[0].Type != domain.TypeAAAA {
		t.Fatalf("expected only the AAAA record to remain, got %v, err %v", remaining, err)
	}
}

func TestStoreRepositoryDeleteZoneRemovesFromStoreAndDurable(t *testing.T) {
	durable := newFakeDurable()
	repo := NewStoreRepository(NewStore(), durable)
	ctx := context.Background()

	z := &domain.Zone{Name: "example.io."}
	if err := repo.CreateZoneWithRecords(ctx, z, nil); err != nil {
		t.Fatalf("CreateZoneWithRecords: %v", err)
	}
	if err := repo.DeleteZone(ctx, z.ID); err != nil {
		t.Fatalf("DeleteZone: %v", err)
	}

	if durable.deleteZoneCalls != 1 {
		t.Fatalf("expected the delete to write through, got %d calls", durable.deleteZoneCalls)
	}
	got, err := repo.GetZone(ctx, "example.io.")
	if err != nil || got != nil {
		t.Fatalf("expected the zone to be gone after delete, got %v, err %v", got, err)
	}
}

func TestStoreRepositoryPingDelegatesToDurable(t *testing.T) {
	durable := newFakeDurable()
	durable.pingErr = errors.New("unreachable")
	repo := NewStoreRepository(NewStore(), durable)
	if err := repo.Ping(context.Background()); err == nil {
		t.Fatal("expected Ping to surface the durable repository's error")
	}

	repoNoDurable := NewStoreRepository(NewStore(), nil)
	if err := repoNoDurable.Ping(context.Background()); err != nil {
		t.Fatalf("expected Ping to succeed with no durable repository configured, got %v", err)
	}
}

func TestStoreRepositoryKeyLifecycle(t *testing.T) {
	repo := NewStoreRepository(NewStore(), nil)
	ctx := context.Background()

	key := &domain.DNSSECKey{ZoneID: "zone-1", KeyType: "KSK", Active: true}
	if err := repo.CreateKey(ctx, key); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if key.ID == "" {
		t.Fatal("expected CreateKey to assign an ID")
	}

	key.Active = false
	if err := repo.UpdateKey(ctx, key); err != nil {
		t.Fatalf("UpdateKey: %v", err)
	}

	keys, err := repo.ListKeysForZone(ctx, "zone-1")
	if err != nil || len(keys) != 1 || keys[0].Active {
		t.Fatalf("expected the key update to be visible, got %v, err %v", keys, err)
	}
}
