package testutil

import (
	"context"
	"testing"

	"github.com/heimdall-dns/heimdall/internal/core/domain"
)

func TestMockRepo_GetZone(t *testing.T) {
	m := new(MockRepo)
	m.On("GetZone", "test").Return(&domain.Zone{}, nil)
	_, _ = m.GetZone(context.Background(), "test")
}

func TestMockRepo_GetRecord(t *testing.T) {
	m := new(MockRepo)
	m.On("GetRecord", "id", "zone").Return(&domain.Record{}, nil)
	_, _ = m.GetRecord(context.Background(), "id", "zone")
}

func TestMockRepo_ListRecordsForZone(t *testing.T) {
	m := new(MockRepo)
	m.On("ListRecordsForZone", "zone").Return([]domain.Record{}, nil)
	_, _ = m.ListRecordsForZone(context.Background(), "zone")
}

func TestMockRepo_CreateZoneWithRecords(t *testing.T) {
	m := new(MockRepo)
	m.On("CreateZoneWithRecords", &domain.Zone{}, []domain.Record{}).Return(nil)
	_ = m.CreateZoneWithRecords(context.Background(), &domain.Zone{}, []domain.Record{})
}

func TestMockRepo_CreateRecord(t *testing.T) {
	m := new(MockRepo)
	m.On("CreateRecord", &domain.Record{}).Return(nil)
	_ = m.CreateRecord(context.Background(), &domain.Record{})
}

func TestMockRepo_ListZones(t *testing.T) {
	m := new(MockRepo)
	m.On("ListZones").Return([]domain.Zone{}, nil)
	_, _ = m.ListZones(context.Background())
}

func TestMockRepo_DeleteZone(t *testing.T) {
	m := new(MockRepo)
	m.On("DeleteZone", "zone").Return(nil)
	_ = m.DeleteZone(context.Background(), "zone")
}

func TestMockRepo_DeleteRecord(t *testing.T) {
	m := new(MockRepo)
	m.On("DeleteRecord", "record", "zone").Return(nil)
	_ = m.DeleteRecord(context.Background(), "record", "zone")
}

func TestMockRepo_DeleteRecordsByNameAndType(t *testing.T) {
	m := new(MockRepo)
	m.On("DeleteRecordsByNameAndType", "zone", "name", domain.TypeA).Return(nil)
	_ = m.DeleteRecordsByNameAndType(context.Background(), "zone", "name", domain.TypeA)
}

func TestMockRepo_DeleteRecordsByName(t *testing.T) {
	m := new(MockRepo)
	m.On("DeleteRecordsByName", "zone", "name").Return(nil)
	_ = m.DeleteRecordsByName(context.Background(), "zone", "name")
}

func TestMockRepo_DeleteRecordSpecific(t *testing.T) {
	m := new(MockRepo)
	m.On("DeleteRecordSpecific", "zone", "name", domain.TypeA, "content").Return(nil)
	_ = m.DeleteRecordSpecific(context.Background(), "zone", "name", domain.TypeA, "content")
}

func TestMockRepo_RecordZoneChange(t *testing.T) {
	m := new(MockRepo)
	m.On("RecordZoneChange", &domain.ZoneChange{}).Return(nil)
	_ = m.RecordZoneChange(context.Background(), &domain.ZoneChange{})
}

func TestMockRepo_ListZoneChanges(t *testing.T) {
	m := new(MockRepo)
	m.On("ListZoneChanges", "zone", uint32(1)).Return([]domain.ZoneChange{}, nil)
	_, _ = m.ListZoneChanges(context.Background(), "zone", 1)
}

func TestMockRepo_Ping(t *testing.T) {
	m := new(MockRepo)
	m.On("Ping").Return(nil)
	_ = m.Ping(context.Background())
}

func TestMockRepo_DNSSECKeys(t *testing.T) {
	m := new(MockRepo)
	key := &domain.DNSSECKey{ID: "k1", ZoneID: "zone"}
	m.On("CreateKey", key).Return(nil)
	m.On("ListKeysForZone", "zone").Return([]domain.DNSSECKey{*key}, nil)
	m.On("UpdateKey", key).Return(nil)

	_ = m.CreateKey(context.Background(), key)
	keys, _ := m.ListKeysForZone(context.Background(), "zone")
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}
	_ = m.UpdateKey(context.Background(), key)
}
