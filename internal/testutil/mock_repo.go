package testutil

import (
	"context"

	"github.com/heimdall-dns/heimdall/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockRepo is a testify mock satisfying ports.ZoneRepository.
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) GetZone(ctx context.Context, name string) (*domain.Zone, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Zone), args.Error(1)
}

func (m *MockRepo) GetRecords(ctx context.Context, name string, qType domain.RecordType) ([]domain.Record, error) {
	args := m.Called(name, qType)
	return args.Get(0).([]domain.Record), args.Error(1)
}

func (m *MockRepo) GetIPsForName(ctx context.Context, name string) ([]string, error) {
	args := m.Called(name)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRepo) GetRecord(ctx context.Context, id string, zoneID string) (*domain.Record, error) {
	args := m.Called(id, zoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Record), args.Error(1)
}

func (m *MockRepo) ListRecordsForZone(ctx context.Context, zoneID string) ([]domain.Record, error) {
	args := m.Called(zoneID)
	return args.Get(0).([]domain.Record), args.Error(1)
}

func (m *MockRepo) CreateZoneWithRecords(ctx context.Context, zone *domain.Zone, records []domain.Record) error {
	args := m.Called(zone, records)
	return args.Error(0)
}

func (m *MockRepo) CreateRecord(ctx context.Context, record *domain.Record) error {
	args := m.Called(record)
	return args.Error(0)
}

func (m *MockRepo) ListZones(ctx context.Context) ([]domain.Zone, error) {
	args := m.Called()
	return args.Get(0).([]domain.Zone), args.Error(1)
}

func (m *MockRepo) DeleteZone(ctx context.Context, zoneID string) error {
	args := m.Called(zoneID)
	return args.Error(0)
}

func (m *MockRepo) DeleteRecord(ctx context.Context, recordID string, zoneID string) error {
	args := m.Called(recordID, zoneID)
	return args.Error(0)
}

func (m *MockRepo) DeleteRecordsByNameAndType(ctx context.Context, zoneID string, name string, qType domain.RecordType) error {
	args := m.Called(zoneID, name, qType)
	return args.Error(0)
}

func (m *MockRepo) DeleteRecordsByName(ctx context.Context, zoneID string, name string) error {
	args := m.Called(zoneID, name)
	return args.Error(0)
}

func (m *MockRepo) DeleteRecordSpecific(ctx context.Context, zoneID string, name string, qType domain.RecordType, content string) error {
	args := m.Called(zoneID, name, qType, content)
	return args.Error(0)
}

func (m *MockRepo) RecordZoneChange(ctx context.Context, change *domain.ZoneChange) error {
	args := m.Called(change)
	return args.Error(0)
}

func (m *MockRepo) ListZoneChanges(ctx context.Context, zoneID string, fromSerial uint32) ([]domain.ZoneChange, error) {
	args := m.Called(zoneID, fromSerial)
	return args.Get(0).([]domain.ZoneChange), args.Error(1)
}

func (m *MockRepo) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepo) CreateKey(ctx context.Context, key *domain.DNSSECKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockRepo) ListKeysForZone(ctx context.Context, zoneID string) ([]domain.DNSSECKey, error) {
	args := m.Called(zoneID)
	return args.Get(0).([]domain.DNSSECKey), args.Error(1)
}

func (m *MockRepo) UpdateKey(ctx context.Context, key *domain.DNSSECKey) error {
	args := m.Called(key)
	return args.Error(0)
}

// MockZoneService is a testify mock satisfying ports.ZoneService.
type MockZoneService struct {
	mock.Mock
}

func (m *MockZoneService) CreateZone(ctx context.Context, zone *domain.Zone) error {
	args := m.Called(zone)
	return args.Error(0)
}

func (m *MockZoneService) CreateRecord(ctx context.Context, record *domain.Record) error {
	args := m.Called(record)
	return args.Error(0)
}

func (m *MockZoneService) Resolve(ctx context.Context, name string, qType domain.RecordType, clientIP string) ([]domain.Record, error) {
	args := m.Called(name, qType, clientIP)
	return args.Get(0).([]domain.Record), args.Error(1)
}

func (m *MockZoneService) ListZones(ctx context.Context) ([]domain.Zone, error) {
	args := m.Called()
	return args.Get(0).([]domain.Zone), args.Error(1)
}

func (m *MockZoneService) ListRecordsForZone(ctx context.Context, zoneID string) ([]domain.Record, error) {
	args := m.Called(zoneID)
	return args.Get(0).([]domain.Record), args.Error(1)
}

func (m *MockZoneService) DeleteZone(ctx context.Context, zoneID string) error {
	args := m.Called(zoneID)
	return args.Error(0)
}

func (m *MockZoneService) DeleteRecord(ctx context.Context, recordID string, zoneID string) error {
	args := m.Called(recordID, zoneID)
	return args.Error(0)
}

func (m *MockZoneService) HealthCheck(ctx context.Context) map[string]error {
	args := m.Called()
	return args.Get(0).(map[string]error)
}
