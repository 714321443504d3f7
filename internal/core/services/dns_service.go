package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/heimdall-dns/heimdall/internal/core/domain"
	"github.com/heimdall-dns/heimdall/internal/core/ports"
)

type zoneService struct {
	repo   ports.ZoneRepository
	cache  ports.CacheInvalidator // Used for cross-node invalidation
	logger *slog.Logger
}

// NewZoneService wires a ZoneService on top of an optional durable
// ZoneRepository and an optional cache invalidator. repo may be nil when
// the server runs entirely out of in-memory/zone-file state.
func NewZoneService(repo ports.ZoneRepository, cache ports.CacheInvalidator) ports.ZoneService {
	return &zoneService{
		repo:   repo,
		cache:  cache,
		logger: slog.Default(),
	}
}

func (s *zoneService) CreateZone(ctx context.Context, zone *domain.Zone) error {
	zone.ID = uuid.New().String()
	zone.CreatedAt = time.Now()
	zone.UpdatedAt = time.Now()

	if !strings.HasSuffix(zone.Name, ".") {
		zone.Name += "."
	}

	soaContent := fmt.Sprintf("ns1.%s admin.%s %s 3600 900 604800 86400",
		zone.Name, zone.Name, time.Now().Format("2006010201"))

	soaRecord := &domain.Record{
		ID:        uuid.New().String(),
		ZoneID:    zone.ID,
		Name:      zone.Name,
		Type:      domain.TypeSOA,
		Content:   soaContent,
		TTL:       3600,
		CreatedAt: zone.CreatedAt,
		UpdatedAt: zone.UpdatedAt,
	}

	nsRecord := &domain.Record{
		ID:        uuid.New().String(),
		ZoneID:    zone.ID,
		Name:      zone.Name,
		Type:      domain.TypeNS,
		Content:   "ns1." + zone.Name,
		TTL:       3600,
		CreatedAt: zone.CreatedAt,
		UpdatedAt: zone.UpdatedAt,
	}

	if s.repo == nil {
		s.audit("CREATE_ZONE", zone.Name)
		return nil
	}

	if err := s.repo.CreateZoneWithRecords(ctx, zone, []domain.Record{*soaRecord, *nsRecord}); err != nil {
		return err
	}

	s.audit("CREATE_ZONE", zone.Name)
	return nil
}

func (s *zoneService) CreateRecord(ctx context.Context, record *domain.Record) error {
	record.ID = uuid.New().String()
	record.CreatedAt = time.Now()
	record.UpdatedAt = time.Now()

	if record.TTL < 60 {
		record.TTL = 60
	}

	if s.repo != nil {
		if err := s.repo.CreateRecord(ctx, record); err != nil {
			return err
		}
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, record.Name, record.Type); err != nil {
			s.logger.Warn("failed to invalidate cache after record creation", "name", record.Name, "type", record.Type, "error", err)
		}
	}

	s.audit("CREATE_RECORD", fmt.Sprintf("%s record for %s", record.Type, record.Name))
	return nil
}

func (s *zoneService) audit(action, details string) {
	s.logger.Info("zone mutation", "action", action, "details", details)
}

// Resolve looks up records for name/qType, falling back to wildcard
// matching by stripping leading labels left-to-right
// ("a.b.example.com." -> "*.b.example.com." -> "*.example.com.").
func (s *zoneService) Resolve(ctx context.Context, name string, qType domain.RecordType, clientIP string) ([]domain.Record, error) {
	if s.repo == nil {
		return nil, nil
	}

	records, err := s.recordsForName(ctx, name, qType)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		return records, nil
	}

	labels := strings.Split(strings.TrimSuffix(name, "."), ".")
	for i := 0; i < len(labels)-1; i++ {
		wildcardName := "*." + strings.Join(labels[i+1:], ".") + "."

		wildcardRecords, err := s.recordsForName(ctx, wildcardName, qType)
		if err != nil {
			return nil, err
		}
		if len(wildcardRecords) > 0 {
			for j := range wildcardRecords {
				wildcardRecords[j].Name = name
			}
			return wildcardRecords, nil
		}
	}

	return nil, nil
}

func (s *zoneService) recordsForName(ctx context.Context, name string, qType domain.RecordType) ([]domain.Record, error) {
	return s.repo.GetRecords(ctx, name, qType)
}

func (s *zoneService) ListZones(ctx context.Context) ([]domain.Zone, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListZones(ctx)
}

func (s *zoneService) ListRecordsForZone(ctx context.Context, zoneID string) ([]domain.Record, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListRecordsForZone(ctx, zoneID)
}

func (s *zoneService) DeleteZone(ctx context.Context, zoneID string) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.DeleteZone(ctx, zoneID); err != nil {
		return err
	}
	s.audit("DELETE_ZONE", zoneID)
	return nil
}

func (s *zoneService) DeleteRecord(ctx context.Context, recordID string, zoneID string) error {
	if s.repo == nil {
		return nil
	}

	record, err := s.repo.GetRecord(ctx, recordID, zoneID)
	if err != nil {
		return fmt.Errorf("failed to fetch record before deletion: %w", err)
	}

	if record != nil && s.cache != nil {
		if errInv := s.cache.Invalidate(ctx, record.Name, record.Type); errInv != nil {
			s.logger.Warn("failed to invalidate cache before record deletion", "name", record.Name, "type", record.Type, "error", errInv)
		}
	}

	if err := s.repo.DeleteRecord(ctx, recordID, zoneID); err != nil {
		return err
	}

	subject := "unknown"
	if record != nil {
		subject = record.Name
	}
	s.audit("DELETE_RECORD", subject)
	return nil
}

func (s *zoneService) HealthCheck(ctx context.Context) map[string]error {
	res := make(map[string]error)

	// Bail out of pings if the caller's deadline is too tight, so a
	// Kubernetes probe doesn't time out the whole request under load.
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) < 500*time.Millisecond {
			s.logger.Warn("skipping health check pings due to tight deadline")
			return res
		}
	}

	if s.repo != nil {
		res["zone_repository"] = s.repo.Ping(ctx)
	}
	if s.cache != nil {
		res["cache"] = s.cache.Ping(ctx)
	}
	return res
}
