package testutil

import (
	"context"
	"errors"

	"github.com/heimdall-dns/heimdall/internal/core/domain"
)

// MockCacheInvalidator implements ports.CacheInvalidator for testing.
type MockCacheInvalidator struct {
	Invalidated   []string
	FailInvalidate bool
	FailPing      bool
}

func (m *MockCacheInvalidator) Invalidate(_ context.Context, name string, _ domain.RecordType) error {
	if m.FailInvalidate {
		return errors.New("invalidate failed")
	}
	m.Invalidated = append(m.Invalidated, name)
	return nil
}

func (m *MockCacheInvalidator) Ping(_ context.Context) error {
	if m.FailPing {
		return errors.New("ping failed")
	}
	return nil
}
