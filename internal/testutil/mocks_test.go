package testutil

import (
	"context"
	"testing"

	"github.com/heimdall-dns/heimdall/internal/core/domain"
)

func TestMockCacheInvalidator(t *testing.T) {
	ctx := context.Background()

	inv := &MockCacheInvalidator{}
	if err := inv.Invalidate(ctx, "example.com.", domain.TypeA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inv.Invalidated) != 1 || inv.Invalidated[0] != "example.com." {
		t.Errorf("expected invalidated name to be recorded, got %v", inv.Invalidated)
	}
	if err := inv.Ping(ctx); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}

	inv.FailInvalidate = true
	if err := inv.Invalidate(ctx, "example.com.", domain.TypeA); err == nil {
		t.Error("expected error from failed invalidate")
	}

	inv.FailPing = true
	if err := inv.Ping(ctx); err == nil {
		t.Error("expected error from failed ping")
	}
}
