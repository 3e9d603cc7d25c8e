package services_test

import (
	"context"
	"testing"

	"famforge/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithFamily(ctx, "Pfam-M_000042")
	ctx = services.WithStage(ctx, "liftover")
	ctx = services.WithRunID(ctx, "run-123")

	if id, ok := services.FamilyFromContext(ctx); !ok || id != "Pfam-M_000042" {
		t.Fatalf("unexpected family: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "liftover" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RunIDFromContext(ctx); !ok || rid != "run-123" {
		t.Fatalf("unexpected run id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithFamily(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.FamilyFromContext(ctx); ok {
		t.Fatal("expected no family value")
	}
}
