package workflow

import (
	"context"
	"encoding/json"
	"testing"

	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"github.com/shopspring/decimal"
)

func fileStockConflict(t *testing.T, ctx context.Context, local *models.Product, serverStock int64, severity models.ConflictSeverity) *models.Conflict {
	t.Helper()
	server := *local
	server.Stock = decimal.NewFromInt(serverStock)

	localSnap, err := json.Marshal(local)
	if err != nil {
		t.Fatalf("marshal local: %v", err)
	}
	serverSnap, err := json.Marshal(&server)
	if err != nil {
		t.Fatalf("marshal server: %v", err)
	}

	conflict, err := models.CreateConflict(ctx, &models.NewConflict{
		Kind:           models.ConflictKindStock,
		Collection:     models.CollectionProducts,
		EntityId:       local.ID,
		LocalSnapshot:  localSnap,
		ServerSnapshot: serverSnap,
		Severity:       severity,
	})
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}
	return conflict
}

func TestDetectConflictsFilesStockDivergences(t *testing.T) {
	ctx := setupStore(t)
	product := seedProduct(t, "Widget", 100, 20, 0, false)

	server := *product
	server.Stock = decimal.NewFromInt(8)
	matching := *seedProduct(t, "Other", 50, 5, 0, false)

	n, err := DetectConflicts(ctx, []*models.Product{&server, &matching})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if n != 1 {
		t.Fatalf("detected %d conflicts, want 1", n)
	}

	conflicts, err := models.GetConflicts(ctx, models.ConflictFilter{Status: models.ConflictStatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	// Diff of 12 units lands in the medium tier.
	if conflicts[0].Severity != models.ConflictSeverityMedium {
		t.Fatalf("severity = %s, want MEDIUM", conflicts[0].Severity)
	}
}

func TestResolveConflictUseServerAppliesSnapshotWithoutResync(t *testing.T) {
	ctx := setupStore(t)
	product := seedProduct(t, "Widget", 100, 20, 0, false)
	conflict := fileStockConflict(t, ctx, product, 8, models.ConflictSeverityMedium)

	if err := ResolveConflict(ctx, conflict.ID, models.ResolutionUseServer, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got, err := models.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if !got.Stock.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("stock = %s, want the server's 8", got.Stock)
	}

	pending, err := models.PendingOutboxEntries(ctx)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("resolution enqueued %d outbox entries, want 0", len(pending))
	}

	// Second resolution must bounce off the frozen row.
	if err := ResolveConflict(ctx, conflict.ID, models.ResolutionUseLocal, nil); err == nil {
		t.Fatal("resolving a resolved conflict must fail")
	}
}

func TestResolveConflictMergeRequiresSnapshot(t *testing.T) {
	ctx := setupStore(t)
	product := seedProduct(t, "Widget", 100, 20, 0, false)
	conflict := fileStockConflict(t, ctx, product, 8, models.ConflictSeverityMedium)

	if err := ResolveConflict(ctx, conflict.ID, models.ResolutionMerge, nil); err == nil {
		t.Fatal("merge without a merged snapshot must fail")
	}

	merged := *product
	merged.Stock = decimal.NewFromInt(14)
	if err := ResolveConflict(ctx, conflict.ID, models.ResolutionMerge, &merged); err != nil {
		t.Fatalf("merge resolve: %v", err)
	}
	got, err := models.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if !got.Stock.Equal(decimal.NewFromInt(14)) {
		t.Fatalf("stock = %s, want merged 14", got.Stock)
	}
}

func TestAutoResolveOnlyTouchesLowAndMedium(t *testing.T) {
	ctx := setupStore(t)
	low := seedProduct(t, "Low", 100, 20, 0, false)
	high := seedProduct(t, "High", 100, 200, 0, false)

	fileStockConflict(t, ctx, low, 15, models.ConflictSeverityLow)
	fileStockConflict(t, ctx, high, 20, models.ConflictSeverityCritical)

	resolved, err := AutoResolveConflicts(ctx, nil)
	if err != nil {
		t.Fatalf("auto resolve: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("resolved %d conflicts, want 1", resolved)
	}

	// The low one converges on the server's value.
	got, err := models.GetProduct(ctx, low.ID)
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if !got.Stock.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("stock = %s, want server's 15", got.Stock)
	}

	// The critical one stays pending for a human.
	pending, err := models.GetConflicts(ctx, models.ConflictFilter{Status: models.ConflictStatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].EntityId != high.ID {
		t.Fatalf("pending = %+v, want only the critical conflict", pending)
	}
	h, err := models.GetProduct(ctx, high.ID)
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if !h.Stock.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("critical conflict must not touch local stock, got %s", h.Stock)
	}
}
