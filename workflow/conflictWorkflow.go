package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/config"
	"bitbucket.org/mmdatafocus/setledger_offline/events"
	"bitbucket.org/mmdatafocus/setledger_offline/models"
	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/sirupsen/logrus"
)

// DetectConflicts compares a server product snapshot batch against local
// records and files a Conflict row for each stock divergence. Used when the
// server pushes its state down (periodic pull), as opposed to the 409 path
// where the server rejects an upload.
func DetectConflicts(ctx context.Context, serverProducts []*models.Product) (int, error) {
	logger := config.GetLogger()
	detected := 0
	for _, sp := range serverProducts {
		local, err := models.GetProduct(ctx, sp.ID)
		if err != nil {
			if err == utils.ErrorRecordNotFound {
				continue
			}
			return detected, err
		}
		diff := local.Stock.Sub(sp.Stock)
		if diff.IsZero() {
			continue
		}

		localSnap, err := utils.MarshalToJSON(local)
		if err != nil {
			return detected, err
		}
		serverSnap, err := utils.MarshalToJSON(sp)
		if err != nil {
			return detected, err
		}
		severity := models.SeverityForStockDiff(diff)
		_, err = models.CreateConflict(ctx, &models.NewConflict{
			Kind:           models.ConflictKindStock,
			Collection:     models.CollectionProducts,
			EntityId:       sp.ID,
			LocalSnapshot:  []byte(localSnap),
			ServerSnapshot: []byte(serverSnap),
			Severity:       severity,
			Description:    fmt.Sprintf("stock diverged by %s units", diff.Abs().String()),
		})
		if err != nil {
			return detected, err
		}
		detected++
		logger.WithFields(logrus.Fields{
			"productId": sp.ID,
			"severity":  severity,
		}).Warn("stock conflict detected")
	}
	return detected, nil
}

// ResolveConflict applies the chosen resolution and freezes the conflict row.
// The write-back goes through the snapshot path, which deliberately skips the
// outbox: a resolution must converge, not start another sync round-trip.
func ResolveConflict(ctx context.Context, conflictId string, action models.ResolutionAction, merged *models.Product) error {
	conflict, err := models.GetConflict(ctx, conflictId)
	if err != nil {
		return err
	}
	if conflict.Status != models.ConflictStatusPending {
		return utils.NewValidationError("status", "conflict is already resolved")
	}
	if conflict.Collection != models.CollectionProducts {
		return utils.NewValidationError("collection", "only product conflicts are resolvable locally")
	}

	var chosen models.Product
	switch action {
	case models.ResolutionUseLocal:
		if err := utils.UnmarshalFromJSON(conflict.LocalSnapshot, &chosen); err != nil {
			return err
		}
	case models.ResolutionUseServer:
		if err := utils.UnmarshalFromJSON(conflict.ServerSnapshot, &chosen); err != nil {
			return err
		}
	case models.ResolutionMerge:
		if merged == nil {
			return utils.NewValidationError("merged", "merge resolution requires a merged snapshot")
		}
		chosen = *merged
	default:
		return utils.NewValidationError("action", "unknown resolution action")
	}
	if chosen.ID == "" {
		chosen.ID = conflict.EntityId
	}

	if err := models.ApplyProductSnapshot(ctx, &chosen); err != nil {
		return err
	}

	resolvedSnap, err := utils.MarshalToJSON(&chosen)
	if err != nil {
		return err
	}
	return models.MarkConflictResolved(ctx, conflictId, action, []byte(resolvedSnap), time.Now())
}

// AutoResolveConflicts resolves pending LOW and MEDIUM conflicts in the
// server's favor. HIGH and CRITICAL divergences stay pending for a human:
// a three-digit stock gap usually means a real-world problem, not drift.
func AutoResolveConflicts(ctx context.Context, bus *events.Bus) (int, error) {
	logger := config.GetLogger()
	pending, err := models.GetConflicts(ctx, models.ConflictFilter{Status: models.ConflictStatusPending})
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, c := range pending {
		if c.Severity != models.ConflictSeverityLow && c.Severity != models.ConflictSeverityMedium {
			continue
		}
		if err := ResolveConflict(ctx, c.ID, models.ResolutionUseServer, nil); err != nil {
			config.LogError(logger, "workflow", "AutoResolveConflicts", "auto resolve", c.ID, err)
			continue
		}
		resolved++
	}
	if resolved > 0 {
		logger.WithFields(logrus.Fields{"resolved": resolved}).Info("conflicts auto-resolved in server's favor")
		if bus != nil {
			// Remaining pending count, so UI badges can refresh.
			bus.Publish(events.ConflictsDetected{Count: len(pending) - resolved})
		}
	}
	return resolved, nil
}
