// Package audit appends activity log entries. Appending is a side effect of
// a mutation and never decides its outcome.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/observability/metrics"
	"github.com/hugh/go-roster/internal/store"
	"github.com/hugh/go-roster/internal/validation"
	"gorm.io/datatypes"
)

type Entry struct {
	ActorID        uuid.UUID
	OrganizationID uuid.UUID
	Action         models.ActionType
	TargetType     string
	TargetID       uuid.UUID
	Details        map[string]any
}

const maxDetailLength = 256

type Recorder struct {
	store  *store.Store
	logger *slog.Logger
}

func NewRecorder(st *store.Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: st, logger: logger}
}

// Record appends one entry. Failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	row := models.ActivityLog{
		ActorID:        e.ActorID,
		OrganizationID: e.OrganizationID,
		ActionType:     e.Action,
		TargetType:     e.TargetType,
		TargetID:       e.TargetID,
		Details:        datatypes.JSONMap{},
	}
	for k, v := range e.Details {
		if str, ok := v.(string); ok {
			v = validation.TruncateString(str, maxDetailLength)
		}
		row.Details[k] = v
	}
	if err := r.store.DB(ctx).Create(&row).Error; err != nil {
		metrics.ObserveSideEffectFailure("audit")
		r.logger.Error("failed to append activity log",
			"action", e.Action,
			"org_id", e.OrganizationID,
			"actor_id", e.ActorID,
			"target_id", e.TargetID,
			"error", err,
		)
	}
}

// List returns the organization's entries newest first.
func (r *Recorder) List(ctx context.Context, orgID uuid.UUID, page, perPage int) ([]models.ActivityLog, int64, error) {
	query := r.store.DB(ctx).Model(&models.ActivityLog{}).Where("organization_id = ?", orgID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting activity: %w", err)
	}

	var entries []models.ActivityLog
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing activity: %w", err)
	}
	return entries, total, nil
}
