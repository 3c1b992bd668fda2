package quota

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/observability/metrics"
	"github.com/hugh/go-roster/internal/store"
)

type OrgUsage struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Name           string    `json:"name"`
	Usage          Usage     `json:"usage"`
	Limits         Limits    `json:"limits"`
}

type Report struct {
	Checked   int        `json:"checked"`
	OverQuota []OrgUsage `json:"over_quota"`
}

// Reconciler finds organizations that ended up over their tier through the
// unlocked check-then-write window. It reports and never deletes.
type Reconciler struct {
	store  *store.Store
	eval   *Evaluator
	logger *slog.Logger
}

func NewReconciler(st *store.Store, eval *Evaluator, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: st, eval: eval, logger: logger}
}

func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	orgs, err := r.store.ListOrganizations(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{OverQuota: []OrgUsage{}}
	for _, org := range orgs {
		usage, limits, err := r.eval.Snapshot(ctx, org.ID)
		if err != nil {
			r.logger.Error("failed to snapshot quota", "org_id", org.ID, "error", err)
			continue
		}
		report.Checked++
		if OverQuota(usage, limits) {
			r.logger.Warn("organization over quota",
				"org_id", org.ID,
				"members", usage.Members,
				"max_members", limits.MaxMembers,
				"teams", usage.Teams,
				"max_teams", limits.MaxTeams,
			)
			report.OverQuota = append(report.OverQuota, OrgUsage{
				OrganizationID: org.ID,
				Name:           org.Name,
				Usage:          usage,
				Limits:         limits,
			})
		}
	}

	metrics.SetOrgsOverQuota(len(report.OverQuota))
	return report, nil
}
