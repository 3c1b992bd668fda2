// Package quota decides whether a growth operation fits an organization's
// tier limits.
package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/observability/metrics"
	"github.com/hugh/go-roster/internal/store"
)

type Kind string

const (
	KindMember Kind = "member"
	KindTeam   Kind = "team"
)

func (k Kind) Valid() bool {
	return k == KindMember || k == KindTeam
}

type Usage struct {
	Members int64 `json:"members"`
	Teams   int64 `json:"teams"`
}

type Limits struct {
	MaxMembers int `json:"max_members"`
	MaxTeams   int `json:"max_teams"`
}

type Result struct {
	Allowed      bool   `json:"allowed"`
	CurrentUsage Usage  `json:"currentUsage"`
	Limits       Limits `json:"limits"`
	Reason       string `json:"reason,omitempty"`
}

// Decide admits delta new units of kind when the post-add count stays within
// the limit. A negative limit is unlimited. Batches are all or nothing.
func Decide(kind Kind, usage Usage, limits Limits, delta int) Result {
	res := Result{Allowed: true, CurrentUsage: usage, Limits: limits}

	var current int64
	var limit int
	var noun string
	switch kind {
	case KindMember:
		current, limit, noun = usage.Members, limits.MaxMembers, "members"
	case KindTeam:
		current, limit, noun = usage.Teams, limits.MaxTeams, "teams"
	default:
		res.Allowed = false
		res.Reason = fmt.Sprintf("unknown quota kind %q", kind)
		return res
	}

	if limit < 0 {
		return res
	}
	if current+int64(delta) > int64(limit) {
		res.Allowed = false
		if delta > 1 {
			res.Reason = fmt.Sprintf("Adding %d %s would exceed your plan limit (%d/%d used)", delta, noun, current, limit)
		} else {
			res.Reason = fmt.Sprintf("Your plan allows %d %s (%d/%d used)", limit, noun, current, limit)
		}
	}
	return res
}

// Error converts a denied result into a quota_exceeded error carrying the
// usage snapshot.
func (r Result) Error() error {
	if r.Allowed {
		return nil
	}
	return apperr.QuotaExceeded(r.Reason).WithDetail(r)
}

type Evaluator struct {
	store  *store.Store
	logger *slog.Logger
}

func NewEvaluator(st *store.Store, logger *slog.Logger) *Evaluator {
	return &Evaluator{store: st, logger: logger}
}

// Snapshot reads the organization's tier limits and current counts.
func (e *Evaluator) Snapshot(ctx context.Context, orgID uuid.UUID) (Usage, Limits, error) {
	org, err := e.store.GetOrganization(ctx, orgID)
	if err != nil {
		return Usage{}, Limits{}, err
	}
	limits := limitsOf(org.Tier)

	members, err := e.store.CountMembers(ctx, orgID)
	if err != nil {
		return Usage{}, Limits{}, err
	}
	teams, err := e.store.CountTeams(ctx, orgID)
	if err != nil {
		return Usage{}, Limits{}, err
	}
	return Usage{Members: members, Teams: teams}, limits, nil
}

// Check evaluates a request to add delta units of kind. It performs no
// locking; callers that need serialization hold a Locker around check+write.
func (e *Evaluator) Check(ctx context.Context, orgID uuid.UUID, kind Kind, delta int) (Result, error) {
	if !kind.Valid() {
		return Result{}, apperr.Validation("kind must be member or team")
	}
	if delta < 1 {
		delta = 1
	}
	usage, limits, err := e.Snapshot(ctx, orgID)
	if err != nil {
		return Result{}, err
	}
	res := Decide(kind, usage, limits, delta)
	if !res.Allowed {
		metrics.QuotaDenials.WithLabelValues(string(kind)).Inc()
		e.logger.Info("quota denied",
			"org_id", orgID,
			"kind", kind,
			"delta", delta,
			"members", usage.Members,
			"teams", usage.Teams,
		)
	}
	return res, nil
}

// CheckQuota is Check for a single unit.
func (e *Evaluator) CheckQuota(ctx context.Context, orgID uuid.UUID, kind Kind) (Result, error) {
	return e.Check(ctx, orgID, kind, 1)
}

// Require is Check that turns a denial into an error.
func (e *Evaluator) Require(ctx context.Context, orgID uuid.UUID, kind Kind, delta int) error {
	res, err := e.Check(ctx, orgID, kind, delta)
	if err != nil {
		return err
	}
	return res.Error()
}

func limitsOf(tier *models.Tier) Limits {
	if tier == nil {
		return Limits{MaxMembers: models.Unlimited, MaxTeams: models.Unlimited}
	}
	return Limits{MaxMembers: tier.MaxMembers, MaxTeams: tier.MaxTeams}
}

// OverQuota reports whether usage already exceeds either limit.
func OverQuota(usage Usage, limits Limits) bool {
	if limits.MaxMembers >= 0 && usage.Members > int64(limits.MaxMembers) {
		return true
	}
	return limits.MaxTeams >= 0 && usage.Teams > int64(limits.MaxTeams)
}
