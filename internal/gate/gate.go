// Package gate is the enforcement point for model access and monthly
// quotas. Policy denials are always surfaced; infrastructure failures
// while counting usage fail open.
package gate

import (
	"context"
	"log"
	"time"

	"github.com/edtech/ai-gateway/internal/models"
	"github.com/edtech/ai-gateway/internal/policy"
	"github.com/edtech/ai-gateway/internal/tenant"
)

// DenyReason tags why a request was refused.
type DenyReason string

const (
	DenyModelTier     DenyReason = "model_tier_restriction"
	DenyQuotaExceeded DenyReason = "quota_exceeded"
)

// Decision is the gate's verdict for one request. Transient, never
// persisted.
type Decision struct {
	Allowed bool
	Tier    policy.Tier
	Reason  DenyReason

	// AvailableModel is set on model-tier denials so the client can
	// retry at an allowed model without another round trip.
	AvailableModel policy.ModelDescriptor

	// Used and Limit are set on quota denials.
	Used  int
	Limit int
}

// UsageCounter counts usage rows for the current billing window.
type UsageCounter interface {
	CountUsageSince(ctx context.Context, orgID string, action models.ActionKind, since time.Time) (int, error)
}

type Gate struct {
	counter UsageCounter
	table   *policy.Table
}

func New(counter UsageCounter, table *policy.Table) *Gate {
	return &Gate{counter: counter, table: table}
}

// CheckAccess decides whether the tenant may run the action against the
// requested model. Quota counts run against the current calendar month
// in UTC.
func (g *Gate) CheckAccess(ctx context.Context, tc tenant.Context, action models.ActionKind, model policy.ModelDescriptor) Decision {
	if !g.table.CanAccessModel(tc.Tier, model) {
		return Decision{
			Tier:           tc.Tier,
			Reason:         DenyModelTier,
			AvailableModel: g.table.DefaultModelFor(tc.Tier),
		}
	}

	// Individual callers are tier-gated only; monthly quotas apply to
	// organizations. Open question: see DESIGN.md.
	if tc.OrganizationID == nil {
		return Decision{Allowed: true, Tier: tc.Tier}
	}

	allowance := g.table.AllowanceFor(tc.Tier)
	if allowance.MonthlyRequests == policy.Unlimited {
		return Decision{Allowed: true, Tier: tc.Tier}
	}

	used, err := g.counter.CountUsageSince(ctx, *tc.OrganizationID, action.Base(), monthStart(time.Now().UTC()))
	if err != nil {
		// Fail open: a broken counting path must not block callers.
		log.Printf("⚠️ quota count failed for org %s, allowing request: %v", *tc.OrganizationID, err)
		return Decision{Allowed: true, Tier: tc.Tier}
	}

	if used >= allowance.MonthlyRequests {
		return Decision{
			Tier:   tc.Tier,
			Reason: DenyQuotaExceeded,
			Used:   used,
			Limit:  allowance.MonthlyRequests,
		}
	}

	return Decision{Allowed: true, Tier: tc.Tier}
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
