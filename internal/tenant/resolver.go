// Package tenant resolves the caller's organization and effective
// subscription tier. Resolution is total: any lookup failure reduces
// privilege to the free tier instead of failing the request.
package tenant

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/edtech/ai-gateway/internal/db"
	"github.com/edtech/ai-gateway/internal/models"
	"github.com/edtech/ai-gateway/internal/policy"
)

// ErrUnauthenticated is returned when no caller identity is present.
// Identity itself is established upstream; this only checks presence.
var ErrUnauthenticated = errors.New("unauthenticated")

// Store is the subset of the database the resolver needs.
type Store interface {
	GetMembership(ctx context.Context, userID string) (*models.Membership, error)
	GetActiveSubscription(ctx context.Context, orgID string, at time.Time) (*models.Subscription, error)
}

// Context is the resolved caller for one request. Built fresh per
// request and never cached: tier can change between requests.
type Context struct {
	UserID         string
	OrganizationID *string
	Tier           policy.Tier
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve builds the tenant context for a caller. orgOverride, when
// set, pins the organization instead of the membership lookup (callers
// belonging to several organizations pick one per request).
func (r *Resolver) Resolve(ctx context.Context, userID string, orgOverride *string) (Context, error) {
	if userID == "" {
		return Context{}, ErrUnauthenticated
	}

	tc := Context{UserID: userID, Tier: policy.TierFree}

	orgID := orgOverride
	if orgID == nil {
		membership, err := r.store.GetMembership(ctx, userID)
		if err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				log.Printf("⚠️ membership lookup failed for %s, defaulting to free tier: %v", userID, err)
			}
			return tc, nil
		}
		orgID = &membership.OrganizationID
	}

	tc.OrganizationID = orgID

	sub, err := r.store.GetActiveSubscription(ctx, *orgID, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Printf("⚠️ subscription lookup failed for org %s, defaulting to free tier: %v", *orgID, err)
		}
		return tc, nil
	}

	tc.Tier = policy.ParseTier(sub.PlanTier)
	return tc, nil
}
