package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edtech/ai-gateway/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

func (db *DB) GetMembership(ctx context.Context, userID string) (*models.Membership, error) {
	query := `
        SELECT user_id, organization_id, role, created_at
        FROM organization_members
        WHERE user_id = $1
    `

	var m models.Membership
	err := db.Pool.QueryRow(ctx, query, userID).Scan(
		&m.UserID,
		&m.OrganizationID,
		&m.Role,
		&m.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (db *DB) GetActiveSubscription(ctx context.Context, orgID string, at time.Time) (*models.Subscription, error) {
	query := `
        SELECT id, organization_id, plan_tier, status, starts_at, ends_at
        FROM subscriptions
        WHERE organization_id = $1
          AND status = 'active'
          AND starts_at <= $2
          AND (ends_at IS NULL OR ends_at > $2)
        ORDER BY starts_at DESC
        LIMIT 1
    `

	var s models.Subscription
	err := db.Pool.QueryRow(ctx, query, orgID, at).Scan(
		&s.ID,
		&s.OrganizationID,
		&s.PlanTier,
		&s.Status,
		&s.StartsAt,
		&s.EndsAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func (db *DB) CountUsageSince(ctx context.Context, orgID string, action models.ActionKind, since time.Time) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM ai_usage_logs
        WHERE organization_id = $1 AND action = $2 AND created_at >= $3
    `

	var count int
	err := db.Pool.QueryRow(ctx, query, orgID, string(action), since).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (db *DB) GetOrCreateAIService(ctx context.Context, provider, model string) (int64, error) {
	query := `
        INSERT INTO ai_services (provider, model)
        VALUES ($1, $2)
        ON CONFLICT (provider, model) DO UPDATE SET model = EXCLUDED.model
        RETURNING id
    `

	var id int64
	err := db.Pool.QueryRow(ctx, query, provider, model).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (db *DB) InsertUsageLog(ctx context.Context, entry *models.UsageLog) error {
	query := `
        INSERT INTO ai_usage_logs
            (request_id, service_id, action, system_prompt, input_text, output_text,
             input_tokens, output_tokens, cost, organization_id, user_id, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `

	_, err := db.Pool.Exec(ctx, query,
		entry.RequestID,
		entry.ServiceID,
		string(entry.Action),
		entry.SystemPrompt,
		entry.InputText,
		entry.OutputText,
		entry.InputTokens,
		entry.OutputTokens,
		entry.Cost,
		entry.OrganizationID,
		entry.UserID,
		string(entry.Status),
	)

	return err
}
