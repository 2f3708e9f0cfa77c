// Package usage persists one telemetry row per completed AI request.
// Every write is best-effort: a broken ledger must never fail the
// caller's response.
package usage

import (
	"context"
	"log"
	"time"

	"github.com/edtech/ai-gateway/internal/models"
	"github.com/edtech/ai-gateway/internal/policy"
)

// Store is the persistence the ledger needs.
type Store interface {
	GetOrCreateAIService(ctx context.Context, provider, model string) (int64, error)
	InsertUsageLog(ctx context.Context, entry *models.UsageLog) error
}

// Entry is the terminal record of one request before service-id and
// cost resolution.
type Entry struct {
	RequestID      string
	Provider       string
	Model          policy.ModelDescriptor
	Action         models.ActionKind
	SystemPrompt   string
	InputText      string
	OutputText     string
	Usage          *models.TokenUsage
	OrganizationID *string
	UserID         string
	Status         models.UsageStatus
}

type Ledger struct {
	store Store
	table *policy.Table
}

func NewLedger(store Store, table *policy.Table) *Ledger {
	return &Ledger{store: store, table: table}
}

// Record writes the usage row, resolving a stable service id for the
// provider+model pair first. Errors are logged and discarded.
func (l *Ledger) Record(ctx context.Context, e Entry) {
	bestEffort("usage record", func() error {
		serviceID, err := l.store.GetOrCreateAIService(ctx, e.Provider, e.Model.ProviderID)
		if err != nil {
			return err
		}

		row := &models.UsageLog{
			RequestID:      e.RequestID,
			ServiceID:      serviceID,
			Action:         e.Action,
			SystemPrompt:   e.SystemPrompt,
			InputText:      e.InputText,
			OutputText:     e.OutputText,
			Cost:           l.table.CostFor(e.Model, e.Usage),
			OrganizationID: e.OrganizationID,
			UserID:         e.UserID,
			Status:         e.Status,
		}
		if e.Usage != nil {
			in, out := e.Usage.InputTokens, e.Usage.OutputTokens
			row.InputTokens, row.OutputTokens = &in, &out
		}

		return l.store.InsertUsageLog(ctx, row)
	})
}

// RecordAsync runs Record off the request path with its own deadline,
// so slow telemetry never delays the response.
func (l *Ledger) RecordAsync(e Entry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		l.Record(ctx, e)
	}()
}

// bestEffort makes the swallow-errors telemetry policy explicit at the
// call site: failures are logged for operators and otherwise ignored.
func bestEffort(op string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("⚠️ best-effort %s failed: %v", op, err)
	}
}
