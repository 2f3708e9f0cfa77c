package usage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtech/ai-gateway/internal/models"
	"github.com/edtech/ai-gateway/internal/policy"
)

type fakeStore struct {
	serviceID  int64
	serviceErr error
	insertErr  error

	services map[string]int64
	rows     []*models.UsageLog
}

func (f *fakeStore) GetOrCreateAIService(ctx context.Context, provider, model string) (int64, error) {
	if f.serviceErr != nil {
		return 0, f.serviceErr
	}
	if f.services == nil {
		f.services = map[string]int64{}
	}
	key := provider + "/" + model
	if id, ok := f.services[key]; ok {
		return id, nil
	}
	f.serviceID++
	f.services[key] = f.serviceID
	return f.serviceID, nil
}

func (f *fakeStore) InsertUsageLog(ctx context.Context, entry *models.UsageLog) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.rows = append(f.rows, entry)
	return nil
}

func testEntry() Entry {
	org := "org-1"
	return Entry{
		RequestID:      "req-1",
		Provider:       "anthropic",
		Model:          policy.ModelDescriptor{Family: "fast", ProviderID: "claude-3-5-haiku-20241022"},
		Action:         models.ActionHomeworkHelp,
		SystemPrompt:   "be a tutor",
		InputText:      `[{"role":"user"}]`,
		OutputText:     "answer",
		OrganizationID: &org,
		UserID:         "user-1",
		Status:         models.UsageSuccess,
	}
}

func TestRecordWritesRow(t *testing.T) {
	store := &fakeStore{}
	l := NewLedger(store, policy.NewTable())

	e := testEntry()
	e.Usage = &models.TokenUsage{InputTokens: 10, OutputTokens: 20}
	l.Record(context.Background(), e)

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	assert.Equal(t, "req-1", row.RequestID)
	assert.Equal(t, int64(1), row.ServiceID)
	assert.Equal(t, models.ActionHomeworkHelp, row.Action)
	require.NotNil(t, row.InputTokens)
	assert.Equal(t, 10, *row.InputTokens)
	require.NotNil(t, row.OutputTokens)
	assert.Equal(t, 20, *row.OutputTokens)
	require.NotNil(t, row.Cost)
	assert.Greater(t, *row.Cost, 0.0)
}

func TestRecordNullTokensAndCostWhenUsageUnknown(t *testing.T) {
	store := &fakeStore{}
	l := NewLedger(store, policy.NewTable())

	l.Record(context.Background(), testEntry())

	require.Len(t, store.rows, 1)
	assert.Nil(t, store.rows[0].InputTokens)
	assert.Nil(t, store.rows[0].OutputTokens)
	assert.Nil(t, store.rows[0].Cost)
}

func TestRecordReusesServiceID(t *testing.T) {
	store := &fakeStore{}
	l := NewLedger(store, policy.NewTable())

	l.Record(context.Background(), testEntry())
	l.Record(context.Background(), testEntry())

	require.Len(t, store.rows, 2)
	assert.Equal(t, store.rows[0].ServiceID, store.rows[1].ServiceID)
}

func TestRecordSwallowsErrors(t *testing.T) {
	t.Run("service lookup failure", func(t *testing.T) {
		l := NewLedger(&fakeStore{serviceErr: errors.New("db down")}, policy.NewTable())
		assert.NotPanics(t, func() { l.Record(context.Background(), testEntry()) })
	})

	t.Run("insert failure", func(t *testing.T) {
		l := NewLedger(&fakeStore{insertErr: errors.New("db down")}, policy.NewTable())
		assert.NotPanics(t, func() { l.Record(context.Background(), testEntry()) })
	})
}
