package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtech/ai-gateway/internal/auth"
	"github.com/edtech/ai-gateway/internal/gate"
	"github.com/edtech/ai-gateway/internal/models"
	"github.com/edtech/ai-gateway/internal/policy"
	"github.com/edtech/ai-gateway/internal/provider"
	"github.com/edtech/ai-gateway/internal/tenant"
	"github.com/edtech/ai-gateway/internal/usage"
)

type fakeResolver struct {
	tc  tenant.Context
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, userID string, orgOverride *string) (tenant.Context, error) {
	if f.err != nil {
		return tenant.Context{}, f.err
	}
	tc := f.tc
	tc.UserID = userID
	return tc, nil
}

type fakeCounter struct {
	count  int
	err    error
	action models.ActionKind
}

func (f *fakeCounter) CountUsageSince(ctx context.Context, orgID string, action models.ActionKind, since time.Time) (int, error) {
	f.action = action
	return f.count, f.err
}

type fakeLedger struct {
	entries chan usage.Entry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(chan usage.Entry, 8)}
}

func (f *fakeLedger) RecordAsync(e usage.Entry) {
	f.entries <- e
}

func (f *fakeLedger) wait(t *testing.T) usage.Entry {
	t.Helper()
	select {
	case e := <-f.entries:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no usage entry recorded")
		return usage.Entry{}
	}
}

type fixture struct {
	handler *Handler
	ledger  *fakeLedger
}

func newFixture(tier policy.Tier, org *string, counter *fakeCounter, llm Provider) *fixture {
	table := policy.NewTable()
	ledger := newFakeLedger()
	resolver := &fakeResolver{tc: tenant.Context{OrganizationID: org, Tier: tier}}
	if llm == nil {
		llm = provider.NewClient("", "", time.Second)
	}
	return &fixture{
		handler: NewHandler(resolver, gate.New(counter, table), table, llm, ledger, nil),
		ledger:  ledger,
	}
}

func invoke(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ai/invoke", strings.NewReader(body))
	ctx := context.WithValue(req.Context(), auth.CallerContextKey, &auth.Claims{UserID: "user-1"})
	rec := httptest.NewRecorder()
	h.HandleInvoke(rec, req.WithContext(ctx))
	return rec
}

func TestInvokeModelAccessDenied(t *testing.T) {
	org := "org-1"
	f := newFixture(policy.TierFree, &org, &fakeCounter{}, nil)

	rec := invoke(t, f.handler, `{"action":"homework_help","question":"2+2?","model":"flagship"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "model_access_denied", body["error"])
	assert.Equal(t, "free", body["tier"])
	assert.Equal(t, "fast", body["available_model"])
}

func TestInvokeQuotaExceeded(t *testing.T) {
	org := "org-1"
	f := newFixture(policy.TierFree, &org, &fakeCounter{count: 50}, nil)

	rec := invoke(t, f.handler, `{"action":"homework_help","question":"2+2?"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "quota_exceeded", body["error"])
	assert.Equal(t, float64(50), body["used"])
	assert.Equal(t, float64(50), body["limit"])
}

func TestInvokeOfflineLessonGeneration(t *testing.T) {
	f := newFixture(policy.TierFree, nil, &fakeCounter{}, nil)

	rec := invoke(t, f.handler, `{"action":"lesson_generation","subject":"Math","topic":"Shapes","grade_level":"1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body invokeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Content, "Shapes")
	assert.Contains(t, body.Content, "1")
	assert.Nil(t, body.Usage)
	assert.Nil(t, body.Cost)
	assert.Nil(t, body.ProviderError)

	entry := f.ledger.wait(t)
	assert.Equal(t, models.UsageSuccess, entry.Status)
	assert.Equal(t, models.ActionLessonGeneration, entry.Action)
	assert.Equal(t, "user-1", entry.UserID)
}

func TestInvokeProviderFailureStaysHTTP200(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	llm := provider.NewClient("key", upstream.URL, time.Second)
	f := newFixture(policy.TierPremium, nil, &fakeCounter{}, llm)

	rec := invoke(t, f.handler, `{"action":"homework_help","question":"2+2?"}`)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body invokeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Content)
	require.NotNil(t, body.ProviderError)
	assert.Equal(t, http.StatusServiceUnavailable, body.ProviderError.Status)

	entry := f.ledger.wait(t)
	assert.Equal(t, models.UsageProviderError, entry.Status)
}

func TestInvokeStreamingOfflineSequence(t *testing.T) {
	f := newFixture(policy.TierFree, nil, &fakeCounter{}, nil)

	rec := invoke(t, f.handler, `{"action":"grading_assistance_stream","student_work":"essay","rubric":"clarity"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var deltas, finals int
	var sawDone bool
	var order []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawDone = true
			order = append(order, "done")
			continue
		}
		var ev struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		order = append(order, ev.Type)
		switch ev.Type {
		case "delta":
			deltas++
		case "final":
			finals++
		}
	}

	assert.Equal(t, 3, deltas)
	assert.Equal(t, 1, finals)
	assert.True(t, sawDone)
	assert.Equal(t, []string{"delta", "delta", "delta", "final", "done"}, order)

	entry := f.ledger.wait(t)
	assert.Equal(t, models.UsageSuccess, entry.Status)
	assert.NotEmpty(t, entry.OutputText)
}

func TestStreamingUsageLandsInCountedQuotaBucket(t *testing.T) {
	org := "org-1"
	counter := &fakeCounter{}
	f := newFixture(policy.TierFree, &org, counter, nil)

	rec := invoke(t, f.handler, `{"action":"grading_assistance_stream","student_work":"essay"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	entry := f.ledger.wait(t)
	assert.Equal(t, models.ActionGradingAssistance, counter.action)
	assert.Equal(t, counter.action, entry.Action,
		"recorded rows must match the kind the quota count queries for")
}

func TestInvokeMalformedBody(t *testing.T) {
	f := newFixture(policy.TierFree, nil, &fakeCounter{}, nil)
	rec := invoke(t, f.handler, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvokeUnknownAction(t *testing.T) {
	f := newFixture(policy.TierFree, nil, &fakeCounter{}, nil)

	rec := invoke(t, f.handler, `{"action":"write_my_thesis"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unknown_action", body["error"])
}

func TestInvokeEmptyGeneralAssistancePayload(t *testing.T) {
	f := newFixture(policy.TierFree, nil, &fakeCounter{}, nil)

	rec := invoke(t, f.handler, `{"action":"general_assistance"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request", body["error"])
}

func TestInvokeUnknownModel(t *testing.T) {
	f := newFixture(policy.TierFree, nil, &fakeCounter{}, nil)

	rec := invoke(t, f.handler, `{"action":"homework_help","question":"2+2?","model":"gpt-17-ultra"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unknown_model", body["error"])
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(policy.TierFree, nil, &fakeCounter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/ai/health", nil)
	ctx := context.WithValue(req.Context(), auth.CallerContextKey, &auth.Claims{UserID: "user-1"})
	rec := httptest.NewRecorder()
	f.handler.HandleHealth(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["provider_configured"])
}

func TestHandleHealthUnauthenticated(t *testing.T) {
	f := newFixture(policy.TierFree, nil, &fakeCounter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/ai/health", nil)
	rec := httptest.NewRecorder()
	f.handler.HandleHealth(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
