// Package gateway is the HTTP entry point for AI actions: it resolves
// the caller's tenant, enforces model and quota policy, builds the
// prompt, proxies to the provider (sync or streaming) and records
// usage at every terminal point.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/edtech/ai-gateway/internal/auth"
	"github.com/edtech/ai-gateway/internal/gate"
	"github.com/edtech/ai-gateway/internal/models"
	"github.com/edtech/ai-gateway/internal/policy"
	"github.com/edtech/ai-gateway/internal/prompt"
	"github.com/edtech/ai-gateway/internal/provider"
	"github.com/edtech/ai-gateway/internal/ratelimit"
	"github.com/edtech/ai-gateway/internal/tenant"
	"github.com/edtech/ai-gateway/internal/usage"
)

// TenantResolver resolves the caller's organization and tier.
type TenantResolver interface {
	Resolve(ctx context.Context, userID string, orgOverride *string) (tenant.Context, error)
}

// AccessGate decides allow/deny for a resolved tenant.
type AccessGate interface {
	CheckAccess(ctx context.Context, tc tenant.Context, action models.ActionKind, model policy.ModelDescriptor) gate.Decision
}

// Provider proxies requests to the upstream LLM.
type Provider interface {
	Configured() bool
	Invoke(ctx context.Context, req provider.Request) provider.Result
	Stream(ctx context.Context, req provider.Request, sink provider.EventSink) provider.StreamResult
}

// UsageRecorder persists request telemetry off the response path.
type UsageRecorder interface {
	RecordAsync(e usage.Entry)
}

type Handler struct {
	resolver TenantResolver
	gate     AccessGate
	table    *policy.Table
	provider Provider
	ledger   UsageRecorder
	limiter  *ratelimit.Limiter
}

func NewHandler(resolver TenantResolver, g AccessGate, table *policy.Table, p Provider, ledger UsageRecorder, limiter *ratelimit.Limiter) *Handler {
	return &Handler{
		resolver: resolver,
		gate:     g,
		table:    table,
		provider: p,
		ledger:   ledger,
		limiter:  limiter,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ai/invoke", h.HandleInvoke).Methods("POST")
	router.HandleFunc("/ai/health", h.HandleHealth).Methods("GET")
}

// actionRequest is the inbound JSON body. Payload fields are flattened
// alongside the envelope fields.
type actionRequest struct {
	Action         string            `json:"action"`
	Model          string            `json:"model,omitempty"`
	OrganizationID *string           `json:"organization_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	models.ActionPayload
}

type usageBody struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type invokeResponse struct {
	Content       string            `json:"content"`
	Usage         *usageBody        `json:"usage"`
	Cost          *float64          `json:"cost"`
	ProviderError *provider.Failure `json:"provider_error,omitempty"`
}

func (h *Handler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := uuid.NewString()

	claims, ok := auth.GetCallerFromContext(r.Context())
	if !ok {
		log.Println("❌ Unauthorized: no claims in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request_body"})
		return
	}

	action, err := models.ParseActionKind(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown_action", "action": req.Action})
		return
	}

	log.Printf("📨 [%s] %s request from user %s", requestID, action, claims.UserID)

	orgOverride := req.OrganizationID
	if orgOverride == nil {
		orgOverride = claims.OrganizationID
	}

	tc, err := h.resolver.Resolve(r.Context(), claims.UserID, orgOverride)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.advisoryRateHeaders(r.Context(), w, tc)

	model := h.table.DefaultModelFor(tc.Tier)
	if req.Model != "" {
		model, err = h.table.NormalizeModel(req.Model)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown_model", "model": req.Model})
			return
		}
	}

	decision := h.gate.CheckAccess(r.Context(), tc, action, model)
	if !decision.Allowed {
		h.writeDenial(w, requestID, decision)
		return
	}

	system, messages, err := prompt.Build(action, req.ActionPayload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "details": err.Error()})
		return
	}

	provReq := provider.Request{
		System:   system,
		Messages: messages,
		Model:    model,
		Action:   action,
		Payload:  req.ActionPayload,
	}

	entry := usage.Entry{
		RequestID:      requestID,
		Provider:       provider.Name,
		Model:          model,
		// Recorded under the base kind so streamed requests land in
		// the same quota bucket the gate counts.
		Action: action.Base(),
		SystemPrompt:   system,
		InputText:      serializeMessages(messages),
		OrganizationID: tc.OrganizationID,
		UserID:         claims.UserID,
	}

	if action.Streaming() {
		h.handleStream(w, r, provReq, entry)
		log.Printf("✅ [%s] stream completed in %dms", requestID, time.Since(startTime).Milliseconds())
		return
	}

	result := h.provider.Invoke(r.Context(), provReq)

	entry.OutputText = result.Content
	entry.Usage = result.Usage
	entry.Status = models.UsageSuccess
	if result.Failure != nil {
		entry.Status = models.UsageProviderError
	}
	h.ledger.RecordAsync(entry)

	resp := invokeResponse{
		Content:       result.Content,
		Cost:          h.table.CostFor(model, result.Usage),
		ProviderError: result.Failure,
	}
	if result.Usage != nil {
		resp.Usage = &usageBody{InputTokens: result.Usage.InputTokens, OutputTokens: result.Usage.OutputTokens}
	}

	writeJSON(w, http.StatusOK, resp)
	log.Printf("✅ [%s] completed in %dms", requestID, time.Since(startTime).Milliseconds())
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request, provReq provider.Request, entry usage.Entry) {
	sink, err := newSSESink(w)
	if err != nil {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	result := h.provider.Stream(r.Context(), provReq, sink)

	entry.OutputText = result.FullText
	entry.Status = models.UsageSuccess
	if result.Failure != nil {
		entry.Status = models.UsageStreamError
	}
	h.ledger.RecordAsync(entry)
}

func (h *Handler) writeDenial(w http.ResponseWriter, requestID string, d gate.Decision) {
	switch d.Reason {
	case gate.DenyModelTier:
		log.Printf("🚫 [%s] model access denied at tier %s", requestID, d.Tier)
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":           "model_access_denied",
			"tier":            d.Tier.String(),
			"available_model": d.AvailableModel.Family,
		})
	case gate.DenyQuotaExceeded:
		log.Printf("🚫 [%s] quota exceeded: %d/%d", requestID, d.Used, d.Limit)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": "quota_exceeded",
			"used":  d.Used,
			"limit": d.Limit,
		})
	default:
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "access_denied"})
	}
}

// advisoryRateHeaders surfaces the per-minute ceiling without blocking.
// Counter failures leave the headers off; the request proceeds either
// way.
func (h *Handler) advisoryRateHeaders(ctx context.Context, w http.ResponseWriter, tc tenant.Context) {
	if h.limiter == nil {
		return
	}

	allowance := h.table.AllowanceFor(tc.Tier)
	count, err := h.limiter.Count(ctx, tc.UserID)
	if err != nil {
		return
	}

	remaining := int64(allowance.RequestsPerMinute) - count
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", allowance.RequestsPerMinute))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
}

// HandleHealth reports process liveness and whether provider
// credentials are configured. Gated behind the same auth as invoke.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetCallerFromContext(r.Context()); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"provider_configured": h.provider.Configured(),
	})
}

func serializeMessages(messages []models.Message) string {
	data, err := json.Marshal(messages)
	if err != nil {
		return ""
	}
	return string(data)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
