// Package policyinfo exposes the read-only policy tables (tiers,
// models, allowances) so clients can render upgrade hints and model
// pickers without a failed request round trip. Never an enforcement
// point: the access gate decides, this only describes.
package policyinfo

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/edtech/ai-gateway/internal/policy"
)

type Handler struct {
	table *policy.Table
}

func NewHandler(table *policy.Table) *Handler {
	return &Handler{table: table}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ai/policy", h.GetPolicy).Methods("GET")
}

type modelInfo struct {
	Family  string `json:"family"`
	MinTier string `json:"min_tier"`
}

type tierInfo struct {
	Tier              string `json:"tier"`
	MonthlyRequests   int    `json:"monthly_requests"` // -1 = unlimited
	RequestsPerMinute int    `json:"requests_per_minute"`
	DefaultModel      string `json:"default_model"`
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	modelList := make([]modelInfo, 0, 4)
	for _, m := range h.table.Models() {
		modelList = append(modelList, modelInfo{Family: m.Family, MinTier: m.MinTier.String()})
	}

	tierList := make([]tierInfo, 0, 4)
	for _, t := range policy.Tiers() {
		allowance := h.table.AllowanceFor(t)
		tierList = append(tierList, tierInfo{
			Tier:              t.String(),
			MonthlyRequests:   allowance.MonthlyRequests,
			RequestsPerMinute: allowance.RequestsPerMinute,
			DefaultModel:      h.table.DefaultModelFor(t).Family,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"models": modelList,
		"tiers":  tierList,
	})
}
