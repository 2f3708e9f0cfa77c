package policyinfo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtech/ai-gateway/internal/policy"
)

func TestGetPolicy(t *testing.T) {
	h := NewHandler(policy.NewTable())

	req := httptest.NewRequest(http.MethodGet, "/ai/policy", nil)
	rec := httptest.NewRecorder()
	h.GetPolicy(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Models []modelInfo `json:"models"`
		Tiers  []tierInfo  `json:"tiers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.Models, 4)
	assert.Equal(t, "fast", body.Models[0].Family)
	assert.Equal(t, "free", body.Models[0].MinTier)

	require.Len(t, body.Tiers, 4)
	assert.Equal(t, "free", body.Tiers[0].Tier)
	assert.Equal(t, 50, body.Tiers[0].MonthlyRequests)
	assert.Equal(t, "enterprise", body.Tiers[3].Tier)
	assert.Equal(t, policy.Unlimited, body.Tiers[3].MonthlyRequests)
}
