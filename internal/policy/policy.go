// Package policy holds the tier ordering, per-model access rules and
// per-tier quota allowances. Pure lookup tables, no I/O; the access
// gate is the enforcement point, these tables are also exposed to
// clients for UX hints only.
package policy

import (
	"fmt"
	"strings"

	"github.com/edtech/ai-gateway/internal/models"
)

// Tier is an ordered subscription level. The zero value is TierFree.
type Tier int

const (
	TierFree Tier = iota
	TierStarter
	TierPremium
	TierEnterprise
)

var tierNames = map[Tier]string{
	TierFree:       "free",
	TierStarter:    "starter",
	TierPremium:    "premium",
	TierEnterprise: "enterprise",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "free"
}

// tierAliases maps legacy plan labels from older subscription rows onto
// the current ordering.
var tierAliases = map[string]Tier{
	"free":          TierFree,
	"trial":         TierFree,
	"basic":         TierStarter,
	"starter":       TierStarter,
	"standard":      TierStarter,
	"pro":           TierPremium,
	"plus":          TierPremium,
	"premium":       TierPremium,
	"school":        TierEnterprise,
	"district":      TierEnterprise,
	"enterprise":    TierEnterprise,
	"institutional": TierEnterprise,
}

// ParseTier normalizes a plan label into a Tier. Unknown labels fall
// back to free rather than failing: tier resolution must be total.
func ParseTier(label string) Tier {
	if t, ok := tierAliases[strings.ToLower(strings.TrimSpace(label))]; ok {
		return t
	}
	return TierFree
}

// CompareTiers returns -1, 0 or 1 under the fixed free < starter <
// premium < enterprise ordering.
func CompareTiers(a, b Tier) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ModelDescriptor identifies a requestable model family, the concrete
// provider model id it maps to, and the minimum tier required to use it.
type ModelDescriptor struct {
	Family     string `json:"family"`
	ProviderID string `json:"provider_id"`
	MinTier    Tier   `json:"-"`
}

// QuotaAllowance is the per-tier monthly request limit and the
// requests-per-minute ceiling. Monthly == Unlimited means no cap; the
// RPM ceiling is advisory and surfaced to clients via headers.
type QuotaAllowance struct {
	MonthlyRequests   int `json:"monthly_requests"`
	RequestsPerMinute int `json:"requests_per_minute"`
}

// Unlimited is the sentinel for "no monthly cap".
const Unlimited = -1

// Table is the immutable policy configuration, constructed once at
// startup and injected wherever decisions are made. Safe for concurrent
// reads.
type Table struct {
	models   map[string]ModelDescriptor // keyed by family
	aliases  map[string]string          // raw model name -> family
	quotas   map[Tier]QuotaAllowance
	defaults map[Tier]string // tier -> default family
	pricing  map[string]Pricing
}

// Pricing is USD per million tokens for one model family.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// NewTable returns the production policy table.
func NewTable() *Table {
	t := &Table{
		models: map[string]ModelDescriptor{
			"fast":     {Family: "fast", ProviderID: "claude-3-5-haiku-20241022", MinTier: TierFree},
			"balanced": {Family: "balanced", ProviderID: "claude-3-7-sonnet-20250219", MinTier: TierStarter},
			"advanced": {Family: "advanced", ProviderID: "claude-sonnet-4-20250514", MinTier: TierPremium},
			"flagship": {Family: "flagship", ProviderID: "claude-opus-4-20250514", MinTier: TierEnterprise},
		},
		aliases: map[string]string{
			"fast":     "fast",
			"haiku":    "fast",
			"balanced": "balanced",
			"sonnet":   "balanced",
			"advanced": "advanced",
			"flagship": "flagship",
			"opus":     "flagship",
		},
		quotas: map[Tier]QuotaAllowance{
			TierFree:       {MonthlyRequests: 50, RequestsPerMinute: 5},
			TierStarter:    {MonthlyRequests: 500, RequestsPerMinute: 15},
			TierPremium:    {MonthlyRequests: 2000, RequestsPerMinute: 30},
			TierEnterprise: {MonthlyRequests: Unlimited, RequestsPerMinute: 60},
		},
		defaults: map[Tier]string{
			TierFree:       "fast",
			TierStarter:    "balanced",
			TierPremium:    "advanced",
			TierEnterprise: "flagship",
		},
		pricing: map[string]Pricing{
			"fast":     {InputPerMTok: 0.80, OutputPerMTok: 4.00},
			"balanced": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
			"advanced": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
			"flagship": {InputPerMTok: 15.00, OutputPerMTok: 75.00},
		},
	}
	return t
}

// NormalizeModel maps a raw caller-supplied model name onto a known
// descriptor. Raw provider ids are accepted too. Unrecognized names
// are an error, never a silent guess.
func (t *Table) NormalizeModel(raw string) (ModelDescriptor, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if family, ok := t.aliases[name]; ok {
		return t.models[family], nil
	}
	for _, m := range t.models {
		if m.ProviderID == name {
			return m, nil
		}
	}
	return ModelDescriptor{}, fmt.Errorf("unknown model %q", raw)
}

// DefaultModelFor returns the richest model accessible at the tier.
func (t *Table) DefaultModelFor(tier Tier) ModelDescriptor {
	if family, ok := t.defaults[tier]; ok {
		return t.models[family]
	}
	return t.models[t.defaults[TierFree]]
}

// CanAccessModel is true iff tier >= the model's minimum tier.
func (t *Table) CanAccessModel(tier Tier, m ModelDescriptor) bool {
	return CompareTiers(tier, m.MinTier) >= 0
}

// AllowanceFor returns the quota allowance for a tier.
func (t *Table) AllowanceFor(tier Tier) QuotaAllowance {
	if q, ok := t.quotas[tier]; ok {
		return q
	}
	return t.quotas[TierFree]
}

// CostFor computes the dollar cost of a request, or nil when the
// provider did not report usage.
func (t *Table) CostFor(m ModelDescriptor, usage *models.TokenUsage) *float64 {
	if usage == nil {
		return nil
	}
	p, ok := t.pricing[m.Family]
	if !ok {
		return nil
	}
	cost := float64(usage.InputTokens)/1e6*p.InputPerMTok + float64(usage.OutputTokens)/1e6*p.OutputPerMTok
	return &cost
}

// Models lists the advertised model families, for the policy endpoint.
func (t *Table) Models() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(t.models))
	for _, family := range []string{"fast", "balanced", "advanced", "flagship"} {
		out = append(out, t.models[family])
	}
	return out
}

// Tiers lists all tiers in order.
func Tiers() []Tier {
	return []Tier{TierFree, TierStarter, TierPremium, TierEnterprise}
}
