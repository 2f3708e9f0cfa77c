package models

import (
	"fmt"
	"time"
)

// ActionKind is the closed set of AI actions the gateway accepts.
type ActionKind string

const (
	ActionLessonGeneration        ActionKind = "lesson_generation"
	ActionHomeworkHelp            ActionKind = "homework_help"
	ActionGradingAssistance       ActionKind = "grading_assistance"
	ActionGradingAssistanceStream ActionKind = "grading_assistance_stream"
	ActionGeneralAssistance       ActionKind = "general_assistance"
	ActionImageAnalysis           ActionKind = "image_analysis"
	ActionDocumentAnalysis        ActionKind = "document_analysis"
)

// ParseActionKind rejects anything outside the closed set. Adding a new
// kind means adding a case here and everywhere the compiler complains.
func ParseActionKind(s string) (ActionKind, error) {
	switch k := ActionKind(s); k {
	case ActionLessonGeneration, ActionHomeworkHelp, ActionGradingAssistance,
		ActionGradingAssistanceStream, ActionGeneralAssistance,
		ActionImageAnalysis, ActionDocumentAnalysis:
		return k, nil
	}
	return "", fmt.Errorf("unknown action kind %q", s)
}

// Base returns the non-streaming kind used for quota counting and
// prompt selection; the streaming grading variant shares the grading
// template and quota bucket.
func (k ActionKind) Base() ActionKind {
	if k == ActionGradingAssistanceStream {
		return ActionGradingAssistance
	}
	return k
}

func (k ActionKind) Streaming() bool {
	return k == ActionGradingAssistanceStream
}

// MediaSource references embedded binary content for multimodal
// messages. The gateway passes it through structurally, it never
// decodes or validates the payload.
type MediaSource struct {
	Type      string `json:"type"` // always "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentPart is one part of a message body: plain text, or a media
// reference for image/document analysis.
type ContentPart struct {
	Type   string       `json:"type"` // "text", "image" or "document"
	Text   string       `json:"text,omitempty"`
	Source *MediaSource `json:"source,omitempty"`
}

// Message is one conversation turn in provider wire shape.
type Message struct {
	Role    string        `json:"role"` // "user" or "assistant"
	Content []ContentPart `json:"content"`
}

// TextMessage builds a single-part text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentPart{{Type: "text", Text: text}}}
}

// HistoryMessage is a caller-supplied conversation turn for the general
// assistance kind. Content is plain text here; system-role turns are
// stripped by the prompt builder.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ActionPayload carries the action-specific request fields. Which
// fields matter depends on the kind; unused fields are ignored.
type ActionPayload struct {
	Subject     string           `json:"subject,omitempty"`
	Topic       string           `json:"topic,omitempty"`
	GradeLevel  string           `json:"grade_level,omitempty"`
	Duration    string           `json:"duration,omitempty"`
	Question    string           `json:"question,omitempty"`
	StudentWork string           `json:"student_work,omitempty"`
	Rubric      string           `json:"rubric,omitempty"`
	History     []HistoryMessage `json:"messages,omitempty"`
	Prompt      string           `json:"prompt,omitempty"`
	MediaType   string           `json:"media_type,omitempty"`
	MediaData   string           `json:"media_data,omitempty"`
}

// TokenUsage is the provider-reported token accounting for one request.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Membership links a user to an organization.
type Membership struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// Subscription is an organization's plan record for a date range.
type Subscription struct {
	ID             int64      `json:"id"`
	OrganizationID string     `json:"organization_id"`
	PlanTier       string     `json:"plan_tier"` // raw label, may be a legacy alias
	Status         string     `json:"status"`
	StartsAt       time.Time  `json:"starts_at"`
	EndsAt         *time.Time `json:"ends_at"`
}

// AIService is a reference-table row identifying a provider+model pair,
// so usage history stays queryable as new models are introduced.
type AIService struct {
	ID       int64  `json:"id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// UsageStatus is the terminal state recorded for a request.
type UsageStatus string

const (
	UsageSuccess       UsageStatus = "success"
	UsageProviderError UsageStatus = "provider_error"
	UsageStreamError   UsageStatus = "stream_error"
)

// UsageLog is one row per completed (or failed) AI request.
type UsageLog struct {
	ID             int64       `json:"id"`
	RequestID      string      `json:"request_id"`
	ServiceID      int64       `json:"service_id"`
	Action         ActionKind  `json:"action"`
	SystemPrompt   string      `json:"system_prompt"`
	InputText      string      `json:"input_text"`
	OutputText     string      `json:"output_text"`
	InputTokens    *int        `json:"input_tokens"`
	OutputTokens   *int        `json:"output_tokens"`
	Cost           *float64    `json:"cost"`
	OrganizationID *string     `json:"organization_id"`
	UserID         string      `json:"user_id"`
	Status         UsageStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}
