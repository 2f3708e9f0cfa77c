package provider

import (
	"fmt"

	"github.com/edtech/ai-gateway/internal/models"
)

// fallbackContent is served when the provider is configured but
// unreachable or erroring. Kept generic on purpose.
const fallbackContent = "The AI assistant is temporarily unavailable. " +
	"Your request was received but could not be completed right now; " +
	"please try again in a few minutes."

const offlineNote = "[offline mode] "

// cannedContent is the deterministic per-action response used when no
// provider credential is configured, so the gateway stays demo-capable
// and testable without live credentials.
func cannedContent(kind models.ActionKind, p models.ActionPayload) string {
	switch kind.Base() {
	case models.ActionLessonGeneration:
		return fmt.Sprintf("%sSample lesson plan for %q (grade %s):\n"+
			"1. Objectives: introduce %s through guided discovery.\n"+
			"2. Warm-up: quick review questions.\n"+
			"3. Main activity: hands-on exploration of %s.\n"+
			"4. Assessment: exit ticket with three questions.",
			offlineNote, p.Topic, p.GradeLevel, p.Topic, p.Topic)
	case models.ActionHomeworkHelp:
		return fmt.Sprintf("%sLet's work through this together. Re-read the question %q, "+
			"identify what is being asked, and list what you already know. "+
			"Start from there and take it one step at a time.",
			offlineNote, p.Question)
	case models.ActionGradingAssistance:
		return offlineNote + "Sample evaluation: the submission addresses the main points of the rubric. " +
			"Suggested score: satisfactory. Improvement points: add supporting evidence and a clearer conclusion."
	case models.ActionGeneralAssistance:
		return offlineNote + "I can help with lesson planning, homework guidance and grading once a " +
			"live AI connection is configured."
	case models.ActionImageAnalysis:
		return offlineNote + "Image analysis is unavailable without a live AI connection. " +
			"The uploaded image was received but not analyzed."
	case models.ActionDocumentAnalysis:
		return offlineNote + "Document analysis is unavailable without a live AI connection. " +
			"The uploaded document was received but not analyzed."
	}
	return offlineNote + "This action is unavailable right now."
}

// cannedDeltas are the synthetic stream chunks emitted in offline mode:
// three deltas, then a final summary, so clients exercise the same
// state machine as a live stream.
func cannedDeltas(kind models.ActionKind, p models.ActionPayload) []string {
	content := cannedContent(kind, p)
	third := len(content) / 3
	if third == 0 {
		return []string{content}
	}
	return []string{content[:third], content[third : 2*third], content[2*third:]}
}
