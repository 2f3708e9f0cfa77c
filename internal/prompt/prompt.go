// Package prompt maps an action kind plus its payload to the system
// instruction and message list sent to the provider. Templates are
// fixed at build time; identical inputs always produce identical
// output.
package prompt

import (
	"fmt"
	"strings"

	"github.com/edtech/ai-gateway/internal/models"
)

const (
	lessonSystem = "You are an experienced curriculum designer for K-12 classrooms. " +
		"Produce a structured lesson plan with objectives, materials, warm-up, " +
		"main activity, assessment, and differentiation notes. Keep the plan " +
		"practical for a single class period unless told otherwise."

	homeworkSystem = "You are a patient tutor. Guide the student toward the answer " +
		"step by step instead of handing it over. Use age-appropriate language " +
		"and check understanding along the way."

	gradingSystem = "You are a grading assistant for teachers. Evaluate the student " +
		"work against the rubric, cite specific passages, suggest a score with " +
		"justification, and list concrete improvement points."

	generalSystem = "You are a helpful assistant for teachers and school staff in an " +
		"education management platform. Answer concisely and stay within " +
		"educational topics."

	imageSystem = "You analyze images submitted in an educational context. Describe " +
		"what the image shows and answer the accompanying question about it."

	documentSystem = "You analyze documents submitted in an educational context. " +
		"Summarize the document and answer the accompanying question about it."
)

// Build renders the system prompt and message list for an action.
// Unknown kinds are a caller error; there is no default template.
func Build(kind models.ActionKind, p models.ActionPayload) (string, []models.Message, error) {
	switch kind.Base() {
	case models.ActionLessonGeneration:
		return lessonSystem, []models.Message{models.TextMessage("user", lessonRequest(p))}, nil
	case models.ActionHomeworkHelp:
		return homeworkSystem, []models.Message{models.TextMessage("user", homeworkRequest(p))}, nil
	case models.ActionGradingAssistance:
		return gradingSystem, []models.Message{models.TextMessage("user", gradingRequest(p))}, nil
	case models.ActionGeneralAssistance:
		msgs, err := generalMessages(p)
		if err != nil {
			return "", nil, err
		}
		return generalSystem, msgs, nil
	case models.ActionImageAnalysis:
		return imageSystem, []models.Message{mediaMessage("image", p)}, nil
	case models.ActionDocumentAnalysis:
		return documentSystem, []models.Message{mediaMessage("document", p)}, nil
	}
	return "", nil, fmt.Errorf("no prompt template for action %q", kind)
}

func lessonRequest(p models.ActionPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a lesson plan.\nSubject: %s\nTopic: %s\nGrade level: %s\n", p.Subject, p.Topic, p.GradeLevel)
	if p.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", p.Duration)
	}
	return b.String()
}

func homeworkRequest(p models.ActionPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Help with this homework question.\nQuestion: %s\n", p.Question)
	if p.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", p.Subject)
	}
	if p.GradeLevel != "" {
		fmt.Fprintf(&b, "Grade level: %s\n", p.GradeLevel)
	}
	return b.String()
}

func gradingRequest(p models.ActionPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Grade the following student work.\n")
	if p.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", p.Subject)
	}
	if p.Rubric != "" {
		fmt.Fprintf(&b, "Rubric:\n%s\n", p.Rubric)
	}
	fmt.Fprintf(&b, "Student work:\n%s\n", p.StudentWork)
	return b.String()
}

// generalMessages passes caller-supplied history through, dropping any
// system-role turns: the builder's own system prompt always wins. A
// payload with no question and no usable history is a caller error;
// the provider rejects empty-content turns.
func generalMessages(p models.ActionPayload) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(p.History)+1)
	for _, h := range p.History {
		if h.Role == "system" {
			continue
		}
		msgs = append(msgs, models.TextMessage(h.Role, h.Content))
	}
	if p.Question != "" {
		msgs = append(msgs, models.TextMessage("user", p.Question))
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("general assistance needs a question or message history")
	}
	return msgs, nil
}

// mediaMessage builds a two-part user turn: the question text plus a
// structural reference to the media. No decoding or validation here.
func mediaMessage(partType string, p models.ActionPayload) models.Message {
	question := p.Prompt
	if question == "" {
		question = p.Question
	}
	return models.Message{
		Role: "user",
		Content: []models.ContentPart{
			{Type: "text", Text: question},
			{Type: partType, Source: &models.MediaSource{
				Type:      "base64",
				MediaType: p.MediaType,
				Data:      p.MediaData,
			}},
		},
	}
}
