// Package prompt holds the fixed system instruction for each endpoint and
// builds the per-request user prompt from validated fields.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/howard-nolan/sgenius/internal/provider"
)

var (
	//go:embed instructions/tutor.md
	tutorInstruction string

	//go:embed instructions/feedback.md
	feedbackInstruction string

	//go:embed instructions/hint.md
	hintInstruction string

	//go:embed instructions/quiz.md
	quizInstruction string

	// QuizSchema is the JSON schema generated quizzes must satisfy.
	//
	//go:embed instructions/quiz.schema.json
	QuizSchema []byte
)

// Defaults for the optional quiz fields.
const (
	DefaultTopics       = "general"
	DefaultNumQuestions = 5
)

// Chat passes the student's message through untouched; all the steering
// lives in the tutor instruction.
func Chat(message string, format provider.Format) *provider.Request {
	return &provider.Request{
		Prompt:            message,
		SystemInstruction: strings.TrimSpace(tutorInstruction),
		Format:            format,
	}
}

// Feedback asks for teacher feedback on a graded assignment.
func Feedback(subject, grade, title string) *provider.Request {
	return &provider.Request{
		Prompt: fmt.Sprintf(
			"Generate feedback for a student who scored **%s** in a **%s** assignment titled **'%s'**.",
			grade, subject, title,
		),
		SystemInstruction: strings.TrimSpace(feedbackInstruction),
		Format:            provider.FormatText,
	}
}

// Hint asks for a single hint on an assignment.
func Hint(subject, title string) *provider.Request {
	return &provider.Request{
		Prompt: fmt.Sprintf(
			"A student needs a hint for their **%s** assignment titled **'%s'**. Provide one helpful hint.",
			subject, title,
		),
		SystemInstruction: strings.TrimSpace(hintInstruction),
		Format:            provider.FormatText,
	}
}

// Quiz asks for a multiple-choice quiz as JSON. Empty topics and a
// non-positive count fall back to the defaults.
func Quiz(subject, topics string, numQuestions int) *provider.Request {
	if strings.TrimSpace(topics) == "" {
		topics = DefaultTopics
	}
	if numQuestions <= 0 {
		numQuestions = DefaultNumQuestions
	}
	return &provider.Request{
		Prompt: fmt.Sprintf(
			"Generate a quiz with %d multiple-choice questions for a Singapore student.\nSubject: %s\nSpecific Topics: %s",
			numQuestions, subject, topics,
		),
		SystemInstruction: strings.TrimSpace(quizInstruction),
		Format:            provider.FormatJSON,
	}
}
