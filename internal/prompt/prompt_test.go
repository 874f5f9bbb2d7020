package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/howard-nolan/sgenius/internal/provider"
)

func TestBuilders(t *testing.T) {
	tests := []struct {
		name       string
		req        *provider.Request
		wantFormat provider.Format
		contains   []string
	}{
		{
			name:       "chat",
			req:        Chat("What is photosynthesis?", provider.FormatText),
			wantFormat: provider.FormatText,
			contains:   []string{"What is photosynthesis?"},
		},
		{
			name:       "chat as json",
			req:        Chat("hi", provider.FormatJSON),
			wantFormat: provider.FormatJSON,
			contains:   []string{"hi"},
		},
		{
			name:       "feedback",
			req:        Feedback("Math", "B+", "Fractions"),
			wantFormat: provider.FormatText,
			contains:   []string{"**B+**", "**Math**", "'Fractions'"},
		},
		{
			name:       "hint",
			req:        Hint("Science", "Magnets"),
			wantFormat: provider.FormatText,
			contains:   []string{"**Science**", "'Magnets'", "one helpful hint"},
		},
		{
			name:       "quiz",
			req:        Quiz("Biology", "cells", 3),
			wantFormat: provider.FormatJSON,
			contains:   []string{"3 multiple-choice", "Subject: Biology", "Specific Topics: cells"},
		},
		{
			name:       "quiz defaults",
			req:        Quiz("Biology", "  ", 0),
			wantFormat: provider.FormatJSON,
			contains:   []string{"5 multiple-choice", "Specific Topics: general"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantFormat, tt.req.Format)
			assert.NotEmpty(t, tt.req.SystemInstruction, "every endpoint has a fixed system instruction")
			for _, s := range tt.contains {
				assert.Contains(t, tt.req.Prompt, s)
			}
		})
	}
}

func TestQuizSchemaEmbedded(t *testing.T) {
	assert.Contains(t, string(QuizSchema), "correct_answer_index")
}
