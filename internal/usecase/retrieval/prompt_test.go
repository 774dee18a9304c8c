package retrieval

import (
	"reflect"
	"strings"
	"testing"

	"github.com/coursemind/coursemind/internal/domain"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"filters stopwords", "what is the gradient descent", []string{"gradient", "descent"}},
		{"drops short words", "an ML of AI", nil},
		{"lowercases and dedupes", "Neural neural NETWORKS", []string{"neural", "networks"}},
		{"keeps order of first appearance", "backprop explains backprop gradients", []string{"backprop", "explains", "gradients"}},
		{"empty query", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractKeywords(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractKeywords(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestSplitFollowUpsJSONArray(t *testing.T) {
	reply := "The answer body.\n\nFollow-up questions: [\"One?\", \"Two?\", \"Three?\"]"
	answer, followUps := splitFollowUps(reply)
	if answer != "The answer body." {
		t.Errorf("answer = %q", answer)
	}
	want := []string{"One?", "Two?", "Three?"}
	if !reflect.DeepEqual(followUps, want) {
		t.Errorf("follow-ups = %v, want %v", followUps, want)
	}
}

func TestSplitFollowUpsNumberedList(t *testing.T) {
	reply := "Body text.\nFollow-up questions:\n1. First question?\n2. Second question?"
	answer, followUps := splitFollowUps(reply)
	if answer != "Body text." {
		t.Errorf("answer = %q", answer)
	}
	want := []string{"First question?", "Second question?"}
	if !reflect.DeepEqual(followUps, want) {
		t.Errorf("follow-ups = %v, want %v", followUps, want)
	}
}

func TestSplitFollowUpsDashedList(t *testing.T) {
	reply := "Body.\nfollow-up questions:\n- Alpha?\n- Beta?"
	_, followUps := splitFollowUps(reply)
	want := []string{"Alpha?", "Beta?"}
	if !reflect.DeepEqual(followUps, want) {
		t.Errorf("follow-ups = %v, want %v", followUps, want)
	}
}

func TestSplitFollowUpsMissingTrailer(t *testing.T) {
	answer, followUps := splitFollowUps("Just an answer with no trailer.")
	if answer != "Just an answer with no trailer." {
		t.Errorf("answer = %q", answer)
	}
	if followUps != nil {
		t.Errorf("follow-ups = %v, want nil", followUps)
	}
}

func TestSplitFollowUpsMalformedTrailer(t *testing.T) {
	answer, followUps := splitFollowUps("Answer.\nFollow-up questions: not a list at all")
	if answer != "Answer." {
		t.Errorf("answer = %q", answer)
	}
	if len(followUps) != 0 {
		t.Errorf("follow-ups = %v, want none", followUps)
	}
}

func TestSplitFollowUpsCapped(t *testing.T) {
	reply := "A.\nFollow-up questions: [\"1?\", \"2?\", \"3?\", \"4?\", \"5?\", \"6?\"]"
	_, followUps := splitFollowUps(reply)
	if len(followUps) != maxFollowUps {
		t.Errorf("got %d follow-ups, want cap of %d", len(followUps), maxFollowUps)
	}
}

func TestBuildPromptPlain(t *testing.T) {
	chunks := []domain.RetrievalResult{
		{Chunk: domain.Chunk{ChapterTitle: "Intro", Text: "chunk one", Page: 1}},
		{Chunk: domain.Chunk{ChapterTitle: "Methods", Text: "chunk two", Page: 3}},
	}

	prompt := buildPrompt("what is X", chunks, false)
	if !strings.Contains(prompt, "[Document 1] Chapter: Intro") {
		t.Error("missing first context block header")
	}
	if !strings.Contains(prompt, "[Document 2] Chapter: Methods") {
		t.Error("missing second context block header")
	}
	if !strings.Contains(prompt, "Question: what is X") {
		t.Error("missing question")
	}
	if !strings.Contains(prompt, "don't make up information") {
		t.Error("missing grounding instruction")
	}
	if strings.Contains(prompt, "citations") {
		t.Error("plain prompt should not ask for citations")
	}
}

func TestBuildPromptWithCitations(t *testing.T) {
	chunks := []domain.RetrievalResult{
		{Chunk: domain.Chunk{ChapterTitle: "Intro", Text: "chunk one", Page: 2}},
	}

	prompt := buildPrompt("what is X", chunks, true)
	if !strings.Contains(prompt, "[1] Chapter: Intro (p. 2)") {
		t.Errorf("missing numbered block with page:\n%s", prompt)
	}
	if !strings.Contains(prompt, "citations") {
		t.Error("citation prompt should ask for citations")
	}
}
