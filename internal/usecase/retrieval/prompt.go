package retrieval

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/coursemind/coursemind/internal/domain"
)

// followUpMarker separates the answer body from the suggested questions in
// the model's reply.
const followUpMarker = "follow-up questions:"

const maxFollowUps = 4

// keywordPattern matches alphabetic words of three or more letters.
var keywordPattern = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

// queryStopwords are excluded from keyword matching.
var queryStopwords = map[string]struct{}{
	"the": {}, "and": {}, "that": {}, "this": {}, "with": {},
	"for": {}, "from": {}, "you": {}, "are": {}, "but": {},
	"not": {}, "have": {}, "what": {}, "can": {}, "all": {}, "will": {},
}

// extractKeywords pulls lowercase content words out of the query, in order
// of first appearance and deduplicated.
func extractKeywords(query string) []string {
	words := keywordPattern.FindAllString(strings.ToLower(query), -1)

	seen := make(map[string]struct{}, len(words))
	var terms []string
	for _, w := range words {
		if _, stop := queryStopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}

// buildPrompt assembles the synthesis prompt from the selected chunks.
// With citations enabled, context blocks carry page numbers and the model is
// asked to reference them as [1], [2]. The model is always asked for a
// follow-up trailer; parsing it is lenient.
func buildPrompt(query string, chunks []domain.RetrievalResult, withCitations bool) string {
	var ctx strings.Builder
	for i, r := range chunks {
		if i > 0 {
			ctx.WriteString("\n\n")
		}
		if withCitations {
			fmt.Fprintf(&ctx, "[%d] Chapter: %s (p. %d)\n%s", i+1, r.Chunk.ChapterTitle, r.Chunk.Page, r.Chunk.Text)
		} else {
			fmt.Fprintf(&ctx, "[Document %d] Chapter: %s\n%s", i+1, r.Chunk.ChapterTitle, r.Chunk.Text)
		}
	}

	var b strings.Builder
	if withCitations {
		b.WriteString(
			"Answer the following question based on the provided context. " +
				"Include citations to your sources using the format [1], [2], etc. " +
				"If multiple sources support a statement, include all relevant citations like [1,2]. ")
	} else {
		b.WriteString("Answer the following question based only on the provided context. ")
	}
	b.WriteString(
		"If the context doesn't contain the information needed, say so - don't make up information.\n" +
			"After your answer, add a line \"Follow-up questions:\" followed by a JSON array of " +
			"3 follow-up questions a student might ask next.\n\n")

	fmt.Fprintf(&b, "Context:\n%s\n\nQuestion: %s\n\nAnswer:", ctx.String(), query)
	return b.String()
}

var (
	jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)
	listItemPattern  = regexp.MustCompile(`(?m)^\s*(?:\d+\.|-)\s*(.+)$`)
)

// splitFollowUps separates the answer body from the follow-up trailer.
// A missing or malformed trailer yields the whole reply as the answer and
// no questions.
func splitFollowUps(reply string) (answer string, followUps []string) {
	idx := strings.LastIndex(strings.ToLower(reply), followUpMarker)
	if idx < 0 {
		return strings.TrimSpace(reply), nil
	}
	answer = strings.TrimSpace(reply[:idx])
	trailer := reply[idx+len(followUpMarker):]
	return answer, parseFollowUps(trailer, maxFollowUps)
}

// parseFollowUps extracts up to n questions from the trailer. Tries a JSON
// array first, then numbered or dashed list lines. Unparseable text yields
// an empty list, never an error.
func parseFollowUps(content string, n int) []string {
	if m := jsonArrayPattern.FindString(content); m != "" {
		var questions []string
		if err := json.Unmarshal([]byte(m), &questions); err == nil {
			return trimQuestions(questions, n)
		}
	}

	var questions []string
	for _, m := range listItemPattern.FindAllStringSubmatch(content, -1) {
		questions = append(questions, m[1])
	}
	return trimQuestions(questions, n)
}

func trimQuestions(questions []string, n int) []string {
	var out []string
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == n {
			break
		}
	}
	return out
}
