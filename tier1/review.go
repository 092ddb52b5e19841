// Package tier1 asks a language model for a second opinion on URLs the
// heuristic pass escalated.
package tier1

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/scheott/safe/reputation"
)

// ErrUnparseableReply is returned when the model answer has no usable verdict.
var ErrUnparseableReply = errors.New("tier1 reply has no verdict")

// Request carries what the heuristic pass already knows about a URL.
type Request struct {
	URL     string             `json:"url"`
	Verdict reputation.Verdict `json:"verdict"`
	Score   int                `json:"score"`
	Reasons []string           `json:"reasons"`
	Summary string             `json:"summary"`
	Title   string             `json:"title,omitempty"`
	Excerpt string             `json:"excerpt,omitempty"`
}

// Review is the deeper verdict. It never replaces the heuristic verdict;
// callers report both.
type Review struct {
	Verdict     reputation.Verdict `json:"verdict"`
	Explanation string             `json:"explanation"`
	Model       string             `json:"model"`
}

// Reviewer performs a Tier-1 review.
type Reviewer interface {
	Review(ctx context.Context, req Request) (Review, error)
}

// parseReply reads the "VERDICT: ... / EXPLANATION: ..." answer format.
// Explanation lines after the marker are joined.
func parseReply(text string) (reputation.Verdict, string, error) {
	var verdict reputation.Verdict
	var explanation []string
	inExplanation := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "*"))
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "VERDICT:"):
			verdict = parseVerdict(line[len("VERDICT:"):])
			inExplanation = false
		case strings.HasPrefix(upper, "EXPLANATION:"):
			explanation = append(explanation, strings.TrimLeft(line[len("EXPLANATION:"):], "* "))
			inExplanation = true
		case inExplanation && line != "":
			explanation = append(explanation, line)
		}
	}

	if verdict == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnparseableReply, truncate(text, 80))
	}
	return verdict, strings.TrimSpace(strings.Join(explanation, " ")), nil
}

func parseVerdict(s string) reputation.Verdict {
	s = strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*.\"'")))
	switch s {
	case "ok", "safe", "legitimate":
		return reputation.VerdictOK
	case "warning", "suspicious", "caution":
		return reputation.VerdictWarning
	case "danger", "dangerous", "scam", "phishing", "malicious":
		return reputation.VerdictDanger
	}
	return ""
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
