package retrieval

import (
	"strings"
	"unicode"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

// Guard decides whether fused candidates can ground an answer. Biographical
// questions are checked first: when the named person appears in none of the
// passages the decision is a no-mention block even if the list is empty.
func Guard(qc domain.QueryContext, fused []domain.Candidate) domain.GuardDecision {
	if qc.IsBiographical {
		if target := biographicalTarget(qc.RawQuestion); target != "" {
			if !anyMentions(fused, target) {
				return domain.GuardDecision{
					Verdict: domain.VerdictBlock,
					Reason:  domain.ReasonNoExplicitMention,
					Target:  target,
				}
			}
		}
	}

	if len(fused) == 0 {
		return domain.GuardDecision{Verdict: domain.VerdictBlock, Reason: domain.ReasonNoRelevantPassages}
	}
	return domain.GuardDecision{Verdict: domain.VerdictProceed}
}

// biographicalTarget returns the third word of "quem é/foi <nome> ...", or
// "" when the question does not have that shape.
func biographicalTarget(question string) string {
	parts := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(parts) < 3 || parts[0] != "quem" {
		return ""
	}
	if parts[1] != "é" && parts[1] != "foi" {
		return ""
	}
	return parts[2]
}

func anyMentions(candidates []domain.Candidate, target string) bool {
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Passage.Text), target) {
			return true
		}
	}
	return false
}
