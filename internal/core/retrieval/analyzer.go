package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

// Analyze turns a free-form question into a QueryContext. It never fails;
// an empty question yields an empty context.
func Analyze(question string) domain.QueryContext {
	lower := strings.ToLower(question)
	return domain.QueryContext{
		RawQuestion:         question,
		Keywords:            extractKeywords(lower),
		BookFilter:          detectBook(lower),
		TestamentPreference: detectTestament(lower),
		IsBiographical:      isBiographical(lower),
	}
}

// ModeFor picks literal-only retrieval for biographical questions so the
// guard only sees passages that name the person.
func ModeFor(qc domain.QueryContext) domain.RetrievalMode {
	if qc.IsBiographical {
		return domain.ModeLiteralOnly
	}
	return domain.ModeAuto
}

func extractKeywords(lower string) []string {
	tokens := splitWords(lower)
	keywords := make([]string, 0, maxKeywords)
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if utf8.RuneCountInString(token) < 2 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// splitWords replaces every rune that is not a letter or digit with a space
// and splits on whitespace. Diacritics are letters and survive.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func detectBook(lower string) string {
	for _, b := range books {
		if strings.Contains(lower, b.needle) {
			return b.display
		}
	}
	return ""
}

func detectTestament(lower string) domain.Testament {
	for _, cue := range newTestamentCues {
		if strings.Contains(lower, cue) {
			return domain.TestamentNew
		}
	}
	return ""
}

func isBiographical(lower string) bool {
	trimmed := strings.TrimSpace(lower)
	for _, prefix := range biographicalPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
