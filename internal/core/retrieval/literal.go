package retrieval

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
)

// LiteralSearch collects passages containing any keyword and ranks them by
// how many keywords they contain.
//
// The store limit applies per keyword variant before the recount, so a
// passage containing many keywords can be missed when every per-keyword
// query was already full.
func LiteralSearch(
	ctx context.Context,
	store ports.PassageSearcher,
	keywords []string,
	filter domain.PassageFilter,
	perKeywordLimit int,
) ([]domain.Candidate, error) {
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	if len(keywords) == 0 || perKeywordLimit <= 0 {
		return []domain.Candidate{}, nil
	}

	foldsCase := false
	if folding, ok := store.(ports.CaseFoldingSearcher); ok {
		foldsCase = folding.FoldsCase()
	}

	pool := make([]domain.Passage, 0, len(keywords)*perKeywordLimit)
	seen := make(map[string]struct{}, cap(pool))
	for _, keyword := range keywords {
		for _, variant := range caseVariants(keyword, foldsCase) {
			hits, err := store.ContainsSearch(ctx, variant, filter, perKeywordLimit)
			if err != nil {
				return nil, fmt.Errorf("contains search %q: %w", variant, err)
			}
			for _, p := range hits {
				key := p.Key()
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				pool = append(pool, p)
			}
		}
	}

	out := make([]domain.Candidate, 0, len(pool))
	for _, p := range pool {
		score := literalScore(p.Text, keywords)
		if score == 0 {
			continue
		}
		out = append(out, domain.Candidate{
			Passage:      p,
			Origin:       domain.OriginLiteral,
			LiteralScore: score,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LiteralScore > out[j].LiteralScore
	})
	return out, nil
}

func literalScore(text string, keywords []string) int {
	lower := strings.ToLower(text)
	score := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			score++
		}
	}
	return score
}

// caseVariants returns lower, Title and UPPER forms without duplicates.
func caseVariants(keyword string, foldsCase bool) []string {
	lower := strings.ToLower(keyword)
	if foldsCase {
		return []string{lower}
	}
	out := make([]string, 0, 3)
	for _, v := range []string{lower, titleCase(lower), strings.ToUpper(lower)} {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func titleCase(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
