package retrieval

import (
	"sort"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

// Merge emits literal candidates first, then semantic candidates not already
// seen. A NEW testament preference moves NEW passages ahead of OLD ones
// without disturbing the order inside each group.
func Merge(literal, semantic []domain.Candidate, preference domain.Testament) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(literal)+len(semantic))
	seen := make(map[string]struct{}, cap(out))
	add := func(candidates []domain.Candidate) {
		for _, c := range candidates {
			key := c.Passage.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
		}
	}

	add(literal)
	add(semantic)

	if preference == domain.TestamentNew {
		sort.SliceStable(out, func(i, j int) bool {
			return testamentRank(out[i].Passage.Testament) < testamentRank(out[j].Passage.Testament)
		})
	}
	return out
}

func testamentRank(t domain.Testament) int {
	if t == domain.TestamentNew {
		return 0
	}
	return 1
}

// Truncate caps candidates at limit; a non-positive limit keeps everything.
func Truncate(candidates []domain.Candidate, limit int) []domain.Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}
