package retrieval

import (
	"context"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
)

// SemanticSearch embeds the question and returns its nearest passages in
// store order (ascending distance).
func SemanticSearch(
	ctx context.Context,
	embedder ports.Embedder,
	store ports.PassageSearcher,
	question string,
	filter domain.PassageFilter,
	k int,
) ([]domain.Candidate, error) {
	vector, err := embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "embed query", err)
	}

	hits, err := store.NearestNeighbors(ctx, vector, filter, k)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreUnavailable, "nearest neighbors", err)
	}

	out := make([]domain.Candidate, 0, len(hits))
	for _, hit := range hits {
		out = append(out, domain.Candidate{
			Passage:          hit.Passage,
			Origin:           domain.OriginSemantic,
			SemanticDistance: hit.Distance,
		})
	}
	return out, nil
}
