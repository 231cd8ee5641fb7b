package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
	"github.com/kirillkom/scripture-rag/internal/core/retrieval"
)

const (
	msgNoExplicitMention  = "Não encontrei no contexto recuperado versículos que mencionem explicitamente esse nome."
	msgNoRelevantPassages = "Não encontrei versículos relevantes para essa pergunta. Tente reformular com mais contexto."
)

// GuardObserver is notified of every guard decision.
type GuardObserver interface {
	ObserveGuard(decision domain.GuardDecision)
}

type AnswerUseCase struct {
	retriever ports.Retriever
	generator ports.AnswerGenerator
	observer  GuardObserver
}

func NewAnswerUseCase(retriever ports.Retriever, generator ports.AnswerGenerator, observer GuardObserver) *AnswerUseCase {
	return &AnswerUseCase{
		retriever: retriever,
		generator: generator,
		observer:  observer,
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	mode := retrieval.ModeFor(uc.retriever.Analyze(question))

	result, err := uc.retriever.Retrieve(ctx, question, mode)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages: %w", err)
	}

	decision := retrieval.Guard(result.Query, result.Candidates)
	if uc.observer != nil {
		uc.observer.ObserveGuard(decision)
	}
	if decision.Blocked() {
		return &domain.Answer{
			Text:    blockedMessage(decision.Reason),
			Sources: []domain.Passage{},
			Blocked: true,
			Reason:  decision.Reason,
		}, nil
	}

	passages := narrativeOrder(result.Candidates)
	text, err := uc.generator.GenerateAnswer(ctx, question, passages)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &domain.Answer{
		Text:    text,
		Sources: passages,
	}, nil
}

func blockedMessage(reason domain.BlockReason) string {
	if reason == domain.ReasonNoExplicitMention {
		return msgNoExplicitMention
	}
	return msgNoRelevantPassages
}

// narrativeOrder sorts passages by book, chapter and verse for prompting.
func narrativeOrder(candidates []domain.Candidate) []domain.Passage {
	out := make([]domain.Passage, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Passage)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Book != out[j].Book {
			return out[i].Book < out[j].Book
		}
		if out[i].Chapter != out[j].Chapter {
			return out[i].Chapter < out[j].Chapter
		}
		return out[i].Verse < out[j].Verse
	})
	return out
}
