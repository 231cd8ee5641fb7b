package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

func TestContextBlockFormatsReferences(t *testing.T) {
	block := ContextBlock([]domain.Passage{
		{Book: "João", Chapter: 3, Verse: 16, Source: "biblia.txt", Text: "Porque Deus amou o mundo"},
		{Book: "Rute", Chapter: 1, Verse: 16, Source: "biblia.txt", Text: "o teu povo é o meu povo"},
	})

	assert.Equal(t, "- [João 3:16] (biblia.txt) Porque Deus amou o mundo\n- [Rute 1:16] (biblia.txt) o teu povo é o meu povo", block)
}

func TestUserMessageCarriesQuestionAndContext(t *testing.T) {
	msg := User("O que é fé?", []domain.Passage{{Book: "Hebreus", Chapter: 11, Verse: 1, Text: "Ora, a fé é"}})

	assert.True(t, strings.HasPrefix(msg, "PERGUNTA:\nO que é fé?\n\n"))
	assert.Contains(t, msg, "[Hebreus 11:1]")
	assert.Contains(t, msg, "INSTRUÇÕES DE RESPOSTA:")
}

func TestSystemPromptNamesFallbackAnswer(t *testing.T) {
	assert.Contains(t, System, Insufficient)
}
