// Package prompt builds the grounded-answer messages shared by every
// generation provider.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

const Insufficient = "O contexto fornecido não contém informação suficiente para responder."

const System = "Você é um assistente especialista em Bíblia (Almeida Revista e Corrigida). " +
	"RESPONDA EXCLUSIVAMENTE com base no CONTEXTO fornecido. " +
	"É PROIBIDO usar conhecimento externo, memória prévia ou inferências fora do texto. " +
	"Se a informação não estiver explicitamente presente no CONTEXTO, " +
	"responda: '" + Insufficient + "' " +
	"Toda afirmação deve citar ao menos um versículo do CONTEXTO. " +
	"Nunca cite versículos que não apareçam no CONTEXTO."

// ContextBlock renders one "- [Livro cap:vers] (fonte) texto" line per
// passage.
func ContextBlock(passages []domain.Passage) string {
	lines := make([]string, 0, len(passages))
	for _, p := range passages {
		lines = append(lines, fmt.Sprintf("- [%s] (%s) %s", p.Reference(), p.Source, p.Text))
	}
	return strings.Join(lines, "\n")
}

func User(question string, passages []domain.Passage) string {
	var b strings.Builder
	b.WriteString("PERGUNTA:\n")
	b.WriteString(question)
	b.WriteString("\n\nCONTEXTO (versículos recuperados):\n")
	b.WriteString(ContextBlock(passages))
	b.WriteString("\n\nINSTRUÇÕES DE RESPOSTA:\n")
	b.WriteString("- Comece com uma definição objetiva.\n")
	b.WriteString("- Use apenas informações presentes no CONTEXTO.\n")
	b.WriteString("- Cite os versículos logo após cada afirmação.\n")
	b.WriteString("- Não mencione personagens, eventos ou livros fora do CONTEXTO.\n")
	return b.String()
}
