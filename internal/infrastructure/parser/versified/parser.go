// Package versified parses plain-text Bibles laid out as testament headings,
// "BOOK N" chapter lines and "N text" verse lines.
package versified

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
)

const DefaultTranslation = "Almeida Revista e Corrigida"

var (
	bookLine    = regexp.MustCompile(`^[A-ZÁÉÍÓÚÂÊÔÃÕÇÜ][A-ZÁÉÍÓÚÂÊÔÃÕÇÜ\s\-]+$`)
	chapterLine = regexp.MustCompile(`^([A-ZÁÉÍÓÚÂÊÔÃÕÇÜ][A-ZÁÉÍÓÚÂÊÔÃÕÇÜ\s\-]+)\s+(\d+)$`)
	verseLine   = regexp.MustCompile(`^(\d{1,3})\s+(.+)$`)

	headerPrefixes = []string{"BÍBLIA SAGRADA", "TRADUÇÃO:", "EDIÇÃO"}
	romanNumerals  = map[string]struct{}{"I": {}, "II": {}, "III": {}, "IV": {}}
)

const maxLineBytes = 1 << 20

type Parser struct {
	translation string
}

func NewParser(translation string) *Parser {
	if strings.TrimSpace(translation) == "" {
		translation = DefaultTranslation
	}
	return &Parser{translation: translation}
}

type state struct {
	testament domain.Testament
	book      string
	chapter   int
}

// Parse returns the verses found in r. Verse lines seen before a testament,
// book and chapter are all known are ignored.
func (p *Parser) Parse(r io.Reader, source string) ([]domain.Passage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		st  state
		out []domain.Passage
	)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(strings.ToValidUTF8(scanner.Text(), string(utf8.RuneError)), "\ufeff"))
		if line == "" {
			continue
		}
		if passage, ok := st.consume(line); ok {
			passage.Source = source
			passage.Translation = p.translation
			out = append(out, passage)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}
	return out, nil
}

func (st *state) consume(line string) (domain.Passage, bool) {
	upper := strings.ToUpper(line)

	for _, prefix := range headerPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return domain.Passage{}, false
		}
	}

	switch upper {
	case "ANTIGO TESTAMENTO":
		st.testament = domain.TestamentOld
		return domain.Passage{}, false
	case "NOVO TESTAMENTO":
		st.testament = domain.TestamentNew
		return domain.Passage{}, false
	}

	if m := chapterLine.FindStringSubmatch(upper); m != nil {
		chapter, err := strconv.Atoi(m[2])
		if err == nil {
			st.book = BookTitle(m[1])
			st.chapter = chapter
		}
		return domain.Passage{}, false
	}

	if bookLine.MatchString(upper) && !strings.ContainsFunc(upper, unicode.IsDigit) {
		st.book = BookTitle(upper)
		st.chapter = 0
		return domain.Passage{}, false
	}

	m := verseLine.FindStringSubmatch(line)
	if m == nil || st.testament == "" || st.book == "" || st.chapter == 0 {
		return domain.Passage{}, false
	}
	verse, err := strconv.Atoi(m[1])
	if err != nil {
		return domain.Passage{}, false
	}
	return domain.Passage{
		Text:      strings.TrimSpace(m[2]),
		Book:      st.book,
		Chapter:   st.chapter,
		Verse:     verse,
		Testament: st.testament,
	}, true
}

// BookTitle title-cases an uppercase book heading, keeping roman numerals
// upper so "II SAMUEL" becomes "II Samuel".
func BookTitle(raw string) string {
	words := strings.Fields(raw)
	for i, w := range words {
		if _, ok := romanNumerals[strings.ToUpper(w)]; ok {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func titleWord(w string) string {
	var b strings.Builder
	b.Grow(len(w))
	startOfWord := true
	for _, r := range w {
		if startOfWord {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		startOfWord = !unicode.IsLetter(r)
	}
	return b.String()
}
