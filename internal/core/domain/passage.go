package domain

import (
	"fmt"
	"strings"
)

type Testament string

const (
	TestamentOld Testament = "OLD"
	TestamentNew Testament = "NEW"
)

// ParseTestament accepts both the canonical values and the corpus
// abbreviations (AT / NT).
func ParseTestament(raw string) (Testament, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "OLD", "AT":
		return TestamentOld, true
	case "NEW", "NT":
		return TestamentNew, true
	default:
		return "", false
	}
}

// Passage is a single verse with its canonical reference.
type Passage struct {
	Text        string    `json:"text"`
	Book        string    `json:"book"`
	Chapter     int       `json:"chapter"`
	Verse       int       `json:"verse"`
	Testament   Testament `json:"testament"`
	Source      string    `json:"source"`
	Translation string    `json:"translation"`
}

// Key is the passage identity. Two passages with the same reference are the
// same passage regardless of text or source.
func (p Passage) Key() string {
	return fmt.Sprintf("%s|%d|%d", p.Book, p.Chapter, p.Verse)
}

// Reference renders "Livro cap:vers".
func (p Passage) Reference() string {
	return fmt.Sprintf("%s %d:%d", p.Book, p.Chapter, p.Verse)
}

// IndexedPassage pairs a passage with its embedding for upserts.
type IndexedPassage struct {
	Passage
	Vector []float32
}

// PassageFilter restricts store queries by metadata. Empty fields match
// everything.
type PassageFilter struct {
	Book      string
	Testament Testament
}

func (f PassageFilter) IsZero() bool {
	return f.Book == "" && f.Testament == ""
}

func (f PassageFilter) Match(p Passage) bool {
	if f.Book != "" && p.Book != f.Book {
		return false
	}
	if f.Testament != "" && p.Testament != f.Testament {
		return false
	}
	return true
}

// ScoredPassage is a store hit with its nearest-neighbor distance.
type ScoredPassage struct {
	Passage
	Distance float64
}
