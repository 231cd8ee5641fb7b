package domain

type Origin string

const (
	OriginLiteral  Origin = "LITERAL"
	OriginSemantic Origin = "SEMANTIC"
)

type RetrievalMode string

const (
	ModeAuto        RetrievalMode = "AUTO"
	ModeLiteralOnly RetrievalMode = "LITERAL_ONLY"
)

func ParseRetrievalMode(raw string) (RetrievalMode, bool) {
	switch RetrievalMode(raw) {
	case "", ModeAuto:
		return ModeAuto, true
	case ModeLiteralOnly:
		return ModeLiteralOnly, true
	default:
		return "", false
	}
}

// QueryContext is the analyzed form of a question.
type QueryContext struct {
	RawQuestion         string    `json:"raw_question"`
	Keywords            []string  `json:"keywords"`
	BookFilter          string    `json:"book_filter,omitempty"`
	TestamentPreference Testament `json:"testament_preference,omitempty"`
	IsBiographical      bool      `json:"is_biographical"`
}

// Candidate is a passage proposed by one retrieval branch. LiteralScore is
// meaningful only for literal candidates, SemanticDistance only for semantic
// ones.
type Candidate struct {
	Passage          Passage `json:"passage"`
	Origin           Origin  `json:"origin"`
	LiteralScore     int     `json:"literal_score,omitempty"`
	SemanticDistance float64 `json:"semantic_distance,omitempty"`
}

// Retrieval is the outcome of one retrieve call.
type Retrieval struct {
	Query      QueryContext  `json:"query"`
	Mode       RetrievalMode `json:"mode"`
	Literal    []Candidate   `json:"literal"`
	Semantic   []Candidate   `json:"semantic"`
	Candidates []Candidate   `json:"candidates"`
}

type GuardVerdict string

const (
	VerdictProceed GuardVerdict = "PROCEED"
	VerdictBlock   GuardVerdict = "BLOCK"
)

type BlockReason string

const (
	ReasonNoExplicitMention  BlockReason = "no_explicit_mention"
	ReasonNoRelevantPassages BlockReason = "no_relevant_passages"
)

type GuardDecision struct {
	Verdict GuardVerdict `json:"verdict"`
	Reason  BlockReason  `json:"reason,omitempty"`
	// Target is the name extracted from a biographical question, if any.
	Target string `json:"target,omitempty"`
}

func (d GuardDecision) Blocked() bool {
	return d.Verdict == VerdictBlock
}

type Answer struct {
	Text    string      `json:"text"`
	Sources []Passage   `json:"sources"`
	Blocked bool        `json:"blocked"`
	Reason  BlockReason `json:"reason,omitempty"`
}
