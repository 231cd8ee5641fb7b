package retrieval

// stopwords is the Portuguese function-word list dropped from keywords.
var stopwords = map[string]struct{}{
	"a": {}, "o": {}, "os": {}, "as": {}, "um": {}, "uma": {}, "uns": {}, "umas": {},
	"de": {}, "do": {}, "da": {}, "dos": {}, "das": {},
	"em": {}, "no": {}, "na": {}, "nos": {}, "nas": {},
	"e": {}, "ou": {}, "para": {}, "por": {}, "com": {}, "sem": {},
	"que": {}, "quem": {}, "como": {}, "qual": {}, "quais": {}, "quando": {}, "onde": {},
	"porque": {}, "porquê": {}, "pq": {},
	"é": {}, "foi": {}, "são": {}, "ser": {}, "estar": {}, "tem": {}, "têm": {}, "ter": {},
	"me": {}, "te": {}, "se": {}, "vos": {}, "lhe": {}, "lhes": {},
	"devo": {}, "segundo": {}, "perdeu": {}, "força": {}, "coisa": {},
	"isso": {}, "isto": {}, "sobre": {},
}

type bookEntry struct {
	needle  string
	display string
}

// books is matched in order and the first hit wins. Several needles overlap
// ("i samuel" is a substring of "ii samuel"); the order is kept as is.
var books = []bookEntry{
	{"gênesis", "Gênesis"},
	{"êxodo", "Êxodo"},
	{"levítico", "Levítico"},
	{"números", "Números"},
	{"deuteronômio", "Deuteronômio"},
	{"josué", "Josué"},
	{"juízes", "Juízes"},
	{"rute", "Rute"},
	{"i samuel", "I Samuel"},
	{"ii samuel", "II Samuel"},
	{"i reis", "I Reis"},
	{"ii reis", "II Reis"},
	{"salmos", "Salmos"},
	{"provérbios", "Provérbios"},
	{"isaías", "Isaías"},
	{"jeremias", "Jeremias"},
	{"mateus", "Mateus"},
	{"marcos", "Marcos"},
	{"lucas", "Lucas"},
	{"joão", "João"},
	{"romanos", "Romanos"},
	{"coríntios", "Coríntios"},
	{"gálatas", "Gálatas"},
	{"efésios", "Efésios"},
	{"filipenses", "Filipenses"},
	{"colossenses", "Colossenses"},
	{"hebreus", "Hebreus"},
	{"apocalipse", "Apocalipse"},
}

var newTestamentCues = []string{"jesus", "cristo", "evangelho", "paulo", "apóstolo"}

var biographicalPrefixes = []string{"quem é", "quem foi"}

const maxKeywords = 6
