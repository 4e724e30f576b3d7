package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const minMatchLen = 3

// Norwegian letters that do not decompose under NFD.
var letterFolder = strings.NewReplacer("æ", "ae", "ø", "o", "å", "a")

// suffixes are tried longest first; a stem keeps at least minMatchLen runes.
var suffixes = []string{
	"ingen", "heten", "ende", "ene", "ane", "het", "ing", "ies",
	"er", "en", "et", "ed", "es", "ly", "e", "s", "y",
}

var stopWords = toSet(
	"hva", "hvor", "hvordan", "hvorfor", "hvem", "som", "det", "den", "der", "har",
	"med", "for", "til", "fra", "og", "eller", "ikke", "kan", "vil", "skal", "dere",
	"deres", "partiet", "partiets", "mener", "om", "på", "av", "en", "ei", "et",
	"the", "what", "how", "why", "who", "and", "you", "your", "are", "our", "does",
	"party", "about", "think",
)

// expansions maps domain terms to related terms, including English ones,
// since the documents are not always in the language of the question.
var expansions = normalizeTable(map[string][]string{
	"klima":       {"climate", "emissions", "utslipp", "miljø", "environment"},
	"energi":      {"energy", "power", "electricity", "kraft", "strøm"},
	"strøm":       {"electricity", "power", "energi", "kraft"},
	"miljø":       {"environment", "nature", "natur", "klima"},
	"skole":       {"school", "education", "utdanning", "elever"},
	"utdanning":   {"education", "school", "skole", "universitet"},
	"helse":       {"health", "hospital", "sykehus", "fastlege"},
	"skatt":       {"tax", "taxes", "avgift", "avgifter"},
	"bolig":       {"housing", "home", "leilighet"},
	"samferdsel":  {"transport", "traffic", "kollektiv", "vei", "jernbane"},
	"innvandring": {"immigration", "migration", "integrering", "asyl"},
	"arbeid":      {"work", "jobs", "employment", "arbeidsplasser"},
	"forsvar":     {"defence", "defense", "military", "beredskap"},
	"eldre":       {"elderly", "pension", "pensjon", "eldreomsorg"},
	"næring":      {"business", "industry", "bedrifter"},
	"landbruk":    {"agriculture", "farming", "bonde"},
})

// tokenize lowercases, folds diacritics, splits on anything that is not a
// letter or digit and stems each token. Stop words and tokens shorter than
// minMatchLen are dropped.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(foldDiacritics(strings.ToLower(text)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minMatchLen || stopWords[f] {
			continue
		}
		tokens = append(tokens, stem(f))
	}
	return tokens
}

func foldDiacritics(s string) string {
	s = letterFolder.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func stem(token string) string {
	n := utf8.RuneCountInString(token)
	for _, suf := range suffixes {
		if strings.HasSuffix(token, suf) && n-utf8.RuneCountInString(suf) >= minMatchLen {
			return strings.TrimSuffix(token, suf)
		}
	}
	return token
}

// tokensMatch is equality, or a prefix relation when both tokens are long
// enough to tolerate inflection.
func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	if utf8.RuneCountInString(a) < minMatchLen || utf8.RuneCountInString(b) < minMatchLen {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// queryTerms tokenizes the query and adds the expansions of every term that
// matches a table key. Terms are deduplicated in first-seen order.
func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	for _, tok := range tokenize(query) {
		add(tok)
		for key, related := range expansions {
			if !tokensMatch(tok, key) {
				continue
			}
			for _, r := range related {
				add(r)
			}
		}
	}
	return terms
}

// lexicalScore counts the chunk tokens matched by any query term.
func lexicalScore(terms, chunkTokens []string) int {
	score := 0
	for _, tok := range chunkTokens {
		for _, term := range terms {
			if tokensMatch(term, tok) {
				score++
				break
			}
		}
	}
	return score
}

func normalizeTable(table map[string][]string) map[string][]string {
	out := make(map[string][]string, len(table))
	for key, related := range table {
		var norm []string
		for _, r := range related {
			norm = append(norm, tokenize(r)...)
		}
		for _, k := range tokenize(key) {
			out[k] = append(out[k], norm...)
		}
	}
	return out
}

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[foldDiacritics(w)] = true
	}
	return set
}
