package relevance

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonathan/keyword-collector/internal/llm"
)

// MaxPhraseWords is the longest phrase accepted from a model response.
const MaxPhraseWords = 3

var (
	itemSeparators = regexp.MustCompile(`[,;\n]+`)
	leadingMarker  = regexp.MustCompile(`^\s*(?:\d+\s*[.)]|[-*•–—])\s*`)
	quoteChars     = strings.NewReplacer(`"`, "", "'", "", "«", "", "»", "", "“", "", "”", "", "„", "", "`", "")
	innerSpace     = regexp.MustCompile(`\s+`)
)

// ParseResponse turns a model answer into unique phrases of at most
// MaxPhraseWords words. A JSON array answer is accepted as well as a
// delimited list.
func ParseResponse(text string) []string {
	text = llm.StripCodeFence(text)

	var items []string
	if arr := llm.ExtractJSONArray(text); arr != "" {
		if err := json.Unmarshal([]byte(arr), &items); err != nil {
			items = nil
		}
	}
	if items == nil {
		items = itemSeparators.Split(text, -1)
	}

	seen := make(map[string]struct{}, len(items))
	phrases := make([]string, 0, len(items))
	for _, item := range items {
		phrase := cleanPhrase(item)
		if utf8.RuneCountInString(phrase) < 2 {
			continue
		}
		if len(strings.Fields(phrase)) > MaxPhraseWords {
			continue
		}
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}
		phrases = append(phrases, phrase)
	}
	return phrases
}

func cleanPhrase(item string) string {
	item = leadingMarker.ReplaceAllString(item, "")
	item = quoteChars.Replace(item)
	item = strings.TrimFunc(item, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return innerSpace.ReplaceAllString(item, " ")
}

// candidateIndex resolves model phrases back to the candidates' exact spelling.
type candidateIndex struct {
	exact map[string]string
	fold  map[string]string
}

func newCandidateIndex(candidates []string) candidateIndex {
	idx := candidateIndex{
		exact: make(map[string]string, len(candidates)),
		fold:  make(map[string]string, len(candidates)),
	}
	for _, c := range candidates {
		idx.exact[c] = c
		key := strings.ToLower(innerSpace.ReplaceAllString(strings.TrimSpace(c), " "))
		if _, ok := idx.fold[key]; !ok {
			idx.fold[key] = c
		}
	}
	return idx
}

func (idx candidateIndex) lookup(phrase string) (string, bool) {
	if c, ok := idx.exact[phrase]; ok {
		return c, true
	}
	c, ok := idx.fold[strings.ToLower(phrase)]
	return c, ok
}
