package relevance

import "github.com/jonathan/keyword-collector/internal/types"

// Outcome is the result of Apply. It is either *LLMFiltered or *FallbackFiltered.
type Outcome interface {
	Keywords() []string
	Method() string
	outcome()
}

// LLMFiltered holds keywords chosen by the language model.
type LLMFiltered struct {
	Selected []string
	// Padded counts keywords appended from the head of the candidates.
	Padded int
	// Discarded counts parsed phrases that were not candidates.
	Discarded int
}

// Keywords returns the selected keywords.
func (o *LLMFiltered) Keywords() []string { return o.Selected }

// Method returns types.FilteringMethodLLM.
func (o *LLMFiltered) Method() string { return types.FilteringMethodLLM }

func (*LLMFiltered) outcome() {}

// FallbackFiltered holds the leading candidates, used when the model is unavailable.
type FallbackFiltered struct {
	Selected []string
	Cause    error
}

// Keywords returns the truncated candidates.
func (o *FallbackFiltered) Keywords() []string { return o.Selected }

// Method returns types.FilteringMethodFallback.
func (o *FallbackFiltered) Method() string { return types.FilteringMethodFallback }

func (*FallbackFiltered) outcome() {}

// ToFilteredSet converts an outcome into the persisted keyword set.
func ToFilteredSet(o Outcome, originalCount, maxKeywords int) types.FilteredKeywordSet {
	set := types.FilteredKeywordSet{
		Keywords:        append([]string{}, o.Keywords()...),
		FilteringMethod: o.Method(),
		OriginalCount:   originalCount,
		FilteredCount:   len(o.Keywords()),
		MaxKeywords:     maxKeywords,
	}
	switch v := o.(type) {
	case *LLMFiltered:
		set.PaddedCount = v.Padded
	case *FallbackFiltered:
		if v.Cause != nil {
			set.FilteringError = v.Cause.Error()
		}
	}
	return set
}
