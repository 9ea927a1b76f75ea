package types

import "time"

// Filtering methods recorded on a FilteredKeywordSet.
const (
	FilteringMethodLLM      = "llm"
	FilteringMethodFallback = "fallback_truncation"
)

// ExtractionProvenance describes where a candidate set came from and how it was cleaned.
type ExtractionProvenance struct {
	SourceFile     string         `json:"source_file"`
	Method         string         `json:"method"`
	Column         string         `json:"column,omitempty"`
	Sheets         []string       `json:"sheets,omitempty"`
	FiltersApplied []string       `json:"filters_applied,omitempty"`
	RawRows        int            `json:"raw_rows"`
	KeptRows       int            `json:"kept_rows"`
	Rejected       map[string]int `json:"rejected,omitempty"`
}

// CandidateKeywordSet is the ordered, unique set of keywords extracted from a download artifact.
type CandidateKeywordSet struct {
	Keywords   []string             `json:"keywords"`
	Provenance ExtractionProvenance `json:"provenance"`
}

// Len returns the number of candidates.
func (c *CandidateKeywordSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Keywords)
}

// FilteredKeywordSet is the relevance-filtered subset of a CandidateKeywordSet.
type FilteredKeywordSet struct {
	Keywords        []string `json:"keywords"`
	FilteringMethod string   `json:"filtering_method"`
	OriginalCount   int      `json:"original_count"`
	FilteredCount   int      `json:"filtered_count"`
	MaxKeywords     int      `json:"max_keywords"`
	PaddedCount     int      `json:"padded_count,omitempty"`
	FilteringError  string   `json:"filtering_error,omitempty"`
}

// DownloadArtifact is a completed file observed in a session's download directory.
type DownloadArtifact struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}
