package types

import "time"

// Collection statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// PreviewSize is the number of keywords echoed back in KeywordsPreview.
const PreviewSize = 15

// CollectionResult is returned to the caller of one collection run.
type CollectionResult struct {
	RunID                 string   `json:"run_id"`
	Status                string   `json:"status"`
	Stage                 string   `json:"stage"`
	Category              string   `json:"category"`
	Purposes              []string `json:"purposes"`
	AdditionalParams      []string `json:"additional_params"`
	Query                 string   `json:"query,omitempty"`
	Keywords              []string `json:"keywords"`
	KeywordsPreview       []string `json:"keywords_preview"`
	FilteringMethod       string   `json:"filtering_method,omitempty"`
	OriginalKeywordsCount int      `json:"original_keywords_count"`
	FilteredKeywordsCount int      `json:"filtered_keywords_count"`
	ArtifactPath          string   `json:"artifact_path,omitempty"`
	Message               string   `json:"message,omitempty"`
	DurationMS            int64    `json:"duration_ms"`
}

// Succeeded reports whether the run persisted its artifact.
func (r *CollectionResult) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Preview returns at most PreviewSize leading keywords.
func Preview(keywords []string) []string {
	n := min(len(keywords), PreviewSize)
	out := make([]string, n)
	copy(out, keywords[:n])
	return out
}

// KeywordArtifact is the JSON document persisted for each successful run.
type KeywordArtifact struct {
	RunID                 string    `json:"run_id"`
	Category              string    `json:"category"`
	CategoryDescription   string    `json:"category_description,omitempty"`
	Purposes              []string  `json:"purposes"`
	AdditionalParams      []string  `json:"additional_params"`
	Query                 string    `json:"query"`
	Keywords              []string  `json:"keywords"`
	AllKeywords           []string  `json:"all_keywords"`
	OriginalKeywordsCount int       `json:"original_keywords_count"`
	FilteredKeywordsCount int       `json:"filtered_keywords_count"`
	FilteringMethod       string    `json:"filtering_method"`
	FilteringError        string    `json:"filtering_error,omitempty"`
	MaxKeywordsLimit      int       `json:"max_keywords_limit"`
	KeywordsSource        string    `json:"keywords_source"`
	CollectedAt           time.Time `json:"collected_at"`
}
