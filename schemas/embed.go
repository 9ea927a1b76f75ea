// Package schemas holds the JSON Schemas of the documents the collector reads and writes.
package schemas

import "embed"

// Schema file names.
const (
	KeywordArtifact   = "keyword_artifact.schema.json"
	CollectionRequest = "collection_request.schema.json"
	CollectionResult  = "collection_result.schema.json"
)

//go:embed *.schema.json
var FS embed.FS

// Load returns the raw schema document.
func Load(name string) ([]byte, error) {
	return FS.ReadFile(name)
}
