// Package storage persists keyword artifacts as schema-validated JSON files.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/jonathan/keyword-collector/internal/schemas"
	"github.com/jonathan/keyword-collector/internal/types"
	schemafiles "github.com/jonathan/keyword-collector/schemas"
)

// ArtifactSuffix ends every artifact file name.
const ArtifactSuffix = "_keywords.json"

// maxSegmentRunes bounds each sanitized file name segment.
const maxSegmentRunes = 60

var (
	// ErrNotFound is returned by Load for a missing artifact.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidName is returned for names that are not plain artifact file names.
	ErrInvalidName = errors.New("invalid artifact name")
)

// ArtifactInfo describes a stored artifact.
type ArtifactInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store reads and writes artifacts in one directory.
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore returns a Store rooted at dir. The directory is created on first save.
func NewStore(dir string, log zerolog.Logger) *Store {
	return &Store{dir: dir, log: log}
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// ArtifactName builds the file name for a category and its purposes. Only
// the first two purposes contribute; "all" stands in when there are none.
func ArtifactName(category string, purposes []string) string {
	var parts []string
	for _, p := range purposes {
		if seg := sanitizeSegment(p); seg != "" {
			parts = append(parts, seg)
		}
		if len(parts) == 2 {
			break
		}
	}
	suffix := "all"
	if len(parts) > 0 {
		suffix = strings.Join(parts, "_")
	}
	cat := sanitizeSegment(category)
	if cat == "" {
		cat = "category"
	}
	return cat + "_" + suffix + ArtifactSuffix
}

// sanitizeSegment keeps letters and digits, maps every other run of
// characters to a single underscore and trims the result.
func sanitizeSegment(s string) string {
	var b strings.Builder
	underscore := false
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if n >= maxSegmentRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
			underscore = false
			n++
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteRune('_')
			underscore = true
			n++
		}
	}
	return strings.Trim(b.String(), "_")
}

// Save validates the artifact against its schema and writes it atomically.
// It returns the written path.
func (s *Store) Save(artifact *types.KeywordArtifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("artifact is nil")
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}
	if err := schemas.ValidateDocument(schemafiles.KeywordArtifact, data); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory %s: %w", s.dir, err)
	}

	name := ArtifactName(artifact.Category, artifact.Purposes)
	path := filepath.Join(s.dir, name)
	if err := writeAtomic(path, append(data, '\n')); err != nil {
		return "", err
	}

	s.log.Info().Str("path", path).Int("keywords", len(artifact.Keywords)).Msg("artifact saved")
	return path, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// Load reads an artifact by file name. The suffix may be omitted.
func (s *Store) Load(name string) (*types.KeywordArtifact, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	var artifact types.KeywordArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse artifact %s: %w", name, err)
	}
	return &artifact, nil
}

// List returns the stored artifacts sorted by name. A missing directory is empty.
func (s *Store) List() ([]ArtifactInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ArtifactInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	out := make([]ArtifactInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ArtifactSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ArtifactInfo{Name: e.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, ArtifactSuffix) {
		name += ArtifactSuffix
	}
	return name, nil
}
