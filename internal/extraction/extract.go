// Package extraction reads downloaded keyword spreadsheets into candidate keyword sets.
package extraction

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/jonathan/keyword-collector/internal/types"
)

// DefaultColumns are the header names of the keyword column in research exports.
var DefaultColumns = []string{"Слова", "Кластер WB"}

// Extraction methods recorded in provenance.
const (
	MethodWorkbook = "xlsx_column"
	MethodCSV      = "csv_column"
)

// Options configures an Extractor.
type Options struct {
	// Columns are header names tried in order; the first column is used when none match.
	Columns []string
	// Filter rejects noise tokens.
	Filter NoiseFilter
	// RemoveSource deletes the spreadsheet after a successful extraction.
	RemoveSource bool
	Logger       zerolog.Logger
}

// DefaultOptions returns options for MPStats keyword exports.
func DefaultOptions() Options {
	return Options{
		Columns: DefaultColumns,
		Filter:  DefaultNoiseFilter(),
		Logger:  zerolog.Nop(),
	}
}

// Extractor turns a spreadsheet into a CandidateKeywordSet.
type Extractor struct {
	opts Options
}

// NewExtractor creates an Extractor.
func NewExtractor(opts Options) *Extractor {
	if opts.Filter.MinLetters == 0 && opts.Filter.Alphabet == nil {
		opts.Filter = DefaultNoiseFilter()
	}
	return &Extractor{opts: opts}
}

// table is one sheet: a header row followed by data rows.
type table struct {
	name string
	rows [][]string
}

// Extract loads every sheet of the file at path and returns the cleaned,
// deduplicated and sorted keywords of the designated column.
func (e *Extractor) Extract(ctx context.Context, path string) (*types.CandidateKeywordSet, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &ExtractionError{Path: path, Message: "file not accessible", Cause: err}
	}

	var (
		tables []table
		method string
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		method = MethodCSV
		tables, err = readCSV(path)
	case ".xlsx", ".xlsm":
		method = MethodWorkbook
		tables, err = readWorkbook(path)
	default:
		return nil, &ExtractionError{Path: path, Message: "unsupported file extension " + filepath.Ext(path)}
	}
	if err != nil {
		return nil, &ExtractionError{Path: path, Message: "failed to read spreadsheet", Cause: err}
	}
	if len(tables) == 0 {
		return nil, &ExtractionError{Path: path, Message: "spreadsheet has no sheets"}
	}

	prov := types.ExtractionProvenance{
		SourceFile:     filepath.Base(path),
		Method:         method,
		FiltersApplied: e.opts.Filter.Describe(),
		Rejected:       map[string]int{},
	}

	seen := make(map[string]struct{})
	keywords := make([]string, 0)
	for _, tbl := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(tbl.rows) == 0 {
			continue
		}
		col, name := e.columnIndex(tbl.rows[0])
		if prov.Column == "" {
			prov.Column = name
		}
		prov.Sheets = append(prov.Sheets, tbl.name)

		for _, row := range tbl.rows[1:] {
			prov.RawRows++
			cell := ""
			if col < len(row) {
				cell = row[col]
			}
			token := Normalize(cell)
			if reason := e.opts.Filter.Check(token); reason != "" {
				prov.Rejected[reason]++
				continue
			}
			prov.KeptRows++
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			keywords = append(keywords, token)
		}
	}
	sort.Strings(keywords)

	e.opts.Logger.Info().
		Str("file", prov.SourceFile).
		Int("raw_rows", prov.RawRows).
		Int("kept_rows", prov.KeptRows).
		Int("unique", len(keywords)).
		Interface("rejected", prov.Rejected).
		Msg("keywords extracted")

	if e.opts.RemoveSource {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.opts.Logger.Warn().Err(err).Str("file", path).Msg("failed to remove source spreadsheet")
		}
	}

	return &types.CandidateKeywordSet{Keywords: keywords, Provenance: prov}, nil
}

// columnIndex picks the configured column from a header row, or the first column.
func (e *Extractor) columnIndex(header []string) (int, string) {
	for _, want := range e.opts.Columns {
		for i, cell := range header {
			if strings.EqualFold(strings.TrimSpace(cell), want) {
				return i, want
			}
		}
	}
	if len(header) > 0 {
		return 0, strings.TrimSpace(header[0])
	}
	return 0, ""
}

func readWorkbook(path string) ([]table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var tables []table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table{name: sheet, rows: rows})
	}
	return tables, nil
}

func readCSV(path string) ([]table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimPrefix(string(data), "\ufeff")

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if firstLine, _, _ := strings.Cut(text, "\n"); strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		r.Comma = ';'
	}

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
	return []table{{name: filepath.Base(path), rows: rows}}, nil
}
