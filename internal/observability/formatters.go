// Package observability provides logging, metrics and formatted output for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/keyword-collector/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func writeList(sb *strings.Builder, items []string, limit int) {
	count := min(len(items), limit)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s\n", items[i]))
	}
	if len(items) > limit {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-limit))
	}
}

// PrintQuery outputs the composed search query.
func (p *Printer) PrintQuery(category string, purposes []string, query string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Category: %s\n", category))
	if len(purposes) > 0 {
		sb.WriteString(fmt.Sprintf("Purposes: %s\n", strings.Join(purposes, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Query:    %s", query))
	p.printBox("SEARCH QUERY", sb.String())
}

// PrintCandidates outputs a summary of the extracted candidate keywords.
func (p *Printer) PrintCandidates(set *types.CandidateKeywordSet) {
	if set == nil {
		return
	}
	prov := set.Provenance

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Source:   %s (%s)\n", prov.SourceFile, prov.Method))
	if prov.Column != "" {
		sb.WriteString(fmt.Sprintf("Column:   %s\n", prov.Column))
	}
	sb.WriteString(fmt.Sprintf("Rows:     %d read, %d kept\n", prov.RawRows, prov.KeptRows))
	if len(prov.Rejected) > 0 {
		reasons := make([]string, 0, len(prov.Rejected))
		for reason := range prov.Rejected {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		sb.WriteString("Rejected:\n")
		for _, reason := range reasons {
			sb.WriteString(fmt.Sprintf("  %-18s %d\n", reason, prov.Rejected[reason]))
		}
	}
	sb.WriteString(fmt.Sprintf("\n%d candidates:\n", set.Len()))
	writeList(&sb, set.Keywords, maxItemsToShow)

	p.printBox("CANDIDATE KEYWORDS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintFiltered outputs the relevance-filtered keywords.
func (p *Printer) PrintFiltered(set *types.FilteredKeywordSet) {
	if set == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Method:   %s\n", set.FilteringMethod))
	sb.WriteString(fmt.Sprintf("Kept:     %d of %d (limit %d)\n", set.FilteredCount, set.OriginalCount, set.MaxKeywords))
	if set.PaddedCount > 0 {
		sb.WriteString(fmt.Sprintf("Padded:   %d from the head of the list\n", set.PaddedCount))
	}
	if set.FilteringError != "" {
		sb.WriteString(fmt.Sprintf("⚠ %s\n", set.FilteringError))
	}
	sb.WriteString("\n")
	writeList(&sb, set.Keywords, maxItemsToShow)

	p.printBox("FILTERED KEYWORDS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintResult outputs the final outcome of a collection run.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintResult(result *types.CollectionResult) {
	if result == nil {
		return
	}
	if !result.Succeeded() {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Stage:    %s\n", result.Stage))
		sb.WriteString(result.Message)
		p.printBox("❌ COLLECTION FAILED", sb.String())
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", result.RunID))
	sb.WriteString(fmt.Sprintf("Keywords: %d of %d (%s)\n", result.FilteredKeywordsCount, result.OriginalKeywordsCount, result.FilteringMethod))
	sb.WriteString(fmt.Sprintf("Saved:    %s\n", result.ArtifactPath))
	sb.WriteString(fmt.Sprintf("Took:     %.1fs\n", float64(result.DurationMS)/1000))
	if len(result.KeywordsPreview) > 0 {
		sb.WriteString("\n")
		writeList(&sb, result.KeywordsPreview, types.PreviewSize)
	}
	p.printBox("✅ COLLECTION COMPLETE", strings.TrimSuffix(sb.String(), "\n"))
}
