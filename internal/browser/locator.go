package browser

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Element names used by the site flows.
const (
	ElemLoginEmail     = "login.email"
	ElemLoginPassword  = "login.password"
	ElemLoginMarker    = "login.marker"
	ElemRequestsTab    = "tab.requests"
	ElemWordsTab       = "tab.words"
	ElemQueryInput     = "form.query"
	ElemSubmit         = "form.submit"
	ElemDownloadButton = "download.button"
)

//go:embed locators.yaml
var defaultLocators []byte

// Strategy is one way of finding an element: a query kind and the values to try.
type Strategy struct {
	Kind   string   `yaml:"kind"`
	Values []string `yaml:"values"`
}

// Table maps element names to their ordered lookup strategies.
type Table map[string][]Strategy

var knownKinds = map[string]bool{
	KindText: true, KindPartialText: true, KindCSS: true, KindName: true, KindTag: true,
}

// ParseTable decodes a YAML locator table.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse locator table: %w", err)
	}
	for name, strategies := range t {
		if len(strategies) == 0 {
			return nil, fmt.Errorf("locator %q has no strategies", name)
		}
		for i, s := range strategies {
			if !knownKinds[s.Kind] {
				return nil, fmt.Errorf("locator %q strategy %d: unknown kind %q", name, i, s.Kind)
			}
			if len(s.Values) == 0 {
				return nil, fmt.Errorf("locator %q strategy %d: no values", name, i)
			}
		}
	}
	return t, nil
}

var (
	defaultTableOnce sync.Once
	defaultTable     Table
)

// DefaultTable returns the embedded locator table.
func DefaultTable() Table {
	defaultTableOnce.Do(func() {
		t, err := ParseTable(defaultLocators)
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}

// Locator finds named elements through a Driver.
type Locator struct {
	driver Driver
	table  Table
	log    zerolog.Logger
	poll   time.Duration
}

// NewLocator returns a Locator over driver using table.
func NewLocator(driver Driver, table Table, log zerolog.Logger) *Locator {
	if table == nil {
		table = DefaultTable()
	}
	return &Locator{driver: driver, table: table, log: log, poll: 250 * time.Millisecond}
}

// Find returns the visible elements for name using the first strategy value
// that matches anything. Query failures of one value do not stop the search.
func (l *Locator) Find(ctx context.Context, name string) ([]Element, error) {
	strategies, ok := l.table[name]
	if !ok {
		return nil, fmt.Errorf("no locator strategies for %q", name)
	}
	return l.FindStrategies(ctx, strategies)
}

// FindStrategies runs an ad hoc list of strategies.
func (l *Locator) FindStrategies(ctx context.Context, strategies []Strategy) ([]Element, error) {
	for _, s := range strategies {
		for _, v := range s.Values {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			found, err := l.driver.Query(ctx, Query{Kind: s.Kind, Value: v})
			if err != nil {
				l.log.Debug().Err(err).Str("kind", s.Kind).Str("value", v).Msg("locator query failed")
				continue
			}
			if visible := visibleUnique(found); len(visible) > 0 {
				return visible, nil
			}
		}
	}
	return nil, nil
}

// WaitFor polls Find until something is visible or timeout elapses.
func (l *Locator) WaitFor(ctx context.Context, name string, timeout time.Duration) ([]Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		found, err := l.Find(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return found, nil
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		if err := sleepCtx(ctx, min(l.poll, time.Until(deadline))); err != nil {
			return nil, err
		}
	}
}

func visibleUnique(elements []Element) []Element {
	seen := make(map[int64]bool, len(elements))
	var out []Element
	for _, el := range elements {
		if !el.Visible || seen[int64(el.ID)] {
			continue
		}
		seen[int64(el.ID)] = true
		out = append(out, el)
	}
	return out
}
