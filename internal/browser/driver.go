// Package browser drives the keyword research site through a stealth Chrome session.
package browser

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
)

// Query kinds understood by Driver.Query.
const (
	KindText        = "text"
	KindPartialText = "partial_text"
	KindCSS         = "css"
	KindName        = "name"
	KindTag         = "tag"
)

// Query is one lookup of a locator strategy: a kind and a single value.
type Query struct {
	Kind  string
	Value string
}

// Key is a non-text key press.
type Key string

// Keys used by the site flows.
const (
	KeyEnter Key = "Enter"
	KeyTab   Key = "Tab"
)

// Element is a DOM node returned by Driver.Query.
type Element struct {
	ID      cdp.NodeID
	Text    string
	Visible bool

	node *cdp.Node
}

// Driver is the set of page operations the site flows need. ChromeDriver
// implements it over chromedp; browsertest.FakeDriver scripts it for tests.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Query(ctx context.Context, q Query) ([]Element, error)
	Click(ctx context.Context, el Element) error
	ScrollIntoView(ctx context.Context, el Element) error
	Focus(ctx context.Context, el Element) error
	ClearValue(ctx context.Context, el Element) error
	// InsertText types text into the focused element.
	InsertText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key Key) error
	Close() error
}
