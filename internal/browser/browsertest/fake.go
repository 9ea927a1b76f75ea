// Package browsertest provides a scripted browser.Driver for tests.
package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/chromedp/cdproto/cdp"

	"github.com/jonathan/keyword-collector/internal/browser"
)

// FakeDriver answers queries from a scripted element map and records
// every interaction.
type FakeDriver struct {
	mu sync.Mutex

	elements map[browser.Query][]browser.Element
	url      string
	html     string
	focused  cdp.NodeID

	Navigations []string
	Clicks      []browser.Element
	Keys        []browser.Key
	// Typed collects inserted text per focused element.
	Typed  map[cdp.NodeID]string
	Closed int

	// OnClick and OnKey run after the interaction is recorded and may
	// rescript the page.
	OnClick func(f *FakeDriver, el browser.Element)
	OnKey   func(f *FakeDriver, key browser.Key)

	// NavigateErr, when set, is returned by Navigate.
	NavigateErr error
}

// NewFakeDriver returns an empty page at url.
func NewFakeDriver(url string) *FakeDriver {
	return &FakeDriver{
		elements: map[browser.Query][]browser.Element{},
		url:      url,
		Typed:    map[cdp.NodeID]string{},
	}
}

// Visible returns a visible element.
func Visible(id int64, text string) browser.Element {
	return browser.Element{ID: cdp.NodeID(id), Text: text, Visible: true}
}

// Hidden returns an element with no layout box.
func Hidden(id int64, text string) browser.Element {
	return browser.Element{ID: cdp.NodeID(id), Text: text}
}

// Set scripts the result of a query.
func (f *FakeDriver) Set(kind, value string, els ...browser.Element) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elements[browser.Query{Kind: kind, Value: value}] = els
}

// Remove clears a scripted query.
func (f *FakeDriver) Remove(kind, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.elements, browser.Query{Kind: kind, Value: value})
}

// SetURL changes the current URL.
func (f *FakeDriver) SetURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
}

// SetHTML changes the page source.
func (f *FakeDriver) SetHTML(html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.html = html
}

// TypedInto returns the text typed while id had focus.
func (f *FakeDriver) TypedInto(id int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Typed[cdp.NodeID(id)]
}

// ClickCount returns how many clicks hit id.
func (f *FakeDriver) ClickCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Clicks {
		if c.ID == cdp.NodeID(id) {
			n++
		}
	}
	return n
}

func (f *FakeDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	f.Navigations = append(f.Navigations, url)
	f.url = url
	return nil
}

func (f *FakeDriver) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, ctx.Err()
}

func (f *FakeDriver) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html, ctx.Err()
}

func (f *FakeDriver) Query(ctx context.Context, q browser.Query) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	els := f.elements[q]
	out := make([]browser.Element, len(els))
	copy(out, els)
	return out, nil
}

func (f *FakeDriver) Click(ctx context.Context, el browser.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.Clicks = append(f.Clicks, el)
	f.focused = el.ID
	hook := f.OnClick
	f.mu.Unlock()
	if hook != nil {
		hook(f, el)
	}
	return nil
}

func (f *FakeDriver) ScrollIntoView(ctx context.Context, _ browser.Element) error {
	return ctx.Err()
}

func (f *FakeDriver) Focus(ctx context.Context, el browser.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = el.ID
	return ctx.Err()
}

func (f *FakeDriver) ClearValue(ctx context.Context, el browser.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Typed, el.ID)
	return ctx.Err()
}

func (f *FakeDriver) InsertText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.focused == 0 {
		return errors.New("no focused element")
	}
	f.Typed[f.focused] += text
	return nil
}

func (f *FakeDriver) PressKey(ctx context.Context, key browser.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.Keys = append(f.Keys, key)
	hook := f.OnKey
	f.mu.Unlock()
	if hook != nil {
		hook(f, key)
	}
	return nil
}

func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed++
	return nil
}

var _ browser.Driver = (*FakeDriver)(nil)
