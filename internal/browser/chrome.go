package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ChromeDriver implements Driver on a chromedp tab.
type ChromeDriver struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// run executes actions on the tab, bounded by ctx's deadline and cancellation.
// Cancelling the derived context never closes the tab itself.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(d.tabCtx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(d.tabCtx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Query returns every node matching q, with visibility and text resolved.
// An empty result is not an error.
func (d *ChromeDriver) Query(ctx context.Context, q Query) ([]Element, error) {
	sel, by, err := compileQuery(q)
	if err != nil {
		return nil, err
	}

	var elements []Element
	err = d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0)).Do(ctx); err != nil {
			return err
		}
		for _, n := range nodes {
			el := Element{ID: n.NodeID, node: n}
			if box, err := dom.GetBoxModel().WithNodeID(n.NodeID).Do(ctx); err == nil && box != nil {
				el.Visible = box.Width > 0 && box.Height > 0
			}
			if html, err := dom.GetOuterHTML().WithNodeID(n.NodeID).Do(ctx); err == nil {
				el.Text = nodeText(html)
			}
			elements = append(elements, el)
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("query %s %q: %w", q.Kind, q.Value, err)
	}
	return elements, nil
}

func (d *ChromeDriver) Click(ctx context.Context, el Element) error {
	if el.node != nil {
		return d.run(ctx, chromedp.MouseClickNode(el.node))
	}
	return d.run(ctx, chromedp.Click([]cdp.NodeID{el.ID}, chromedp.ByNodeID))
}

func (d *ChromeDriver) ScrollIntoView(ctx context.Context, el Element) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.ScrollIntoViewIfNeeded().WithNodeID(el.ID).Do(ctx)
	}))
}

func (d *ChromeDriver) Focus(ctx context.Context, el Element) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.Focus().WithNodeID(el.ID).Do(ctx)
	}))
}

func (d *ChromeDriver) ClearValue(ctx context.Context, el Element) error {
	return d.run(ctx, chromedp.SetValue([]cdp.NodeID{el.ID}, "", chromedp.ByNodeID))
}

func (d *ChromeDriver) InsertText(ctx context.Context, text string) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

func (d *ChromeDriver) PressKey(ctx context.Context, key Key) error {
	switch key {
	case KeyEnter:
		return d.run(ctx, chromedp.KeyEvent(kb.Enter))
	case KeyTab:
		return d.run(ctx, chromedp.KeyEvent(kb.Tab))
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
}

// Close shuts the tab and then the browser process.
func (d *ChromeDriver) Close() error {
	err := chromedp.Cancel(d.tabCtx)
	d.tabCancel()
	d.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// compileQuery maps a Query onto a chromedp selector.
func compileQuery(q Query) (string, chromedp.QueryOption, error) {
	if q.Value == "" {
		return "", nil, fmt.Errorf("empty %s query", q.Kind)
	}
	switch q.Kind {
	case KindText:
		return fmt.Sprintf("//*[normalize-space(text())=%s]", xpathLiteral(strings.TrimSpace(q.Value))), chromedp.BySearch, nil
	case KindPartialText:
		return fmt.Sprintf("//*[contains(text(),%s)]", xpathLiteral(q.Value)), chromedp.BySearch, nil
	case KindCSS, KindTag:
		return q.Value, chromedp.ByQueryAll, nil
	case KindName:
		return fmt.Sprintf(`[name="%s"]`, strings.ReplaceAll(q.Value, `"`, `\"`)), chromedp.ByQueryAll, nil
	default:
		return "", nil, fmt.Errorf("unknown query kind %q", q.Kind)
	}
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, `'`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}

// nodeText collapses the text content of an outerHTML fragment.
func nodeText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
