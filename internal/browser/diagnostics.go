package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var noticeSelectors = "[role='alert'], .error, .notification, [class*='error-message']"

// PageNotice returns the visible alert or error text of a page, joined with "; ".
func PageNotice(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var notices []string
	seen := map[string]bool{}
	doc.Find(noticeSelectors).Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		notices = append(notices, text)
	})
	return strings.Join(notices, "; ")
}
