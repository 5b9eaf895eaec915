package provider

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// errNoBody is returned when a chapter page selector matched nothing,
// or matched only navigation/flair nodes that extractContentElements
// filters out.
var errNoBody = fmt.Errorf("provider: failed to find chapter body")

// extractContentElements selects every direct child of a wordpress-family
// "div.entry-content" node, drops the Jetpack flair block and "Next
// Chapter"/"Previous Chapter" navigation links, and joins the remaining
// elements' HTML with newlines.
func extractContentElements(doc *goquery.Document) (string, error) {
	return extractFiltered(doc, "div.entry-content > *")
}

// extractChapterInner selects RoyalRoad's "div.chapter-inner" body node
// and returns its inner HTML.
func extractChapterInner(doc *goquery.Document) (string, error) {
	sel := doc.Find("div.chapter-inner").First()
	if sel.Length() == 0 {
		return "", errNoBody
	}
	html, err := sel.Html()
	if err != nil {
		return "", fmt.Errorf("provider: render chapter body: %w", err)
	}
	if strings.TrimSpace(html) == "" {
		return "", errNoBody
	}
	return html, nil
}

func extractFiltered(doc *goquery.Document, selector string) (string, error) {
	var parts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("id"); ok && id == "jp-post-flair" {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "Next Chapter" || text == "Previous Chapter" {
			return
		}
		html, err := goquery.OuterHtml(s)
		if err != nil {
			return
		}
		parts = append(parts, html)
	})
	body := strings.Join(parts, "\n")
	if strings.TrimSpace(body) == "" {
		return "", errNoBody
	}
	return body, nil
}

func parseDocument(raw []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("provider: parse HTML document: %w", err)
	}
	return doc, nil
}
