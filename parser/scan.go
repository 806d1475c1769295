// Package parser locates review items on a listing page and extracts their
// helpfulness and star rating.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	reviewBodySelector = "div.reviewText"
	pagingSelector     = "span.paging"
)

var nextPattern = regexp.MustCompile(`(?i)next`)

// ParsePage turns a fetched page body into a navigable document.
func ParsePage(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// FindItems returns the container of every review body on the page, in
// document order, one per body. The container holds the helpfulness note
// and star rating alongside the body.
func FindItems(doc *goquery.Document) []*goquery.Selection {
	var items []*goquery.Selection
	doc.Find(reviewBodySelector).Each(func(_ int, body *goquery.Selection) {
		if parent := body.Parent(); parent.Length() > 0 {
			items = append(items, parent)
		}
	})
	return items
}

// FindNextLink returns the href of the "Next" anchor inside the paging
// control. It reports false when the page is the last one.
func FindNextLink(doc *goquery.Document) (string, bool) {
	paging := doc.Find(pagingSelector).First()
	if paging.Length() == 0 {
		return "", false
	}

	next := paging.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return nextPattern.MatchString(a.Text())
	}).First()
	if next.Length() == 0 {
		return "", false
	}

	href, ok := next.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", false
	}
	return href, true
}
