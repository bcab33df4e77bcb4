// Package extract pulls structured fields out of inconsistent detail-page
// markup using ordered chains of fallback strategies.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/difranardo/vacancies-scrapper/internal/normalize"
)

// Document is a parsed page snapshot queried with CSS selectors and XPath.
type Document struct {
	URL  string
	root *html.Node
	doc  *goquery.Document

	jsonld []any
}

// Parse builds a Document from raw markup.
func Parse(pageURL, markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{
		URL:  pageURL,
		root: root,
		doc:  goquery.NewDocumentFromNode(root),
	}, nil
}

// Find runs a CSS selector against the document.
func (d *Document) Find(css string) *goquery.Selection {
	return d.doc.Find(css)
}

// Texts returns the cleaned, non-empty text of every node matching css.
func (d *Document) Texts(css string) []string {
	var out []string
	d.doc.Find(css).Each(func(_ int, s *goquery.Selection) {
		if t := normalize.CleanText(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// FirstText returns the first non-empty text matching css.
func (d *Document) FirstText(css string) string {
	texts := d.Texts(css)
	if len(texts) == 0 {
		return ""
	}
	return texts[0]
}

// Attrs returns the non-empty values of attr on nodes matching css.
func (d *Document) Attrs(css, attr string) []string {
	var out []string
	d.doc.Find(css).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}

// XPathTexts evaluates an XPath expression and returns each node's cleaned
// inner text. Invalid expressions yield no results.
func (d *Document) XPathTexts(expr string) []string {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if t := normalize.CleanText(htmlquery.InnerText(n)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// BodyText returns the visible text of the body.
func (d *Document) BodyText() string {
	return normalize.CleanText(d.doc.Find("body").Text())
}

// Matches reports whether the body text matches re.
func (d *Document) Matches(re *regexp.Regexp) bool {
	return re.MatchString(d.BodyText())
}

// JSONLD returns every structured-data object embedded in the page. Arrays and
// @graph containers are flattened.
func (d *Document) JSONLD() []any {
	if d.jsonld != nil {
		return d.jsonld
	}
	objects := []any{}
	d.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return
		}
		objects = append(objects, flattenJSONLD(v)...)
	})
	d.jsonld = objects
	return objects
}

func flattenJSONLD(v any) []any {
	switch t := v.(type) {
	case []any:
		var out []any
		for _, item := range t {
			out = append(out, flattenJSONLD(item)...)
		}
		return out
	case map[string]any:
		out := []any{t}
		if graph, ok := t["@graph"]; ok {
			out = append(out, flattenJSONLD(graph)...)
		}
		return out
	default:
		return nil
	}
}

// lookupJSON walks path through nested objects. Arrays are searched in order
// and an object at the end of the path resolves to its "name".
func lookupJSON(v any, path []string) (string, bool) {
	switch t := v.(type) {
	case string:
		if len(path) == 0 {
			s := strings.TrimSpace(t)
			return s, s != ""
		}
	case []any:
		for _, item := range t {
			if s, ok := lookupJSON(item, path); ok {
				return s, true
			}
		}
	case map[string]any:
		if len(path) == 0 {
			if name, ok := t["name"]; ok {
				return lookupJSON(name, nil)
			}
			return "", false
		}
		if next, ok := t[path[0]]; ok {
			return lookupJSON(next, path[1:])
		}
	}
	return "", false
}
