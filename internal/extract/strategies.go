package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/difranardo/vacancies-scrapper/internal/normalize"
)

var slugSplitRE = regexp.MustCompile(`[-_]+`)

// JSONLD reads a value from embedded structured data, e.g.
// JSONLD("hiringOrganization", "name").
func JSONLD(path ...string) Strategy[string] {
	return Strategy[string]{
		Name: "jsonld:" + strings.Join(path, "."),
		Extract: func(d *Document) string {
			for _, obj := range d.JSONLD() {
				if s, ok := lookupJSON(obj, path); ok {
					return normalize.CleanText(s)
				}
			}
			return ""
		},
	}
}

// Selector returns the first non-empty text matching a CSS selector.
func Selector(css string) Strategy[string] {
	return Strategy[string]{
		Name:    "css:" + css,
		Extract: func(d *Document) string { return d.FirstText(css) },
	}
}

// LastSelector returns the last non-empty text matching a CSS selector.
func LastSelector(css string) Strategy[string] {
	return Strategy[string]{
		Name: "css-last:" + css,
		Extract: func(d *Document) string {
			texts := d.Texts(css)
			if len(texts) == 0 {
				return ""
			}
			return texts[len(texts)-1]
		},
	}
}

// Attr returns the first non-empty attribute value matching a CSS selector.
func Attr(css, attr string) Strategy[string] {
	return Strategy[string]{
		Name: fmt.Sprintf("attr:%s@%s", css, attr),
		Extract: func(d *Document) string {
			values := d.Attrs(css, attr)
			if len(values) == 0 {
				return ""
			}
			return values[0]
		},
	}
}

// XPath returns the first non-empty text selected by an XPath expression.
func XPath(expr string) Strategy[string] {
	return Strategy[string]{
		Name: "xpath:" + expr,
		Extract: func(d *Document) string {
			texts := d.XPathTexts(expr)
			if len(texts) == 0 {
				return ""
			}
			return texts[0]
		},
	}
}

// LabelValue reads the paragraph that follows a label paragraph, the layout
// used by "<div><p>Industria</p><p>Tecnología</p></div>" blocks. Definition
// lists and span/strong labels are tried through XPath afterwards.
func LabelValue(label string) Strategy[string] {
	want := normalize.Fold(label)
	xp := fmt.Sprintf(
		`(//*[self::dt or self::span or self::strong or self::h4][normalize-space()=%q])[1]/following-sibling::*[1]`,
		label,
	)
	return Strategy[string]{
		Name: "label:" + label,
		Extract: func(d *Document) string {
			labelNode := d.Find("p").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return normalize.Fold(normalize.CleanText(s.Text())) == want
			}).First()
			if labelNode.Length() > 0 {
				if v := normalize.CleanText(labelNode.NextAllFiltered("p").First().Text()); v != "" {
					return v
				}
			}
			if texts := d.XPathTexts(xp); len(texts) > 0 {
				return texts[0]
			}
			return ""
		},
	}
}

// SlugSource picks the string a slug strategy inspects.
type SlugSource func(*Document) string

// FromPageURL inspects the document URL.
func FromPageURL() SlugSource {
	return func(d *Document) string { return d.URL }
}

// FromAttr inspects the first attribute value matching css.
func FromAttr(css, attr string) SlugSource {
	return func(d *Document) string {
		values := d.Attrs(css, attr)
		if len(values) == 0 {
			return ""
		}
		return values[0]
	}
}

// FromSlug infers a value from a URL or profile slug. pattern's first group
// captures the slug; tokens in stoplist (role or department words, markers
// like "empresa") are removed before the remainder is accepted.
func FromSlug(name string, source SlugSource, pattern *regexp.Regexp, stoplist ...string) Strategy[string] {
	stop := make(map[string]struct{}, len(stoplist))
	for _, w := range stoplist {
		stop[normalize.Fold(w)] = struct{}{}
	}
	return Strategy[string]{
		Name: "slug:" + name,
		Extract: func(d *Document) string {
			m := pattern.FindStringSubmatch(source(d))
			if len(m) < 2 {
				return ""
			}
			var kept []string
			for _, tok := range slugSplitRE.Split(m[1], -1) {
				if tok == "" {
					continue
				}
				if _, drop := stop[normalize.Fold(tok)]; drop {
					continue
				}
				kept = append(kept, tok)
			}
			return strings.Join(kept, " ")
		},
	}
}

// Marker returns value when the page body matches re. It is the last-resort
// fallback for labels such as "Confidencial".
func Marker(re *regexp.Regexp, value string) Strategy[string] {
	return Strategy[string]{
		Name: "marker:" + value,
		Extract: func(d *Document) string {
			if d.Matches(re) {
				return value
			}
			return ""
		},
	}
}

// Paragraphs joins the distinct paragraphs matching css that are at least
// minLen characters long and do not match exclude.
func Paragraphs(css string, minLen int, exclude *regexp.Regexp) Strategy[string] {
	return Strategy[string]{
		Name: "paragraphs:" + css,
		Extract: func(d *Document) string {
			var kept []string
			for _, t := range d.Texts(css) {
				if len([]rune(t)) < minLen {
					continue
				}
				if exclude != nil && exclude.MatchString(t) {
					continue
				}
				kept = append(kept, t)
			}
			return strings.Join(normalize.Dedupe(kept), "\n\n")
		},
	}
}

// AfterHeading collects the text of the siblings that follow the first
// heading matching re, up to the next heading.
func AfterHeading(re *regexp.Regexp) Strategy[string] {
	return Strategy[string]{
		Name: "after-heading:" + re.String(),
		Extract: func(d *Document) string {
			heading := d.Find("h1, h2, h3, h4").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return re.MatchString(normalize.CleanText(s.Text()))
			}).First()
			if heading.Length() == 0 {
				return ""
			}
			var parts []string
			heading.NextUntil("h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
				if t := normalize.CleanText(s.Text()); t != "" {
					parts = append(parts, t)
				}
			})
			return strings.Join(normalize.Dedupe(parts), "\n\n")
		},
	}
}

// RejectMatching blanks values of s that match re, letting the chain fall
// through (e.g. a title that is really a section label).
func RejectMatching(s Strategy[string], re *regexp.Regexp) Strategy[string] {
	return Strategy[string]{
		Name: s.Name,
		Extract: func(d *Document) string {
			v := s.Extract(d)
			if re.MatchString(v) {
				return ""
			}
			return v
		},
	}
}

// Map applies fn to the value produced by s.
func Map(s Strategy[string], fn func(string) string) Strategy[string] {
	return Strategy[string]{
		Name: s.Name,
		Extract: func(d *Document) string {
			v := s.Extract(d)
			if v == "" {
				return ""
			}
			return fn(v)
		},
	}
}

// ListItems returns the text of every node matching css.
func ListItems(css string) Strategy[[]string] {
	return Strategy[[]string]{
		Name:    "items:" + css,
		Extract: func(d *Document) []string { return d.Texts(css) },
	}
}

// XPathItems returns the text of every node selected by expr.
func XPathItems(expr string) Strategy[[]string] {
	return Strategy[[]string]{
		Name:    "xpath-items:" + expr,
		Extract: func(d *Document) []string { return d.XPathTexts(expr) },
	}
}

// ExcludeItems drops list entries equal (accent and case insensitive) to any
// of words, plus entries shorter than three characters.
func ExcludeItems(s Strategy[[]string], words ...string) Strategy[[]string] {
	skip := make(map[string]struct{}, len(words))
	for _, w := range words {
		skip[normalize.Fold(w)] = struct{}{}
	}
	return Strategy[[]string]{
		Name: s.Name,
		Extract: func(d *Document) []string {
			var out []string
			for _, item := range s.Extract(d) {
				if len([]rune(item)) < 3 {
					continue
				}
				if _, ok := skip[normalize.Fold(item)]; ok {
					continue
				}
				out = append(out, item)
			}
			return out
		},
	}
}

// LabelValues returns the value of every label present, in label order.
func LabelValues(labels ...string) Strategy[[]string] {
	strategies := make([]Strategy[string], 0, len(labels))
	for _, l := range labels {
		strategies = append(strategies, LabelValue(l))
	}
	return Strategy[[]string]{
		Name: "labels:" + strings.Join(labels, ","),
		Extract: func(d *Document) []string {
			var out []string
			for _, s := range strategies {
				if v := s.Extract(d); v != "" {
					out = append(out, v)
				}
			}
			return out
		},
	}
}

// AsList lifts a text strategy into a single-item list strategy.
func AsList(s Strategy[string]) Strategy[[]string] {
	return Strategy[[]string]{
		Name: s.Name,
		Extract: func(d *Document) []string {
			if v := s.Extract(d); v != "" {
				return []string{v}
			}
			return nil
		},
	}
}
