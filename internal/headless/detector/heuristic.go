// Package detector classifies listing pages that came back without results,
// so an empty search can be told apart from a page that needs a browser.
package detector

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Verdict is the classification of an empty listing page.
type Verdict string

// Verdicts returned by Classify.
const (
	// VerdictNoResults means the site rendered its own empty-search message.
	VerdictNoResults Verdict = "no_results"
	// VerdictBootShell means the listing container or its items were never
	// rendered into the markup.
	VerdictBootShell Verdict = "boot_shell"
	// VerdictBlocked means an anti-bot interstitial replaced the page.
	VerdictBlocked Verdict = "blocked"
	VerdictUnknown Verdict = "unknown"
)

// NeedsBrowser reports whether a real browser is likely to see results that
// the current driver did not.
func (v Verdict) NeedsBrowser() bool {
	return v == VerdictBootShell || v == VerdictBlocked
}

// Shell describes how a provider's listing looks once it has rendered.
type Shell struct {
	// Container hosts the listing items.
	Container string
	// Item matches one listing entry inside Container.
	Item string
	// NoResults matches the body text of an empty search.
	NoResults *regexp.Regexp
}

var blockedRE = regexp.MustCompile(`(?i)captcha|cf-challenge|checking your browser|attention required|verific\w+ que (eres|sos) humano`)

// Text below this many runes counts as a blank page.
const minVisibleText = 200

// Detector classifies listing markup against a Shell.
type Detector struct {
	shell Shell
}

// New builds a Detector for shell. A zero Shell still recognises blank and
// blocked pages.
func New(shell Shell) *Detector {
	return &Detector{shell: shell}
}

// Classify inspects listing markup that yielded no detail links.
func (d *Detector) Classify(markup string) (Verdict, error) {
	if strings.TrimSpace(markup) == "" {
		return VerdictBootShell, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return VerdictUnknown, fmt.Errorf("parse listing: %w", err)
	}
	scripts := doc.Find("script").Length()
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	switch {
	case blockedRE.MatchString(text):
		return VerdictBlocked, nil
	case d.shell.NoResults != nil && d.shell.NoResults.MatchString(text):
		return VerdictNoResults, nil
	}

	if d.shell.Container != "" {
		container := doc.Find(d.shell.Container)
		if container.Length() > 0 {
			if d.shell.Item != "" && container.Find(d.shell.Item).Length() == 0 {
				return VerdictBootShell, nil
			}
			return VerdictUnknown, nil
		}
	}
	if scripts > 0 && utf8.RuneCountInString(text) < minVisibleText {
		return VerdictBootShell, nil
	}
	return VerdictUnknown, nil
}
