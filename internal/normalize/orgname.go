package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type orgOptions struct {
	diacritics  bool
	stripSuffix bool
}

// OrgOption tunes OrgName.
type OrgOption func(*orgOptions)

// WithDiacritics toggles restoring accents for a fixed table of common words.
func WithDiacritics(enabled bool) OrgOption {
	return func(o *orgOptions) { o.diacritics = enabled }
}

// WithoutLegalSuffix drops a trailing legal-entity form such as "SA" or "SRL".
func WithoutLegalSuffix(enabled bool) OrgOption {
	return func(o *orgOptions) { o.stripSuffix = enabled }
}

type legalForm struct {
	canonical string
	pattern   *regexp.Regexp
}

// Longest forms first so "S.A.I.C." is not read as "S.A." followed by noise.
var legalForms = []legalForm{
	{"SA", regexp.MustCompile(`(?i)(^|[\s,]+)sociedad\s+an[oó]nima(\s|$)`)},
	{"SRL", regexp.MustCompile(`(?i)(^|[\s,]+)sociedad\s+de\s+responsabilidad\s+limitada(\s|$)`)},
	{"SACIF", legalPattern("sacif")},
	{"SAIC", legalPattern("saic")},
	{"SACI", legalPattern("saci")},
	{"SRL", legalPattern("srl")},
	{"SAS", legalPattern("sas")},
	{"SAU", legalPattern("sau")},
	{"SA", legalPattern("sa")},
	{"SC", legalPattern("sc")},
}

var (
	acronyms = map[string]struct{}{
		"SA": {}, "SRL": {}, "SAS": {}, "SAU": {}, "SC": {}, "SACIF": {}, "SAIC": {}, "SACI": {},
		"YPF": {}, "IBM": {}, "HSBC": {}, "BBVA": {}, "AFIP": {}, "ANSES": {}, "UBA": {},
		"IT": {}, "TI": {}, "RRHH": {}, "BPO": {}, "SAP": {}, "AWS": {}, "USA": {}, "BGH": {},
	}
	connectors = map[string]struct{}{
		"de": {}, "del": {}, "la": {}, "las": {}, "los": {}, "el": {}, "y": {}, "e": {},
		"en": {}, "para": {}, "por": {}, "con": {}, "the": {}, "of": {}, "and": {},
	}
	accentTable = map[string]string{
		"tecnologia":   "tecnología",
		"tecnologias":  "tecnologías",
		"logistica":    "logística",
		"informatica":  "informática",
		"educacion":    "educación",
		"consultoria":  "consultoría",
		"energia":      "energía",
		"ingenieria":   "ingeniería",
		"comunicacion": "comunicación",
		"construccion": "construcción",
		"distribucion": "distribución",
		"nacion":       "nación",
		"gestion":      "gestión",
		"asociacion":   "asociación",
		"fundacion":    "fundación",
		"compania":     "compañía",
		"electronica":  "electrónica",
		"quimica":      "química",
		"medica":       "médica",
		"atlantico":    "atlántico",
	}
	legalSuffixes = map[string]struct{}{
		"SA": {}, "SRL": {}, "SAS": {}, "SAU": {}, "SC": {}, "SACIF": {}, "SAIC": {}, "SACI": {},
	}

	htmlSuffixRE  = regexp.MustCompile(`(?i)\.html?$`)
	slugSepRE     = regexp.MustCompile(`[-_]+`)
	trailingIDRE  = regexp.MustCompile(`[\s\-_]+\d{3,}$`)
	slugMarkerRE  = regexp.MustCompile(`(?i)^empresa[\s\-_]+`)
	leadingPathRE = regexp.MustCompile(`^.*/`)
)

func legalPattern(letters string) *regexp.Regexp {
	parts := make([]string, 0, len(letters))
	for _, r := range letters {
		parts = append(parts, regexp.QuoteMeta(string(r))+`\.?`)
	}
	return regexp.MustCompile(`(?i)(^|[\s,]+)` + strings.Join(parts, `\s?`) + `([\s,]|$)`)
}

// OrgName canonicalizes a raw organization name. Steps run in a fixed order:
// strip slug and id artifacts, collapse whitespace, canonicalize legal forms,
// optionally drop trailing legal forms, smart title-case, restore diacritics.
// Applying OrgName to its own output returns the same value.
func OrgName(raw string, opts ...OrgOption) string {
	o := orgOptions{diacritics: true}
	for _, opt := range opts {
		opt(&o)
	}

	s := stripArtifacts(raw)
	s = CleanText(s)
	if s == "" {
		return ""
	}
	s = canonicalLegalForms(s)
	if o.stripSuffix {
		s = stripLegalSuffix(s)
	}
	s = titleCase(s)
	if o.diacritics {
		s = restoreDiacritics(s)
	}
	return s
}

func stripArtifacts(s string) string {
	s = strings.TrimSpace(s)
	s = htmlSuffixRE.ReplaceAllString(s, "")
	if looksLikeSlug(s) {
		s = leadingPathRE.ReplaceAllString(s, "")
		s = slugMarkerRE.ReplaceAllString(s, "")
		s = slugSepRE.ReplaceAllString(s, " ")
	}
	for trailingIDRE.MatchString(s) {
		s = trailingIDRE.ReplaceAllString(s, "")
	}
	return s
}

func looksLikeSlug(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	if strings.Contains(s, "_") || strings.Contains(s, "/") {
		return true
	}
	if slugMarkerRE.MatchString(s) || trailingIDRE.MatchString(s) {
		return true
	}
	return strings.Count(s, "-") >= 2
}

func canonicalLegalForms(s string) string {
	for _, form := range legalForms {
		s = form.pattern.ReplaceAllString(s, " "+form.canonical+" ")
	}
	return CleanText(s)
}

func titleCase(s string) string {
	tokens := strings.Fields(s)
	allCaps := isAllUpper(s)
	last := len(tokens) - 1
	for i, tok := range tokens {
		tokens[i] = caseToken(tok, i == 0 || i == last, allCaps)
	}
	return strings.Join(tokens, " ")
}

func caseToken(tok string, edge, allCaps bool) string {
	bare := strings.Trim(tok, ".,;:()")
	lowerBare := lower.String(bare)
	if _, ok := connectors[lowerBare]; ok {
		if edge {
			return capitalizeSegments(tok)
		}
		return lower.String(tok)
	}
	if _, ok := acronyms[strings.ToUpper(bare)]; ok && bare != "" {
		return strings.Replace(tok, bare, strings.ToUpper(bare), 1)
	}
	if !allCaps && isAllUpper(bare) && utf8.RuneCountInString(bare) <= 3 {
		return tok
	}
	if hasInnerUpper(bare) && !isAllUpper(bare) {
		return tok
	}
	return capitalizeSegments(tok)
}

// capitalizeSegments upper-cases the first letter after each apostrophe or
// hyphen boundary: "o'brien" -> "O'Brien", "coca-cola" -> "Coca-Cola".
func capitalizeSegments(tok string) string {
	var b strings.Builder
	b.Grow(len(tok))
	startOfSegment := true
	for _, r := range lower.String(tok) {
		switch {
		case r == '\'' || r == '’' || r == '-':
			startOfSegment = true
			b.WriteRune(r)
		case startOfSegment && unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
			startOfSegment = false
		default:
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				startOfSegment = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func restoreDiacritics(s string) string {
	tokens := strings.Fields(s)
	for i, tok := range tokens {
		accented, ok := accentTable[lower.String(tok)]
		if !ok {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(tok); unicode.IsUpper(r) {
			first, size := utf8.DecodeRuneInString(accented)
			accented = string(unicode.ToUpper(first)) + accented[size:]
		}
		tokens[i] = accented
	}
	return strings.Join(tokens, " ")
}

func stripLegalSuffix(s string) string {
	tokens := strings.Fields(s)
	for len(tokens) > 1 {
		if _, ok := legalSuffixes[strings.TrimRight(tokens[len(tokens)-1], ",")]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
		tokens[len(tokens)-1] = strings.TrimRight(tokens[len(tokens)-1], ",")
	}
	return strings.Join(tokens, " ")
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func hasInnerUpper(s string) bool {
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
