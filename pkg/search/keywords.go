package search

import (
	"strings"

	"github.com/platinummonkey/sitesearch/pkg/index"
)

// Keywords is a sanitized keyword query
type Keywords struct {
	Raw      string   // input with backslash escaping removed
	Terms    []string // stripped search terms
	Phrase   bool     // input was wrapped in double quotes
	Wildcard bool     // last term matches as a prefix
	TSQuery  string   // text bound to to_tsquery
}

// Empty reports whether there is nothing to match
func (k Keywords) Empty() bool {
	return len(k.Terms) == 0
}

// ParseKeywords sanitizes raw user input. A fully quoted input is an exact
// phrase; anything else matches any term, with the last term as a prefix.
func ParseKeywords(raw string) Keywords {
	unescaped := strings.ReplaceAll(raw, `\`, "")
	kw := Keywords{Raw: unescaped}

	trimmed := strings.TrimSpace(unescaped)
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		kw.Phrase = true
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	kw.Terms = strings.Fields(index.StripSpecialCharacters(trimmed))
	if kw.Empty() {
		return kw
	}

	if kw.Phrase {
		kw.TSQuery = strings.Join(kw.Terms, " <-> ")
		return kw
	}

	kw.Wildcard = true
	kw.TSQuery = strings.Join(kw.Terms, " | ") + ":*"
	return kw
}
