package page

import "strings"

// SelectorKind is the engine a selector string targets.
type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorText  SelectorKind = "text"
	SelectorXPath SelectorKind = "xpath"
)

// ParseSelector splits a Playwright-dialect selector into its kind and
// expression. Quoted text selectors (text="Sign in") are unquoted.
func ParseSelector(selector string) (SelectorKind, string) {
	switch {
	case strings.HasPrefix(selector, "text="):
		text := strings.TrimSpace(strings.TrimPrefix(selector, "text="))
		if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
			text = strings.ReplaceAll(text[1:len(text)-1], `\"`, `"`)
		}
		return SelectorText, text
	case strings.HasPrefix(selector, "xpath="):
		return SelectorXPath, strings.TrimPrefix(selector, "xpath=")
	default:
		return SelectorCSS, selector
	}
}

// TextSelector builds an exact-match text selector for text.
func TextSelector(text string) string {
	return `text="` + strings.ReplaceAll(text, `"`, `\"`) + `"`
}
