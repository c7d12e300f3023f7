package classify

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// matcher finds whole-token occurrences of a fixed word list. Word
// boundaries are only enforced on edges that are word characters, so
// tokens such as "Super::" or "get_node(" still match.
type matcher struct {
	re *regexp.Regexp
	// canon maps a lowered match back to the listed token for
	// case-insensitive matchers.
	canon map[string]string
}

func newMatcher(tokens []string, caseInsensitive bool) *matcher {
	var parts []string
	canon := map[string]string{}
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		p := regexp.QuoteMeta(tok)
		if r, _ := utf8.DecodeRuneInString(tok); isWord(r) {
			p = `\b` + p
		}
		if r, _ := utf8.DecodeLastRuneInString(tok); isWord(r) {
			p += `\b`
		}
		parts = append(parts, p)
		canon[strings.ToLower(tok)] = tok
	}
	if len(parts) == 0 {
		return &matcher{}
	}
	// Longest first so alternation prefers the most specific token.
	sort.SliceStable(parts, func(i, j int) bool { return len(parts[i]) > len(parts[j]) })
	expr := strings.Join(parts, "|")
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	return &matcher{re: regexp.MustCompile(expr), canon: canon}
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// find returns the distinct listed tokens present in text, in order of
// first appearance.
func (m *matcher) find(text string) []string {
	if m == nil || m.re == nil || text == "" {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, hit := range m.re.FindAllString(text, -1) {
		tok := hit
		if c, ok := m.canon[strings.ToLower(hit)]; ok {
			tok = c
		}
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}
