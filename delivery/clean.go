package delivery

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// controlTokens matches catalog markup: case markers (#case_12, #кейс12, #case) and
// answer markers (#answer_B, #ans-C, #ответ_А). A match only counts when it ends the word.
var controlTokens = regexp.MustCompile(`(?i)#(?:case|кейс)[_\-\d][\p{L}\d_-]*|#(?:case|кейс)|#(?:answer|ans|ответ)[_-]?[ABCDАВС]`)

var extraBlankLines = regexp.MustCompile(`\n{3,}`)

// Clean removes control tokens from source text, returning "" when nothing else remains
func Clean(text string) string {
	out := stripControlTokens(text)
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out = strings.Join(lines, "\n")
	out = extraBlankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// stripControlTokens drops every token match not followed by a letter or digit, so ordinary
// hashtags such as #answerable or #casework survive
func stripControlTokens(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range controlTokens.FindAllStringIndex(text, -1) {
		if r, _ := utf8.DecodeRuneInString(text[loc[1]:]); loc[1] < len(text) && isWordRune(r) {
			continue
		}
		b.WriteString(text[last:loc[0]])
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
