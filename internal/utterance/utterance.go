// Package utterance turns model text into something a speech synthesizer reads well.
package utterance

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	thinkBlock    = regexp.MustCompile(`(?is)<think>.*?</think>`)
	openThink     = regexp.MustCompile(`(?is)<think>.*$`)
	codeFence     = regexp.MustCompile("(?m)^\\s*```[^\\n]*$")
	heading       = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	bullet        = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
	inlineCode    = regexp.MustCompile("`([^`\\n]+)`")
	emphasis      = []*regexp.Regexp{
		emphasisPair(`\*\*\*`, `*`),
		emphasisPair(`___`, `_`),
		emphasisPair(`\*\*`, `*`),
		emphasisPair(`__`, `_`),
		emphasisPair(`~~`, `~`),
		emphasisPair(`\*`, `*`),
	}
	markdownLink  = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

const ellipsis = "..."

// emphasisPair matches text wrapped in a balanced marker pair that sits at
// word boundaries, so arithmetic like "2 * 3" and identifiers like
// "file__v2" are left alone.
func emphasisPair(marker, char string) *regexp.Regexp {
	c := regexp.QuoteMeta(char)
	return regexp.MustCompile(`(^|[^\w` + c + `])` + marker +
		`([^\s` + c + `](?:[^` + c + `\n]*?[^\s` + c + `])?)` +
		marker + `($|[^\w` + c + `])`)
}

// stripEmphasis repeats each pass because a match consumes the boundary
// character its neighbour needs, as in "**a** **b**".
func stripEmphasis(text string) string {
	for _, pair := range emphasis {
		for range 8 {
			next := pair.ReplaceAllString(text, "${1}${2}${3}")
			if next == text {
				break
			}
			text = next
		}
	}
	return text
}

// Clean strips reasoning blocks and markdown markers, collapses whitespace,
// and truncates to maxChars runes with a trailing ellipsis. maxChars <= 0
// disables truncation.
func Clean(text string, maxChars int) string {
	text = thinkBlock.ReplaceAllString(text, " ")
	text = openThink.ReplaceAllString(text, " ")
	text = codeFence.ReplaceAllString(text, " ")
	text = heading.ReplaceAllString(text, "")
	text = bullet.ReplaceAllString(text, "")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = stripEmphasis(text)
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))

	return truncate(text, maxChars)
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	if maxChars <= len(ellipsis) {
		return string([]rune(text)[:maxChars])
	}

	cut := string([]rune(text)[:maxChars-len(ellipsis)])
	// Prefer ending on a word boundary when one is close.
	if idx := strings.LastIndexByte(cut, ' '); idx > len(cut)*3/4 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:") + ellipsis
}
