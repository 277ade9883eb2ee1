package utterance

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestCleanStripsThinkBlocks(t *testing.T) {
	got := Clean("<think>the user wants a caption</think>A red mug on a desk.", 0)
	require.Equal(t, "A red mug on a desk.", got)
}

func TestCleanDropsUnterminatedThinkBlock(t *testing.T) {
	got := Clean("There is a cup. <think>still reasoning", 0)
	require.Equal(t, "There is a cup.", got)
}

func TestCleanStripsMarkdown(t *testing.T) {
	input := "## Summary\n\n- **Cup** on the _left_\n- A `laptop`\n1. [Door](http://x) ahead\n```\ncode\n```"
	require.Equal(t, "Summary Cup on the _left_ A laptop Door ahead code", Clean(input, 0))
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	require.Equal(t, "one two three", Clean("  one\n\ttwo   three \n", 0))
}

func TestCleanEmptyInput(t *testing.T) {
	require.Equal(t, "", Clean("", 10))
	require.Equal(t, "", Clean("<think>only thoughts</think>", 10))
}

func TestCleanTruncatesWithEllipsis(t *testing.T) {
	text := strings.Repeat("word ", 40)
	got := Clean(text, 50)
	require.LessOrEqual(t, utf8.RuneCountInString(got), 50)
	require.True(t, strings.HasSuffix(got, "..."))
	require.False(t, strings.Contains(got, "wor..."))
}

func TestCleanTruncatesRunes(t *testing.T) {
	got := Clean(strings.Repeat("é", 20), 10)
	require.Equal(t, strings.Repeat("é", 7)+"...", got)
}

func TestCleanShortLimit(t *testing.T) {
	require.Equal(t, "ab", Clean("abcdef", 2))
}

func TestCleanWithinLimitUnchanged(t *testing.T) {
	require.Equal(t, "short text", Clean("short text", 850))
}

func TestCleanKeepsArithmeticAndIdentifiers(t *testing.T) {
	tests := map[string]string{
		"2 * 3 = 6":                  "2 * 3 = 6",
		"Price is 5*4":               "Price is 5*4",
		"file_name__v2 here":         "file_name__v2 here",
		"range 1~~5":                 "range 1~~5",
		"a ** b is a power":          "a ** b is a power",
		"5*4 and 3*2 are products":   "5*4 and 3*2 are products",
		"**Bold** and *soft* words":  "Bold and soft words",
		"__under__ and ~~struck~~":   "under and struck",
		"***both*** **a** **b**":     "both a b",
		"ends with **emphasis**.":    "ends with emphasis.",
	}
	for input, want := range tests {
		require.Equal(t, want, Clean(input, 0), input)
	}
}

func TestCleanSpeaksPlainResponseUnchanged(t *testing.T) {
	text := "There are 3 * 4 = 12 chairs; see file_v2__final for details."
	require.Equal(t, text, Clean(text, 850))
}
