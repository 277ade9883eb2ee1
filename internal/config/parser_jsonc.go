package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	plain, err := blankJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(plain))
	decoder.DisallowUnknownFields()

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, locateJSONError(plain, err)
	}
	if decoder.More() {
		return Config{}, nil, errors.New("multiple JSON values are not allowed")
	}
	if _, err := decoder.Token(); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, nil, locateJSONError(plain, err)
	}

	return finishParse(payload, base)
}

// blankJSONC overwrites comments and dangling commas with spaces, keeping
// newlines, so the result is plain JSON with every byte at its source offset.
func blankJSONC(content string) (string, error) {
	out := []byte(content)
	for i := 0; i < len(out); i++ {
		switch out[i] {
		case '"':
			end, err := skipString(out, i)
			if err != nil {
				return "", err
			}
			i = end
		case '/':
			end, err := skipComment(out, i)
			if err != nil {
				return "", err
			}
			if end > i {
				blank(out[i : end+1])
				i = end
			}
		case ',':
			if closesContainer(out, i+1) {
				out[i] = ' '
			}
		}
	}
	return string(out), nil
}

// skipString returns the index of the closing quote of the string opening at start.
func skipString(b []byte, start int) (int, error) {
	for i := start + 1; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '"':
			return i, nil
		}
	}
	return 0, fmt.Errorf("line %d: unterminated string in JSONC", lineAt(b, start))
}

// skipComment returns the last index of a comment opening at start, or start
// when b[start] does not open one.
func skipComment(b []byte, start int) (int, error) {
	if start+1 >= len(b) {
		return start, nil
	}
	switch b[start+1] {
	case '/':
		end := start + 2
		for end < len(b) && b[end] != '\n' && b[end] != '\r' {
			end++
		}
		return end - 1, nil
	case '*':
		if idx := strings.Index(string(b[start+2:]), "*/"); idx >= 0 {
			return start + 2 + idx + 1, nil
		}
		return 0, fmt.Errorf("line %d: unterminated block comment in JSONC", lineAt(b, start))
	default:
		return start, nil
	}
}

// closesContainer reports whether the next token after from, ignoring
// whitespace and comments, is '}' or ']'.
func closesContainer(b []byte, from int) bool {
	for i := from; i < len(b); i++ {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
		case '}', ']':
			return true
		case '/':
			end, err := skipComment(b, i)
			if err != nil || end == i {
				return false
			}
			i = end
		default:
			return false
		}
	}
	return false
}

func blank(b []byte) {
	for i, ch := range b {
		if ch != '\n' && ch != '\r' {
			b[i] = ' '
		}
	}
}

func lineAt(b []byte, offset int) int {
	if offset > len(b) {
		offset = len(b)
	}
	return 1 + strings.Count(string(b[:offset]), "\n")
}

// locateJSONError prefixes decode errors that carry an offset with a
// line:column position in the source.
func locateJSONError(content string, err error) error {
	var offset int64 = -1
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}
	if offset < 0 {
		return err
	}
	line, col := position(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// position converts a decoder offset (bytes consumed) to a 1-based line and
// column of the last consumed byte.
func position(content string, offset int64) (int, int) {
	end := min(max(int(offset)-1, 0), len(content))
	prefix := content[:end]
	line := 1 + strings.Count(prefix, "\n")
	col := end - strings.LastIndexByte(prefix, '\n')
	return line, col
}
