package config

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	if strings.HasPrefix(input, "#") {
		return nil, nil
	}

	parser := shellwords.NewParser()
	argv, err := parser.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", input, err)
	}
	if len(argv) == 0 {
		return nil, nil
	}
	return argv, nil
}

func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}

// ExpandArgv substitutes `{name}` placeholders in every argument. Unknown
// placeholders are left untouched.
func ExpandArgv(argv []string, values map[string]string) []string {
	out := make([]string, 0, len(argv))
	for _, arg := range argv {
		for key, value := range values {
			arg = strings.ReplaceAll(arg, "{"+key+"}", value)
		}
		out = append(out, arg)
	}
	return out
}

// HasPlaceholder reports whether any argument references `{name}`.
func HasPlaceholder(argv []string, name string) bool {
	token := "{" + name + "}"
	for _, arg := range argv {
		if strings.Contains(arg, token) {
			return true
		}
	}
	return false
}
