package query

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrNotReadOnly = errors.New("statement is not read-only")

var forbidden = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "MERGE": {}, "UPSERT": {},
	"DROP": {}, "ALTER": {}, "CREATE": {}, "TRUNCATE": {}, "GRANT": {},
	"REVOKE": {}, "COPY": {}, "CALL": {}, "EXECUTE": {}, "VACUUM": {},
	"INTO": {}, "LOCK": {}, "REINDEX": {},
}

// CheckReadOnly accepts a single SELECT or WITH statement. Comments, string
// literals and quoted identifiers are skipped, so keywords inside them do not count.
func CheckReadOnly(sql string) error {
	words, statements, err := lex(sql)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReadOnly, err)
	}
	if len(words) == 0 {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if statements > 1 {
		return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}
	if words[0] != "SELECT" && words[0] != "WITH" {
		return fmt.Errorf("%w: starts with %s", ErrNotReadOnly, words[0])
	}
	for _, w := range words {
		if _, bad := forbidden[w]; bad {
			return fmt.Errorf("%w: contains %s", ErrNotReadOnly, w)
		}
	}
	return nil
}

// lex returns the upper-cased bare words of sql and the number of non-empty statements.
func lex(sql string) ([]string, int, error) {
	var (
		words      []string
		statements int
		current    bool
	)
	src := []rune(sql)
	for i := 0; i < len(src); {
		r := src[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(string(src[i+2:]), "*/")
			if end < 0 {
				return nil, 0, errors.New("unterminated comment")
			}
			i += 2 + len([]rune(string(src[i+2:])[:end])) + 2
		case r == '\'' || r == '"':
			n, err := skipQuoted(src, i, r)
			if err != nil {
				return nil, 0, err
			}
			i = n
			current = true
		case r == '$':
			n, err := skipDollarQuoted(src, i)
			if err != nil {
				return nil, 0, err
			}
			i = n
			current = true
		case r == ';':
			if current {
				statements++
				current = false
			}
			i++
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) && (src[i] == '_' || unicode.IsLetter(src[i]) || unicode.IsDigit(src[i])) {
				i++
			}
			words = append(words, strings.ToUpper(string(src[start:i])))
			current = true
		default:
			i++
			current = true
		}
	}
	if current {
		statements++
	}
	return words, statements, nil
}

func skipQuoted(src []rune, i int, quote rune) (int, error) {
	for j := i + 1; j < len(src); j++ {
		if src[j] != quote {
			continue
		}
		if j+1 < len(src) && src[j+1] == quote {
			j++
			continue
		}
		return j + 1, nil
	}
	return 0, errors.New("unterminated quoted text")
}

// skipDollarQuoted handles $tag$...$tag$ bodies. A '$' that does not open a
// tag, such as a positional parameter, is consumed as a single character.
func skipDollarQuoted(src []rune, i int) (int, error) {
	j := i + 1
	for j < len(src) && (src[j] == '_' || unicode.IsLetter(src[j]) || (j > i+1 && unicode.IsDigit(src[j]))) {
		j++
	}
	if j >= len(src) || src[j] != '$' {
		return i + 1, nil
	}
	tag := string(src[i : j+1])
	rest := string(src[j+1:])
	end := strings.Index(rest, tag)
	if end < 0 {
		return 0, errors.New("unterminated dollar-quoted text")
	}
	return j + 1 + len([]rune(rest[:end])) + len([]rune(tag)), nil
}
