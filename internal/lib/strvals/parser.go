// Package strvals parses the `key=value,key=value` lines used by the
// --log-output and --traces-output flags.
package strvals

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyKey is returned for a token such as "=value" or ",,".
var ErrEmptyKey = errors.New("empty key")

// ErrUnterminatedQuote is returned when a double quoted value is not closed.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Token is a single key and its value. A key without "=" has an empty value.
type Token struct {
	Key   string
	Value string
}

// Parse splits line into tokens. Values may be double quoted to contain
// commas or '=', and a backslash escapes the next character anywhere.
func Parse(line string) ([]Token, error) {
	var (
		tokens  []Token
		cur     strings.Builder
		key     string
		inKey   = true
		quoted  bool
		escaped bool
	)

	flush := func() error {
		if inKey {
			key = cur.String()
		}
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w in %q", ErrEmptyKey, line)
		}
		t := Token{Key: strings.TrimSpace(key)}
		if !inKey {
			t.Value = cur.String()
		}
		tokens = append(tokens, t)
		cur.Reset()
		key, inKey = "", true
		return nil
	}

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"' && !inKey:
			quoted = !quoted
		case quoted:
			cur.WriteRune(r)
		case r == '=' && inKey:
			key = cur.String()
			cur.Reset()
			inKey = false
		case r == ',':
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			cur.WriteRune(r)
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w in %q", ErrUnterminatedQuote, line)
	}
	if line == "" {
		return nil, nil
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return tokens, nil
}
