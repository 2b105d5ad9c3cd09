package console

import (
	"fmt"
	"strings"
)

// Split tokenizes a command line. Tokens are separated by blanks. Single
// and double quotes group blanks into a token, and a backslash escapes the
// next character outside single quotes.
func Split(line string) ([]string, error) {
	var (
		args    []string
		sb      strings.Builder
		inToken bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			sb.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inToken = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				sb.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			if inToken {
				args = append(args, sb.String())
				sb.Reset()
				inToken = false
			}
		default:
			sb.WriteRune(r)
			inToken = true
		}
	}
	if escaped {
		return nil, fmt.Errorf("%w: trailing backslash", ErrInvalidArgs)
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated %c quote", ErrInvalidArgs, quote)
	}
	if inToken {
		args = append(args, sb.String())
	}
	return args, nil
}
