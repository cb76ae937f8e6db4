package ninja

import (
	"fmt"
	"strings"
)

// pathEscaper handles ninja's own metacharacters in path position.
var pathEscaper = strings.NewReplacer("$", "$$", ":", "$:", " ", "$ ", "\n", "$\n")

// EscapePath makes a path safe for a ninja build-statement output or input
// list.
func EscapePath(s string) string { return pathEscaper.Replace(s) }

// shellSafe reports whether c needs no escaping in shell word position.
func shellSafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("_-.,:+/@%^", c) >= 0
}

// ShellEscape backslash-escapes a single command argument. Note that `=` is
// escaped too: the output format forbids a bare `=` in argument position, and
// EscapeAssign strips the backslash back off where assignments allow it.
func ShellEscape(tok string) string {
	if tok == "" {
		return "''"
	}
	var sb strings.Builder
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c == '\n' {
			sb.WriteString("'\n'")
			continue
		}
		if !shellSafe(c) {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// ShellJoin escapes and space-joins a full argument list.
func ShellJoin(args []string) string {
	escaped := make([]string, len(args))
	for i, arg := range args {
		escaped[i] = ShellEscape(arg)
	}
	return strings.Join(escaped, " ")
}

// EscapeAssign prepares an already shell-escaped string for the right-hand
// side of a `key = value` line: `\=` becomes a literal `=` again (assignments
// accept it bare), and ninja's `$` is doubled.
func EscapeAssign(s string) string {
	s = strings.ReplaceAll(s, `\=`, `=`)
	return strings.ReplaceAll(s, "$", "$$")
}

// ShellSplit is the inverse of ShellJoin: it splits a command line into
// argument tokens, honoring backslash escapes and single/double quotes. It is
// what the escape round-trip is validated against.
func ShellSplit(s string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inWord := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case ' ', '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		case '\\':
			if i+1 >= len(s) {
				return nil, fmt.Errorf("trailing backslash in %q", s)
			}
			i++
			cur.WriteByte(s[i])
			inWord = true
		case '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				return nil, fmt.Errorf("unterminated single quote in %q", s)
			}
			cur.WriteString(s[i+1 : i+1+end])
			i += end + 1
			inWord = true
		case '"':
			i++
			for ; i < len(s) && s[i] != '"'; i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				cur.WriteByte(s[i])
			}
			if i >= len(s) {
				return nil, fmt.Errorf("unterminated double quote in %q", s)
			}
			inWord = true
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
