// Package depfile rewrites compiler-emitted Makefile-style dependency files
// so that every prerequisite is an absolute path. Compilers emit paths
// relative to their own invocation directory, which is not the directory the
// build executor resolves against; without this rewrite, rebuilds on header
// changes silently stop triggering.
package depfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/genja-build/genja/internal/ninja"
)

// FormatError reports a malformed dependency listing. It is fatal to the
// rewrite invocation only; the configure pass is a separate process.
type FormatError struct {
	Path string
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("depfile %s: %s", e.Path, e.Msg)
}

// record is one `target: prerequisites...` entry.
type record struct {
	target  string
	prereqs []string
}

// Rewrite parses the depfile at path and rewrites it in place with every
// prerequisite resolved to an absolute path (relative ones against root).
func Rewrite(root, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	records, err := parse(path, string(data))
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString(rec.target)
		sb.WriteString(":")
		for _, prereq := range rec.prereqs {
			abs := prereq
			if !filepath.IsAbs(abs) {
				abs = filepath.Join(root, abs)
			}
			sb.WriteString(" ")
			sb.WriteString(ninja.ShellEscape(filepath.Clean(abs)))
		}
		sb.WriteString("\n")
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// parse splits the listing into records. A token ending in a bare backslash
// glues the next line onto the same record; a prerequisite token's trailing
// colon is stripped (some compilers emit phony trailers).
func parse(path, text string) ([]record, error) {
	var records []record
	cur := -1

	for _, line := range strings.Split(text, "\n") {
		continued := false
		line = strings.TrimRight(line, " \t\r")
		if strings.HasSuffix(line, "\\") {
			continued = true
			line = line[:len(line)-1]
		}

		for _, tok := range strings.Fields(line) {
			if cur < 0 {
				// expecting a new "target:" token
				name, ok := strings.CutSuffix(tok, ":")
				if !ok {
					if i := strings.Index(tok, ":"); i > 0 {
						// "target:prereq" with no space
						records = append(records, record{target: tok[:i]})
						cur = len(records) - 1
						if rest := strings.TrimSuffix(tok[i+1:], ":"); rest != "" {
							records[cur].prereqs = append(records[cur].prereqs, rest)
						}
						continue
					}
					return nil, &FormatError{Path: path, Msg: fmt.Sprintf("expected a target ending in ':', got %q", tok)}
				}
				if name == "" {
					return nil, &FormatError{Path: path, Msg: "record with empty target name"}
				}
				records = append(records, record{target: name})
				cur = len(records) - 1
				continue
			}

			// defensive: some toolchains emit a stray trailing colon
			// on prerequisite tokens
			tok = strings.TrimSuffix(tok, ":")
			if tok == "" {
				continue
			}
			records[cur].prereqs = append(records[cur].prereqs, tok)
		}

		if !continued {
			cur = -1
		}
	}

	if cur >= 0 {
		return nil, &FormatError{Path: path, Msg: "line continuation at end of file"}
	}
	return records, nil
}
