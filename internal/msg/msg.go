// Package msg provides leveled, colored terminal output for the genja CLI.
package msg

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

func level(w io.Writer, tag, format string, a ...any) {
	fmt.Fprint(w, tag, ": ")
	fmt.Fprintf(w, format, a...)
	fmt.Fprint(w, "\n")
}

func Info(format string, a ...any) {
	level(os.Stdout, color.HiGreenString("info"), format, a...)
}

func Warn(format string, a ...any) {
	level(os.Stderr, color.YellowString("warn"), format, a...)
}

func Error(format string, a ...any) {
	level(os.Stderr, color.HiRedString("error"), format, a...)
}

// Fatal prints an error and exits the process. The configure pass has no
// recoverable failures, so this is the usual end of any reported error.
func Fatal(format string, a ...any) {
	level(os.Stderr, color.RedString("fatal"), format, a...)
	os.Exit(1)
}

// IndentWriter prefixes every line written through it with Indent. Used to
// print script tracebacks nested under their path context.
type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	var buf bytes.Buffer
	for _, c := range p {
		if !w.didIndent {
			buf.WriteString(w.Indent)
			w.didIndent = true
		}
		buf.WriteByte(c)
		if c == '\n' || c == '\r' {
			w.didIndent = false
		}
	}
	if _, err := w.W.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}
