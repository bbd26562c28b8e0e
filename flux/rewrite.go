package flux

import (
	"strings"
	"unicode"
)

const tabWidth = "    "

// Markers names the line-leading tokens the rewriter recognises. Function is
// replaced by HostFunction; Binding is removed. Each is only recognised when
// it is the first thing on the line after indentation and is followed by a
// space.
type Markers struct {
	Function     string
	HostFunction string
	Binding      string
}

// DefaultMarkers maps the Flux dialect onto Starlark.
var DefaultMarkers = Markers{
	Function:     "fn",
	HostFunction: "def",
	Binding:      "let",
}

// Rewrite derives the host Program for src using DefaultMarkers.
func Rewrite(src *Source) *Program {
	return DefaultMarkers.Rewrite(src)
}

// Rewrite derives the host Program for src.
func (m Markers) Rewrite(src *Source) *Program {
	return &Program{Name: src.Name, Text: m.RewriteText(src.Text)}
}

// RewriteText applies the per-line substitutions to text. Lines are handled
// independently and the output has exactly as many lines as the input.
//
// The rewrite is textual: it has no notion of string literals or comments,
// so a marker that happens to start a line inside a multi-line string is
// rewritten like any other.
func (m Markers) RewriteText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = m.rewriteLine(line)
	}
	return strings.Join(lines, "\n")
}

func (m Markers) rewriteLine(line string) string {
	line = strings.ReplaceAll(line, "\t", tabWidth)
	if m.Function != "" {
		fnMarker := m.Function + " "
		if startsWithMarker(line, fnMarker) {
			line = strings.Replace(line, fnMarker, m.HostFunction+" ", 1)
		}
	}
	if m.Binding != "" {
		letMarker := m.Binding + " "
		if startsWithMarker(line, letMarker) {
			line = strings.Replace(line, letMarker, "", 1)
		}
	}
	return line
}

func startsWithMarker(line, marker string) bool {
	return strings.HasPrefix(strings.TrimLeftFunc(line, unicode.IsSpace), marker)
}
