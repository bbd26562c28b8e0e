package main

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/mgomes/flux/flux"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

var (
	accentColor    = lipgloss.Color("#3B82F6")
	successColor   = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	highlightColor = lipgloss.Color("#F59E0B")

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	headerStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	nameStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	pureStyle = lipgloss.NewStyle().
			Foreground(successColor)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)
)

// report writes err to stderr with a code frame when it carries a position.
func (a *app) report(err error) {
	if errors.Is(err, errUsage) {
		return
	}
	if a.logger != nil {
		a.logger.Debug("command failed", zap.Error(err), zap.String("kind", string(flux.KindOf(err))))
	}
	fmt.Fprintln(a.stderr, formatDiagnostic(err, a.markers))
}

// formatDiagnostic renders err for a terminal. markers are the ones the
// failing program was rewritten with; the zero value means the defaults.
func formatDiagnostic(err error, markers flux.Markers) string {
	if markers == (flux.Markers{}) {
		markers = flux.DefaultMarkers
	}
	var b strings.Builder
	writeFrame := func(pos syntax.Position) {
		if frame := frameAt(pos, markers); frame != "" {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render(frame))
		}
	}

	var (
		syntaxErr  syntax.Error
		resolveErr resolve.ErrorList
		evalErr    *starlark.EvalError
	)
	switch {
	case errors.As(err, &syntaxErr):
		b.WriteString(errorStyle.Render("syntax error:") + " " + syntaxErr.Msg)
		pos := syntaxErr.Pos
		if strings.Contains(syntaxErr.Msg, "got newline") {
			pos = lineBreakPosition(pos)
		}
		writeFrame(pos)
	case errors.As(err, &resolveErr):
		for i, e := range resolveErr {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(errorStyle.Render("error:") + " " + e.Msg)
			writeFrame(e.Pos)
		}
	case errors.As(err, &evalErr):
		b.WriteString(errorStyle.Render("error:") + " " + evalErr.Msg)
		if pos, ok := innermostPosition(evalErr.CallStack); ok {
			writeFrame(pos)
		}
		if trace := strings.TrimRight(evalErr.CallStack.String(), "\n"); trace != "" {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render(trace))
		}
	default:
		b.WriteString(errorStyle.Render("error:") + " " + err.Error())
	}
	return b.String()
}

// innermostPosition finds the deepest frame that points into a file.
func innermostPosition(stack starlark.CallStack) (syntax.Position, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].Pos.Line > 0 && stack[i].Pos.Filename() != "<builtin>" {
			return stack[i].Pos, true
		}
	}
	return syntax.Position{}, false
}

// lineBreakPosition moves a position reported at the start of a line back to
// the end of the previous line. The host reports a token missing before a
// line break at the line that follows it.
func lineBreakPosition(pos syntax.Position) syntax.Position {
	if pos.Line <= 1 {
		return pos
	}
	src, err := flux.LoadSource(pos.Filename())
	if err != nil {
		return pos
	}
	lines := strings.Split(src.Text, "\n")
	if int(pos.Line) <= len(lines) {
		prefix := []rune(lines[pos.Line-1])
		n := min(max(int(pos.Col)-1, 0), len(prefix))
		if strings.TrimSpace(string(prefix[:n])) != "" {
			return pos
		}
	}
	pos.Line--
	pos.Col = math.MaxInt32
	return pos
}

// frameAt loads the file pos refers to and renders the offending line.
func frameAt(pos syntax.Position, markers flux.Markers) string {
	src, err := flux.LoadSource(pos.Filename())
	if err != nil {
		return ""
	}
	return formatCodeFrame(src.Text, markers, int(pos.Line), int(pos.Col))
}

// formatCodeFrame renders the source line with a caret under column. column
// counts runes of the rewritten line the host reported on, so it is shifted
// back by however much markers grew or shrank the line. Columns past the end
// of the line put the caret just after it.
func formatCodeFrame(source string, markers flux.Markers, line, column int) string {
	if source == "" || line <= 0 {
		return ""
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}

	lineText := lines[line-1]
	lineRunes := utf8.RuneCountInString(lineText)
	delta := utf8.RuneCountInString(markers.RewriteText(lineText)) - lineRunes
	if column-delta >= 1 {
		column -= delta
	}
	if column <= 0 {
		column = 1
	}
	if column > lineRunes+1 {
		column = lineRunes + 1
	}

	lineLabel := strconv.Itoa(line)
	gutterPad := strings.Repeat(" ", len(lineLabel))
	caretPad := strings.Repeat(" ", column-1)

	return fmt.Sprintf(
		"  --> line %d, column %d\n %s | %s\n %s | %s^",
		line,
		column,
		lineLabel,
		lineText,
		gutterPad,
		caretPad,
	)
}
