package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/mgomes/flux/flux"
	"github.com/spf13/cobra"
)

func (a *app) capabilitiesCommand() *cobra.Command {
	var family string
	var interactive bool
	cmd := &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps"},
		Short:   "List the capabilities every Flux program can call",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caps := filterCapabilities(flux.Stdlib().All(), family)
			if len(caps) == 0 {
				return fmt.Errorf("no capabilities in family %q", family)
			}
			if interactive {
				return runBrowser(caps, a.stdin, a.stdout)
			}
			fmt.Fprintln(a.stdout, renderCapabilityTable(caps))
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "only list one family (math, strings, collections, io, time, json, concurrency, misc)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse the capabilities in a terminal UI")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show the documentation page of one capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ok := flux.Stdlib().Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown capability %q", args[0])
			}
			page, err := renderMarkdown(capabilityMarkdown(c), a.stdout)
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, page)
			return nil
		},
	})
	return cmd
}

func filterCapabilities(caps []*flux.Capability, family string) []*flux.Capability {
	if family == "" {
		return caps
	}
	out := make([]*flux.Capability, 0, len(caps))
	for _, c := range caps {
		if c.Family == family {
			out = append(out, c)
		}
	}
	return out
}

func renderCapabilityTable(caps []*flux.Capability) string {
	rows := make([][]string, 0, len(caps))
	for _, c := range caps {
		rows = append(rows, []string{c.Name, c.Family, c.Effects.String(), c.Signature()})
	}
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accentColor)).
		Headers("NAME", "FAMILY", "EFFECTS", "SIGNATURE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 0:
				return nameStyle.Padding(0, 1)
			case col == 2 && row >= 0 && row < len(caps) && caps[row].Effects.Pure():
				return pureStyle.Padding(0, 1)
			default:
				return cell
			}
		})
	return t.Render()
}

// capabilityMarkdown is the documentation page of c.
func capabilityMarkdown(c *flux.Capability) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", c.Name)
	fmt.Fprintf(&b, "```\n%s\n```\n\n", c.Signature())
	b.WriteString(c.Doc)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "- **Family:** %s\n", c.Family)
	fmt.Fprintf(&b, "- **Effects:** %s\n", c.Effects)
	if c.Effects.Has(flux.EffectMutatesArgument) {
		b.WriteString("\nThe container argument is modified in place and returned.\n")
	}
	return b.String()
}

func renderMarkdown(md string, w io.Writer) (string, error) {
	style := glamour.WithStylePath("notty")
	if isTerminal(w) {
		style = glamour.WithAutoStyle()
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(80))
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	return renderer.Render(md)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
