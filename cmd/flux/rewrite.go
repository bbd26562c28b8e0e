package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mgomes/flux/flux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	fluxExt = ".flux"
	hostExt = ".star"
)

func (a *app) rewriteCommand() *cobra.Command {
	var write, check bool
	cmd := &cobra.Command{
		Use:   "rewrite <path>...",
		Short: "Print the Starlark text a Flux file runs as",
		Long: `Rewrites each file (or every .flux file under each directory) and prints
the result. With -w the result is written next to the source as a .star file.
With --check nothing is printed and the command fails when any file uses the
Flux markers.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.rewrite(args, write, check)
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write <file>.star instead of printing")
	cmd.Flags().BoolVar(&check, "check", false, "fail if rewriting would change any file")
	return cmd
}

func (a *app) rewrite(targets []string, write, check bool) error {
	files, err := collectFluxFiles(targets)
	if err != nil {
		return err
	}

	changedCount := 0
	for _, path := range files {
		src, err := flux.LoadSource(path)
		if err != nil {
			return err
		}
		prog := flux.Rewrite(src)
		changed := prog.Text != src.Text
		if changed {
			changedCount++
		}
		a.logger.Debug("rewrote file", zap.String("path", path), zap.Bool("changed", changed))

		switch {
		case check:
		case write:
			out := hostPath(path)
			if err := os.WriteFile(out, []byte(prog.Text), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
		default:
			fmt.Fprint(a.stdout, prog.Text)
		}
	}

	if check && changedCount > 0 {
		return fmt.Errorf("flux rewrite: %d file(s) use flux markers", changedCount)
	}
	return nil
}

// hostPath is the file -w writes the rewrite of path to.
func hostPath(path string) string {
	return strings.TrimSuffix(path, fluxExt) + hostExt
}

// collectFluxFiles expands targets into a sorted list of absolute paths
// without duplicates. A file named explicitly is taken whatever its
// extension; a directory contributes the .flux files below it and hidden
// directories are not entered.
func collectFluxFiles(targets []string) ([]string, error) {
	var files []string
	for _, target := range targets {
		found, err := expandTarget(target)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func expandTarget(target string) ([]string, error) {
	root, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", target, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var found []string
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		switch {
		case walkErr != nil:
			return walkErr
		case entry.IsDir() && path != root && strings.HasPrefix(entry.Name(), "."):
			return fs.SkipDir
		case entry.Type().IsRegular() && filepath.Ext(path) == fluxExt:
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", target, err)
	}
	return found, nil
}
