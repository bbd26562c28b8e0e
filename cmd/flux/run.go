package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mgomes/flux/flux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errUsage = errors.New("flux: file argument required")

type runOptions struct {
	print string
	entry string
	jobs  int
	watch bool
}

func (o *runOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.print, "print", "", "how to print the result: value or each (default from config, value)")
	cmd.Flags().StringVar(&o.entry, "entry", "", "entry point called after the file runs (default main)")
	cmd.Flags().IntVarP(&o.jobs, "jobs", "j", 0, "number of files run concurrently (default from config, 1)")
	cmd.Flags().BoolVarP(&o.watch, "watch", "w", false, "re-run the files whenever they change")
}

func (a *app) runCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <file.flux>...",
		Short: "Run one or more Flux files",
		Long: `Runs each file in a fresh namespace and prints the value returned by its
entry point. With several files and --jobs greater than one the files run
concurrently; results are still printed in argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, opts, args)
		},
	}
	opts.register(cmd)
	return cmd
}

// runSettings is runOptions merged over the config file.
type runSettings struct {
	mode     flux.PrintMode
	entry    string
	jobs     int
	debounce time.Duration
}

func (a *app) settings(cmd *cobra.Command, opts *runOptions) (runSettings, error) {
	s := runSettings{
		mode:     flux.PrintMode(a.cfg.PrintMode),
		entry:    a.cfg.EntryPoint,
		jobs:     a.cfg.Jobs,
		debounce: time.Duration(a.cfg.Watch.DebounceMS) * time.Millisecond,
	}
	flags := cmd.Flags()
	if flags.Changed("print") {
		s.mode = flux.PrintMode(opts.print)
	}
	if flags.Changed("entry") {
		s.entry = opts.entry
	}
	if flags.Changed("jobs") {
		s.jobs = opts.jobs
	}
	switch s.mode {
	case flux.PrintValue, flux.PrintEach:
	default:
		return s, fmt.Errorf("invalid --print %q (valid: %s, %s)", s.mode, flux.PrintValue, flux.PrintEach)
	}
	if s.jobs < 1 {
		return s, fmt.Errorf("--jobs must be at least 1, got %d", s.jobs)
	}
	return s, nil
}

func (a *app) run(cmd *cobra.Command, opts *runOptions, paths []string) error {
	s, err := a.settings(cmd, opts)
	if err != nil {
		return err
	}
	engine, err := a.newEngine(s.entry)
	if err != nil {
		return err
	}
	a.logger.Debug("engine ready", zap.String("config", engine.ConfigSummary()))

	ctx := cmd.Context()
	if opts.watch {
		return a.watch(ctx, paths, s.debounce, func() error {
			defer engine.Wait()
			return a.runFiles(ctx, engine, s, paths)
		})
	}
	err = a.runFiles(ctx, engine, s, paths)
	engine.Wait()
	return err
}

// runFiles runs every path and prints the results in argument order. It
// stops at the first file that fails and returns its error.
func (a *app) runFiles(ctx context.Context, engine *flux.Engine, s runSettings, paths []string) error {
	if s.jobs == 1 || len(paths) == 1 {
		for _, path := range paths {
			result, err := engine.RunFile(ctx, path)
			if err != nil {
				return err
			}
			if err := a.printResult(result, s.mode); err != nil {
				return err
			}
		}
		return nil
	}

	results := make([]flux.Result, len(paths))
	errs := make([]error, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.jobs)
	for i, path := range paths {
		g.Go(func() error {
			a.logger.Debug("running file", zap.String("path", path), zap.Int("index", i))
			results[i], errs[i] = engine.RunFile(gctx, path)
			return errs[i]
		})
	}
	waitErr := g.Wait()
	for i := range paths {
		if errs[i] != nil {
			return errs[i]
		}
		if err := a.printResult(results[i], s.mode); err != nil {
			return err
		}
	}
	return waitErr
}

func (a *app) printResult(result flux.Result, mode flux.PrintMode) error {
	lines, err := result.Lines(mode)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(a.stdout, line); err != nil {
			return err
		}
	}
	return nil
}
