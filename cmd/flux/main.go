package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mgomes/flux/flux"
	"github.com/mgomes/flux/internal/config"
	"github.com/mgomes/flux/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runCLI(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// runCLI runs the command line and returns the process exit status.
func runCLI(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout)
		return 1
	}
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		a.report(err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: flux <file.flux>")
}

// app carries the state shared by every subcommand of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger

	// markers of the last engine built, used to place carets in reports.
	markers flux.Markers
}

func (a *app) rootCommand() *cobra.Command {
	opts := &runOptions{}
	root := &cobra.Command{
		Use:   "flux <file.flux>...",
		Short: "Run Flux scripts",
		Long: `Flux is a small scripting dialect hosted on Starlark: "fn" declares a
function, "let" binds a name, and the whole capability library is in scope.
Running a file executes it and calls main() when the file defines it.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				printUsage(a.stdout)
				return errUsage
			}
			return a.run(cmd, opts, args)
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $FLUX_CONFIG or $XDG_CONFIG_HOME/flux/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging on stderr")
	opts.register(root)

	root.AddCommand(
		a.runCommand(),
		a.rewriteCommand(),
		a.capabilitiesCommand(),
	)
	return root
}

// setup loads the config file and builds the logger.
func (a *app) setup() error {
	path, err := config.Resolve(a.configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log, a.verbose, a.stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	logger.Debug("config loaded", zap.String("path", path), zap.String("print_mode", cfg.PrintMode), zap.Int("jobs", cfg.Jobs))
	return nil
}

func (a *app) newEngine(entry string) (*flux.Engine, error) {
	engine, err := flux.NewEngine(flux.Config{
		Logger:     a.logger,
		Stdout:     a.stdout,
		Stderr:     a.stderr,
		Stdin:      a.stdin,
		EntryPoint: entry,
	})
	if err != nil {
		return nil, err
	}
	a.markers = engine.Markers()
	return engine, nil
}
