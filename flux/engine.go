package flux

import (
	"bufio"
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

// DefaultEntryPoint is the binding invoked after a program has run.
const DefaultEntryPoint = "main"

// Config controls how an Engine runs programs. The zero value is usable.
type Config struct {
	Logger        *zap.Logger
	Stdout        io.Writer
	Stderr        io.Writer
	Stdin         io.Reader
	EntryPoint    string
	AggregateName string
	Markers       Markers
	Registry      *Registry
	HTTPClient    *http.Client
	// Sleep implements every blocking delay made by capabilities (sleep,
	// sleep_ms, retry). Tests replace it to observe delays.
	Sleep        func(time.Duration)
	RandomSource rand.Source
}

// Engine rewrites and executes Flux programs. An Engine holds no per-run
// state besides the set of non-daemon tasks spawned by programs, so one
// Engine can run any number of programs, concurrently or not.
type Engine struct {
	config   Config
	registry *Registry
	logger   *zap.Logger

	stdout *lockedWriter
	stderr *lockedWriter
	stdin  *bufio.Reader
	inMu   sync.Mutex

	random   *rand.Rand
	randomMu sync.Mutex

	tasks   sync.WaitGroup
	taskSeq atomic.Uint64
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// NewEngine constructs an Engine, filling unset config fields with defaults.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.EntryPoint == "" {
		cfg.EntryPoint = DefaultEntryPoint
	}
	if cfg.AggregateName == "" {
		cfg.AggregateName = DefaultAggregateName
	}
	if cfg.Markers == (Markers{}) {
		cfg.Markers = DefaultMarkers
	}
	if cfg.Registry == nil {
		cfg.Registry = Stdlib()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.RandomSource == nil {
		var seed [32]byte
		if _, err := cryptorand.Read(seed[:]); err != nil {
			return nil, fmt.Errorf("flux: seed random source: %w", err)
		}
		cfg.RandomSource = rand.NewChaCha8(seed)
	}

	if !isIdentifier(cfg.EntryPoint) {
		return nil, fmt.Errorf("flux: entry point %q is not an identifier", cfg.EntryPoint)
	}
	if !isIdentifier(cfg.AggregateName) {
		return nil, fmt.Errorf("flux: aggregate name %q is not an identifier", cfg.AggregateName)
	}
	if cfg.Markers.Function != "" && cfg.Markers.HostFunction == "" {
		return nil, fmt.Errorf("flux: function marker %q has no host replacement", cfg.Markers.Function)
	}

	return &Engine{
		config:   cfg,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		stdout:   &lockedWriter{w: cfg.Stdout},
		stderr:   &lockedWriter{w: cfg.Stderr},
		stdin:    bufio.NewReader(cfg.Stdin),
		random:   rand.New(cfg.RandomSource),
	}, nil
}

// MustNewEngine constructs an Engine or panics if the config is invalid.
func MustNewEngine(cfg Config) *Engine {
	engine, err := NewEngine(cfg)
	if err != nil {
		panic(err)
	}
	return engine
}

// Registry returns the capabilities bound into every namespace.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// NewNamespace builds a fresh namespace seeded from the engine's registry.
func (e *Engine) NewNamespace() *Namespace {
	ns := NewNamespace(e.registry, e.config.AggregateName)
	e.logger.Debug("namespace built", zap.Int("bindings", ns.Len()))
	return ns
}

// Markers returns the markers the engine rewrites programs with.
func (e *Engine) Markers() Markers {
	return e.config.Markers
}

// Rewrite derives the host program for src with the engine's markers.
func (e *Engine) Rewrite(src *Source) *Program {
	return e.config.Markers.Rewrite(src)
}

// Run rewrites src, builds a fresh namespace and executes the result.
func (e *Engine) Run(ctx context.Context, src *Source) (Result, error) {
	prog := e.Rewrite(src)
	e.logger.Debug("program rewritten", zap.String("program", prog.Name), zap.Int("bytes", len(prog.Text)))
	return e.Execute(ctx, prog, e.NewNamespace())
}

// RunFile loads path and runs it.
func (e *Engine) RunFile(ctx context.Context, path string) (Result, error) {
	src, err := LoadSource(path)
	if err != nil {
		return Result{}, err
	}
	return e.Run(ctx, src)
}

// Wait blocks until every non-daemon task spawned by programs has finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

// ConfigSummary provides a human-readable description of the engine setup.
func (e *Engine) ConfigSummary() string {
	return fmt.Sprintf("entry=%s aggregate=%s capabilities=%d markers=%s/%s/%s",
		e.config.EntryPoint, e.config.AggregateName, e.registry.Len(),
		e.config.Markers.Function, e.config.Markers.HostFunction, e.config.Markers.Binding)
}

func (e *Engine) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	e.config.Sleep(d)
}

func (e *Engine) withRandom(fn func(r *rand.Rand)) {
	e.randomMu.Lock()
	defer e.randomMu.Unlock()
	fn(e.random)
}

func (e *Engine) readLine() (string, error) {
	e.inMu.Lock()
	defer e.inMu.Unlock()
	line, err := e.stdin.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
	}
	return line, nil
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
