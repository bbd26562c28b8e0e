package flux

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.starlark.net/starlark"
)

// sleepRecorder stands in for time.Sleep and remembers every delay.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type testEngine struct {
	*Engine
	stdout *syncBuffer
	stderr *syncBuffer
	sleeps *sleepRecorder
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestEngine(t testing.TB, cfg Config) *testEngine {
	t.Helper()
	out := &syncBuffer{}
	errOut := &syncBuffer{}
	sleeps := &sleepRecorder{}
	if cfg.Stdout == nil {
		cfg.Stdout = out
	}
	if cfg.Stderr == nil {
		cfg.Stderr = errOut
	}
	if cfg.Stdin == nil {
		cfg.Stdin = strings.NewReader("")
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleeps.sleep
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &testEngine{Engine: engine, stdout: out, stderr: errOut, sleeps: sleeps}
}

func runText(t testing.TB, e *testEngine, text string) (Result, error) {
	t.Helper()
	return e.Run(context.Background(), NewSource("test.flux", text))
}

func mustRun(t testing.TB, e *testEngine, text string) Result {
	t.Helper()
	result, err := runText(t, e, text)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return result
}

// evalExpr runs a program whose main returns expr and yields the value.
func evalExpr(t testing.TB, e *testEngine, expr string) starlark.Value {
	t.Helper()
	result := mustRun(t, e, "fn main():\n    return "+expr+"\n")
	if !result.Returned {
		t.Fatalf("main did not run for %s", expr)
	}
	return result.Value
}

// evalError runs a program whose main returns expr and expects a failure.
func evalError(t testing.TB, e *testEngine, expr string) error {
	t.Helper()
	_, err := runText(t, e, "fn main():\n    return "+expr+"\n")
	if err == nil {
		t.Fatalf("expected %s to fail", expr)
	}
	return err
}

func requireKind(t testing.TB, err error, want Kind) {
	t.Helper()
	var fluxErr *Error
	if !errors.As(err, &fluxErr) {
		t.Fatalf("expected a %s, got %T: %v", want, err, err)
	}
	if fluxErr.Kind != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, fluxErr.Kind, err)
	}
}
