package flux

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// Result is the outcome of an execution. Returned is false when the program
// did not define a callable entry point; a program whose entry point returns
// None, 0 or an empty value still has Returned set.
type Result struct {
	Value    starlark.Value
	Returned bool
}

// String renders the value the way print would. It is empty when nothing was
// returned.
func (r Result) String() string {
	if !r.Returned || r.Value == nil {
		return ""
	}
	return displayString(r.Value)
}

// PrintMode selects how a driver prints a Result.
type PrintMode string

const (
	// PrintValue prints the returned value on one line unless it is None.
	PrintValue PrintMode = "value"
	// PrintEach prints every element of a truthy iterable result on its own
	// line. A string is iterated by character. Other non-iterable values
	// print as a single line and falsy results print nothing.
	PrintEach PrintMode = "each"
)

// Lines returns what a driver prints for r under mode.
func (r Result) Lines(mode PrintMode) ([]string, error) {
	if !r.Returned || r.Value == nil {
		return nil, nil
	}
	switch mode {
	case PrintValue:
		if r.Value == starlark.None {
			return nil, nil
		}
		return []string{displayString(r.Value)}, nil
	case PrintEach:
		if !truth(r.Value) {
			return nil, nil
		}
		if s, ok := starlark.AsString(r.Value); ok {
			lines := make([]string, 0, utf8.RuneCountInString(s))
			for _, c := range s {
				lines = append(lines, string(c))
			}
			return lines, nil
		}
		iterable, ok := r.Value.(starlark.Iterable)
		if !ok {
			return []string{displayString(r.Value)}, nil
		}
		var lines []string
		iter := iterable.Iterate()
		defer iter.Done()
		var x starlark.Value
		for iter.Next(&x) {
			lines = append(lines, displayString(x))
		}
		return lines, nil
	default:
		return nil, fmt.Errorf("flux: unknown print mode %q", mode)
	}
}

// Execute runs prog with ns as its only scope and then dispatches the entry
// point.
//
// Free names in the program resolve against ns. Every top-level binding the
// program makes is written back into ns, including bindings that replace a
// capability and the partial bindings of a run that fails. Errors from the
// host, from the program, or from the entry point are returned as they were
// raised. Execution is not cancelled by ctx; capabilities use it for their
// own I/O.
func (e *Engine) Execute(ctx context.Context, prog *Program, ns *Namespace) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	thread := e.newThread(ctx, prog.Name)

	e.logger.Debug("executing program", zap.String("program", prog.Name), zap.Int("bindings", ns.Len()))
	f, err := fileOptions.Parse(prog.Name, prog.Text, 0)
	if err != nil {
		return Result{}, err
	}
	// The namespace is the module scope: names resolve against it
	// dynamically, so a function reading a capability sees whatever is
	// bound when it runs, and every binding is written back even on failure.
	if err := starlark.ExecREPLChunk(f, thread, ns.vars); err != nil {
		return Result{}, err
	}

	entry, ok := ns.Lookup(e.config.EntryPoint)
	if !ok {
		e.logger.Debug("no entry point defined", zap.String("entry", e.config.EntryPoint))
		return Result{}, nil
	}
	fn, ok := entry.(starlark.Callable)
	if !ok {
		e.logger.Debug("entry point is not callable", zap.String("entry", e.config.EntryPoint), zap.String("type", entry.Type()))
		return Result{}, nil
	}
	value, err := starlark.Call(thread, fn, nil, nil)
	if err != nil {
		return Result{}, err
	}
	e.logger.Debug("entry point returned", zap.String("entry", e.config.EntryPoint), zap.String("type", value.Type()))
	return Result{Value: value, Returned: true}, nil
}

const runtimeKey = "flux.runtime"

// runtime is the per-execution state capabilities reach through the thread.
type runtime struct {
	engine *Engine
	ctx    context.Context
	name   string
}

func (e *Engine) newThread(ctx context.Context, name string) *starlark.Thread {
	rt := &runtime{engine: e, ctx: ctx, name: name}
	return rt.thread(name)
}

func (rt *runtime) thread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(rt.engine.stdout, msg)
		},
	}
	thread.SetLocal(runtimeKey, rt)
	return thread
}

var (
	fallbackOnce    sync.Once
	fallbackRuntime *runtime
)

// runtimeOf returns the runtime of thread. Capabilities called from a thread
// the engine did not create run against a default engine.
func runtimeOf(thread *starlark.Thread) *runtime {
	if thread != nil {
		if rt, ok := thread.Local(runtimeKey).(*runtime); ok {
			return rt
		}
	}
	fallbackOnce.Do(func() {
		fallbackRuntime = &runtime{engine: MustNewEngine(Config{}), ctx: context.Background(), name: "flux"}
	})
	return fallbackRuntime
}
