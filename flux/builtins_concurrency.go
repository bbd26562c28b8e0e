package flux

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

func registerConcurrency(b *registryBuilder) {
	b.add("spawn_thread", "fn, *args, daemon=True, **kwargs", EffectSpawns, "Starts fn(*args, **kwargs) concurrently and returns its task handle.", builtinSpawnThread)
	b.add("run_in_thread", "fn, *args, daemon=True, **kwargs", EffectSpawns, "Same as spawn_thread.", builtinSpawnThread)
	b.add("join_thread", "task, timeout=None", EffectBlocks, "Waits for task and reports whether it is still running.", builtinJoinThread)
	b.add("lock", "", EffectPure, "New mutual exclusion lock with acquire, release and locked.", builtinLock)
	b.add("Event", "", EffectPure, "New event flag with set, clear, is_set and wait.", builtinEvent)
}

var handleSeq atomic.Uint32

// methodTable maps method names to builtins that take their receiver from
// fn.Receiver().
type methodTable map[string]*starlark.Builtin

func (m methodTable) attr(recv starlark.Value, name string) (starlark.Value, error) {
	if method, ok := m[name]; ok {
		return method.BindReceiver(recv), nil
	}
	return nil, nil
}

func (m methodTable) names() []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// waitTimeout blocks until done is closed or timeout elapses. A negative
// timeout waits indefinitely. It reports whether done was closed.
func waitTimeout(done <-chan struct{}, timeout time.Duration) bool {
	if timeout < 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// optionalTimeout converts a timeout argument in seconds. None and negative
// values mean no timeout and are returned as -1.
func optionalTimeout(name string, v starlark.Value) (time.Duration, error) {
	if v == starlark.None {
		return -1, nil
	}
	seconds, err := toFloat(name, v)
	if err != nil {
		return 0, err
	}
	if seconds < 0 {
		return -1, nil
	}
	return durationOf(name, seconds, time.Second)
}

// task is the handle of a function started by spawn_thread.
type task struct {
	id     uint32
	name   string
	daemon bool
	done   chan struct{}
}

var _ starlark.HasAttrs = (*task)(nil)

var taskMethods = methodTable{
	"is_alive": starlark.NewBuiltin("is_alive", taskIsAlive),
	"join":     starlark.NewBuiltin("join", taskJoin),
}

func (t *task) String() string {
	state := "started"
	if !t.alive() {
		state = "stopped"
	}
	kind := ""
	if t.daemon {
		kind = " daemon"
	}
	return fmt.Sprintf("<task %s %s%s>", t.name, state, kind)
}
func (t *task) Type() string          { return "task" }
func (t *task) Freeze()               {}
func (t *task) Truth() starlark.Bool  { return starlark.True }
func (t *task) Hash() (uint32, error) { return t.id, nil }

func (t *task) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(t.name), nil
	case "daemon":
		return starlark.Bool(t.daemon), nil
	}
	return taskMethods.attr(t, name)
}

func (t *task) AttrNames() []string {
	return append(taskMethods.names(), "daemon", "name")
}

func (t *task) alive() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *task) join(timeout time.Duration) {
	waitTimeout(t.done, timeout)
}

func taskIsAlive(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.Bool(fn.Receiver().(*task).alive()), nil
}

func taskJoin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var timeout starlark.Value = starlark.None
	if err := unpack(fn, args, kwargs, "timeout?", &timeout); err != nil {
		return nil, err
	}
	d, err := optionalTimeout(fn.Name(), timeout)
	if err != nil {
		return nil, err
	}
	fn.Receiver().(*task).join(d)
	return starlark.None, nil
}

func builtinSpawnThread(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, newError(KindType, "%s expects a callable", fn.Name())
	}
	target, err := callableArg(fn.Name(), args[0])
	if err != nil {
		return nil, err
	}
	daemon := true
	var rest []starlark.Tuple
	for _, kv := range kwargs {
		if string(kv[0].(starlark.String)) == "daemon" {
			daemon = truth(kv[1])
			continue
		}
		rest = append(rest, kv)
	}
	return runtimeOf(thread).spawn(target, args[1:], rest, daemon), nil
}

// spawn starts target on its own host thread. Non-daemon tasks are counted
// in the engine's task group so Engine.Wait can block on them.
func (rt *runtime) spawn(target starlark.Callable, args starlark.Tuple, kwargs []starlark.Tuple, daemon bool) *task {
	e := rt.engine
	id := handleSeq.Add(1)
	t := &task{
		id:     id,
		name:   fmt.Sprintf("Thread-%d", e.taskSeq.Add(1)),
		daemon: daemon,
		done:   make(chan struct{}),
	}
	if !daemon {
		e.tasks.Add(1)
	}
	logger := e.logger.With(zap.String("task", t.name), zap.Bool("daemon", daemon))
	logger.Debug("task started")
	go func() {
		defer close(t.done)
		if !daemon {
			defer e.tasks.Done()
		}
		_, err := starlark.Call(rt.thread(t.name), target, args, kwargs)
		if err != nil {
			logger.Warn("task failed", zap.Error(err))
			fmt.Fprintf(e.stderr, "Exception in thread %s: %v\n", t.name, err)
			return
		}
		logger.Debug("task finished")
	}()
	return t
}

func builtinJoinThread(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var target starlark.Value
	var timeout starlark.Value = starlark.None
	if err := unpack(fn, args, kwargs, "task", &target, "timeout?", &timeout); err != nil {
		return nil, err
	}
	t, ok := target.(*task)
	if !ok {
		return nil, newError(KindType, "join_thread: got %s, want task", target.Type())
	}
	d, err := optionalTimeout(fn.Name(), timeout)
	if err != nil {
		return nil, err
	}
	t.join(d)
	return starlark.Bool(t.alive()), nil
}

// lock is a mutex handle. The slot channel holds one token while the lock is
// held, which lets acquire time out.
type lock struct {
	id   uint32
	slot chan struct{}
}

var _ starlark.HasAttrs = (*lock)(nil)

var lockMethods = methodTable{
	"acquire": starlark.NewBuiltin("acquire", lockAcquire),
	"release": starlark.NewBuiltin("release", lockRelease),
	"locked":  starlark.NewBuiltin("locked", lockLocked),
}

func newLock() *lock {
	return &lock{id: handleSeq.Add(1), slot: make(chan struct{}, 1)}
}

func (l *lock) String() string {
	state := "unlocked"
	if l.locked() {
		state = "locked"
	}
	return fmt.Sprintf("<lock %s>", state)
}
func (l *lock) Type() string                             { return "lock" }
func (l *lock) Freeze()                                  {}
func (l *lock) Truth() starlark.Bool                     { return starlark.True }
func (l *lock) Hash() (uint32, error)                    { return l.id, nil }
func (l *lock) Attr(name string) (starlark.Value, error) { return lockMethods.attr(l, name) }
func (l *lock) AttrNames() []string                      { return lockMethods.names() }

func (l *lock) locked() bool {
	return len(l.slot) == 1
}

func (l *lock) acquire(blocking bool, timeout time.Duration) bool {
	if !blocking {
		select {
		case l.slot <- struct{}{}:
			return true
		default:
			return false
		}
	}
	if timeout < 0 {
		l.slot <- struct{}{}
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case l.slot <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (l *lock) release() error {
	select {
	case <-l.slot:
		return nil
	default:
		return newError(KindRuntime, "release unlocked lock")
	}
}

func builtinLock(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	return newLock(), nil
}

func lockAcquire(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	blocking := true
	var timeout starlark.Value = starlark.MakeInt(-1)
	if err := unpack(fn, args, kwargs, "blocking?", &blocking, "timeout?", &timeout); err != nil {
		return nil, err
	}
	d, err := optionalTimeout(fn.Name(), timeout)
	if err != nil {
		return nil, err
	}
	if !blocking && d >= 0 {
		return nil, newError(KindValue, "can't specify a timeout for a non-blocking call")
	}
	return starlark.Bool(fn.Receiver().(*lock).acquire(blocking, d)), nil
}

func lockRelease(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	if err := fn.Receiver().(*lock).release(); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func lockLocked(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.Bool(fn.Receiver().(*lock).locked()), nil
}

// event is a settable flag that waiters can block on. ch is closed while the
// flag is set and replaced when it is cleared.
type event struct {
	id uint32
	mu sync.Mutex
	ch chan struct{}
	on bool
}

var _ starlark.HasAttrs = (*event)(nil)

var eventMethods = methodTable{
	"set":    starlark.NewBuiltin("set", eventSet),
	"clear":  starlark.NewBuiltin("clear", eventClear),
	"is_set": starlark.NewBuiltin("is_set", eventIsSet),
	"wait":   starlark.NewBuiltin("wait", eventWait),
}

func newEvent() *event {
	return &event{id: handleSeq.Add(1), ch: make(chan struct{})}
}

func (ev *event) String() string {
	return fmt.Sprintf("<event set=%t>", ev.isSet())
}
func (ev *event) Type() string                             { return "event" }
func (ev *event) Freeze()                                  {}
func (ev *event) Truth() starlark.Bool                     { return starlark.True }
func (ev *event) Hash() (uint32, error)                    { return ev.id, nil }
func (ev *event) Attr(name string) (starlark.Value, error) { return eventMethods.attr(ev, name) }
func (ev *event) AttrNames() []string                      { return eventMethods.names() }

func (ev *event) set() {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if !ev.on {
		ev.on = true
		close(ev.ch)
	}
}

func (ev *event) clear() {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if ev.on {
		ev.on = false
		ev.ch = make(chan struct{})
	}
}

func (ev *event) isSet() bool {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.on
}

func (ev *event) wait(timeout time.Duration) bool {
	ev.mu.Lock()
	ch := ev.ch
	ev.mu.Unlock()
	return waitTimeout(ch, timeout)
}

func builtinEvent(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	return newEvent(), nil
}

func eventSet(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	fn.Receiver().(*event).set()
	return starlark.None, nil
}

func eventClear(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	fn.Receiver().(*event).clear()
	return starlark.None, nil
}

func eventIsSet(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpackPositional(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.Bool(fn.Receiver().(*event).isSet()), nil
}

func eventWait(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var timeout starlark.Value = starlark.None
	if err := unpack(fn, args, kwargs, "timeout?", &timeout); err != nil {
		return nil, err
	}
	d, err := optionalTimeout(fn.Name(), timeout)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(fn.Receiver().(*event).wait(d)), nil
}
