package flux

import (
	"fmt"
	"sync"

	"go.starlark.net/starlark"
)

// chunkedIterable groups the elements of a source into lists of at most size
// elements. It pulls from the source only as chunks are consumed and can be
// traversed once: every Iterate call continues where the previous one
// stopped, and once the source is exhausted iteration yields nothing.
type chunkedIterable struct {
	mu     sync.Mutex
	size   int
	source starlark.Value
	iter   starlark.Iterator
	runes  []rune
	done   bool
}

var _ starlark.Iterable = (*chunkedIterable)(nil)

func newChunkedIterable(source starlark.Value, size int) (*chunkedIterable, error) {
	c := &chunkedIterable{size: size, source: source}
	switch v := source.(type) {
	case starlark.String:
		c.runes = []rune(string(v))
	case starlark.Iterable:
	default:
		return nil, newError(KindType, "'%s' object is not iterable", source.Type())
	}
	if size < 1 {
		c.done = true
	}
	return c, nil
}

func (c *chunkedIterable) String() string        { return fmt.Sprintf("<chunked_iterable size=%d>", c.size) }
func (c *chunkedIterable) Type() string          { return "chunked_iterable" }
func (c *chunkedIterable) Freeze()               {}
func (c *chunkedIterable) Truth() starlark.Bool  { return starlark.True }
func (c *chunkedIterable) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", c.Type()) }

func (c *chunkedIterable) Iterate() starlark.Iterator {
	return &chunkedIterator{owner: c}
}

// pull returns the next element of the source.
func (c *chunkedIterable) pull() (starlark.Value, bool) {
	if isString(c.source) {
		if len(c.runes) == 0 {
			return nil, false
		}
		r := c.runes[0]
		c.runes = c.runes[1:]
		return starlark.String(string(r)), true
	}
	if c.iter == nil {
		c.iter = c.source.(starlark.Iterable).Iterate()
	}
	var v starlark.Value
	if !c.iter.Next(&v) {
		return nil, false
	}
	return v, true
}

// next builds the next chunk. It releases the source once it runs dry.
func (c *chunkedIterable) next() (*starlark.List, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil, false
	}
	chunk := make([]starlark.Value, 0, c.size)
	for len(chunk) < c.size {
		v, ok := c.pull()
		if !ok {
			c.finish()
			break
		}
		chunk = append(chunk, v)
	}
	if len(chunk) == 0 {
		return nil, false
	}
	return starlark.NewList(chunk), true
}

func (c *chunkedIterable) finish() {
	c.done = true
	if c.iter != nil {
		c.iter.Done()
		c.iter = nil
	}
}

func isString(v starlark.Value) bool {
	_, ok := v.(starlark.String)
	return ok
}

type chunkedIterator struct {
	owner *chunkedIterable
}

func (it *chunkedIterator) Next(p *starlark.Value) bool {
	chunk, ok := it.owner.next()
	if !ok {
		return false
	}
	*p = chunk
	return true
}

func (it *chunkedIterator) Done() {}
