package reactive

import "sync"

// SnapshotSink is a live sink that mirrors a source's current membership as
// a plain slice. Unlike a one-shot read, it stays subscribed for its whole
// lifetime: every batch updates its state, so Items always reflects the
// most recently observed membership, not just the state at construction.
type SnapshotSink[T any] struct {
	mu    sync.RWMutex
	order []*Token
	items map[*Token]T
	sub   Disposable
}

// Snapshot subscribes to source and maintains its current membership live,
// per §4.15: a caller that wants a single point-in-time read can call
// Items() once and then Close(), but the sink keeps observing until closed.
func Snapshot[T any](source Set[T]) *SnapshotSink[T] {
	s := &SnapshotSink[T]{items: make(map[*Token]T)}
	s.sub = source.Subscribe(Func[T]{Next: s.apply})
	return s
}

func (s *SnapshotSink[T]) apply(batch Batch[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range batch {
		switch ev.Op {
		case OpAdd:
			if _, ok := s.items[ev.Token]; !ok {
				s.order = append(s.order, ev.Token)
			}
			s.items[ev.Token] = ev.Item
		case OpUpdate:
			s.items[ev.Token] = ev.Item
		case OpDelete:
			if _, ok := s.items[ev.Token]; ok {
				delete(s.items, ev.Token)
				for i, tok := range s.order {
					if tok == ev.Token {
						s.order = append(s.order[:i], s.order[i+1:]...)
						break
					}
				}
			}
		}
	}
}

// Items returns the current member collection.
func (s *SnapshotSink[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.order))
	for _, tok := range s.order {
		out = append(out, s.items[tok])
	}
	return out
}

// Close disposes the underlying subscription.
func (s *SnapshotSink[T]) Close() {
	s.sub.Dispose()
}

// CountSink is a terminal sink that tracks a live member count without
// holding on to the members themselves — useful for a cheap "how many"
// query over a set too large to materialize in full.
type CountSink[T any] struct {
	mu    sync.RWMutex
	count int
	live  map[*Token]struct{}
	sub   Disposable
}

// NewCountSink subscribes to source and keeps a live count of it.
func NewCountSink[T any](source Set[T]) *CountSink[T] {
	c := &CountSink[T]{live: make(map[*Token]struct{})}
	c.sub = source.Subscribe(Func[T]{Next: c.apply})
	return c
}

func (c *CountSink[T]) apply(batch Batch[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ev := range batch {
		switch ev.Op {
		case OpAdd:
			if _, ok := c.live[ev.Token]; !ok {
				c.live[ev.Token] = struct{}{}
				c.count++
			}
		case OpDelete:
			if _, ok := c.live[ev.Token]; ok {
				delete(c.live, ev.Token)
				c.count--
			}
		}
	}
}

// Count returns the current live member count.
func (c *CountSink[T]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// Close disposes the underlying subscription.
func (c *CountSink[T]) Close() {
	c.sub.Dispose()
}
