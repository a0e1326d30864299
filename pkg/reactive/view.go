package reactive

import "sync"

type viewEntry[K comparable, T any] struct {
	key  K
	item T
}

// MaterializedView is a terminal sink that keeps a queryable snapshot of a
// reactive set in sync, indexed both by token (for cheap membership checks)
// and by a caller-supplied key (for point lookups). Queries are answered
// synchronously against the last-applied batch — there is no polling and no
// staleness beyond whatever batch is currently being applied.
type MaterializedView[K comparable, T any] struct {
	mu        sync.RWMutex
	keyFn     func(T) K
	byToken   map[*Token]viewEntry[K, T]
	byKey     map[K]*Token
	sub       Disposable
	lastErr   error
	completed bool
}

// NewMaterializedView subscribes to source and keeps a live index keyed by
// keyFn(item).
func NewMaterializedView[K comparable, T any](source Set[T], keyFn func(T) K) *MaterializedView[K, T] {
	v := &MaterializedView[K, T]{
		keyFn:   keyFn,
		byToken: make(map[*Token]viewEntry[K, T]),
		byKey:   make(map[K]*Token),
	}
	v.sub = source.Subscribe(Func[T]{
		Next: v.apply,
		Error: func(err error) {
			v.mu.Lock()
			defer v.mu.Unlock()
			v.lastErr = err
		},
		Completed: func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			v.completed = true
		},
	})
	return v
}

func (v *MaterializedView[K, T]) apply(batch Batch[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, ev := range batch {
		switch ev.Op {
		case OpAdd:
			key := v.keyFn(ev.Item)
			v.byToken[ev.Token] = viewEntry[K, T]{key: key, item: ev.Item}
			v.byKey[key] = ev.Token
		case OpUpdate:
			old, ok := v.byToken[ev.Token]
			if !ok {
				continue
			}
			newKey := v.keyFn(ev.Item)
			if newKey != old.key {
				delete(v.byKey, old.key)
				v.byKey[newKey] = ev.Token
			}
			v.byToken[ev.Token] = viewEntry[K, T]{key: newKey, item: ev.Item}
		case OpDelete:
			old, ok := v.byToken[ev.Token]
			if !ok {
				continue
			}
			delete(v.byToken, ev.Token)
			if v.byKey[old.key] == ev.Token {
				delete(v.byKey, old.key)
			}
		}
	}
}

// Get returns the current item stored under key, if present.
func (v *MaterializedView[K, T]) Get(key K) (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	tok, ok := v.byKey[key]
	if !ok {
		var zero T
		return zero, false
	}
	return v.byToken[tok].item, true
}

// Len reports current membership size.
func (v *MaterializedView[K, T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.byToken)
}

// All returns a copy of the current key-to-item snapshot.
func (v *MaterializedView[K, T]) All() map[K]T {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[K]T, len(v.byKey))
	for key, tok := range v.byKey {
		out[key] = v.byToken[tok].item
	}
	return out
}

// Err returns the terminal error, if the source ever produced one.
func (v *MaterializedView[K, T]) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}

// Close disposes the underlying subscription.
func (v *MaterializedView[K, T]) Close() {
	v.sub.Dispose()
}
