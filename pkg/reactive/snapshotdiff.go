package reactive

import (
	"reflect"
	"sync"
)

// snapshotDiffBridge adapts an external "full collection snapshot" source —
// something that periodically hands over the complete current state as a
// map, rather than incremental events — into a proper incremental Set by
// diffing each snapshot against the last one it saw.
type snapshotDiffBridge[K comparable, T any] struct {
	mu   sync.Mutex
	prev map[K]mutableEntry[T]
	bc   broadcaster[T]
}

// NewSnapshotDiffBridge subscribes to an external source via subscribeSrc,
// which must call onSnapshot with the complete current state each time it
// changes (first call included), and onError at most once, terminally.
func NewSnapshotDiffBridge[K comparable, T any](subscribeSrc func(onSnapshot func(map[K]T), onError func(error))) Set[T] {
	b := &snapshotDiffBridge[K, T]{prev: make(map[K]mutableEntry[T])}
	subscribeSrc(b.onSnapshot, b.onError)
	return b
}

func (b *snapshotDiffBridge[K, T]) onSnapshot(snap map[K]T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var batch Batch[T]
	for k, item := range snap {
		if e, ok := b.prev[k]; ok {
			if reflect.DeepEqual(e.item, item) {
				continue
			}
			e.item = item
			b.prev[k] = e
			batch = append(batch, Event[T]{Op: OpUpdate, Token: e.token, Item: item})
			continue
		}
		tok := NewToken()
		b.prev[k] = mutableEntry[T]{token: tok, item: item}
		batch = append(batch, Event[T]{Op: OpAdd, Token: tok, Item: item})
	}
	for k, e := range b.prev {
		if _, ok := snap[k]; !ok {
			batch = append(batch, Event[T]{Op: OpDelete, Token: e.token, Item: e.item})
			delete(b.prev, k)
		}
	}
	b.bc.emit(batch)
}

func (b *snapshotDiffBridge[K, T]) onError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.prev) > 0 {
		batch := make(Batch[T], 0, len(b.prev))
		for k, e := range b.prev {
			batch = append(batch, Event[T]{Op: OpDelete, Token: e.token, Item: e.item})
			delete(b.prev, k)
		}
		b.bc.emit(batch)
	}
	b.bc.emitError(NewUpstreamError(err))
}

func (b *snapshotDiffBridge[K, T]) Subscribe(obs Observer[T]) Disposable {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.prev) > 0 {
		batch := make(Batch[T], 0, len(b.prev))
		for _, e := range b.prev {
			batch = append(batch, Event[T]{Op: OpAdd, Token: e.token, Item: e.item})
		}
		obs.OnNext(batch)
	}
	return b.bc.subscribe(obs)
}
