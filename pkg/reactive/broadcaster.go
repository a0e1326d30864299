package reactive

import "sync"

// broadcaster is the subscriber-list helper shared by every source and
// operator in this package. It is not itself a Set: the owning node is
// responsible for replaying current membership to a new subscriber before
// handing it to broadcaster.subscribe, and for holding its own mutex across
// the whole mutate-then-emit cascade (SPEC_FULL.md §5). broadcaster only
// solves the narrower problem of a subscriber being added while a batch is
// mid-dispatch: such a subscriber is queued and only starts receiving after
// the current emit call returns, so it never sees a batch twice or out of
// order relative to its own replay.
type broadcaster[T any] struct {
	mu          sync.Mutex
	nextID      uint64
	observers   []subscriberEntry[T]
	pending     []subscriberEntry[T]
	dispatching bool
	done        bool
}

type subscriberEntry[T any] struct {
	id  uint64
	obs Observer[T]
}

func (b *broadcaster[T]) subscribe(obs Observer[T]) Disposable {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return DisposeFunc(func() {})
	}

	id := b.nextID
	b.nextID++
	entry := subscriberEntry[T]{id: id, obs: obs}
	if b.dispatching {
		b.pending = append(b.pending, entry)
	} else {
		b.observers = append(b.observers, entry)
	}

	return DisposeFunc(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.observers = removeEntry(b.observers, id)
		b.pending = removeEntry(b.pending, id)
	})
}

func removeEntry[T any](entries []subscriberEntry[T], id uint64) []subscriberEntry[T] {
	for i, e := range entries {
		if e.id == id {
			out := make([]subscriberEntry[T], 0, len(entries)-1)
			out = append(out, entries[:i]...)
			out = append(out, entries[i+1:]...)
			return out
		}
	}
	return entries
}

// emit delivers batch to every current subscriber. Subscribers added during
// this call are deferred to the pending list and flushed once dispatch
// completes, per the type's re-entrant-subscription contract.
func (b *broadcaster[T]) emit(batch Batch[T]) {
	if len(batch) == 0 {
		return
	}

	b.mu.Lock()
	b.dispatching = true
	snapshot := append([]subscriberEntry[T](nil), b.observers...)
	b.mu.Unlock()

	for _, e := range snapshot {
		e.obs.OnNext(batch)
	}

	b.mu.Lock()
	b.observers = append(b.observers, b.pending...)
	b.pending = nil
	b.dispatching = false
	b.mu.Unlock()
}

// emitError notifies every current subscriber of a terminal error and marks
// the broadcaster done: no further batches or subscribers are accepted.
func (b *broadcaster[T]) emitError(err error) {
	b.mu.Lock()
	b.dispatching = true
	snapshot := append([]subscriberEntry[T](nil), b.observers...)
	b.mu.Unlock()

	for _, e := range snapshot {
		e.obs.OnError(err)
	}

	b.mu.Lock()
	b.observers = nil
	b.pending = nil
	b.dispatching = false
	b.done = true
	b.mu.Unlock()
}

// emitCompleted notifies every current subscriber of clean completion and
// marks the broadcaster done.
func (b *broadcaster[T]) emitCompleted() {
	b.mu.Lock()
	b.dispatching = true
	snapshot := append([]subscriberEntry[T](nil), b.observers...)
	b.mu.Unlock()

	for _, e := range snapshot {
		e.obs.OnCompleted()
	}

	b.mu.Lock()
	b.observers = nil
	b.pending = nil
	b.dispatching = false
	b.done = true
	b.mu.Unlock()
}
