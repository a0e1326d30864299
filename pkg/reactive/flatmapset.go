package reactive

import "sync"

// flatMapState tracks one parent token's current child subscription: the
// child set itself (obtained by calling project on the parent's item), the
// tokens it has forwarded downstream so far, and their last-known items (so
// a teardown can emit correct Delete events).
type flatMapState[U any] struct {
	sub     Disposable
	tracked map[*Token]struct{}
	items   map[*Token]U
}

// flatMapSet projects every member of a parent set into its own child
// reactive set (project) and flattens all children into one output set.
// When a parent member updates, its old child subscription is torn down —
// emitting a Delete for everything it had contributed — and project is
// called again on the new item, with the new child's initial replay
// appearing as fresh Add events; this is the "diff via resubscribe" used
// throughout the package rather than tracking a value-level diff between
// the two child sets, since a child set is an opaque Set[U], not a value
// this package can compare structurally.
type flatMapSet[T, U any] struct {
	mu sync.Mutex

	project func(T) Set[U]
	states  map[*Token]*flatMapState[U]

	bc        broadcaster[U]
	parentSub Disposable
}

// FlatMapSet returns the flattening of project(item) over every member of
// parent, kept live as parent changes and as each child changes.
func FlatMapSet[T, U any](parent Set[T], project func(T) Set[U]) Set[U] {
	f := &flatMapSet[T, U]{
		project: project,
		states:  make(map[*Token]*flatMapState[U]),
	}
	f.parentSub = parent.Subscribe(Func[T]{
		Next:      f.onParentNext,
		Error:     f.onParentError,
		Completed: f.onParentCompleted,
	})
	return f
}

// teardown must be called with f.mu held. It disposes tok's child
// subscription (if any) and appends a Delete for everything it forwarded.
func (f *flatMapSet[T, U]) teardown(out *Batch[U], tok *Token) *flatMapState[U] {
	st, ok := f.states[tok]
	if !ok {
		return nil
	}
	if st.sub != nil {
		st.sub.Dispose()
	}
	for childTok := range st.tracked {
		*out = append(*out, Event[U]{Op: OpDelete, Token: childTok, Item: st.items[childTok]})
	}
	return st
}

func (f *flatMapSet[T, U]) onParentNext(batch Batch[T]) {
	f.mu.Lock()

	var out Batch[U]
	var toSubscribe []*Token
	pending := make(map[*Token]T, len(batch))

	for _, ev := range batch {
		switch ev.Op {
		case OpAdd:
			f.states[ev.Token] = &flatMapState[U]{tracked: make(map[*Token]struct{}), items: make(map[*Token]U)}
			toSubscribe = append(toSubscribe, ev.Token)
			pending[ev.Token] = ev.Item
		case OpUpdate:
			f.teardown(&out, ev.Token)
			f.states[ev.Token] = &flatMapState[U]{tracked: make(map[*Token]struct{}), items: make(map[*Token]U)}
			toSubscribe = append(toSubscribe, ev.Token)
			pending[ev.Token] = ev.Item
		case OpDelete:
			f.teardown(&out, ev.Token)
			delete(f.states, ev.Token)
		}
	}
	if len(out) > 0 {
		f.bc.emit(out)
	}
	f.mu.Unlock()

	// Child subscription happens outside f.mu: Subscribe may synchronously
	// replay the child's current members via onChildNext, which itself
	// needs f.mu — Go's sync.Mutex is not re-entrant, so holding it across
	// this call would deadlock.
	for _, tok := range toSubscribe {
		item := pending[tok]
		child := f.project(item)
		parentTok := tok
		sub := child.Subscribe(Func[U]{
			Next:      func(b Batch[U]) { f.onChildNext(parentTok, b) },
			Error:     func(err error) { f.onChildError(err) },
			Completed: func() {},
		})
		f.mu.Lock()
		if st, ok := f.states[parentTok]; ok {
			st.sub = sub
		} else {
			sub.Dispose()
		}
		f.mu.Unlock()
	}
}

func (f *flatMapSet[T, U]) onChildNext(parentTok *Token, batch Batch[U]) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.states[parentTok]
	if !ok {
		return
	}
	for _, ev := range batch {
		if ev.Op == OpDelete {
			delete(st.tracked, ev.Token)
			delete(st.items, ev.Token)
		} else {
			st.tracked[ev.Token] = struct{}{}
			st.items[ev.Token] = ev.Item
		}
	}
	f.bc.emit(batch)
}

// onChildError tears down every parent's child and propagates a single
// upstream error: one misbehaving child poisons the whole flattened set,
// since there is no per-child error channel in the output.
func (f *flatMapSet[T, U]) onChildError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out Batch[U]
	for tok, st := range f.states {
		if st.sub != nil {
			st.sub.Dispose()
		}
		for childTok := range st.tracked {
			out = append(out, Event[U]{Op: OpDelete, Token: childTok, Item: st.items[childTok]})
		}
		delete(f.states, tok)
	}
	if len(out) > 0 {
		f.bc.emit(out)
	}
	f.bc.emitError(NewUpstreamError(err))
}

func (f *flatMapSet[T, U]) onParentError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out Batch[U]
	for tok, st := range f.states {
		if st.sub != nil {
			st.sub.Dispose()
		}
		for childTok := range st.tracked {
			out = append(out, Event[U]{Op: OpDelete, Token: childTok, Item: st.items[childTok]})
		}
		delete(f.states, tok)
	}
	if len(out) > 0 {
		f.bc.emit(out)
	}
	f.bc.emitError(NewUpstreamError(err))
}

func (f *flatMapSet[T, U]) onParentCompleted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bc.emitCompleted()
}

func (f *flatMapSet[T, U]) Subscribe(obs Observer[U]) Disposable {
	f.mu.Lock()
	defer f.mu.Unlock()

	var batch Batch[U]
	for _, st := range f.states {
		for tok, item := range st.items {
			batch = append(batch, Event[U]{Op: OpAdd, Token: tok, Item: item})
		}
	}
	if len(batch) > 0 {
		obs.OnNext(batch)
	}
	return f.bc.subscribe(obs)
}
