package reactive

import "sync"

// filterSet re-admits a parent's events through a predicate. It must track,
// per token, whether that token is currently admitted: an Update that flips
// a token from non-admitted to admitted becomes an Add downstream; one that
// flips the other way becomes a Delete; one that changes the item but not
// the admission verdict passes through as an Update; and an Update that
// leaves a non-admitted token non-admitted, or a Delete for a token that is
// not admitted, is simply swallowed.
type filterSet[T any] struct {
	mu        sync.Mutex
	pred      func(T) bool
	admitted  map[*Token]T
	bc        broadcaster[T]
	parentSub Disposable
}

// Filter returns a Set containing exactly the members of parent for which
// pred returns true, kept live as parent changes.
func Filter[T any](parent Set[T], pred func(T) bool) Set[T] {
	f := &filterSet[T]{pred: pred, admitted: make(map[*Token]T)}
	f.parentSub = parent.Subscribe(Func[T]{
		Next:      f.onParentNext,
		Error:     f.onParentError,
		Completed: f.onParentCompleted,
	})
	return f
}

func (f *filterSet[T]) onParentNext(batch Batch[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out Batch[T]
	for _, ev := range batch {
		_, wasAdmitted := f.admitted[ev.Token]
		switch ev.Op {
		case OpDelete:
			if wasAdmitted {
				delete(f.admitted, ev.Token)
				out = append(out, ev)
			}
		case OpAdd, OpUpdate:
			nowAdmitted := f.pred(ev.Item)
			switch {
			case nowAdmitted && !wasAdmitted:
				f.admitted[ev.Token] = ev.Item
				out = append(out, Event[T]{Op: OpAdd, Token: ev.Token, Item: ev.Item})
			case !nowAdmitted && wasAdmitted:
				delete(f.admitted, ev.Token)
				out = append(out, Event[T]{Op: OpDelete, Token: ev.Token, Item: ev.Item})
			case nowAdmitted && wasAdmitted && ev.Op == OpUpdate:
				f.admitted[ev.Token] = ev.Item
				out = append(out, ev)
			}
		}
	}
	if len(out) > 0 {
		f.bc.emit(out)
	}
}

func (f *filterSet[T]) onParentError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.admitted) > 0 {
		batch := make(Batch[T], 0, len(f.admitted))
		for tok, item := range f.admitted {
			batch = append(batch, Event[T]{Op: OpDelete, Token: tok, Item: item})
			delete(f.admitted, tok)
		}
		f.bc.emit(batch)
	}
	f.bc.emitError(NewUpstreamError(err))
}

func (f *filterSet[T]) onParentCompleted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bc.emitCompleted()
}

func (f *filterSet[T]) Subscribe(obs Observer[T]) Disposable {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.admitted) > 0 {
		batch := make(Batch[T], 0, len(f.admitted))
		for tok, item := range f.admitted {
			batch = append(batch, Event[T]{Op: OpAdd, Token: tok, Item: item})
		}
		obs.OnNext(batch)
	}
	return f.bc.subscribe(obs)
}
