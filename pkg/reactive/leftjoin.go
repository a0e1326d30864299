package reactive

import "sync"

// leftJoinState tracks one left token's current output shape: a primary
// output (present for every live left token, paired with one matching right
// token, or with nil if there is currently no match at all) plus one extra
// output per additional match beyond the primary.
//
// When a left token goes from unmatched to matched, its primary output token
// is kept and receives an Update, not a Delete-then-Add, so a downstream
// materialized view never observes a left row vanish and reappear just
// because a right match showed up. When it loses its last match, the
// primary output token is deleted and a freshly minted null-right token is
// added in its place. When the left item's key changes, every output it
// holds is deleted and its matches are re-evaluated under fresh tokens.
type leftJoinState[R any] struct {
	primaryOutput *Token
	primaryRight  *Token // nil means currently unmatched
	extras        map[*Token]*Token
}

type leftJoinSet[L, R any, K comparable, O any] struct {
	mu sync.Mutex

	leftKeyFn  func(L) K
	rightKeyFn func(R) K
	combine    func(L, *R) O

	leftItems  map[*Token]joinItem[L, K]
	rightItems map[*Token]joinItem[R, K]

	leftBuckets  map[K]map[*Token]struct{}
	rightBuckets map[K]map[*Token]struct{}

	states  map[*Token]*leftJoinState[R]
	outputs map[*Token]O

	bc                broadcaster[O]
	leftSub, rightSub Disposable
}

// LeftJoin returns the incremental left join of left and right: every left
// member produces at least one output, paired with combine(l, &r) for each
// currently matching right member, or combine(l, nil) if none match.
func LeftJoin[L, R any, K comparable, O any](
	left Set[L], right Set[R],
	leftKey func(L) K, rightKey func(R) K,
	combine func(L, *R) O,
) Set[O] {
	j := &leftJoinSet[L, R, K, O]{
		leftKeyFn:    leftKey,
		rightKeyFn:   rightKey,
		combine:      combine,
		leftItems:    make(map[*Token]joinItem[L, K]),
		rightItems:   make(map[*Token]joinItem[R, K]),
		leftBuckets:  make(map[K]map[*Token]struct{}),
		rightBuckets: make(map[K]map[*Token]struct{}),
		states:       make(map[*Token]*leftJoinState[R]),
		outputs:      make(map[*Token]O),
	}
	j.leftSub = left.Subscribe(Func[L]{
		Next:      j.onLeftNext,
		Error:     j.onLeftError,
		Completed: j.onCompleted,
	})
	j.rightSub = right.Subscribe(Func[R]{
		Next:      j.onRightNext,
		Error:     j.onRightError,
		Completed: j.onCompleted,
	})
	return j
}

// recompute brings lTok's output shape in line with the current contents of
// j.rightBuckets[key], diffing against its previous state and appending the
// resulting events to out.
func (j *leftJoinSet[L, R, K, O]) recompute(out *Batch[O], lTok *Token, item L, key K) {
	st, isNew := j.states[lTok], false
	if st == nil {
		st = &leftJoinState[R]{primaryOutput: NewToken(), extras: make(map[*Token]*Token)}
		j.states[lTok] = st
		isNew = true
	}

	matches := j.rightBuckets[key]

	wasMatched := st.primaryRight != nil
	var primaryR *Token
	if st.primaryRight != nil {
		if _, still := matches[st.primaryRight]; still {
			primaryR = st.primaryRight
		}
	}
	if primaryR == nil {
		for r := range matches {
			primaryR = r
			break
		}
	}

	switch {
	case wasMatched && primaryR == nil:
		// Lost its last right match: the old pair token is retired, not
		// reassigned — a fresh null-right token takes its place so a
		// client tracking tokens sees the required Delete-then-Add.
		last := j.outputs[st.primaryOutput]
		delete(j.outputs, st.primaryOutput)
		*out = append(*out, Event[O]{Op: OpDelete, Token: st.primaryOutput, Item: last})

		st.primaryOutput = NewToken()
		combined := j.combine(item, nil)
		j.outputs[st.primaryOutput] = combined
		*out = append(*out, Event[O]{Op: OpAdd, Token: st.primaryOutput, Item: combined})
		st.primaryRight = nil
	default:
		var combined O
		if primaryR != nil {
			ri := j.rightItems[primaryR].item
			combined = j.combine(item, &ri)
		} else {
			combined = j.combine(item, nil)
		}
		j.outputs[st.primaryOutput] = combined
		if isNew {
			*out = append(*out, Event[O]{Op: OpAdd, Token: st.primaryOutput, Item: combined})
		} else {
			*out = append(*out, Event[O]{Op: OpUpdate, Token: st.primaryOutput, Item: combined})
		}
		st.primaryRight = primaryR
	}

	for rTok, outTok := range st.extras {
		if rTok == primaryR {
			// Promoted from extra to primary: its standalone output is
			// retired, folded into the primary representation above.
			delete(st.extras, rTok)
			last := j.outputs[outTok]
			delete(j.outputs, outTok)
			*out = append(*out, Event[O]{Op: OpDelete, Token: outTok, Item: last})
			continue
		}
		if _, still := matches[rTok]; !still {
			delete(st.extras, rTok)
			last := j.outputs[outTok]
			delete(j.outputs, outTok)
			*out = append(*out, Event[O]{Op: OpDelete, Token: outTok, Item: last})
		}
	}

	for rTok := range matches {
		if rTok == primaryR {
			continue
		}
		ri := j.rightItems[rTok].item
		combined := j.combine(item, &ri)
		if outTok, ok := st.extras[rTok]; ok {
			j.outputs[outTok] = combined
			*out = append(*out, Event[O]{Op: OpUpdate, Token: outTok, Item: combined})
		} else {
			outTok := NewToken()
			st.extras[rTok] = outTok
			j.outputs[outTok] = combined
			*out = append(*out, Event[O]{Op: OpAdd, Token: outTok, Item: combined})
		}
	}
}

func (j *leftJoinSet[L, R, K, O]) teardown(out *Batch[O], lTok *Token) {
	st := j.states[lTok]
	if st == nil {
		return
	}
	for _, outTok := range st.extras {
		last := j.outputs[outTok]
		delete(j.outputs, outTok)
		*out = append(*out, Event[O]{Op: OpDelete, Token: outTok, Item: last})
	}
	last := j.outputs[st.primaryOutput]
	delete(j.outputs, st.primaryOutput)
	*out = append(*out, Event[O]{Op: OpDelete, Token: st.primaryOutput, Item: last})
	delete(j.states, lTok)
}

func (j *leftJoinSet[L, R, K, O]) onLeftNext(batch Batch[L]) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out Batch[O]
	for _, ev := range batch {
		switch ev.Op {
		case OpAdd:
			key := j.leftKeyFn(ev.Item)
			j.leftItems[ev.Token] = joinItem[L, K]{key: key, item: ev.Item}
			addToBucket(j.leftBuckets, key, ev.Token)
			j.recompute(&out, ev.Token, ev.Item, key)
		case OpUpdate:
			old := j.leftItems[ev.Token]
			newKey := j.leftKeyFn(ev.Item)
			if newKey != old.key {
				removeFromBucket(j.leftBuckets, old.key, ev.Token)
				addToBucket(j.leftBuckets, newKey, ev.Token)
				j.teardown(&out, ev.Token)
			}
			j.leftItems[ev.Token] = joinItem[L, K]{key: newKey, item: ev.Item}
			j.recompute(&out, ev.Token, ev.Item, newKey)
		case OpDelete:
			old := j.leftItems[ev.Token]
			removeFromBucket(j.leftBuckets, old.key, ev.Token)
			delete(j.leftItems, ev.Token)
			j.teardown(&out, ev.Token)
		}
	}
	if len(out) > 0 {
		j.bc.emit(out)
	}
}

func (j *leftJoinSet[L, R, K, O]) onRightNext(batch Batch[R]) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out Batch[O]
	affected := make(map[*Token]struct{})

	for _, ev := range batch {
		switch ev.Op {
		case OpAdd:
			key := j.rightKeyFn(ev.Item)
			j.rightItems[ev.Token] = joinItem[R, K]{key: key, item: ev.Item}
			addToBucket(j.rightBuckets, key, ev.Token)
			for lTok := range j.leftBuckets[key] {
				affected[lTok] = struct{}{}
			}
		case OpUpdate:
			old := j.rightItems[ev.Token]
			newKey := j.rightKeyFn(ev.Item)
			j.rightItems[ev.Token] = joinItem[R, K]{key: newKey, item: ev.Item}
			if newKey != old.key {
				removeFromBucket(j.rightBuckets, old.key, ev.Token)
				addToBucket(j.rightBuckets, newKey, ev.Token)
				for lTok := range j.leftBuckets[old.key] {
					affected[lTok] = struct{}{}
				}
			}
			for lTok := range j.leftBuckets[newKey] {
				affected[lTok] = struct{}{}
			}
		case OpDelete:
			old := j.rightItems[ev.Token]
			removeFromBucket(j.rightBuckets, old.key, ev.Token)
			delete(j.rightItems, ev.Token)
			for lTok := range j.leftBuckets[old.key] {
				affected[lTok] = struct{}{}
			}
		}
	}

	for lTok := range affected {
		li := j.leftItems[lTok]
		j.recompute(&out, lTok, li.item, li.key)
	}
	if len(out) > 0 {
		j.bc.emit(out)
	}
}

func (j *leftJoinSet[L, R, K, O]) onLeftError(err error) {
	j.mu.Lock()
	j.deleteAllLocked()
	j.mu.Unlock()
	j.bc.emitError(NewUpstreamError(err))
	j.rightSub.Dispose()
}

func (j *leftJoinSet[L, R, K, O]) onRightError(err error) {
	j.mu.Lock()
	j.deleteAllLocked()
	j.mu.Unlock()
	j.bc.emitError(NewUpstreamError(err))
	j.leftSub.Dispose()
}

// deleteAllLocked emits a Delete for every currently live output. It must
// be called with j.mu held.
func (j *leftJoinSet[L, R, K, O]) deleteAllLocked() {
	if len(j.outputs) == 0 {
		return
	}
	batch := make(Batch[O], 0, len(j.outputs))
	for tok, item := range j.outputs {
		batch = append(batch, Event[O]{Op: OpDelete, Token: tok, Item: item})
	}
	j.outputs = make(map[*Token]O)
	j.states = make(map[*Token]*leftJoinState[R])
	j.bc.emit(batch)
}

func (j *leftJoinSet[L, R, K, O]) onCompleted() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.bc.emitCompleted()
}

func (j *leftJoinSet[L, R, K, O]) Subscribe(obs Observer[O]) Disposable {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.outputs) > 0 {
		batch := make(Batch[O], 0, len(j.outputs))
		for tok, item := range j.outputs {
			batch = append(batch, Event[O]{Op: OpAdd, Token: tok, Item: item})
		}
		obs.OnNext(batch)
	}
	return j.bc.subscribe(obs)
}
