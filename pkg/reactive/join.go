package reactive

import "sync"

type joinItem[T any, K comparable] struct {
	key  K
	item T
}

type joinPairKey struct {
	left  *Token
	right *Token
}

// joinSet is an incremental inner equi-join: a combined member exists for
// every (left token, right token) pair whose keys currently match, and
// disappears the instant either side stops matching (by update, delete, or
// a key change on an update).
type joinSet[L, R any, K comparable, O any] struct {
	mu sync.Mutex

	leftKeyFn  func(L) K
	rightKeyFn func(R) K
	combine    func(L, R) O

	leftItems  map[*Token]joinItem[L, K]
	rightItems map[*Token]joinItem[R, K]

	leftBuckets  map[K]map[*Token]struct{}
	rightBuckets map[K]map[*Token]struct{}

	pairs   map[joinPairKey]*Token
	outputs map[*Token]O

	bc                 broadcaster[O]
	leftSub, rightSub  Disposable
}

// Join returns the incremental inner join of left and right on the keys
// produced by leftKey/rightKey, combining each matching pair with combine.
func Join[L, R any, K comparable, O any](
	left Set[L], right Set[R],
	leftKey func(L) K, rightKey func(R) K,
	combine func(L, R) O,
) Set[O] {
	j := &joinSet[L, R, K, O]{
		leftKeyFn:    leftKey,
		rightKeyFn:   rightKey,
		combine:      combine,
		leftItems:    make(map[*Token]joinItem[L, K]),
		rightItems:   make(map[*Token]joinItem[R, K]),
		leftBuckets:  make(map[K]map[*Token]struct{}),
		rightBuckets: make(map[K]map[*Token]struct{}),
		pairs:        make(map[joinPairKey]*Token),
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

func (j *joinSet[L, R, K, O]) emitAdd(out *Batch[O], lTok, rTok *Token, l L, r R) {
	outTok := NewToken()
	j.pairs[joinPairKey{lTok, rTok}] = outTok
	combined := j.combine(l, r)
	j.outputs[outTok] = combined
	*out = append(*out, Event[O]{Op: OpAdd, Token: outTok, Item: combined})
}

func (j *joinSet[L, R, K, O]) emitUpdate(out *Batch[O], lTok, rTok *Token, l L, r R) {
	outTok, ok := j.pairs[joinPairKey{lTok, rTok}]
	if !ok {
		return
	}
	combined := j.combine(l, r)
	j.outputs[outTok] = combined
	*out = append(*out, Event[O]{Op: OpUpdate, Token: outTok, Item: combined})
}

func (j *joinSet[L, R, K, O]) emitDelete(out *Batch[O], lTok, rTok *Token) {
	pk := joinPairKey{lTok, rTok}
	outTok, ok := j.pairs[pk]
	if !ok {
		return
	}
	delete(j.pairs, pk)
	last := j.outputs[outTok]
	delete(j.outputs, outTok)
	*out = append(*out, Event[O]{Op: OpDelete, Token: outTok, Item: last})
}

func (j *joinSet[L, R, K, O]) onLeftNext(batch Batch[L]) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out Batch[O]
	for _, ev := range batch {
		switch ev.Op {
		case OpAdd:
			key := j.leftKeyFn(ev.Item)
			j.leftItems[ev.Token] = joinItem[L, K]{key: key, item: ev.Item}
			addToBucket(j.leftBuckets, key, ev.Token)
			for rTok := range j.rightBuckets[key] {
				j.emitAdd(&out, ev.Token, rTok, ev.Item, j.rightItems[rTok].item)
			}
		case OpUpdate:
			old := j.leftItems[ev.Token]
			newKey := j.leftKeyFn(ev.Item)
			if newKey != old.key {
				for rTok := range j.rightBuckets[old.key] {
					j.emitDelete(&out, ev.Token, rTok)
				}
				removeFromBucket(j.leftBuckets, old.key, ev.Token)
				j.leftItems[ev.Token] = joinItem[L, K]{key: newKey, item: ev.Item}
				addToBucket(j.leftBuckets, newKey, ev.Token)
				for rTok := range j.rightBuckets[newKey] {
					j.emitAdd(&out, ev.Token, rTok, ev.Item, j.rightItems[rTok].item)
				}
			} else {
				j.leftItems[ev.Token] = joinItem[L, K]{key: old.key, item: ev.Item}
				for rTok := range j.rightBuckets[old.key] {
					j.emitUpdate(&out, ev.Token, rTok, ev.Item, j.rightItems[rTok].item)
				}
			}
		case OpDelete:
			old := j.leftItems[ev.Token]
			for rTok := range j.rightBuckets[old.key] {
				j.emitDelete(&out, ev.Token, rTok)
			}
			removeFromBucket(j.leftBuckets, old.key, ev.Token)
			delete(j.leftItems, ev.Token)
		}
	}
	if len(out) > 0 {
		j.bc.emit(out)
	}
}

func (j *joinSet[L, R, K, O]) onRightNext(batch Batch[R]) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out Batch[O]
	for _, ev := range batch {
		switch ev.Op {
		case OpAdd:
			key := j.rightKeyFn(ev.Item)
			j.rightItems[ev.Token] = joinItem[R, K]{key: key, item: ev.Item}
			addToBucket(j.rightBuckets, key, ev.Token)
			for lTok := range j.leftBuckets[key] {
				j.emitAdd(&out, lTok, ev.Token, j.leftItems[lTok].item, ev.Item)
			}
		case OpUpdate:
			old := j.rightItems[ev.Token]
			newKey := j.rightKeyFn(ev.Item)
			if newKey != old.key {
				for lTok := range j.leftBuckets[old.key] {
					j.emitDelete(&out, lTok, ev.Token)
				}
				removeFromBucket(j.rightBuckets, old.key, ev.Token)
				j.rightItems[ev.Token] = joinItem[R, K]{key: newKey, item: ev.Item}
				addToBucket(j.rightBuckets, newKey, ev.Token)
				for lTok := range j.leftBuckets[newKey] {
					j.emitAdd(&out, lTok, ev.Token, j.leftItems[lTok].item, ev.Item)
				}
			} else {
				j.rightItems[ev.Token] = joinItem[R, K]{key: old.key, item: ev.Item}
				for lTok := range j.leftBuckets[old.key] {
					j.emitUpdate(&out, lTok, ev.Token, j.leftItems[lTok].item, ev.Item)
				}
			}
		case OpDelete:
			old := j.rightItems[ev.Token]
			for lTok := range j.leftBuckets[old.key] {
				j.emitDelete(&out, lTok, ev.Token)
			}
			removeFromBucket(j.rightBuckets, old.key, ev.Token)
			delete(j.rightItems, ev.Token)
		}
	}
	if len(out) > 0 {
		j.bc.emit(out)
	}
}

func (j *joinSet[L, R, K, O]) onLeftError(err error) {
	j.mu.Lock()
	j.deleteAllLocked()
	j.mu.Unlock()
	j.bc.emitError(NewUpstreamError(err))
	j.rightSub.Dispose()
}

func (j *joinSet[L, R, K, O]) onRightError(err error) {
	j.mu.Lock()
	j.deleteAllLocked()
	j.mu.Unlock()
	j.bc.emitError(NewUpstreamError(err))
	j.leftSub.Dispose()
}

// deleteAllLocked emits a Delete for every currently live output pair. It
// must be called with j.mu held.
func (j *joinSet[L, R, K, O]) deleteAllLocked() {
	if len(j.outputs) == 0 {
		return
	}
	batch := make(Batch[O], 0, len(j.outputs))
	for tok, item := range j.outputs {
		batch = append(batch, Event[O]{Op: OpDelete, Token: tok, Item: item})
	}
	j.outputs = make(map[*Token]O)
	j.pairs = make(map[joinPairKey]*Token)
	j.bc.emit(batch)
}

func (j *joinSet[L, R, K, O]) onCompleted() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.bc.emitCompleted()
}

func (j *joinSet[L, R, K, O]) Subscribe(obs Observer[O]) Disposable {
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

func addToBucket[K comparable](buckets map[K]map[*Token]struct{}, key K, tok *Token) {
	b, ok := buckets[key]
	if !ok {
		b = make(map[*Token]struct{})
		buckets[key] = b
	}
	b[tok] = struct{}{}
}

func removeFromBucket[K comparable](buckets map[K]map[*Token]struct{}, key K, tok *Token) {
	b, ok := buckets[key]
	if !ok {
		return
	}
	delete(b, tok)
	if len(b) == 0 {
		delete(buckets, key)
	}
}
