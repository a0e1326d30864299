package reactive

import "sync"

// MemberSource is one external, independently-lived value stream fed into a
// multi-value bridge: the source calls onValue for every value it produces
// (first call included), then at most one of onError or onCompleted,
// terminally.
type MemberSource[T any] interface {
	Watch(onValue func(T), onError func(error), onCompleted func())
}

// multiValueBridge adapts an external "stream of streams" (something that
// hands over a fresh MemberSource whenever a new logical member appears, the
// way a directory watcher hands over a new file handle per file) into one
// Set multiplexing every live member. Each member gets its own token for its
// own lifetime, independent of every other member's.
type multiValueBridge[T any] struct {
	mu      sync.Mutex
	members map[uint64]*multiMember[T]
	nextID  uint64
	done    bool
	bc      broadcaster[T]
}

type multiMember[T any] struct {
	token *Token
	item  T
	has   bool
}

// NewMultiValueBridge subscribes to an external source via subscribeSrc,
// which must call onMember once per new logical member, and at most one of
// onOuterError or onOuterCompleted terminally for the stream-of-streams
// itself (distinct from any one member's own error or completion).
func NewMultiValueBridge[T any](subscribeSrc func(onMember func(MemberSource[T]), onOuterError func(error), onOuterCompleted func())) Set[T] {
	b := &multiValueBridge[T]{members: make(map[uint64]*multiMember[T])}
	subscribeSrc(b.addMember, b.onOuterError, b.onOuterCompleted)
	return b
}

func (b *multiValueBridge[T]) addMember(src MemberSource[T]) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return
	}
	id := b.nextID
	b.nextID++
	m := &multiMember[T]{}
	b.members[id] = m
	b.mu.Unlock()

	src.Watch(
		func(v T) { b.onValue(id, m, v) },
		func(err error) { b.onTerminal(id, m) },
		func() { b.onTerminal(id, m) },
	)
}

func (b *multiValueBridge[T]) onValue(id uint64, m *multiMember[T], v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, live := b.members[id]; !live {
		return
	}
	if !m.has {
		m.token = NewToken()
		m.has = true
		m.item = v
		b.bc.emit(Batch[T]{{Op: OpAdd, Token: m.token, Item: v}})
		return
	}
	m.item = v
	b.bc.emit(Batch[T]{{Op: OpUpdate, Token: m.token, Item: v}})
}

// onTerminal retires one member on either its error or its completion. A
// single member's failure only removes that member; the bridge as a whole
// has no channel to propagate it further, mirroring a directory watcher
// that drops one file's handle without tearing down the whole watch.
func (b *multiValueBridge[T]) onTerminal(id uint64, m *multiMember[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, live := b.members[id]; !live {
		return
	}
	if m.has {
		b.bc.emit(Batch[T]{{Op: OpDelete, Token: m.token, Item: m.item}})
		m.has = false
	}
	delete(b.members, id)
}

// onOuterError retires every live member in one combined batch, then
// propagates the outer failure: unlike onTerminal's single-member scope, the
// whole multiplexed set depends on the stream-of-streams itself staying up.
func (b *multiValueBridge[T]) onOuterError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return
	}
	b.done = true
	var out Batch[T]
	for id, m := range b.members {
		if m.has {
			out = append(out, Event[T]{Op: OpDelete, Token: m.token, Item: m.item})
		}
		delete(b.members, id)
	}
	if len(out) > 0 {
		b.bc.emit(out)
	}
	b.bc.emitError(NewUpstreamError(err))
}

// onOuterCompleted handles the non-failure terminal case of the
// stream-of-streams: no further members are accepted, but members already
// added keep their lifetimes until their own terminal callbacks, and the
// bridge itself stays open.
func (b *multiValueBridge[T]) onOuterCompleted() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.done = true
}

func (b *multiValueBridge[T]) Subscribe(obs Observer[T]) Disposable {
	b.mu.Lock()
	defer b.mu.Unlock()

	var batch Batch[T]
	for _, m := range b.members {
		if m.has {
			batch = append(batch, Event[T]{Op: OpAdd, Token: m.token, Item: m.item})
		}
	}
	if len(batch) > 0 {
		obs.OnNext(batch)
	}
	return b.bc.subscribe(obs)
}
