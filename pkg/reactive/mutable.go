package reactive

import (
	"fmt"
	"sync"
)

// MutableSet is a reactive set whose membership is driven directly by
// caller calls to Add, Update and Remove. A key-extraction function,
// supplied at construction, derives each item's key; callers never pass a
// key alongside an item. It is a leaf of a reactive graph, alongside
// ConstantSet and the bridges from external sources: every other node in
// this package ultimately derives from one or more such leaves.
//
// A MutableSet owns a single mutex held across the full mutate-then-emit
// cascade (SPEC_FULL.md §5): two goroutines calling Add concurrently
// serialize on it, and by the time either call returns, every downstream
// observer has already processed the resulting batch.
type MutableSet[K comparable, T any] struct {
	mu    sync.Mutex
	keyFn func(T) K
	keyEq func(a, b K) bool
	items map[K]mutableEntry[T]
	bc    broadcaster[T]
}

type mutableEntry[T any] struct {
	token *Token
	item  T
}

// MutableSetOption configures a MutableSet at construction.
type MutableSetOption[K comparable, T any] func(*MutableSet[K, T])

// WithKeyEquality overrides the default `==` comparison used to decide
// whether two keys denote the same logical item. K must still satisfy
// comparable (it is stored as a Go map key regardless), but with a custom
// equality installed, lookups fall back to a linear scan applying eq
// instead of the map's native comparison — natural equality stays the fast
// default; this is for domains where it is too strict (e.g. case-folded
// string keys).
func WithKeyEquality[K comparable, T any](eq func(a, b K) bool) MutableSetOption[K, T] {
	return func(s *MutableSet[K, T]) { s.keyEq = eq }
}

// NewMutableSet creates an empty mutable set. keyFn derives a new item's key;
// every Add/Update call re-derives it from the item rather than taking it as
// a separate argument.
func NewMutableSet[K comparable, T any](keyFn func(T) K, opts ...MutableSetOption[K, T]) *MutableSet[K, T] {
	s := &MutableSet[K, T]{keyFn: keyFn, items: make(map[K]mutableEntry[T])}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe replays current membership as a single Add batch, then delivers
// live batches as they occur.
func (s *MutableSet[K, T]) Subscribe(obs Observer[T]) Disposable {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) > 0 {
		batch := make(Batch[T], 0, len(s.items))
		for _, e := range s.items {
			batch = append(batch, Event[T]{Op: OpAdd, Token: e.token, Item: e.item})
		}
		obs.OnNext(batch)
	}
	return s.bc.subscribe(obs)
}

// lookup resolves k to its currently-stored key and entry, honoring a custom
// key equality if one was configured via WithKeyEquality. Must be called
// with s.mu held.
func (s *MutableSet[K, T]) lookup(k K) (K, mutableEntry[T], bool) {
	if s.keyEq == nil {
		e, ok := s.items[k]
		return k, e, ok
	}
	for existing, e := range s.items {
		if s.keyEq(existing, k) {
			return existing, e, true
		}
	}
	return k, mutableEntry[T]{}, false
}

// Add inserts item under key(item), allocating a fresh token for it, and
// returns that token. It fails with ErrDuplicateKey if the key is already
// present.
func (s *MutableSet[K, T]) Add(item T) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.keyFn(item)
	if _, _, exists := s.lookup(k); exists {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateKey, k)
	}
	tok := NewToken()
	s.items[k] = mutableEntry[T]{token: tok, item: item}
	s.bc.emit(Batch[T]{{Op: OpAdd, Token: tok, Item: item}})
	return tok, nil
}

// Update replaces the item stored under key(item), keeping its existing
// token. It fails with ErrAbsentKey if the key is not present. Redundant
// updates (same value) are allowed and still emit.
func (s *MutableSet[K, T]) Update(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.keyFn(item)
	existingKey, e, exists := s.lookup(k)
	if !exists {
		return fmt.Errorf("%w: %v", ErrAbsentKey, k)
	}
	e.item = item
	s.items[existingKey] = e
	s.bc.emit(Batch[T]{{Op: OpUpdate, Token: e.token, Item: item}})
	return nil
}

// Remove retires the token stored under key. It fails with ErrAbsentKey if
// key is not present.
func (s *MutableSet[K, T]) Remove(key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existingKey, e, exists := s.lookup(key)
	if !exists {
		return fmt.Errorf("%w: %v", ErrAbsentKey, key)
	}
	delete(s.items, existingKey)
	s.bc.emit(Batch[T]{{Op: OpDelete, Token: e.token, Item: e.item}})
	return nil
}

// Len reports current membership size.
func (s *MutableSet[K, T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
