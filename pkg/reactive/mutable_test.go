package reactive

import (
	"errors"
	"strings"
	"testing"
)

type labeledInt struct {
	key string
	val int
}

func labeledIntKey(x labeledInt) string { return x.key }

func TestMutableSetAddUpdateRemove(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	rec := &recorder[labeledInt]{}
	sub := s.Subscribe(rec)
	defer sub.Dispose()

	tok, err := s.Add(labeledInt{key: "a", val: 1})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Update(labeledInt{key: "a", val: 2}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	events := rec.allEvents()
	if len(events) != 3 {
		t.Fatalf("want 3 events, got %d", len(events))
	}
	if events[0].Op != OpAdd || events[0].Token != tok || events[0].Item.val != 1 {
		t.Fatalf("unexpected add event: %+v", events[0])
	}
	if events[1].Op != OpUpdate || events[1].Token != tok || events[1].Item.val != 2 {
		t.Fatalf("unexpected update event: %+v", events[1])
	}
	if events[2].Op != OpDelete || events[2].Token != tok {
		t.Fatalf("unexpected delete event: %+v", events[2])
	}
}

func TestMutableSetDuplicateKey(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	if _, err := s.Add(labeledInt{key: "a", val: 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(labeledInt{key: "a", val: 2}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}
}

func TestMutableSetAbsentKey(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	if err := s.Update(labeledInt{key: "missing", val: 1}); !errors.Is(err, ErrAbsentKey) {
		t.Fatalf("want ErrAbsentKey on Update, got %v", err)
	}
	if err := s.Remove("missing"); !errors.Is(err, ErrAbsentKey) {
		t.Fatalf("want ErrAbsentKey on Remove, got %v", err)
	}
}

func TestMutableSetReplaysOnSubscribe(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	if _, err := s.Add(labeledInt{key: "a", val: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(labeledInt{key: "b", val: 2}); err != nil {
		t.Fatal(err)
	}

	rec := &recorder[labeledInt]{}
	s.Subscribe(rec)

	events := rec.allEvents()
	if len(events) != 2 {
		t.Fatalf("want 2 replayed events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Op != OpAdd {
			t.Fatalf("replay must only contain Add events, got %v", ev.Op)
		}
	}
}

func TestMutableSetEmptySubscribeElidesBatch(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	rec := &recorder[labeledInt]{}
	s.Subscribe(rec)
	if rec.batchCount() != 0 {
		t.Fatalf("subscribing to an empty set must not emit a batch, got %d", rec.batchCount())
	}
}

func TestMutableSetCustomKeyEquality(t *testing.T) {
	caseFold := func(a, b string) bool { return strings.ToLower(a) == strings.ToLower(b) }
	s := NewMutableSet[string, labeledInt](labeledIntKey, WithKeyEquality[string, labeledInt](caseFold))

	if _, err := s.Add(labeledInt{key: "Alice", val: 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(labeledInt{key: "alice", val: 2}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey under case-insensitive key equality, got %v", err)
	}
	if err := s.Update(labeledInt{key: "ALICE", val: 3}); err != nil {
		t.Fatalf("Update under a case-differing key must hit the same entry: %v", err)
	}
	if err := s.Remove("aLiCe"); err != nil {
		t.Fatalf("Remove under a case-differing key must hit the same entry: %v", err)
	}
}

func TestConstantSetReplayAndElide(t *testing.T) {
	rec := &recorder[int]{}
	NewConstantSet([]int{1, 2, 3}).Subscribe(rec)
	if got := len(rec.allEvents()); got != 3 {
		t.Fatalf("want 3 events, got %d", got)
	}

	rec2 := &recorder[int]{}
	NewConstantSet[int](nil).Subscribe(rec2)
	if rec2.batchCount() != 0 {
		t.Fatalf("empty constant set must elide its batch, got %d", rec2.batchCount())
	}
}
