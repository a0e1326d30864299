package reactive

import "testing"

func TestFilterAdmitsAndRetracts(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	evens := Filter[labeledInt](s, func(v labeledInt) bool { return v.val%2 == 0 })
	rec := &recorder[labeledInt]{}
	evens.Subscribe(rec)

	if _, err := s.Add(labeledInt{key: "a", val: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(labeledInt{key: "b", val: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(labeledInt{key: "a", val: 4}); err != nil { // 1 -> 4: now admitted, must become Add
		t.Fatal(err)
	}
	if err := s.Update(labeledInt{key: "b", val: 3}); err != nil { // 2 -> 3: was admitted, now not: Delete
		t.Fatal(err)
	}
	if err := s.Update(labeledInt{key: "a", val: 6}); err != nil { // still admitted: Update
		t.Fatal(err)
	}

	events := rec.allEvents()
	ops := countOps(events)
	if ops[OpAdd] != 2 {
		t.Fatalf("want 2 Add (a's initial non-admitted Add is swallowed; b's initial admit and a's flip-to-admitted count), got %d: %+v", ops[OpAdd], events)
	}
	if ops[OpDelete] != 1 {
		t.Fatalf("want 1 Delete, got %d", ops[OpDelete])
	}
	if ops[OpUpdate] != 1 {
		t.Fatalf("want 1 Update, got %d", ops[OpUpdate])
	}
}

func TestFilterSwallowsNonAdmittedChurn(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	odds := Filter[labeledInt](s, func(v labeledInt) bool { return v.val%2 == 1 })
	rec := &recorder[labeledInt]{}
	odds.Subscribe(rec)

	if _, err := s.Add(labeledInt{key: "a", val: 2}); err != nil { // never admitted
		t.Fatal(err)
	}
	if err := s.Update(labeledInt{key: "a", val: 4}); err != nil { // still never admitted
		t.Fatal(err)
	}
	if err := s.Remove("a"); err != nil {
		t.Fatal(err)
	}

	if got := rec.batchCount(); got != 0 {
		t.Fatalf("want no batches for an item that never passed the predicate, got %d", got)
	}
}

func TestFilterReplaysOnlyAdmitted(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	if _, err := s.Add(labeledInt{key: "a", val: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(labeledInt{key: "b", val: 2}); err != nil {
		t.Fatal(err)
	}
	evens := Filter[labeledInt](s, func(v labeledInt) bool { return v.val%2 == 0 })

	rec := &recorder[labeledInt]{}
	evens.Subscribe(rec)
	events := rec.allEvents()
	if len(events) != 1 || events[0].Item.val != 2 {
		t.Fatalf("want replay of just the admitted member, got %+v", events)
	}
}
