package reactive

import "testing"

func TestGroupByCreatesAndDropsGroups(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	grouped := GroupBy[labeledInt, bool](s, func(v labeledInt) bool { return v.val%2 == 0 })
	rec := &recorder[GroupEntry[bool, labeledInt]]{}
	grouped.Subscribe(rec)

	if _, err := s.Add(labeledInt{key: "a", val: 1}); err != nil {
		t.Fatal(err)
	}
	if got := rec.batchCount(); got != 1 {
		t.Fatalf("want 1 batch (new group for odd), got %d", got)
	}
	entry := rec.allEvents()[0].Item
	if entry.Key != false {
		t.Fatalf("want odd group first, got key=%v", entry.Key)
	}

	if _, err := s.Add(labeledInt{key: "b", val: 3}); err != nil { // same group, no new GroupEntry event
		t.Fatal(err)
	}
	if got := rec.batchCount(); got != 1 {
		t.Fatalf("adding a second member of an existing group must not emit a new group event, got %d batches", got)
	}

	if err := s.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if got := rec.batchCount(); got != 1 {
		t.Fatalf("group must survive while a member remains, got %d batches", got)
	}

	if err := s.Remove("b"); err != nil {
		t.Fatal(err)
	}
	events := rec.allEvents()
	last := events[len(events)-1]
	if last.Op != OpDelete {
		t.Fatalf("removing the last member must delete the group, got %v", last.Op)
	}
}

func TestGroupByMemberKeyChangeMovesGroups(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	grouped := GroupBy[labeledInt, bool](s, func(v labeledInt) bool { return v.val%2 == 0 })

	if _, err := s.Add(labeledInt{key: "a", val: 1}); err != nil {
		t.Fatal(err)
	}

	view := NewMaterializedView[bool, GroupEntry[bool, labeledInt]](grouped, func(e GroupEntry[bool, labeledInt]) bool { return e.Key })
	oddGroup, ok := view.Get(false)
	if !ok {
		t.Fatal("expected odd group to exist")
	}
	oddSink := Snapshot(oddGroup.Items)
	if got := oddSink.Items(); len(got) != 1 {
		t.Fatalf("want 1 member in odd group, got %v", got)
	}
	oddSink.Close()

	if err := s.Update(labeledInt{key: "a", val: 2}); err != nil { // now even: must move group
		t.Fatal(err)
	}

	if _, ok := view.Get(false); ok {
		t.Fatal("odd group must be dropped once its only member moves out")
	}
	evenGroup, ok := view.Get(true)
	if !ok {
		t.Fatal("expected even group to have been created")
	}
	evenSink := Snapshot(evenGroup.Items)
	defer evenSink.Close()
	if got := evenSink.Items(); len(got) != 1 || got[0].val != 2 {
		t.Fatalf("want even group to contain the moved member, got %v", got)
	}
}
