package reactive

import "testing"

func TestSnapshotCapturesCurrentMembersOnly(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	if _, err := s.Add(labeledInt{key: "a", val: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(labeledInt{key: "b", val: 2}); err != nil {
		t.Fatal(err)
	}

	sink := Snapshot(s)
	defer sink.Close()
	if got := sink.Items(); len(got) != 2 {
		t.Fatalf("want 2 snapshotted items, got %d", len(got))
	}

	// A snapshot sink stays subscribed; later changes must appear.
	if _, err := s.Add(labeledInt{key: "c", val: 3}); err != nil {
		t.Fatal(err)
	}
	if got := sink.Items(); len(got) != 3 {
		t.Fatalf("snapshot must reflect live membership, got %d", len(got))
	}
}

func TestCountSinkTracksLiveCount(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	count := NewCountSink[labeledInt](s)
	defer count.Close()

	if count.Count() != 0 {
		t.Fatalf("want 0, got %d", count.Count())
	}
	if _, err := s.Add(labeledInt{key: "a", val: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(labeledInt{key: "b", val: 2}); err != nil {
		t.Fatal(err)
	}
	if count.Count() != 2 {
		t.Fatalf("want 2, got %d", count.Count())
	}
	if err := s.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if count.Count() != 1 {
		t.Fatalf("want 1, got %d", count.Count())
	}
}
