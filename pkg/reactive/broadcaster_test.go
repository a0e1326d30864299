package reactive

import "testing"

// TestReentrantSubscribeDeferred verifies that a new subscriber registered
// from inside an OnNext callback (re-entrant subscription, e.g. a consumer
// that fans out to a freshly created sink mid-dispatch) does not receive the
// batch currently being dispatched, and is not invoked out of order.
func TestReentrantSubscribeDeferred(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)

	var secondRec *recorder[labeledInt]
	first := &recorder[labeledInt]{}
	s.Subscribe(Func[labeledInt]{
		Next: func(b Batch[labeledInt]) {
			first.OnNext(b)
			if secondRec == nil {
				secondRec = &recorder[labeledInt]{}
				s.Subscribe(secondRec)
			}
		},
	})

	if _, err := s.Add(labeledInt{key: "a", val: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(labeledInt{key: "b", val: 2}); err != nil {
		t.Fatal(err)
	}

	if got := first.batchCount(); got != 2 {
		t.Fatalf("first subscriber should see both batches, got %d", got)
	}
	// secondRec was registered during dispatch of the first Add's batch; it
	// must not see that batch, only replay (of "a") plus the live "b" add.
	events := secondRec.allEvents()
	if len(events) != 2 {
		t.Fatalf("want replay of 'a' plus live 'b', got %+v", events)
	}
	if events[0].Item.val != 1 || events[1].Item.val != 2 {
		t.Fatalf("unexpected event order: %+v", events)
	}
}

func TestDisposeStopsFurtherDelivery(t *testing.T) {
	s := NewMutableSet[string, labeledInt](labeledIntKey)
	rec := &recorder[labeledInt]{}
	sub := s.Subscribe(rec)

	if _, err := s.Add(labeledInt{key: "a", val: 1}); err != nil {
		t.Fatal(err)
	}
	sub.Dispose()
	if _, err := s.Add(labeledInt{key: "b", val: 2}); err != nil {
		t.Fatal(err)
	}

	if got := len(rec.allEvents()); got != 1 {
		t.Fatalf("want only the pre-dispose event, got %d", got)
	}
}
