package reactive

import "testing"

func combineOrderCustomer(o order, c *customer) orderView {
	if c == nil {
		return orderView{orderID: o.id, customer: ""}
	}
	return orderView{orderID: o.id, customer: c.name}
}

func TestLeftJoinUnmatchedProducesNullRight(t *testing.T) {
	orders := NewMutableSet[string, order](orderKey)
	customers := NewMutableSet[string, customer](customerKey)
	joined := LeftJoin[order, customer, string, orderView](
		orders, customers,
		func(o order) string { return o.customer },
		func(c customer) string { return c.id },
		combineOrderCustomer,
	)
	view := NewMaterializedView[string, orderView](joined, func(v orderView) string { return v.orderID })

	if _, err := orders.Add(order{id: "o1", customer: "c1"}); err != nil {
		t.Fatal(err)
	}
	row, ok := view.Get("o1")
	if !ok {
		t.Fatal("unmatched left member must still produce an output row")
	}
	if row.customer != "" {
		t.Fatalf("want null-right output, got %+v", row)
	}
}

func TestLeftJoinReusesTokenOnFirstMatch(t *testing.T) {
	orders := NewMutableSet[string, order](orderKey)
	customers := NewMutableSet[string, customer](customerKey)
	joined := LeftJoin[order, customer, string, orderView](
		orders, customers,
		func(o order) string { return o.customer },
		func(c customer) string { return c.id },
		combineOrderCustomer,
	)
	rec := &recorder[orderView]{}
	joined.Subscribe(rec)

	if _, err := orders.Add(order{id: "o1", customer: "c1"}); err != nil {
		t.Fatal(err)
	}
	addEvent := rec.allEvents()[0]

	if _, err := customers.Add(customer{id: "c1", name: "Ada"}); err != nil {
		t.Fatal(err)
	}
	events := rec.allEvents()
	matchEvent := events[len(events)-1]

	if matchEvent.Op != OpUpdate {
		t.Fatalf("first match must reuse the null-right token via Update, got %v", matchEvent.Op)
	}
	if matchEvent.Token != addEvent.Token {
		t.Fatal("first match must reuse the same output token as the null-right row")
	}
	if matchEvent.Item.customer != "Ada" {
		t.Fatalf("want matched customer name, got %+v", matchEvent.Item)
	}
}

func TestLeftJoinFallsBackToNullRightWhenMatchRemoved(t *testing.T) {
	orders := NewMutableSet[string, order](orderKey)
	customers := NewMutableSet[string, customer](customerKey)
	joined := LeftJoin[order, customer, string, orderView](
		orders, customers,
		func(o order) string { return o.customer },
		func(c customer) string { return c.id },
		combineOrderCustomer,
	)
	rec := &recorder[orderView]{}
	joined.Subscribe(rec)
	view := NewMaterializedView[string, orderView](joined, func(v orderView) string { return v.orderID })

	if _, err := customers.Add(customer{id: "c1", name: "Ada"}); err != nil {
		t.Fatal(err)
	}
	if _, err := orders.Add(order{id: "o1", customer: "c1"}); err != nil {
		t.Fatal(err)
	}
	matchedEvent := rec.allEvents()[len(rec.allEvents())-1]

	if err := customers.Remove("c1"); err != nil {
		t.Fatal(err)
	}

	row, ok := view.Get("o1")
	if !ok {
		t.Fatal("left row must survive its match disappearing")
	}
	if row.customer != "" {
		t.Fatalf("want fallback to null-right, got %+v", row)
	}

	events := rec.allEvents()
	deleteEvent := events[len(events)-2]
	addEvent := events[len(events)-1]
	if deleteEvent.Op != OpDelete || deleteEvent.Token != matchedEvent.Token {
		t.Fatalf("losing the last match must Delete the matched pair's token, got %+v", deleteEvent)
	}
	if addEvent.Op != OpAdd || addEvent.Token == matchedEvent.Token {
		t.Fatalf("losing the last match must Add a freshly minted null-right token, got %+v", addEvent)
	}
}
