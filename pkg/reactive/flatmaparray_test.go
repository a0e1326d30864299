package reactive

import "testing"

type lineItem struct {
	sku string
	qty int
}

type invoice struct {
	id    string
	items []lineItem
}

func invoiceKey(i invoice) string { return i.id }

func TestFlatMapArrayDiffsByKey(t *testing.T) {
	invoices := NewMutableSet[string, invoice](invoiceKey)
	lines := FlatMapArray[invoice, lineItem, string](
		invoices,
		func(inv invoice) []lineItem { return inv.items },
		func(li lineItem) string { return li.sku },
	)
	rec := &recorder[lineItem]{}
	lines.Subscribe(rec)

	if _, err := invoices.Add(invoice{id: "i1", items: []lineItem{
		{sku: "widget", qty: 2},
		{sku: "gadget", qty: 1},
	}}); err != nil {
		t.Fatal(err)
	}
	if got := len(rec.allEvents()); got != 2 {
		t.Fatalf("want 2 initial line items, got %d", got)
	}

	if err := invoices.Update(invoice{id: "i1", items: []lineItem{
		{sku: "widget", qty: 5},   // changed qty -> Update
		{sku: "sprocket", qty: 1}, // new sku -> Add
		// gadget dropped -> Delete
	}}); err != nil {
		t.Fatal(err)
	}

	events := rec.allEvents()
	latest := events[len(events)-3:]
	ops := countOps(latest)
	if ops[OpUpdate] != 1 || ops[OpAdd] != 1 || ops[OpDelete] != 1 {
		t.Fatalf("want 1 update, 1 add, 1 delete from the diff, got %+v", ops)
	}
}

func TestFlatMapArrayTeardownOnParentDelete(t *testing.T) {
	invoices := NewMutableSet[string, invoice](invoiceKey)
	lines := FlatMapArray[invoice, lineItem, string](
		invoices,
		func(inv invoice) []lineItem { return inv.items },
		func(li lineItem) string { return li.sku },
	)

	if _, err := invoices.Add(invoice{id: "i1", items: []lineItem{{sku: "widget", qty: 1}}}); err != nil {
		t.Fatal(err)
	}
	if err := invoices.Remove("i1"); err != nil {
		t.Fatal(err)
	}

	sink := Snapshot(lines)
	defer sink.Close()
	if got := sink.Items(); len(got) != 0 {
		t.Fatalf("want no line items after invoice removed, got %v", got)
	}
}
