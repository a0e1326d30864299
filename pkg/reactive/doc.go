// Package reactive implements incrementally maintained reactive
// collections: sets of items whose membership changes are observed as
// batches of Add/Update/Delete events rather than recomputed from scratch.
//
// A reactive graph is built by composing sources (MutableSet, ConstantSet),
// bridges from external non-reactive inputs (NewSingleValueBridge,
// NewMultiValueBridge, NewSnapshotDiffBridge), operators (Filter, Map, Join,
// LeftJoin, GroupBy, FlatMapSet, FlatMapArray) and terminal sinks
// (MaterializedView, Snapshot, CountSink). Every node in the graph is a
// Set[T]; subscribing to one replays its current membership before any
// subsequent live batch.
package reactive
