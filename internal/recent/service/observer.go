package service

// Observer receives structural deltas from the aggregator so a presentation
// layer can apply minimal diffs. Indices refer to the collection state
// immediately before the change for removals, and immediately after for
// insertions. Callbacks run on the run loop and must not block.
type Observer interface {
	// RowsInserted signals that rows [start..end] were inserted.
	RowsInserted(start, end int)
	// RowsRemoved signals that rows [start..end] were removed as one
	// contiguous run.
	RowsRemoved(start, end int)
	// RowUpdated signals that the row at index changed in place.
	RowUpdated(index int)
	// ResolvingChanged signals a transition of the aggregator's derived
	// resolving state.
	ResolvingChanged(resolving bool)
}
