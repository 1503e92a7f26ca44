package handler

import (
	"commhistory_backend/internal/recent/transport"
	"commhistory_backend/platform/logger"
)

// streamObserver bridges run-loop deltas to a per-connection channel. The
// callbacks run on the run loop, so sends never block: a slow consumer loses
// messages rather than stalling the loop.
type streamObserver struct {
	ch  chan transport.DeltaMessage
	log *logger.Logger
}

func newStreamObserver(log *logger.Logger) *streamObserver {
	return &streamObserver{
		ch:  make(chan transport.DeltaMessage, 64),
		log: log,
	}
}

func (o *streamObserver) push(msg transport.DeltaMessage) {
	select {
	case o.ch <- msg:
	default:
		o.log.Warn("sse client too slow, dropping delta", "type", msg.Type)
	}
}

func (o *streamObserver) RowsInserted(start, end int) {
	o.push(transport.DeltaMessage{Type: "rows_inserted", Start: start, End: end})
}

func (o *streamObserver) RowsRemoved(start, end int) {
	o.push(transport.DeltaMessage{Type: "rows_removed", Start: start, End: end})
}

func (o *streamObserver) RowUpdated(index int) {
	o.push(transport.DeltaMessage{Type: "row_updated", Index: index})
}

func (o *streamObserver) ResolvingChanged(resolving bool) {
	o.push(transport.DeltaMessage{Type: "resolving_changed", Resolving: resolving})
}
