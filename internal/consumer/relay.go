package consumer

import (
	"context"

	"example.com/tripboard/internal/store"
)

// RelayHandler forwards decoded change events into a local event sink so
// live queries re-run when another instance mutates the store. Events with
// an unknown change kind are dropped; they carry no information a re-query
// would not discover anyway.
type RelayHandler struct {
	sink store.EventSink
}

// NewRelayHandler constructs a RelayHandler around sink.
func NewRelayHandler(sink store.EventSink) *RelayHandler {
	return &RelayHandler{sink: sink}
}

// Handle publishes the event to the sink. It never fails: a dropped wakeup
// only delays the next snapshot until the following event.
func (h *RelayHandler) Handle(_ context.Context, msg Message) error {
	kind := store.ChangeKind(msg.Kind)
	switch kind {
	case store.ChangeCreated, store.ChangePatched, store.ChangeDeleted:
	default:
		return nil
	}

	h.sink.Publish(store.ChangeEvent{
		Collection: msg.Collection,
		DocID:      msg.DocID,
		Kind:       kind,
	})
	return nil
}
