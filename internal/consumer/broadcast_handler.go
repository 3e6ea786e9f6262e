package consumer

import "context"

// Broadcaster fans a payload out to live subscribers.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// BroadcastHandler forwards consumed session events to the websocket hub.
type BroadcastHandler struct {
	hub Broadcaster
}

// NewBroadcastHandler constructs a BroadcastHandler.
func NewBroadcastHandler(hub Broadcaster) *BroadcastHandler {
	return &BroadcastHandler{hub: hub}
}

// Handle pushes the raw JSON payload to subscribers. Delivery to clients is
// best effort; the handler itself never fails.
func (h *BroadcastHandler) Handle(_ context.Context, msg Message) error {
	h.hub.Broadcast(msg.Payload)
	return nil
}

// MultiHandler runs handlers in order and stops at the first error, so an
// uncommitted message is redelivered to the whole chain.
type MultiHandler []Handler

func (m MultiHandler) Handle(ctx context.Context, msg Message) error {
	for _, h := range m {
		if err := h.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
