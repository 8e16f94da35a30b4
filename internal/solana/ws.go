package solana

import "context"

// WSClient defines the WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (*LogSubscription, error)

	// UnsubscribeLogs tears down a subscription and closes its channel.
	UnsubscribeLogs(ctx context.Context, sub *LogSubscription) error

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these addresses.
	Mentions []string
}

// LogSubscription is a live logs subscription. C stays the same channel
// across reconnects; ID changes when the client resubscribes.
type LogSubscription struct {
	C <-chan LogNotification

	id int64
	ch chan LogNotification
}

// NewLogSubscription wraps a bare channel in a subscription. Fake
// clients use it; the real client assigns server-side ids itself.
func NewLogSubscription(ch chan LogNotification) *LogSubscription {
	return &LogSubscription{C: ch, ch: ch}
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
