package ports

import (
	"context"

	"rtctester/internal/core/domain"
)

// Transport opens signaling sessions against a streaming endpoint.
type Transport interface {
	Connect(ctx context.Context, endpoint string) (Session, error)
}

// Session is one viewer's negotiated media session.
//
// Callbacks must be registered before SendAnswer. They may be invoked from
// transport goroutines at any time until Close returns.
type Session interface {
	RequestOffer(ctx context.Context) (domain.Offer, error)
	// SendAnswer negotiates an answer for offer and delivers it to the endpoint.
	SendAnswer(ctx context.Context, offer domain.Offer) error
	OnStreamAttached(fn func(domain.StreamInfo))
	OnConnectionStateChanged(fn func(domain.ConnectionState))
	// PollCounters returns cumulative counters and must not block.
	PollCounters() domain.Counters
	// Close releases the session without waiting for the remote side.
	Close() error
}
