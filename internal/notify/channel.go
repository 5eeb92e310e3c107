package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Channel is one delivery transport for a notification.
type Channel string

const (
	// ChannelPersisted is the in-app notification record itself.
	ChannelPersisted Channel = "PERSISTED"
	// ChannelRealtime is a live push over an open websocket session.
	ChannelRealtime Channel = "REALTIME"
	// ChannelPush is asynchronous web-push delivery to offline devices.
	ChannelPush Channel = "PUSH"
)

// Outcome is an adapter's terminal delivery result. A skip (recipient
// offline, no subscriptions) is distinct from a failure and is not
// logged as an error.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

// Payload is the channel-independent notification content handed to
// adapters.
type Payload struct {
	ID        uuid.UUID      `json:"id"`
	Category  string         `json:"category"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Adapter delivers a payload through one transport. Implementations
// report success and failure independently; the dispatcher never lets
// one adapter's failure affect another.
type Adapter interface {
	Channel() Channel
	AttemptDeliver(ctx context.Context, recipientID uint64, payload Payload) (Outcome, error)
}
