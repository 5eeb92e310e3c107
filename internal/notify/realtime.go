package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// ConnectionRegistry tracks live websocket sessions per member. The
// hub in internal/realtime implements it.
type ConnectionRegistry interface {
	IsConnected(memberID uint64) bool
	// Send writes payload to every open session of the member and
	// reports whether at least one write succeeded.
	Send(memberID uint64, payload []byte) (bool, error)
}

// RealtimeAdapter pushes notifications over open websocket sessions.
// A recipient without a connected session is an expected miss, not a
// failure.
type RealtimeAdapter struct {
	registry ConnectionRegistry
	log      *zap.Logger
}

// NewRealtimeAdapter creates the REALTIME channel adapter.
func NewRealtimeAdapter(registry ConnectionRegistry, log *zap.Logger) *RealtimeAdapter {
	return &RealtimeAdapter{registry: registry, log: log}
}

// Channel identifies this adapter's transport.
func (a *RealtimeAdapter) Channel() Channel {
	return ChannelRealtime
}

// AttemptDeliver pushes the payload to the recipient's live sessions.
func (a *RealtimeAdapter) AttemptDeliver(ctx context.Context, recipientID uint64, payload Payload) (Outcome, error) {
	if !a.registry.IsConnected(recipientID) {
		return OutcomeSkipped, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to marshal realtime payload: %w", err)
	}

	sent, err := a.registry.Send(recipientID, raw)
	if err != nil {
		return OutcomeFailed, err
	}
	if !sent {
		// Disconnected between the registry check and the write.
		return OutcomeSkipped, nil
	}
	return OutcomeDelivered, nil
}
