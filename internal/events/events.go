// Package events is an optional, best-effort feed of the crawl's state
// transitions onto Redis pub/sub, for an external dashboard to consume.
// It is never required for correctness: every publish is fire-and-forget
// and a Bus with no configured address is a no-op.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/netcrawl/netcrawl/internal/fsm"
	"github.com/netcrawl/netcrawl/pkg/util"
)

// Channel is the Redis pub/sub channel transitions are published to.
const Channel = "netcrawl:transitions"

// Bus publishes StateTransitions to Redis. The zero value is a
// functioning no-op Bus (nil client), matching the "off by default"
// requirement.
type Bus struct {
	client *redis.Client
}

// NewBus connects to addr, or returns a no-op Bus if addr is empty.
func NewBus(addr string) *Bus {
	if addr == "" {
		return &Bus{}
	}
	return &Bus{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Close releases the underlying Redis connection, if any.
func (b *Bus) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// transitionPayload is the wire shape published to Channel.
type transitionPayload struct {
	DeviceID  int64     `json:"device_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publish fires tr onto Channel. It never blocks the caller for more
// than a couple seconds and never returns an error the caller is
// expected to act on — a disconnected or unreachable Redis must not stall
// or fail the crawl, so failures are only logged.
func (b *Bus) Publish(tr fsm.Transition) {
	if b.client == nil {
		return
	}

	payload := transitionPayload{
		DeviceID:  tr.DeviceID,
		From:      string(tr.From),
		To:        string(tr.To),
		ErrorMsg:  tr.ErrorMsg,
		Timestamp: tr.Timestamp,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		util.WithField("device_id", tr.DeviceID).Warnf("events: marshal transition: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, Channel, body).Err(); err != nil {
		util.WithField("device_id", tr.DeviceID).Warnf("events: publish transition: %v", err)
	}
}
