package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// EventsSubjectPrefix prefixes outbound subjects:
// lend.events.{event_name}.{market_id}
const EventsSubjectPrefix = "lend.events."

const eventsStream = "LEND_EVENTS"

// OutboundPublisher publishes the domain events of committed commands to
// NATS for downstream consumers.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// PublishableEvent is one outbound event of a committed command.
type PublishableEvent struct {
	Sequence  int64          `json:"sequence"`
	Index     int            `json:"index"`
	Name      string         `json:"name"`
	MarketID  uuid.UUID      `json:"market_id"`
	Slot      uint64         `json:"slot"`
	Payload   event.Outbound `json:"payload"`
	StateHash string         `json:"state_hash"`
	Timestamp time.Time      `json:"timestamp"`
}

// MsgID is the JetStream dedup id; republishing after a restart is dropped
// by the stream's duplicate window.
func (e PublishableEvent) MsgID() string {
	return fmt.Sprintf("%d-%d", e.Sequence, e.Index)
}

// Subject is the outbound subject of e.
func (e PublishableEvent) Subject() string {
	return fmt.Sprintf("%s%s.%s", EventsSubjectPrefix, e.Name, e.MarketID)
}

// PublishablesFromOutput lists a core output's outbound events in emission
// order.
func PublishablesFromOutput(out *core.CoreOutput, now time.Time) []PublishableEvent {
	if out == nil || out.Envelope == nil {
		return nil
	}
	env := out.Envelope
	hash := hex.EncodeToString(env.StateHash[:])
	res := make([]PublishableEvent, 0, len(out.Events))
	for i, ev := range out.Events {
		res = append(res, PublishableEvent{
			Sequence:  env.Sequence,
			Index:     i,
			Name:      ev.Name(),
			MarketID:  env.MarketID,
			Slot:      env.Slot,
			Payload:   ev,
			StateHash: hash,
			Timestamp: now,
		})
	}
	return res
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("publisher"),
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				// Non-fatal: downstream consumers can read the event log directly.
				op.logger.Warn().Err(err).Int64("seq", evt.Sequence).Str("event", evt.Name).Msg("outbound publish failed")
				if op.metrics != nil {
					op.metrics.PublishDrops.Inc()
				}
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = op.js.Publish(ctx, evt.Subject(), data, jetstream.WithMsgID(evt.MsgID()))
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       eventsStream,
		Subjects:   []string{EventsSubjectPrefix + ">"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Replicas:   1,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Printf("INFO: ensured outbound stream %s", eventsStream)
	return nil
}
