package ingestion_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"LendLedger/internal/event"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// ============================================================================
// JetStream integration
// ============================================================================

func TestNATSSubscriber_DeliversAndTerms(t *testing.T) {
	testutil.RequireIntegration(t)
	js := testutil.SetupTestJetStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// A market of its own keeps earlier runs' messages out of this consumer.
	m := uuid.New()
	subject := ingestion.OpsSubject(event.CommandTypeDeposit, m)

	subs := make(chan ingestion.Submission, 4)
	sub := ingestion.NewNATSSubscriber(js, subs, nil)
	if err := sub.Subscribe(ctx, []ingestion.SubjectConfig{{
		Subject:      subject,
		ConsumerName: "test-" + m.String(),
		StreamName:   "LEND_OPS",
	}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Stop()

	if _, err := js.Publish(ctx, subject, []byte(`{"command_id":`)); err != nil {
		t.Fatalf("publish malformed: %v", err)
	}

	payload := depositPayload()
	payload["market"] = m.String()
	data, _ := json.Marshal(payload)
	if _, err := js.Publish(ctx, subject, data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-subs:
		if got.Source != "nats" {
			t.Errorf("source: %s", got.Source)
		}
		if got.Command.Head().Market != m {
			t.Errorf("market: %s", got.Command.Head().Market)
		}
		got.Complete(ingestion.SubmitResult{Sequence: 1})
	case <-ctx.Done():
		t.Fatal("no submission delivered")
	}

	select {
	case extra := <-subs:
		t.Fatalf("malformed message reached the core: %+v", extra.Command)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestOutboundPublisher_DedupsByMsgID(t *testing.T) {
	testutil.RequireIntegration(t)
	js := testutil.SetupTestJetStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	evt := ingestion.PublishableEvent{
		Sequence:  time.Now().UnixNano(),
		Name:      "deposit",
		MarketID:  uuid.New(),
		Payload:   event.DepositEvent{Depositor: signer, Reserve: reserve, Tokens: 10, Notes: 10},
		Timestamp: time.Now(),
	}

	in := make(chan ingestion.PublishableEvent, 2)
	in <- evt
	in <- evt
	close(in)
	if err := ingestion.NewOutboundPublisher(js, in, nil).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	cons, err := js.OrderedConsumer(ctx, "LEND_EVENTS", jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{evt.Subject()},
	})
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	batch, err := cons.Fetch(2, jetstream.FetchMaxWait(time.Second))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	n := 0
	for msg := range batch.Messages() {
		n++
		var got ingestion.PublishableEvent
		if err := json.Unmarshal(msg.Data(), &struct {
			Sequence *int64 `json:"sequence"`
		}{&got.Sequence}); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Sequence != evt.Sequence {
			t.Errorf("sequence: got %d, want %d", got.Sequence, evt.Sequence)
		}
	}
	if n != 1 {
		t.Errorf("expected one message after dedup, got %d", n)
	}
}
