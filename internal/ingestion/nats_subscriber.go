package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"LendLedger/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber consumes command subjects from JetStream, decodes them and
// feeds submissions to the core loop. Messages are acked only after the core
// has processed them, so a crash before that redelivers them and the core's
// idempotency check absorbs the repeat.
type NATSSubscriber struct {
	js          jetstream.JetStream
	submissions chan<- Submission
	consumers   []jetstream.ConsumeContext
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// SubjectConfig binds a durable consumer to a subject filter.
type SubjectConfig struct {
	Subject      string
	ConsumerName string
	StreamName   string
}

const opsStream = "LEND_OPS"

// DefaultSubjects returns the standard subject configuration. All commands
// share one consumer so the core sees them in stream order; slot ordering
// per market depends on it.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: OpsSubjectPrefix + ">", ConsumerName: "ledger-ops", StreamName: opsStream},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, submissions chan<- Submission, metrics *observability.Metrics) *NATSSubscriber {
	return &NATSSubscriber{
		js:          js,
		submissions: submissions,
		metrics:     metrics,
		logger:      observability.NewLogger("nats"),
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			ns.handle(ctx, RawCommand{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
				TermFunc:  func() { msg.Term() },
			})
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// handle decodes one message and queues it for the core.
func (ns *NATSSubscriber) handle(ctx context.Context, raw RawCommand) {
	start := time.Now()
	cmd, err := ParseRawCommand(raw)
	if err != nil {
		ns.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed command")
		raw.TermFunc()
		return
	}
	if ns.metrics != nil {
		ns.metrics.NATSPullLatency.WithLabelValues(cmd.CommandType().String()).Observe(time.Since(start).Seconds())
	}

	sub := Submission{
		Command:  cmd,
		Source:   "nats",
		Received: raw.Timestamp,
		// Rejections are deterministic; redelivery would be rejected again.
		Done: func(SubmitResult) { raw.AckFunc() },
	}
	select {
	case ns.submissions <- sub:
	case <-ctx.Done():
		raw.NakFunc()
	}
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:       opsStream,
			Subjects:   []string{OpsSubjectPrefix + ">"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Replicas:   1,
			Duplicates: 10 * time.Minute,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("lendledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
