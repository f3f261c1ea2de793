package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"LendLedger/internal/event"
)

// ErrIngestClosed is returned once the core loop stopped taking submissions.
var ErrIngestClosed = errors.New("ingest closed")

// GRPCIngestService submits commands from RPC callers and waits for the
// core's verdict. NATS remains the high-throughput surface; this path is for
// admin tooling and synchronous clients.
type GRPCIngestService struct {
	submissions chan<- Submission
	done        <-chan struct{}
}

// NewGRPCIngestService sends to submissions until done is closed.
func NewGRPCIngestService(submissions chan<- Submission, done <-chan struct{}) *GRPCIngestService {
	return &GRPCIngestService{submissions: submissions, done: done}
}

// SubmitRaw decodes a JSON payload of the named command type and submits it.
func (s *GRPCIngestService) SubmitRaw(ctx context.Context, commandType string, payload []byte) (SubmitResult, error) {
	ct, err := event.ParseCommandType(commandType)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	cmd, err := ParseCommand(ct, payload)
	if err != nil {
		return SubmitResult{}, err
	}
	return s.Submit(ctx, cmd)
}

// Submit queues cmd for the core and blocks until it was processed. The
// returned error covers transport failures; the core's own rejection is in
// SubmitResult.Err.
func (s *GRPCIngestService) Submit(ctx context.Context, cmd event.Command) (SubmitResult, error) {
	result := make(chan SubmitResult, 1)
	sub := Submission{
		Command:  cmd,
		Source:   "grpc",
		Received: time.Now(),
		Done:     func(r SubmitResult) { result <- r },
	}

	select {
	case s.submissions <- sub:
	case <-s.done:
		return SubmitResult{}, ErrIngestClosed
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	}

	select {
	case r := <-result:
		return r, nil
	case <-s.done:
		return SubmitResult{}, ErrIngestClosed
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	}
}
