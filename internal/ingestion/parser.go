package ingestion

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"LendLedger/internal/event"

	"github.com/google/uuid"
)

// ErrMalformedCommand marks payloads that can never be applied. Consumers
// terminate such messages instead of redelivering them.
var ErrMalformedCommand = errors.New("malformed command")

// OpsSubjectPrefix prefixes inbound command subjects:
// lend.ops.{command_type}[.{market_id}]
const OpsSubjectPrefix = "lend.ops."

// RawCommand is a command payload as received from a transport, before it
// is decoded into a typed event.Command.
type RawCommand struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after the core has processed the command
	NakFunc   func() // NAK to have it redelivered
	TermFunc  func() // stop redelivery of a payload that can never parse
}

// OpsSubject returns the subject a command of type ct for market is
// published on.
func OpsSubject(ct event.CommandType, market uuid.UUID) string {
	return fmt.Sprintf("%s%s.%s", OpsSubjectPrefix, ct, market)
}

// CommandTypeFromSubject extracts the command type token of an ops subject.
func CommandTypeFromSubject(subject string) (event.CommandType, error) {
	rest, ok := strings.CutPrefix(subject, OpsSubjectPrefix)
	if !ok {
		return event.CommandTypeUnknown, fmt.Errorf("%w: subject %q outside %s>", ErrMalformedCommand, subject, OpsSubjectPrefix)
	}
	name, _, _ := strings.Cut(rest, ".")
	ct, err := event.ParseCommandType(name)
	if err != nil {
		return event.CommandTypeUnknown, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	return ct, nil
}

// ParseRawCommand decodes a raw message using the command type named by its
// subject. A market id in the subject must match the payload's.
func ParseRawCommand(raw RawCommand) (event.Command, error) {
	ct, err := CommandTypeFromSubject(raw.Subject)
	if err != nil {
		return nil, err
	}
	cmd, err := ParseCommand(ct, raw.Data)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(strings.TrimPrefix(raw.Subject, OpsSubjectPrefix), ".")
	if len(parts) > 1 && parts[1] != "" {
		market, err := uuid.Parse(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: subject market: %w", ErrMalformedCommand, err)
		}
		if market != cmd.Head().Market {
			return nil, fmt.Errorf("%w: subject market %s, payload market %s", ErrMalformedCommand, market, cmd.Head().Market)
		}
	}
	return cmd, nil
}

// ParseCommand decodes a JSON payload of type ct and checks its header.
func ParseCommand(ct event.CommandType, data []byte) (event.Command, error) {
	cmd, err := event.DecodeCommand(ct, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	if err := validateHeader(cmd.Head()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedCommand, ct, err)
	}
	return cmd, nil
}

func validateHeader(h event.Header) error {
	switch {
	case h.CommandID == uuid.Nil:
		return errors.New("command_id is required")
	case h.Market == uuid.Nil:
		return errors.New("market is required")
	case h.Signer == uuid.Nil:
		return errors.New("signer is required")
	}
	return nil
}
