package core

import (
	"errors"
	"fmt"

	"LendLedger/internal/event"
	"LendLedger/internal/exchange"
)

var (
	ErrReplayGap          = errors.New("replay sequence gap")
	ErrReplayHashMismatch = errors.New("replay state hash mismatch")
	ErrReplayFills        = errors.New("replay fills exhausted")
)

// Replay re-applies a logged command without emitting outputs and checks
// that it reproduces the logged state hash. Exchange fills come from the
// envelope so a replayed liquidation never trades again.
func (c *DeterministicCore) Replay(env *event.EventEnvelope) error {
	if env.Sequence != c.sequence {
		return fmt.Errorf("at %d got %d: %w", c.sequence, env.Sequence, ErrReplayGap)
	}
	if err := c.chain.follows(env.Sequence, env.PrevHash); err != nil {
		return err
	}
	cmd, err := event.DecodeCommand(env.CommandType, env.Payload)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
	}

	c.replaying = true
	c.replayFills = append([]exchange.Fill(nil), env.Fills...)
	defer func() {
		c.replaying = false
		c.replayFills = nil
	}()

	out, err := c.ProcessCommand(cmd)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
	}
	if out == nil {
		return fmt.Errorf("replay seq %d: command %s already applied", env.Sequence, env.IdempotencyKey)
	}
	if out.Envelope.StateHash != env.StateHash {
		return fmt.Errorf("seq %d: got %x, want %x: %w", env.Sequence, out.Envelope.StateHash, env.StateHash, ErrReplayHashMismatch)
	}
	return nil
}

// placeOrder trades on the exchange, or consumes the next logged fill when
// replaying.
func (c *DeterministicCore) placeOrder(t *txn, order exchange.Order) (exchange.Fill, error) {
	var fill exchange.Fill
	if c.replaying {
		if len(c.replayFills) == 0 {
			return exchange.Fill{}, ErrReplayFills
		}
		fill, c.replayFills = c.replayFills[0], c.replayFills[1:]
	} else {
		var err error
		if fill, err = c.exchange.PlaceOrder(order); err != nil {
			return exchange.Fill{}, err
		}
	}
	t.fills = append(t.fills, fill)
	return fill, nil
}
