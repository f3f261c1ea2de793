package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"LendLedger/internal/event"
	"LendLedger/internal/ledger"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventLogWriter writes events and journals to Postgres using multi-row
// INSERTs.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	CommandType    string
	IdempotencyKey string
	MarketID       string
	Signer         string
	Slot           uint64
	Payload        []byte // JSON-encoded command
	Fills          []byte // JSON-encoded exchange fills, NULL when none
	StateHash      []byte
	PrevHash       []byte
	CreatedAt      time.Time
}

// JournalRow represents a row in event_log.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Mint          string
	Amount        int64
	JournalType   int32
	Slot          uint64
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// EventRowFromEnvelope flattens an envelope for storage.
func EventRowFromEnvelope(env *event.EventEnvelope, createdAt time.Time) (EventRow, error) {
	row := EventRow{
		Sequence:       env.Sequence,
		CommandType:    env.CommandType.String(),
		IdempotencyKey: env.IdempotencyKey,
		MarketID:       env.MarketID.String(),
		Signer:         env.Signer.String(),
		Slot:           env.Slot,
		Payload:        env.Payload,
		StateHash:      append([]byte(nil), env.StateHash[:]...),
		PrevHash:       append([]byte(nil), env.PrevHash[:]...),
		CreatedAt:      createdAt,
	}
	if len(env.Fills) > 0 {
		fills, err := json.Marshal(env.Fills)
		if err != nil {
			return EventRow{}, fmt.Errorf("encode fills at seq %d: %w", env.Sequence, err)
		}
		row.Fills = fills
	}
	return row, nil
}

// JournalRowsFromBatch flattens a command's journals for storage.
func JournalRowsFromBatch(batch *ledger.Batch) []JournalRow {
	if batch == nil {
		return nil
	}
	rows := make([]JournalRow, 0, len(batch.Journals))
	for _, j := range batch.Journals {
		rows = append(rows, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Mint:          j.Mint.String(),
			Amount:        j.Amount,
			JournalType:   int32(j.JournalType),
			Slot:          j.Slot,
		})
	}
	return rows
}

// WriteEventBatch writes a batch of events to event_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, command_type, idempotency_key, market_id, signer, slot, payload, fills, state_hash, prev_hash, created_at)
		VALUES `

	const cols = 11
	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*cols)

	for i, e := range events {
		values = append(values, placeholders(i*cols, cols))
		// JSONB columns take text; a []byte would be sent as bytea.
		var fills interface{}
		if e.Fills != nil {
			fills = string(e.Fills)
		}
		args = append(args,
			e.Sequence, e.CommandType, e.IdempotencyKey, e.MarketID, e.Signer, int64(e.Slot),
			string(e.Payload), fills, e.StateHash, e.PrevHash, e.CreatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries to event_log.journal.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, tx execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, mint, amount, journal_type, slot)
		VALUES `

	const cols = 10
	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*cols)

	for i, j := range journals {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Mint, j.Amount,
			j.JournalType, int64(j.Slot),
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+i)
	}
	b.WriteByte(')')
	return b.String()
}
