package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/exchange"

	"github.com/google/uuid"
)

// snapshotFormat is bumped whenever core.SnapshotState changes shape.
const snapshotFormat = 1

// SnapshotManager stores core snapshots and reads the event log back for
// recovery.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot taken after the command at
// snap.Sequence-1 was applied. It returns the encoded size.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *core.SnapshotState) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, uuid.New(), snap.Sequence, data, snap.StateHash[:], snapshotFormat, len(data), time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil when
// there is none.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.SnapshotState, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data, format_version FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var (
		data    []byte
		version int
	)
	if err := row.Scan(&data, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if version != snapshotFormat {
		return nil, fmt.Errorf("snapshot format %d, want %d", version, snapshotFormat)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads up to limit logged envelopes starting at
// fromSequence, in order.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]*event.EventEnvelope, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, command_type, idempotency_key, market_id, signer, slot,
		       payload, fills, state_hash, prev_hash
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*event.EventEnvelope
	for rows.Next() {
		var (
			env                 event.EventEnvelope
			commandType         string
			market, signer      string
			slot                int64
			fills               []byte
			stateHash, prevHash []byte
		)
		if err := rows.Scan(
			&env.Sequence, &commandType, &env.IdempotencyKey, &market, &signer, &slot,
			&env.Payload, &fills, &stateHash, &prevHash,
		); err != nil {
			return nil, err
		}
		if env.CommandType, err = event.ParseCommandType(commandType); err != nil {
			return nil, fmt.Errorf("seq %d: %w", env.Sequence, err)
		}
		if env.MarketID, err = uuid.Parse(market); err != nil {
			return nil, fmt.Errorf("seq %d market: %w", env.Sequence, err)
		}
		if env.Signer, err = uuid.Parse(signer); err != nil {
			return nil, fmt.Errorf("seq %d signer: %w", env.Sequence, err)
		}
		env.Slot = uint64(slot)
		if len(fills) > 0 {
			var decoded []exchange.Fill
			if err := json.Unmarshal(fills, &decoded); err != nil {
				return nil, fmt.Errorf("seq %d fills: %w", env.Sequence, err)
			}
			env.Fills = decoded
		}
		if len(stateHash) != 32 || len(prevHash) != 32 {
			return nil, fmt.Errorf("seq %d: malformed hash", env.Sequence)
		}
		copy(env.StateHash[:], stateHash)
		copy(env.PrevHash[:], prevHash)
		out = append(out, &env)
	}
	return out, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log, or -1
// when the log is empty.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}
