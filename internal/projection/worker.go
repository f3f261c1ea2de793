package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/observability"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// watermarkName is the projections.watermark row owned by the worker.
const watermarkName = "main"

// BalanceEntry is the post-command balance of one ledger account.
type BalanceEntry struct {
	AccountPath string
	Owner       uuid.UUID
	Mint        uuid.UUID
	Scope       string
	Balance     int64
}

// ProjectionOutput is what the projection tables need from one committed
// command. Balances are absolute, so applying an output twice is harmless.
type ProjectionOutput struct {
	Sequence          int64
	MarketID          uuid.UUID
	Slot              uint64
	Balances          []BalanceEntry
	Reserves          []*state.Reserve
	Obligations       []*state.Obligation
	ClosedObligations []uuid.UUID
	Liquidations      []LiquidationHistoryEntry
}

// FromCoreOutput flattens a core output for the projection worker.
func FromCoreOutput(out *core.CoreOutput) ProjectionOutput {
	po := ProjectionOutput{
		Reserves:          out.Reserves,
		Obligations:       out.Obligations,
		ClosedObligations: out.ClosedObligations,
	}
	if env := out.Envelope; env != nil {
		po.Sequence = env.Sequence
		po.MarketID = env.MarketID
		po.Slot = env.Slot
	}
	for key, bal := range out.Balances {
		po.Balances = append(po.Balances, BalanceEntry{
			AccountPath: key.AccountPath(),
			Owner:       key.ID(),
			Mint:        key.MintID(),
			Scope:       key.Scope.String(),
			Balance:     bal,
		})
	}
	// Stable row order keeps concurrent upserts from deadlocking.
	sort.Slice(po.Balances, func(i, j int) bool {
		return po.Balances[i].AccountPath < po.Balances[j].AccountPath
	})
	po.Liquidations = liquidationEntries(po.Sequence, po.MarketID, po.Slot, out.Events)
	return po
}

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind they are rebuilt from the event log and the core's state.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		lastSeq:   -1,
		metrics:   metrics,
		logger:    observability.NewLogger("projection"),
	}
}

// LastSequence returns the sequence of the last output processed.
func (pw *ProjectionWorker) LastSequence() int64 { return pw.lastSeq }

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			if output.Sequence <= pw.lastSeq {
				continue
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent; a rebuild repairs gaps.
				pw.logger.Warn().Err(err).Int64("seq", output.Sequence).Msg("projection update failed")
			}
			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, b := range output.Balances {
		if err := upsertBalance(ctx, tx, b, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}
	pw.observe("balances", start)

	for _, r := range output.Reserves {
		if err := upsertReserve(ctx, tx, r, output.Sequence); err != nil {
			return fmt.Errorf("reserve projection: %w", err)
		}
	}
	for _, o := range output.Obligations {
		if err := upsertObligation(ctx, tx, o, output.Sequence); err != nil {
			return fmt.Errorf("obligation projection: %w", err)
		}
	}
	for _, id := range output.ClosedObligations {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM projections.obligations WHERE obligation_id = $1`, id,
		); err != nil {
			return fmt.Errorf("close obligation: %w", err)
		}
	}
	pw.observe("state", start)

	for _, l := range output.Liquidations {
		if err := insertLiquidation(ctx, tx, l); err != nil {
			return fmt.Errorf("liquidation history: %w", err)
		}
	}

	if err := setWatermark(ctx, tx, output.Sequence); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	pw.observe("total", start)
	return nil
}

func (pw *ProjectionWorker) observe(stage string, start time.Time) {
	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertBalance(ctx context.Context, tx execer, b BalanceEntry, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, owner_id, mint, scope, balance, last_seq, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (account_path)
		DO UPDATE SET balance = $5, last_seq = $6, updated_at = NOW()
		WHERE projections.balances.last_seq <= $6
	`, b.AccountPath, b.Owner, b.Mint, b.Scope, b.Balance, seq)
	return err
}

func upsertReserve(ctx context.Context, tx execer, r *state.Reserve, seq int64) error {
	cfg, err := json.Marshal(r.Config)
	if err != nil {
		return err
	}
	util, err := r.Utilization()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO projections.reserves
			(reserve_id, market_id, reserve_index, token_mint, total_deposits, total_deposit_notes,
			 total_loan_notes, outstanding_debt, uncollected_fees, utilization, price,
			 accrued_until, config, last_seq, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (reserve_id) DO UPDATE SET
			total_deposits = $5, total_deposit_notes = $6, total_loan_notes = $7,
			outstanding_debt = $8, uncollected_fees = $9, utilization = $10, price = $11,
			accrued_until = $12, config = $13, last_seq = $14, updated_at = NOW()
		WHERE projections.reserves.last_seq <= $14
	`,
		r.ID, r.Market, int(r.Index), r.TokenMint,
		int64(r.State.TotalDeposits), int64(r.State.TotalDepositNotes), int64(r.State.TotalLoanNotes),
		r.State.OutstandingDebt.String(), r.State.UncollectedFees.String(), util.String(), r.Price.Value.String(),
		int64(r.State.AccruedUntil), string(cfg), seq,
	)
	return err
}

func upsertObligation(ctx context.Context, tx execer, o *state.Obligation, seq int64) error {
	collateral, err := json.Marshal(nonNil(o.Collateral))
	if err != nil {
		return err
	}
	loans, err := json.Marshal(nonNil(o.Loans))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO projections.obligations (obligation_id, market_id, owner_id, collateral, loans, last_seq, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (obligation_id) DO UPDATE SET
			collateral = $4, loans = $5, last_seq = $6, updated_at = NOW()
		WHERE projections.obligations.last_seq <= $6
	`, o.ID, o.Market, o.Owner, string(collateral), string(loans), seq)
	return err
}

func insertLiquidation(ctx context.Context, tx execer, l LiquidationHistoryEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history
			(sequence, market_id, borrower, liquidator, loan_reserve, collateral_reserve,
			 collateral_tokens_sold, proceeds, repaid_tokens, fee_proceeds, repaid_value, slot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (sequence) DO NOTHING
	`,
		l.Sequence, l.MarketID, l.Borrower, l.Liquidator, l.LoanReserve, l.CollateralReserve,
		int64(l.CollateralTokensSold), int64(l.Proceeds), int64(l.RepaidTokens), int64(l.FeeProceeds),
		l.RepaidValue, int64(l.Slot),
	)
	return err
}

func setWatermark(ctx context.Context, tx execer, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (projection_name, last_seq, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (projection_name) DO UPDATE SET last_seq = GREATEST(projections.watermark.last_seq, $2), updated_at = NOW()
	`, watermarkName, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}
	return nil
}

// nonNil keeps empty position sets encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// StateSource is the committed state a rebuild copies reserves and
// obligations from. *core.DeterministicCore satisfies it.
type StateSource interface {
	Markets() []uuid.UUID
	Reserves(market uuid.UUID) ([]*state.Reserve, error)
	Obligations(market uuid.UUID) ([]*state.Obligation, error)
	GetSequence() int64
}

// RebuildProjections rebuilds the state projections. Balances are summed
// from the journal; reserves and obligations are copied from src, which must
// be caught up with the log. The liquidation history is append-only and is
// left in place.
func RebuildProjections(ctx context.Context, db *sql.DB, src StateSource) error {
	logger := observability.NewLogger("projection")
	// GetSequence is the next sequence to assign.
	asOf := src.GetSequence() - 1

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.reserves`,
		`TRUNCATE projections.obligations`,
		`DELETE FROM projections.watermark WHERE projection_name = 'main'`,
	}
	for _, stmt := range truncateStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Paths are scope:entity:subtype:mint, except entity-less external
	// accounts (scope:subtype:mint) which project with the nil owner.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, owner_id, mint, scope, balance, last_seq)
		SELECT
			account_path,
			CASE WHEN split_part(account_path, ':', 4) = ''
			     THEN '00000000-0000-0000-0000-000000000000'::uuid
			     ELSE split_part(account_path, ':', 2)::uuid END,
			mint,
			split_part(account_path, ':', 1),
			SUM(delta),
			MAX(sequence)
		FROM (
			SELECT credit_account AS account_path, mint, amount AS delta, sequence FROM event_log.journal
			UNION ALL
			SELECT debit_account, mint, -amount, sequence FROM event_log.journal
		) j
		GROUP BY account_path, mint
	`); err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}

	for _, market := range src.Markets() {
		reserves, err := src.Reserves(market)
		if err != nil {
			return fmt.Errorf("reserves of %s: %w", market, err)
		}
		for _, r := range reserves {
			if r == nil {
				continue
			}
			if err := upsertReserve(ctx, tx, r, asOf); err != nil {
				return fmt.Errorf("rebuild reserve %s: %w", r.ID, err)
			}
		}
		obligations, err := src.Obligations(market)
		if err != nil {
			return fmt.Errorf("obligations of %s: %w", market, err)
		}
		for _, o := range obligations {
			if err := upsertObligation(ctx, tx, o, asOf); err != nil {
				return fmt.Errorf("rebuild obligation %s: %w", o.ID, err)
			}
		}
	}

	if err := setWatermark(ctx, tx, asOf); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Info().Int64("as_of_seq", asOf).Msg("projection rebuild complete")
	return nil
}
