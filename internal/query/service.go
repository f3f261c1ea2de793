package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"LendLedger/internal/observability"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a queried record has no projection row.
var ErrNotFound = errors.New("not found")

// QueryService provides read-only access to projection tables. Queries are
// served via gRPC and HTTP/JSON (grpc-gateway). All responses carry
// as_of_sequence, the projection watermark, for freshness.
type QueryService struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, metrics: metrics}
}

// Observe records a query's latency and outcome under endpoint.
func (qs *QueryService) Observe(endpoint string, start time.Time, err error) {
	if qs.metrics == nil {
		return
	}
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		qs.metrics.QueryRequests.WithLabelValues(endpoint, "ok").Inc()
	case errors.Is(err, ErrNotFound):
		qs.metrics.QueryRequests.WithLabelValues(endpoint, "not_found").Inc()
	default:
		qs.metrics.QueryRequests.WithLabelValues(endpoint, "error").Inc()
		qs.metrics.QueryErrors.WithLabelValues(endpoint, "internal").Inc()
	}
}

// GetReserves returns a market's reserves in index order.
func (qs *QueryService) GetReserves(ctx context.Context, market uuid.UUID) ([]ReserveResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT reserve_id, market_id, reserve_index, token_mint, total_deposits, total_deposit_notes,
		       total_loan_notes, outstanding_debt::text, uncollected_fees::text, utilization::text,
		       price::text, accrued_until, config, last_seq
		FROM projections.reserves
		WHERE market_id = $1
		ORDER BY reserve_index
	`, market)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReserveResponse
	for rows.Next() {
		r := ReserveResponse{AsOfSequence: asOfSeq}
		var cfg []byte
		if err := rows.Scan(
			&r.ReserveID, &r.MarketID, &r.Index, &r.TokenMint, &r.TotalDeposits, &r.TotalDepositNotes,
			&r.TotalLoanNotes, &r.OutstandingDebt, &r.UncollectedFees, &r.Utilization,
			&r.Price, &r.AccruedUntil, &cfg, &r.LastSequence,
		); err != nil {
			return nil, err
		}
		r.Config = cfg
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetObligation returns owner's obligation in market.
func (qs *QueryService) GetObligation(ctx context.Context, market, owner uuid.UUID) (*ObligationResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	o := ObligationResponse{AsOfSequence: asOfSeq}
	var collateral, loans []byte
	err = qs.db.QueryRowContext(ctx, `
		SELECT obligation_id, market_id, owner_id, collateral, loans, last_seq
		FROM projections.obligations
		WHERE market_id = $1 AND owner_id = $2
	`, market, owner).Scan(&o.ObligationID, &o.MarketID, &o.Owner, &collateral, &loans, &o.LastSequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("obligation of %s in %s: %w", owner, market, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	o.Collateral = collateral
	o.Loans = loans
	return &o, nil
}

// GetLiquidationHistory returns a borrower's liquidations, newest first.
// beforeSequence pages backwards when set.
func (qs *QueryService) GetLiquidationHistory(
	ctx context.Context,
	borrower uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]LiquidationHistoryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT sequence, market_id, borrower, liquidator, loan_reserve, collateral_reserve,
		       collateral_tokens_sold, proceeds, repaid_tokens, fee_proceeds, repaid_value::text, slot
		FROM projections.liquidation_history
		WHERE borrower = $1
	`
	args := []interface{}{borrower}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []LiquidationHistoryResponse
	for rows.Next() {
		h := LiquidationHistoryResponse{AsOfSequence: asOfSeq}
		if err := rows.Scan(
			&h.Sequence, &h.MarketID, &h.Borrower, &h.Liquidator, &h.LoanReserve, &h.CollateralReserve,
			&h.CollateralTokensSold, &h.Proceeds, &h.RepaidTokens, &h.FeeProceeds, &h.RepaidValue, &h.Slot,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// GetJournalHistory returns journals touching accountPath, newest first.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	accountPath string,
	limit int,
	beforeSequence *int64,
) ([]JournalHistoryEntry, error) {
	query := `
		SELECT journal_id, batch_id, event_ref, sequence, debit_account, credit_account,
		       mint, amount, journal_type, slot
		FROM event_log.journal
		WHERE (debit_account = $1 OR credit_account = $1)
	`
	args := []interface{}{accountPath}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC, journal_id"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Mint, &e.Amount,
			&e.JournalType, &e.Slot,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the event log and that
// projected balances of every mint sum to zero.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	report := &IntegrityReport{AsOfSequence: asOfSeq}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// External accounts carry the negated supply, so every mint nets to zero.
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT mint, SUM(balance) AS total
		FROM projections.balances
		GROUP BY mint
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var u UnbalancedMint
		if err := balanceRows.Scan(&u.Mint, &u.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedMints = append(report.UnbalancedMints, u)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedMints) == 0
	return report, nil
}

// --- helpers ---

// getWatermark returns the last projected sequence, or -1 before the first
// projection.
func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_seq FROM projections.watermark WHERE projection_name = 'main'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	return seq, err
}
