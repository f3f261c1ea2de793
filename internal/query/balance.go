package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// BalanceResponse is one projected vault-ledger account balance.
type BalanceResponse struct {
	AccountPath  string    `json:"account_path"`
	Owner        uuid.UUID `json:"owner"`
	Mint         uuid.UUID `json:"mint"`
	Scope        string    `json:"scope"`
	Balance      int64     `json:"balance"`
	LastSequence int64     `json:"last_sequence"`

	// Last applied event sequence of the projection as a whole.
	AsOfSequence int64 `json:"as_of_sequence"`
}

// GetBalances returns every projected account whose entity is owner:
// wallets and deposit-note accounts for users, vaults and custody accounts
// for reserves and obligations.
func (qs *QueryService) GetBalances(ctx context.Context, owner uuid.UUID) ([]BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT account_path, owner_id, mint, scope, balance, last_seq
		FROM projections.balances
		WHERE owner_id = $1
		ORDER BY account_path
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BalanceResponse
	for rows.Next() {
		b := BalanceResponse{AsOfSequence: asOfSeq}
		if err := rows.Scan(&b.AccountPath, &b.Owner, &b.Mint, &b.Scope, &b.Balance, &b.LastSequence); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetAccountBalance returns one account by path. Accounts never written
// report a zero balance.
func (qs *QueryService) GetAccountBalance(ctx context.Context, accountPath string) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	b := BalanceResponse{AccountPath: accountPath, AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT owner_id, mint, scope, balance, last_seq
		FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&b.Owner, &b.Mint, &b.Scope, &b.Balance, &b.LastSequence)
	if errors.Is(err, sql.ErrNoRows) {
		return &b, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
