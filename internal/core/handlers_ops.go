package core

import (
	"fmt"

	"LendLedger/internal/event"
	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

func requireAmount(a state.Amount) error {
	if a.Value == 0 {
		return fmt.Errorf("amount must be > 0: %w", state.ErrInvalidParameter)
	}
	return nil
}

// reserveInfo evaluates a staged reserve through a per-command cache.
func reserveInfo(t *txn, r *state.Reserve) (*state.ReserveInfoCache, state.ReserveInfo, error) {
	cache := state.NewReserveInfoCache(t)
	info, err := cache.GetCached(r.Index, t.slot)
	return cache, info, err
}

// registeredCollateral resolves owner's collateral custody for r.
func registeredCollateral(ob *state.Obligation, r *state.Reserve) (uuid.UUID, error) {
	custody := state.CollateralAccountID(r.ID, ob.ID)
	if !ob.HasCollateralCustody(custody) {
		return uuid.Nil, fmt.Errorf("collateral account %s: %w", custody, state.ErrObligationAccountMismatch)
	}
	return custody, nil
}

func registeredLoan(ob *state.Obligation, r *state.Reserve) (uuid.UUID, error) {
	custody := state.LoanAccountID(r.ID, ob.ID)
	if !ob.HasLoanCustody(custody) {
		return uuid.Nil, fmt.Errorf("loan account %s: %w", custody, state.ErrObligationAccountMismatch)
	}
	return custody, nil
}

// handleDeposit moves wallet tokens into the vault for deposit notes. The
// depositor never receives more notes than the tokens paid are worth.
func (c *DeterministicCore) handleDeposit(t *txn, e *event.Deposit) error {
	if err := t.market.VerifyAbilityDeposit(); err != nil {
		return err
	}
	if err := requireAmount(e.Amount); err != nil {
		return err
	}
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	acct, err := t.depositAccount(r.ID, e.Signer)
	if err != nil {
		return err
	}
	_, info, err := reserveInfo(t, r)
	if err != nil {
		return err
	}

	notes, err := e.Amount.AsDepositNotes(info, fpmath.RoundDown)
	if err != nil {
		return err
	}
	tokens, err := e.Amount.AsTokens(info, fpmath.RoundUp)
	if err != nil {
		return err
	}
	if notes == 0 {
		return fmt.Errorf("deposit of %d tokens mints no notes: %w", tokens, state.ErrInvalidParameter)
	}

	if err := t.journals.Transfer(ledger.JournalTypeDeposit,
		ledger.WalletKey(e.Signer, r.TokenMint), ledger.VaultKey(r.Vault, r.TokenMint), tokens); err != nil {
		return err
	}
	if err := t.journals.Mint(ledger.JournalTypeDepositNoteMint,
		ledger.DepositNotesKey(acct.ID, r.DepositNoteMint), notes); err != nil {
		return err
	}
	if err := r.Deposit(tokens, notes); err != nil {
		return err
	}

	t.emit(event.DepositEvent{Depositor: e.Signer, Reserve: r.ID, Tokens: tokens, Notes: notes})
	return nil
}

// handleWithdraw burns deposit notes for vault tokens. Withdrawals are never
// halted.
func (c *DeterministicCore) handleWithdraw(t *txn, e *event.Withdraw) error {
	if err := requireAmount(e.Amount); err != nil {
		return err
	}
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	acct, err := t.depositAccount(r.ID, e.Signer)
	if err != nil {
		return err
	}
	_, info, err := reserveInfo(t, r)
	if err != nil {
		return err
	}

	notes, err := e.Amount.AsDepositNotes(info, fpmath.RoundUp)
	if err != nil {
		return err
	}
	tokens, err := e.Amount.AsTokens(info, fpmath.RoundDown)
	if err != nil {
		return err
	}

	if err := t.journals.Burn(ledger.JournalTypeDepositNoteBurn,
		ledger.DepositNotesKey(acct.ID, r.DepositNoteMint), notes); err != nil {
		return err
	}
	if err := r.Withdraw(tokens, notes); err != nil {
		return err
	}
	if err := t.journals.Transfer(ledger.JournalTypeWithdraw,
		ledger.VaultKey(r.Vault, r.TokenMint), ledger.WalletKey(e.Signer, r.TokenMint), tokens); err != nil {
		return err
	}

	t.emit(event.WithdrawEvent{Depositor: e.Signer, Reserve: r.ID, Tokens: tokens, Notes: notes})
	return nil
}

func (c *DeterministicCore) handleDepositCollateral(t *txn, e *event.DepositCollateral) error {
	if err := t.market.VerifyAbilityDeposit(); err != nil {
		return err
	}
	if err := requireAmount(e.Amount); err != nil {
		return err
	}
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	acct, err := t.depositAccount(r.ID, e.Signer)
	if err != nil {
		return err
	}
	ob, err := t.obligation(e.Signer)
	if err != nil {
		return err
	}
	custody, err := registeredCollateral(ob, r)
	if err != nil {
		return err
	}
	_, info, err := reserveInfo(t, r)
	if err != nil {
		return err
	}

	notes, err := e.Amount.AsDepositNotes(info, fpmath.RoundDown)
	if err != nil {
		return err
	}
	if err := t.journals.Transfer(ledger.JournalTypeCollateralPledge,
		ledger.DepositNotesKey(acct.ID, r.DepositNoteMint), ledger.CollateralKey(custody, r.DepositNoteMint), notes); err != nil {
		return err
	}
	if err := ob.DepositCollateral(custody, notes); err != nil {
		return err
	}

	t.emit(event.DepositCollateralEvent{Depositor: e.Signer, Reserve: r.ID, Notes: notes})
	return nil
}

// handleWithdrawCollateral releases pledged notes as long as the obligation
// stays healthy afterwards.
func (c *DeterministicCore) handleWithdrawCollateral(t *txn, e *event.WithdrawCollateral) error {
	if err := requireAmount(e.Amount); err != nil {
		return err
	}
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	acct, err := t.depositAccount(r.ID, e.Signer)
	if err != nil {
		return err
	}
	ob, err := t.obligation(e.Signer)
	if err != nil {
		return err
	}
	custody, err := registeredCollateral(ob, r)
	if err != nil {
		return err
	}
	cache, info, err := reserveInfo(t, r)
	if err != nil {
		return err
	}

	notes, err := e.Amount.AsDepositNotes(info, fpmath.RoundUp)
	if err != nil {
		return err
	}
	if err := t.journals.Transfer(ledger.JournalTypeCollateralRelease,
		ledger.CollateralKey(custody, r.DepositNoteMint), ledger.DepositNotesKey(acct.ID, r.DepositNoteMint), notes); err != nil {
		return err
	}
	if err := ob.WithdrawCollateral(custody, notes); err != nil {
		return err
	}

	healthy, err := ob.IsHealthy(cache, t.slot)
	if err != nil {
		return err
	}
	if !healthy {
		return state.ErrObligationUnhealthy
	}

	t.emit(event.WithdrawCollateralEvent{Depositor: e.Signer, Reserve: r.ID, Notes: notes})
	return nil
}

// handleBorrow mints loan notes for the requested tokens plus the
// origination fee and pays the requested tokens out of the vault.
func (c *DeterministicCore) handleBorrow(t *txn, e *event.Borrow) error {
	if err := t.market.VerifyAbilityBorrow(); err != nil {
		return err
	}
	if err := requireAmount(e.Amount); err != nil {
		return err
	}
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	ob, err := t.obligation(e.Signer)
	if err != nil {
		return err
	}
	custody, err := registeredLoan(ob, r)
	if err != nil {
		return err
	}
	cache, info, err := reserveInfo(t, r)
	if err != nil {
		return err
	}

	requested, err := e.Amount.AsLoanTokens(info, fpmath.RoundDown)
	if err != nil {
		return err
	}
	fees, err := r.BorrowFee(requested)
	if err != nil {
		return err
	}
	if requested+fees < requested {
		return fmt.Errorf("borrow %d plus fee %d: %w", requested, fees, state.ErrArithmeticOverflow)
	}
	notes, err := info.LoanNotesFromTokens(requested+fees, fpmath.RoundUp)
	if err != nil {
		return err
	}

	debt, err := r.Borrow(t.slot, requested, notes, fees)
	if err != nil {
		return err
	}
	if err := ob.Borrow(custody, notes); err != nil {
		return err
	}
	if err := t.journals.Mint(ledger.JournalTypeLoanNoteMint,
		ledger.LoanKey(custody, r.LoanNoteMint), notes); err != nil {
		return err
	}

	healthy, err := ob.IsHealthy(cache, t.slot)
	if err != nil {
		return err
	}
	if !healthy {
		return state.ErrInsufficientCollateral
	}

	if err := t.journals.Transfer(ledger.JournalTypeBorrow,
		ledger.VaultKey(r.Vault, r.TokenMint), ledger.WalletKey(e.Signer, r.TokenMint), requested); err != nil {
		return err
	}

	t.emit(event.BorrowEvent{Borrower: e.Signer, Reserve: r.ID, Tokens: requested, Fees: fees, Debt: debt})
	return nil
}

// handleRepay burns at most the notes owed; the payer is charged the tokens
// those notes are worth, rounded up.
func (c *DeterministicCore) handleRepay(t *txn, e *event.Repay) error {
	if err := t.market.VerifyAbilityRepay(); err != nil {
		return err
	}
	if err := requireAmount(e.Amount); err != nil {
		return err
	}
	borrower := e.Borrower
	if borrower == uuid.Nil {
		borrower = e.Signer
	}
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	ob, err := t.obligation(borrower)
	if err != nil {
		return err
	}
	custody, err := registeredLoan(ob, r)
	if err != nil {
		return err
	}
	_, info, err := reserveInfo(t, r)
	if err != nil {
		return err
	}

	owed, err := ob.LoanNotes(custody)
	if err != nil {
		return err
	}
	notes, err := e.Amount.AsLoanNotes(info, fpmath.RoundDown)
	if err != nil {
		return err
	}
	notes = min(notes, owed)
	tokens, err := info.LoanNotesToTokens(notes, fpmath.RoundUp)
	if err != nil {
		return err
	}

	if err := t.journals.Transfer(ledger.JournalTypeRepay,
		ledger.WalletKey(e.Signer, r.TokenMint), ledger.VaultKey(r.Vault, r.TokenMint), tokens); err != nil {
		return err
	}
	if err := r.Repay(t.slot, tokens, notes); err != nil {
		return err
	}
	if err := ob.Repay(custody, notes); err != nil {
		return err
	}
	if err := t.journals.Burn(ledger.JournalTypeLoanNoteBurn,
		ledger.LoanKey(custody, r.LoanNoteMint), notes); err != nil {
		return err
	}

	t.emit(event.RepayEvent{Payer: e.Signer, Borrower: borrower, Reserve: r.ID, Tokens: tokens, Notes: notes})
	return nil
}
