package core

import (
	"fmt"

	"LendLedger/internal/event"
	"LendLedger/internal/ledger"
	"LendLedger/internal/state"
)

func (c *DeterministicCore) handleInitObligation(t *txn, e *event.InitObligation) error {
	if t.hasObligation(e.Signer) {
		return fmt.Errorf("obligation of %s: %w", e.Signer, state.ErrAlreadyExists)
	}
	t.addObligation(state.NewObligation(t.market.ID, e.Signer))
	return nil
}

func (c *DeterministicCore) handleInitDepositAccount(t *txn, e *event.InitDepositAccount) error {
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	if _, err := t.depositAccount(r.ID, e.Signer); err == nil {
		return fmt.Errorf("deposit account of %s: %w", e.Signer, state.ErrAlreadyExists)
	}
	acct := DepositAccount{
		ID:      state.DepositAccountID(r.ID, e.Signer),
		Owner:   e.Signer,
		Reserve: r.ID,
	}
	t.depositAccounts[acct.ID] = &acct
	return nil
}

func (c *DeterministicCore) handleInitCollateralAccount(t *txn, e *event.InitCollateralAccount) error {
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	ob, err := t.obligation(e.Signer)
	if err != nil {
		return err
	}
	return ob.RegisterCollateral(state.CollateralAccountID(r.ID, ob.ID), r.Index)
}

func (c *DeterministicCore) handleInitLoanAccount(t *txn, e *event.InitLoanAccount) error {
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	ob, err := t.obligation(e.Signer)
	if err != nil {
		return err
	}
	return ob.RegisterLoan(state.LoanAccountID(r.ID, ob.ID), r.Index)
}

// handleCloseDepositAccount requires every deposit note to be withdrawn first.
func (c *DeterministicCore) handleCloseDepositAccount(t *txn, e *event.CloseDepositAccount) error {
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	acct, err := t.depositAccount(r.ID, e.Signer)
	if err != nil {
		return err
	}
	if held := t.journals.CurrentBalance(ledger.DepositNotesKey(acct.ID, r.DepositNoteMint)); held != 0 {
		return fmt.Errorf("deposit account holds %d notes: %w", held, state.ErrPositionNotEmpty)
	}
	t.depositAccounts[acct.ID] = nil
	return nil
}

func (c *DeterministicCore) handleCloseCollateralAccount(t *txn, e *event.CloseCollateralAccount) error {
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	ob, err := t.obligation(e.Signer)
	if err != nil {
		return err
	}
	return ob.UnregisterCollateral(state.CollateralAccountID(r.ID, ob.ID))
}

func (c *DeterministicCore) handleCloseLoanAccount(t *txn, e *event.CloseLoanAccount) error {
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	ob, err := t.obligation(e.Signer)
	if err != nil {
		return err
	}
	return ob.UnregisterLoan(state.LoanAccountID(r.ID, ob.ID))
}

func (c *DeterministicCore) handleCloseObligation(t *txn, e *event.CloseObligation) error {
	ob, err := t.obligation(e.Signer)
	if err != nil {
		return err
	}
	if !ob.IsEmpty() {
		return fmt.Errorf("obligation of %s: %w", e.Signer, state.ErrObligationNotEmpty)
	}
	t.closeObligation(ob)
	return nil
}

// handleFundWallet credits tokens from outside the ledger. Only the market
// owner may sign it.
func (c *DeterministicCore) handleFundWallet(t *txn, e *event.FundWallet) error {
	if err := t.market.VerifyOwner(e.Signer); err != nil {
		return err
	}
	if e.Amount == 0 {
		return fmt.Errorf("fund amount must be > 0: %w", state.ErrInvalidParameter)
	}
	return t.journals.Transfer(ledger.JournalTypeFundWallet, ledger.FundingKey(e.Mint), ledger.WalletKey(e.Owner, e.Mint), e.Amount)
}
