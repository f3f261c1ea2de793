package state

import (
	"strings"

	"github.com/google/uuid"
)

// Namespace roots every derived identifier.
var Namespace = uuid.MustParse("6f1e4c2a-9b7d-5e30-8a41-2c5d7f9e0b13")

// IDKind tags what a derived identifier names.
type IDKind string

const (
	KindMarket          IDKind = "market"
	KindReserve         IDKind = "reserve"
	KindVault           IDKind = "vault"
	KindDepositNoteMint IDKind = "deposit-note-mint"
	KindLoanNoteMint    IDKind = "loan-note-mint"
	KindDeposits        IDKind = "deposits"
	KindObligation      IDKind = "obligation"
	KindCollateral      IDKind = "collateral"
	KindLoan            IDKind = "loan"
	KindLiquidation     IDKind = "liquidation"
)

// DeriveID deterministically maps (kind, parts...) to a UUIDv5. The same
// inputs always produce the same id, so ids work as storage keys without a
// registry.
func DeriveID(kind IDKind, parts ...uuid.UUID) uuid.UUID {
	var b strings.Builder
	b.WriteString(string(kind))
	for _, p := range parts {
		b.WriteByte('|')
		b.WriteString(p.String())
	}
	return uuid.NewSHA1(Namespace, []byte(b.String()))
}

func ReserveID(market, tokenMint uuid.UUID) uuid.UUID {
	return DeriveID(KindReserve, market, tokenMint)
}

func VaultID(reserve uuid.UUID) uuid.UUID {
	return DeriveID(KindVault, reserve)
}

func DepositNoteMintID(reserve uuid.UUID) uuid.UUID {
	return DeriveID(KindDepositNoteMint, reserve)
}

func LoanNoteMintID(reserve uuid.UUID) uuid.UUID {
	return DeriveID(KindLoanNoteMint, reserve)
}

// DepositAccountID names the account holding a depositor's free deposit notes.
func DepositAccountID(reserve, owner uuid.UUID) uuid.UUID {
	return DeriveID(KindDeposits, reserve, owner)
}

func ObligationID(market, owner uuid.UUID) uuid.UUID {
	return DeriveID(KindObligation, market, owner)
}

// CollateralAccountID names the custody account holding deposit notes pledged
// to an obligation.
func CollateralAccountID(reserve, obligation uuid.UUID) uuid.UUID {
	return DeriveID(KindCollateral, reserve, obligation)
}

// LoanAccountID names the custody account holding an obligation's loan notes.
func LoanAccountID(reserve, obligation uuid.UUID) uuid.UUID {
	return DeriveID(KindLoan, reserve, obligation)
}
