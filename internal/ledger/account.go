package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	// Accounts a user signs for.
	AccountScopeUser AccountScope = iota
	// Accounts the market program controls: vaults and custody accounts.
	AccountScopeSystem
	// Boundary accounts whose balances mirror supply leaving or entering
	// the ledger. Only these may go negative.
	AccountScopeExternal
)

func (s AccountScope) String() string {
	switch s {
	case AccountScopeUser:
		return "user"
	case AccountScopeSystem:
		return "system"
	case AccountScopeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet AccountSubType = iota
	SubTypeDepositNotes

	// System sub-types
	SubTypeVault
	SubTypeCollateral
	SubTypeLoan

	// External sub-types
	SubTypeIssuance
	SubTypeFunding
	SubTypeExchange
)

// AccountKey is the in-memory key for balance tracking. Every account holds
// exactly one mint.
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte
	SubType  AccountSubType
	Mint     [16]byte
}

// WalletKey is an owner's plain token account for mint.
func WalletKey(owner, mint uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeUser, EntityID: owner, SubType: SubTypeWallet, Mint: mint}
}

// DepositNotesKey is the owner-signed account holding a reserve's deposit notes.
func DepositNotesKey(depositAccount, noteMint uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeUser, EntityID: depositAccount, SubType: SubTypeDepositNotes, Mint: noteMint}
}

// VaultKey is the reserve vault holding the underlying token.
func VaultKey(vault, tokenMint uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeSystem, EntityID: vault, SubType: SubTypeVault, Mint: tokenMint}
}

// CollateralKey is the custody account for deposit notes pledged to an obligation.
func CollateralKey(custody, noteMint uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeSystem, EntityID: custody, SubType: SubTypeCollateral, Mint: noteMint}
}

// LoanKey is the custody account holding the loan notes of an obligation.
func LoanKey(custody, noteMint uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeSystem, EntityID: custody, SubType: SubTypeLoan, Mint: noteMint}
}

// IssuanceKey is the counterpart of every mint and burn of mint. Its balance
// is the negated circulating supply.
func IssuanceKey(mint uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, SubType: SubTypeIssuance, Mint: mint}
}

// FundingKey is the source of externally credited wallet funds.
func FundingKey(mint uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, SubType: SubTypeFunding, Mint: mint}
}

// ExchangeKey is an exchange market's settlement account for mint.
func ExchangeKey(dexMarket, mint uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, EntityID: dexMarket, SubType: SubTypeExchange, Mint: mint}
}

// ID returns the account's own identifier.
func (k AccountKey) ID() uuid.UUID { return uuid.UUID(k.EntityID) }

// MintID returns the mint the account holds.
func (k AccountKey) MintID() uuid.UUID { return uuid.UUID(k.Mint) }

// IsExternal reports whether the account may carry a negative balance.
func (k AccountKey) IsExternal() bool { return k.Scope == AccountScopeExternal }

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	mint := uuid.UUID(k.Mint).String()
	switch k.Scope {
	case AccountScopeUser, AccountScopeSystem:
		return fmt.Sprintf("%s:%s:%s:%s", k.Scope, uuid.UUID(k.EntityID), k.subTypeName(), mint)
	case AccountScopeExternal:
		if k.EntityID != [16]byte{} {
			return fmt.Sprintf("external:%s:%s:%s", uuid.UUID(k.EntityID), k.subTypeName(), mint)
		}
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), mint)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypeDepositNotes:
		return "deposit_notes"
	case SubTypeVault:
		return "vault"
	case SubTypeCollateral:
		return "collateral"
	case SubTypeLoan:
		return "loan"
	case SubTypeIssuance:
		return "issuance"
	case SubTypeFunding:
		return "funding"
	case SubTypeExchange:
		return "exchange"
	default:
		return "unknown"
	}
}
