package core

import (
	"encoding/json"
	"fmt"
	"time"

	"LendLedger/internal/event"
	"LendLedger/internal/exchange"
	"LendLedger/internal/ledger"
	"LendLedger/internal/observability"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DeterministicCore is the single-threaded command processor
type DeterministicCore struct {
	sequence       int64
	chain          hashChain
	balanceTracker *ledger.BalanceTracker
	validator      *ledger.InvariantValidator
	markets        map[uuid.UUID]*marketState
	exchange       exchange.Exchange
	idempotency    *IdempotencyChecker
	slotValidator  *SlotValidator
	metrics        *observability.Metrics
	logger         zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput

	// set while re-applying logged commands
	replaying   bool
	replayFills []exchange.Fill
}

// CoreOutput is everything a committed command produced. Reserves and
// obligations are the post-commit records the command touched; the core
// never mutates them again, so workers may read them freely.
type CoreOutput struct {
	Envelope          *event.EventEnvelope
	Batch             *ledger.Batch
	Events            []event.Outbound
	Fills             []exchange.Fill
	Market            *state.Market
	Reserves          []*state.Reserve
	Obligations       []*state.Obligation
	ClosedObligations []uuid.UUID
	DepositAccounts   []DepositAccount
	ClosedAccounts    []uuid.UUID
	Balances          map[ledger.AccountKey]int64
}

func NewDeterministicCore(
	startSequence int64,
	dex exchange.Exchange,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()

	return &DeterministicCore{
		sequence:       startSequence,
		chain:          newHashChain(),
		balanceTracker: balanceTracker,
		validator:      ledger.NewInvariantValidator(balanceTracker),
		markets:        make(map[uuid.UUID]*marketState),
		exchange:       dex,
		idempotency:    NewIdempotencyChecker(1_000_000, dbChecker, metrics),
		slotValidator:  NewSlotValidator(metrics),
		metrics:        metrics,
		logger:         zerolog.Nop(),
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// SetLogger attaches a logger for rejected-command diagnostics.
func (c *DeterministicCore) SetLogger(l zerolog.Logger) {
	c.logger = l
}

// ProcessCommand is the main processing pipeline. A duplicate command
// returns a nil output and no error.
func (c *DeterministicCore) ProcessCommand(cmd event.Command) (*CoreOutput, error) {
	start := time.Now()
	commandType := cmd.CommandType().String()
	idempotencyKey := cmd.IdempotencyKey()
	head := cmd.Head()

	// Step 1: Idempotency check (two-tier)
	if c.idempotency.IsDuplicate(commandType, idempotencyKey) {
		c.reject(commandType, "duplicate")
		return nil, nil
	}

	// Step 2: Slot ordering per market
	partition := head.Market.String()
	if err := c.slotValidator.ValidateSlot(partition, head.Slot); err != nil {
		c.reject(commandType, "stale_slot")
		return nil, err
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", commandType, err)
	}

	// Step 3: Dispatch against staged state
	base := c.markets[head.Market]
	if base == nil && cmd.CommandType() != event.CommandTypeInitMarket {
		c.reject(commandType, state.ErrorCode(state.ErrMarketNotFound).Name)
		return nil, fmt.Errorf("market %s: %w", head.Market, state.ErrMarketNotFound)
	}
	t := newTxn(cmd, base, c.balanceTracker)
	if err := c.dispatch(t, cmd); err != nil {
		c.reject(commandType, state.ErrorCode(err).Name)
		c.logger.Debug().
			Str("command_type", commandType).
			Str("command_id", idempotencyKey).
			Err(err).
			Msg("command rejected")
		return nil, err
	}

	// Step 4: Seal, validate and apply vault instructions
	batch := t.journals.Seal(idempotencyKey, c.sequence, head.Slot)
	if batch != nil {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			panic(fmt.Sprintf("FATAL: apply batch failed: %v", err))
		}
		if c.metrics != nil {
			for _, j := range batch.Journals {
				c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
	}

	// Step 5: Commit staged records
	output := c.commit(t)
	output.Batch = batch

	// Step 6: Post-checks
	if err := c.postCheckInvariants(output); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 7: Hash chain
	hashStart := time.Now()
	stateDigest := c.computeStateDigest(cmd, output)
	prevHash, stateHash := c.chain.link(c.sequence, stateDigest)
	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	output.Envelope = &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		CommandType:    cmd.CommandType(),
		MarketID:       head.Market,
		Signer:         head.Signer,
		Slot:           head.Slot,
		Payload:        payload,
		Fills:          output.Fills,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	c.sequence++

	// Step 8: Emit outputs
	// Persistence is a blocking send (backpressure); projections drop on a
	// full channel and rebuild from the event log.
	if c.persistChan != nil && !c.replaying {
		c.persistChan <- *output
	}
	if c.projectionChan != nil && !c.replaying {
		select {
		case c.projectionChan <- *output:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("core").Inc()
			}
		}
	}

	// Step 9: Mark as processed
	c.idempotency.MarkProcessed(commandType, idempotencyKey)
	c.slotValidator.Advance(partition, head.Slot)

	if c.metrics != nil {
		c.metrics.CoreCommandsApplied.WithLabelValues(commandType).Inc()
		c.metrics.CoreCommandDuration.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		for _, r := range output.Reserves {
			c.observeReserve(r)
		}
	}

	return output, nil
}

func (c *DeterministicCore) reject(commandType, reason string) {
	if c.metrics != nil {
		c.metrics.CoreCommandsRejected.WithLabelValues(commandType, reason).Inc()
	}
}

func (c *DeterministicCore) observeReserve(r *state.Reserve) {
	label := r.ID.String()
	if util, err := r.Utilization(); err == nil {
		f, _ := util.Decimal().Float64()
		c.metrics.ReserveUtilization.WithLabelValues(label).Set(f)
	}
	c.metrics.ReserveDeposits.WithLabelValues(label).Set(float64(r.State.TotalDeposits))
	debt, _ := r.State.OutstandingDebt.Decimal().Float64()
	c.metrics.ReserveDebt.WithLabelValues(label).Set(debt)
}

// commit moves staged records into committed state and collects the output.
func (c *DeterministicCore) commit(t *txn) *CoreOutput {
	ms := t.base
	if ms == nil {
		ms = newMarketState(t.market)
		c.markets[t.market.ID] = ms
	}
	ms.market = t.market

	for len(ms.reserves) < t.reserveCount() {
		ms.reserves = append(ms.reserves, nil)
	}
	reserves := t.touchedReserves()
	for _, r := range reserves {
		ms.reserves[r.Index] = r
	}

	out := &CoreOutput{
		Events:   t.events,
		Fills:    t.fills,
		Market:   ms.market,
		Reserves: reserves,
		Balances: make(map[ledger.AccountKey]int64),
	}

	for _, id := range sortedIDs(t.obligations) {
		ob := t.obligations[id]
		ms.obligations[id] = ob
		out.Obligations = append(out.Obligations, ob)
	}
	for _, id := range sortedIDs(t.closedObligation) {
		delete(ms.obligations, id)
		out.ClosedObligations = append(out.ClosedObligations, id)
	}
	for _, id := range sortedIDs(t.depositAccounts) {
		acct := t.depositAccounts[id]
		if acct == nil {
			delete(ms.depositAccounts, id)
			out.ClosedAccounts = append(out.ClosedAccounts, id)
			continue
		}
		ms.depositAccounts[id] = *acct
		out.DepositAccounts = append(out.DepositAccounts, *acct)
	}
	return out
}

// postCheckInvariants validates vault backing and non-negative balances for
// everything the command touched.
func (c *DeterministicCore) postCheckInvariants(out *CoreOutput) error {
	if out.Batch != nil {
		for _, j := range out.Batch.Journals {
			for _, key := range []ledger.AccountKey{j.DebitAccount, j.CreditAccount} {
				out.Balances[key] = c.balanceTracker.GetBalance(key)
				if key.IsExternal() {
					continue
				}
				if err := c.balanceTracker.ValidateNonNegative(key); err != nil {
					return err
				}
			}
		}
	}

	for _, r := range out.Reserves {
		if err := c.validator.ValidateBalance(ledger.VaultKey(r.Vault, r.TokenMint), r.State.TotalDeposits); err != nil {
			return fmt.Errorf("reserve %s vault: %w", r.ID, err)
		}
		if err := c.validator.ValidateSupply(r.DepositNoteMint, r.State.TotalDepositNotes); err != nil {
			return fmt.Errorf("reserve %s deposit notes: %w", r.ID, err)
		}
		if err := c.validator.ValidateSupply(r.LoanNoteMint, r.State.TotalLoanNotes); err != nil {
			return fmt.Errorf("reserve %s loan notes: %w", r.ID, err)
		}
	}

	// Periodic global zero-sum check
	if c.sequence > 0 && c.sequence%1000 == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("at seq %d: %w", c.sequence, err)
		}
	}
	return nil
}

func (c *DeterministicCore) dispatch(t *txn, cmd event.Command) error {
	switch e := cmd.(type) {
	case *event.InitMarket:
		return c.handleInitMarket(t, e)
	case *event.InitReserve:
		return c.handleInitReserve(t, e)
	case *event.UpdateReserveConfig:
		return c.handleUpdateReserveConfig(t, e)
	case *event.SetMarketFlags:
		return c.handleSetMarketFlags(t, e)
	case *event.SetMarketOwner:
		return c.handleSetMarketOwner(t, e)
	case *event.RefreshReserve:
		return c.handleRefreshReserve(t, e)
	case *event.InitObligation:
		return c.handleInitObligation(t, e)
	case *event.InitDepositAccount:
		return c.handleInitDepositAccount(t, e)
	case *event.InitCollateralAccount:
		return c.handleInitCollateralAccount(t, e)
	case *event.InitLoanAccount:
		return c.handleInitLoanAccount(t, e)
	case *event.CloseDepositAccount:
		return c.handleCloseDepositAccount(t, e)
	case *event.CloseCollateralAccount:
		return c.handleCloseCollateralAccount(t, e)
	case *event.CloseLoanAccount:
		return c.handleCloseLoanAccount(t, e)
	case *event.CloseObligation:
		return c.handleCloseObligation(t, e)
	case *event.FundWallet:
		return c.handleFundWallet(t, e)
	case *event.Deposit:
		return c.handleDeposit(t, e)
	case *event.Withdraw:
		return c.handleWithdraw(t, e)
	case *event.DepositCollateral:
		return c.handleDepositCollateral(t, e)
	case *event.WithdrawCollateral:
		return c.handleWithdrawCollateral(t, e)
	case *event.Borrow:
		return c.handleBorrow(t, e)
	case *event.Repay:
		return c.handleRepay(t, e)
	case *event.Liquidate:
		return c.handleLiquidate(t, e)
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}
}

// --- Read access (core goroutine only) ---

// Market returns the committed market record.
func (c *DeterministicCore) Market(id uuid.UUID) (*state.Market, error) {
	ms, ok := c.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, state.ErrMarketNotFound)
	}
	return ms.market, nil
}

// Reserves returns the committed reserves of a market by index.
func (c *DeterministicCore) Reserves(market uuid.UUID) ([]*state.Reserve, error) {
	ms, ok := c.markets[market]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", market, state.ErrMarketNotFound)
	}
	return append([]*state.Reserve(nil), ms.reserves...), nil
}

// Markets lists market ids in byte order.
func (c *DeterministicCore) Markets() []uuid.UUID {
	return sortedIDs(c.markets)
}

// Obligations returns copies of a market's committed obligations in id order.
func (c *DeterministicCore) Obligations(market uuid.UUID) ([]*state.Obligation, error) {
	ms, ok := c.markets[market]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", market, state.ErrMarketNotFound)
	}
	out := make([]*state.Obligation, 0, len(ms.obligations))
	for _, id := range sortedIDs(ms.obligations) {
		out = append(out, ms.obligations[id].Clone())
	}
	return out, nil
}

// LastSlot returns the newest slot applied to a market, or 0.
func (c *DeterministicCore) LastSlot(market uuid.UUID) uint64 {
	slot, _ := c.slotValidator.LastSlot(market.String())
	return slot
}

// Obligation returns a copy of owner's committed obligation.
func (c *DeterministicCore) Obligation(market, owner uuid.UUID) (*state.Obligation, error) {
	ms, ok := c.markets[market]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", market, state.ErrMarketNotFound)
	}
	ob, ok := ms.obligations[state.ObligationID(market, owner)]
	if !ok {
		return nil, fmt.Errorf("obligation of %s: %w", owner, state.ErrObligationNotFound)
	}
	return ob.Clone(), nil
}

// Balance returns the committed balance of a vault-ledger account.
func (c *DeterministicCore) Balance(key ledger.AccountKey) int64 {
	return c.balanceTracker.GetBalance(key)
}

// GetSequence returns the next global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.chain.tip
}
