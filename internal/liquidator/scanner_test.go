package liquidator_test

import (
	"strconv"
	"testing"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/exchange"
	"LendLedger/internal/liquidator"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/observability"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

var (
	marketID  = uuid.MustParse("00000000-0000-0000-0000-00000000a001")
	usdc      = uuid.MustParse("00000000-0000-0000-0000-00000000c001")
	sol       = uuid.MustParse("00000000-0000-0000-0000-00000000c002")
	solUsdc   = uuid.MustParse("00000000-0000-0000-0000-00000000d001")
	owner     = uuid.MustParse("00000000-0000-0000-0000-00000000e001")
	lender    = uuid.MustParse("00000000-0000-0000-0000-00000000e002")
	borrower  = uuid.MustParse("00000000-0000-0000-0000-00000000e003")
	keeper    = uuid.MustParse("00000000-0000-0000-0000-00000000e004")
	usdcResID = state.ReserveID(marketID, usdc)
	solResID  = state.ReserveID(marketID, sol)
)

type harness struct {
	t    *testing.T
	core *core.DeterministicCore
	dex  *exchange.Simulator
	n    int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dex := exchange.NewSimulator()
	if err := dex.AddMarket(exchange.SimMarket{
		MarketInfo: exchange.MarketInfo{ID: solUsdc, BaseMint: sol, QuoteMint: usdc, CoinLotSize: 1},
		Price:      fpmath.FromUint64(20),
	}); err != nil {
		t.Fatalf("add market: %v", err)
	}
	h := &harness{t: t, core: core.NewDeterministicCore(0, dex, nil, nil, nil, nil), dex: dex}

	cfg := state.DefaultReserveConfig()
	cfg.LoanOriginationFee = 0
	cfg.LiquidationDexTradeMax = 0

	h.apply(&event.InitMarket{Header: h.head(owner), QuoteMint: usdc, QuoteCurrency: "USD"})
	h.apply(&event.InitReserve{Header: h.head(owner), TokenMint: usdc, Config: cfg})
	h.apply(&event.InitReserve{Header: h.head(owner), TokenMint: sol, Config: cfg, DexMarket: solUsdc})
	h.price(usdcResID, 1)
	h.price(solResID, 20)
	h.apply(&event.FundWallet{Header: h.head(owner), Owner: lender, Mint: usdc, Amount: 10_000})
	h.apply(&event.InitDepositAccount{Header: h.head(lender), Reserve: usdcResID})
	h.apply(&event.Deposit{Header: h.head(lender), Reserve: usdcResID, Amount: state.Tokens(10_000)})
	h.apply(&event.FundWallet{Header: h.head(owner), Owner: borrower, Mint: sol, Amount: 100})
	h.apply(&event.InitDepositAccount{Header: h.head(borrower), Reserve: solResID})
	h.apply(&event.Deposit{Header: h.head(borrower), Reserve: solResID, Amount: state.Tokens(100)})
	h.apply(&event.InitObligation{Header: h.head(borrower)})
	h.apply(&event.InitCollateralAccount{Header: h.head(borrower), Reserve: solResID})
	h.apply(&event.InitLoanAccount{Header: h.head(borrower), Reserve: usdcResID})
	h.apply(&event.DepositCollateral{Header: h.head(borrower), Reserve: solResID, Amount: state.DepositNotes(100)})
	h.apply(&event.Borrow{Header: h.head(borrower), Reserve: usdcResID, Amount: state.Tokens(1_500)})
	return h
}

func (h *harness) head(signer uuid.UUID) event.Header {
	h.n++
	return event.Header{
		CommandID: uuid.NewSHA1(uuid.NameSpaceOID, []byte("liq-"+strconv.Itoa(h.n))),
		Market:    marketID,
		Signer:    signer,
	}
}

func (h *harness) apply(cmd event.Command) {
	h.t.Helper()
	if _, err := h.core.ProcessCommand(cmd); err != nil {
		h.t.Fatalf("%s: %v", cmd.CommandType(), err)
	}
}

func (h *harness) price(reserve uuid.UUID, p uint64) {
	h.t.Helper()
	h.apply(&event.RefreshReserve{Header: h.head(owner), Reserve: reserve, Price: p})
}

func (h *harness) submit(cmd event.Command) error {
	_, err := h.core.ProcessCommand(cmd)
	return err
}

func newScanner(h *harness, metrics *observability.Metrics) *liquidator.Scanner {
	s := liquidator.NewScanner(h.core, keeper, metrics)
	s.SetLogger(zerolog.Nop())
	return s
}

// ============================================================================
// Test: Scan
// ============================================================================

func TestScan_HealthyMarket_NoCandidates(t *testing.T) {
	h := newHarness(t)

	cands, err := newScanner(h, nil).Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected no candidates, got %d", len(cands))
	}
}

func TestScan_FindsUnhealthyObligation(t *testing.T) {
	h := newHarness(t)
	h.price(solResID, 16)

	cands, err := newScanner(h, nil).Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	c := cands[0]
	if c.Borrower != borrower || c.LoanReserve != usdcResID || c.CollateralReserve != solResID {
		t.Errorf("candidate: %+v", c)
	}
	if !c.CollateralValue.Eq(fpmath.FromUint64(1_600)) {
		t.Errorf("collateral value: got %s, want 1600", c.CollateralValue)
	}
}

func TestScan_UnderwaterSkipped(t *testing.T) {
	h := newHarness(t)
	h.price(solResID, 10)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWith(reg)
	cands, err := newScanner(h, metrics).Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("underwater obligation returned as candidate")
	}
	got := testutil.ToFloat64(metrics.LiquidationCandidate.WithLabelValues(marketID.String(), "Underwater"))
	if got != 1 {
		t.Errorf("underwater count: got %v, want 1", got)
	}
}

// ============================================================================
// Test: RunOnce
// ============================================================================

func TestRunOnce_LiquidatesAndRescanIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.price(solResID, 16)
	if err := h.dex.SetPrice(solUsdc, fpmath.FromUint64(16)); err != nil {
		t.Fatalf("set dex price: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWith(reg)
	s := newScanner(h, metrics)

	n, err := s.RunOnce(h.submit)
	if err != nil || n != 1 {
		t.Fatalf("run: submitted %d, err %v", n, err)
	}
	ob, err := h.core.Obligation(marketID, borrower)
	if err != nil {
		t.Fatalf("obligation: %v", err)
	}
	if ob.Collateral[0].DepositNotes != 15 {
		t.Errorf("collateral notes after liquidation: got %d, want 15", ob.Collateral[0].DepositNotes)
	}
	if got := testutil.ToFloat64(metrics.LiquidationSubmitted.WithLabelValues(marketID.String(), "submitted")); got != 1 {
		t.Errorf("submitted metric: got %v, want 1", got)
	}

	// A rescan at the same slot derives the same command id.
	cmd := s.Command(liquidator.Candidate{
		Market: marketID, Borrower: borrower, LoanReserve: usdcResID, CollateralReserve: solResID,
	})
	if out, err := h.core.ProcessCommand(cmd); out != nil || err != nil {
		t.Errorf("resubmitted command at same slot: (%v, %v), want duplicate", out, err)
	}
}

func TestRunOnce_RejectedLiquidationCounted(t *testing.T) {
	h := newHarness(t)
	h.price(solResID, 16)
	if err := h.dex.SetPrice(solUsdc, fpmath.FromUint64(16)); err != nil {
		t.Fatalf("set dex price: %v", err)
	}
	if err := h.dex.SetSlippage(solUsdc, 1_000); err != nil {
		t.Fatalf("set slippage: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWith(reg)
	n, err := newScanner(h, metrics).RunOnce(h.submit)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing applied, got %d", n)
	}
	label := state.ErrorCode(state.ErrLiquidationSwapSlipped).Name
	if got := testutil.ToFloat64(metrics.LiquidationSubmitted.WithLabelValues(marketID.String(), label)); got != 1 {
		t.Errorf("%s metric: got %v, want 1", label, got)
	}
}

func TestCommand_DeterministicID(t *testing.T) {
	h := newHarness(t)
	s := newScanner(h, nil)
	c := liquidator.Candidate{Market: marketID, Borrower: borrower, Slot: 7, LoanReserve: usdcResID, CollateralReserve: solResID}

	a, b := s.Command(c), s.Command(c)
	if a.CommandID != b.CommandID {
		t.Error("same candidate produced different ids")
	}
	c.Slot = 8
	if s.Command(c).CommandID == a.CommandID {
		t.Error("different slot produced the same id")
	}
	if a.Signer != keeper {
		t.Errorf("signer: got %s, want keeper", a.Signer)
	}
}
