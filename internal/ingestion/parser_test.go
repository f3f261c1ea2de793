package ingestion_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

var (
	market  = uuid.MustParse("00000000-0000-0000-0000-00000000a001")
	reserve = uuid.MustParse("00000000-0000-0000-0000-00000000b001")
	signer  = uuid.MustParse("00000000-0000-0000-0000-00000000e002")
	cmdID   = uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
)

func rawFromJSON(t *testing.T, subject string, v interface{}) ingestion.RawCommand {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawCommand{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
		TermFunc:  func() {},
	}
}

func depositPayload() map[string]interface{} {
	return map[string]interface{}{
		"command_id": cmdID.String(),
		"market":     market.String(),
		"signer":     signer.String(),
		"slot":       int64(42),
		"reserve":    reserve.String(),
		"amount":     map[string]interface{}{"units": "tokens", "value": int64(1_000)},
	}
}

// ============================================================================
// Subjects
// ============================================================================

func TestOpsSubject_RoundTrip(t *testing.T) {
	subject := ingestion.OpsSubject(event.CommandTypeWithdrawCollateral, market)
	if want := "lend.ops.withdraw_collateral." + market.String(); subject != want {
		t.Fatalf("subject: got %s, want %s", subject, want)
	}
	ct, err := ingestion.CommandTypeFromSubject(subject)
	if err != nil {
		t.Fatalf("parse subject: %v", err)
	}
	if ct != event.CommandTypeWithdrawCollateral {
		t.Errorf("command type: got %s", ct)
	}
}

func TestCommandTypeFromSubject_Rejects(t *testing.T) {
	for _, subject := range []string{
		"spot.trades.sol",
		"lend.ops.transfer",
		"lend.ops.",
	} {
		_, err := ingestion.CommandTypeFromSubject(subject)
		if !errors.Is(err, ingestion.ErrMalformedCommand) {
			t.Errorf("%q: expected ErrMalformedCommand, got %v", subject, err)
		}
	}
}

// ============================================================================
// Payloads
// ============================================================================

func TestParseRawCommand_Deposit(t *testing.T) {
	raw := rawFromJSON(t, ingestion.OpsSubject(event.CommandTypeDeposit, market), depositPayload())
	cmd, err := ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dep, ok := cmd.(*event.Deposit)
	if !ok {
		t.Fatalf("expected *event.Deposit, got %T", cmd)
	}
	if dep.Reserve != reserve {
		t.Errorf("reserve: got %s", dep.Reserve)
	}
	if dep.Amount != state.Tokens(1_000) {
		t.Errorf("amount: got %+v", dep.Amount)
	}
	if dep.Slot != 42 {
		t.Errorf("slot: got %d, want 42", dep.Slot)
	}
	if dep.IdempotencyKey() != cmdID.String() {
		t.Errorf("idempotency key: got %s", dep.IdempotencyKey())
	}
}

func TestParseRawCommand_SubjectWithoutMarket(t *testing.T) {
	raw := rawFromJSON(t, "lend.ops.deposit", depositPayload())
	if _, err := ingestion.ParseRawCommand(raw); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
}

func TestParseRawCommand_MarketMismatch(t *testing.T) {
	other := uuid.MustParse("00000000-0000-0000-0000-00000000a002")
	raw := rawFromJSON(t, ingestion.OpsSubject(event.CommandTypeDeposit, other), depositPayload())
	_, err := ingestion.ParseRawCommand(raw)
	if !errors.Is(err, ingestion.ErrMalformedCommand) {
		t.Fatalf("expected ErrMalformedCommand, got %v", err)
	}
	if !strings.Contains(err.Error(), "payload market") {
		t.Errorf("error should name the mismatch: %v", err)
	}
}

func TestParseCommand_HeaderRequired(t *testing.T) {
	tests := []struct {
		name  string
		field string
	}{
		{"no command id", "command_id"},
		{"no market", "market"},
		{"no signer", "signer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := depositPayload()
			delete(payload, tt.field)
			data, _ := json.Marshal(payload)
			_, err := ingestion.ParseCommand(event.CommandTypeDeposit, data)
			if !errors.Is(err, ingestion.ErrMalformedCommand) {
				t.Fatalf("expected ErrMalformedCommand, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error should name %s: %v", tt.field, err)
			}
		})
	}
}

func TestParseCommand_BadJSON(t *testing.T) {
	_, err := ingestion.ParseCommand(event.CommandTypeBorrow, []byte(`{"amount": `))
	if !errors.Is(err, ingestion.ErrMalformedCommand) {
		t.Fatalf("expected ErrMalformedCommand, got %v", err)
	}
}

func TestParseCommand_BadUnits(t *testing.T) {
	payload := depositPayload()
	payload["amount"] = map[string]interface{}{"units": "shares", "value": 1}
	data, _ := json.Marshal(payload)
	_, err := ingestion.ParseCommand(event.CommandTypeDeposit, data)
	if !errors.Is(err, ingestion.ErrMalformedCommand) {
		t.Fatalf("expected ErrMalformedCommand, got %v", err)
	}
	if !errors.Is(err, state.ErrInvalidAmountUnits) {
		t.Errorf("expected ErrInvalidAmountUnits in chain, got %v", err)
	}
}

func TestParseCommand_Liquidate(t *testing.T) {
	borrower := uuid.MustParse("00000000-0000-0000-0000-00000000e003")
	collateral := uuid.MustParse("00000000-0000-0000-0000-00000000b002")
	payload := map[string]interface{}{
		"command_id":         cmdID.String(),
		"market":             market.String(),
		"signer":             signer.String(),
		"slot":               int64(7),
		"borrower":           borrower.String(),
		"loan_reserve":       reserve.String(),
		"collateral_reserve": collateral.String(),
		"amount":             map[string]interface{}{"units": "tokens", "value": 0},
	}
	data, _ := json.Marshal(payload)
	cmd, err := ingestion.ParseCommand(event.CommandTypeLiquidate, data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	liq := cmd.(*event.Liquidate)
	if liq.Borrower != borrower || liq.CollateralReserve != collateral {
		t.Errorf("decoded: %+v", liq)
	}
}

// ============================================================================
// Outbound
// ============================================================================

func TestPublishablesFromOutput(t *testing.T) {
	env := &event.EventEnvelope{Sequence: 12, MarketID: market, Slot: 99}
	env.StateHash[0] = 0xab
	out := &core.CoreOutput{
		Envelope: env,
		Events: []event.Outbound{
			event.BorrowEvent{Borrower: signer, Reserve: reserve, Tokens: 100, Fees: 1, Debt: 101},
			event.DepositCollateralEvent{Depositor: signer, Reserve: reserve, Notes: 5},
		},
	}

	pubs := ingestion.PublishablesFromOutput(out, time.Unix(0, 0))
	if len(pubs) != 2 {
		t.Fatalf("expected 2 publishables, got %d", len(pubs))
	}
	if got := pubs[0].Subject(); got != "lend.events.borrow."+market.String() {
		t.Errorf("subject: %s", got)
	}
	if pubs[0].MsgID() != "12-0" || pubs[1].MsgID() != "12-1" {
		t.Errorf("msg ids: %s %s", pubs[0].MsgID(), pubs[1].MsgID())
	}
	if !strings.HasPrefix(pubs[1].StateHash, "ab") {
		t.Errorf("state hash: %s", pubs[1].StateHash)
	}

	data, err := json.Marshal(pubs[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"debt":101`) {
		t.Errorf("payload not embedded: %s", data)
	}
}

func TestPublishablesFromOutput_Nil(t *testing.T) {
	if pubs := ingestion.PublishablesFromOutput(nil, time.Now()); pubs != nil {
		t.Errorf("expected nil, got %v", pubs)
	}
}

// ============================================================================
// gRPC ingest
// ============================================================================

func TestGRPCIngest_SubmitWaitsForCore(t *testing.T) {
	subs := make(chan ingestion.Submission)
	done := make(chan struct{})
	svc := ingestion.NewGRPCIngestService(subs, done)

	go func() {
		sub := <-subs
		if sub.Source != "grpc" {
			t.Errorf("source: %s", sub.Source)
		}
		sub.Complete(ingestion.SubmitResult{Sequence: 5})
	}()

	data, _ := json.Marshal(depositPayload())
	res, err := svc.SubmitRaw(context.Background(), "deposit", data)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Sequence != 5 || res.Err != nil {
		t.Errorf("result: %+v", res)
	}
}

func TestGRPCIngest_Closed(t *testing.T) {
	done := make(chan struct{})
	close(done)
	svc := ingestion.NewGRPCIngestService(make(chan ingestion.Submission), done)

	data, _ := json.Marshal(depositPayload())
	if _, err := svc.SubmitRaw(context.Background(), "deposit", data); !errors.Is(err, ingestion.ErrIngestClosed) {
		t.Fatalf("expected ErrIngestClosed, got %v", err)
	}
}

func TestGRPCIngest_UnknownType(t *testing.T) {
	svc := ingestion.NewGRPCIngestService(make(chan ingestion.Submission), make(chan struct{}))
	if _, err := svc.SubmitRaw(context.Background(), "transfer", []byte(`{}`)); !errors.Is(err, ingestion.ErrMalformedCommand) {
		t.Fatalf("expected ErrMalformedCommand, got %v", err)
	}
}
