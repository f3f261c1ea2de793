package persistence_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"LendLedger/internal/core"
	"LendLedger/internal/event"
	"LendLedger/internal/exchange"
	"LendLedger/internal/persistence"
	"LendLedger/internal/state"
	"LendLedger/internal/testutil"
	"LendLedger/migrations"

	"github.com/google/uuid"
)

var (
	marketID = uuid.MustParse("00000000-0000-0000-0000-00000000a001")
	usdc     = uuid.MustParse("00000000-0000-0000-0000-00000000c001")
	owner    = uuid.MustParse("00000000-0000-0000-0000-00000000e001")
	lender   = uuid.MustParse("00000000-0000-0000-0000-00000000e002")

	usdcReserve = state.ReserveID(marketID, usdc)
)

// lenderScenario runs a market setup and a deposit through a fresh core and
// returns the core with its persisted outputs.
func lenderScenario(t *testing.T) (*core.DeterministicCore, []core.CoreOutput) {
	t.Helper()
	persist := make(chan core.CoreOutput, 64)
	c := core.NewDeterministicCore(0, exchange.NewSimulator(), persist, nil, nil, nil)

	n := 0
	head := func(signer uuid.UUID) event.Header {
		n++
		return event.Header{
			CommandID: uuid.NewSHA1(uuid.NameSpaceOID, []byte("persist-"+strconv.Itoa(n))),
			Market:    marketID,
			Signer:    signer,
			Slot:      uint64(n),
		}
	}
	cmds := []event.Command{
		&event.InitMarket{Header: head(owner), QuoteMint: usdc, QuoteCurrency: "USD"},
		&event.InitReserve{Header: head(owner), TokenMint: usdc, Config: state.DefaultReserveConfig()},
		&event.RefreshReserve{Header: head(owner), Reserve: usdcReserve, Price: 1},
		&event.FundWallet{Header: head(owner), Owner: lender, Mint: usdc, Amount: 1_000},
		&event.InitDepositAccount{Header: head(lender), Reserve: usdcReserve},
		&event.Deposit{Header: head(lender), Reserve: usdcReserve, Amount: state.Tokens(1_000)},
	}
	for _, cmd := range cmds {
		if _, err := c.ProcessCommand(cmd); err != nil {
			t.Fatalf("%s: %v", cmd.CommandType(), err)
		}
	}
	close(persist)

	var outs []core.CoreOutput
	for o := range persist {
		outs = append(outs, o)
	}
	return c, outs
}

func persistOutputs(t *testing.T, worker chan<- persistence.CoreOutput, outs []core.CoreOutput) {
	t.Helper()
	for _, o := range outs {
		row, err := persistence.EventRowFromEnvelope(o.Envelope, time.Now())
		if err != nil {
			t.Fatalf("event row: %v", err)
		}
		worker <- persistence.CoreOutput{EventRow: row, JournalRows: persistence.JournalRowsFromBatch(o.Batch)}
	}
}

// ============================================================================
// Event log
// ============================================================================

func TestEventLog_WriteReplayAndDedup(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	live, outs := lenderScenario(t)

	in := make(chan persistence.CoreOutput, len(outs))
	persistOutputs(t, in, outs)
	close(in)
	worker := persistence.NewPersistenceWorker(db, in, 4, 5*time.Millisecond, nil)
	if err := worker.Run(ctx); err != nil {
		t.Fatalf("worker: %v", err)
	}

	snapMgr := persistence.NewSnapshotManager(db)
	latest, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if latest != int64(len(outs)-1) {
		t.Fatalf("latest sequence: got %d, want %d", latest, len(outs)-1)
	}

	envs, err := snapMgr.LoadEventsFrom(ctx, 0, 100)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(envs) != len(outs) {
		t.Fatalf("loaded %d events, want %d", len(envs), len(outs))
	}

	replayed := core.NewDeterministicCore(0, exchange.NewSimulator(), nil, nil, nil, nil)
	for _, env := range envs {
		if err := replayed.Replay(env); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}
	if replayed.GetStateHash() != live.GetStateHash() {
		t.Errorf("replayed hash %x, live %x", replayed.GetStateHash(), live.GetStateHash())
	}

	dedup := persistence.NewPostgresIdempotencyChecker(db)
	last := outs[len(outs)-1].Envelope
	dup, err := dedup.IsDuplicate(last.CommandType.String(), last.IdempotencyKey)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if !dup {
		t.Error("persisted command should be a duplicate")
	}
	dup, err = dedup.IsDuplicate(last.CommandType.String(), uuid.New().String())
	if err != nil || dup {
		t.Errorf("unknown command: dup=%v err=%v", dup, err)
	}
}

func TestEventLog_RewriteIsNoop(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, outs := lenderScenario(t)
	writer := persistence.NewEventLogWriter(db)
	for pass := 0; pass < 2; pass++ {
		for _, o := range outs {
			row, err := persistence.EventRowFromEnvelope(o.Envelope, time.Now())
			if err != nil {
				t.Fatalf("event row: %v", err)
			}
			if err := writer.WriteEventBatch(ctx, db, []persistence.EventRow{row}); err != nil {
				t.Fatalf("pass %d: write events: %v", pass, err)
			}
			if err := writer.WriteJournalBatch(ctx, db, persistence.JournalRowsFromBatch(o.Batch)); err != nil {
				t.Fatalf("pass %d: write journals: %v", pass, err)
			}
		}
	}

	var events int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_log.events`).Scan(&events); err != nil {
		t.Fatalf("count: %v", err)
	}
	if events != len(outs) {
		t.Errorf("events: got %d, want %d", events, len(outs))
	}
}

// ============================================================================
// Snapshots
// ============================================================================

func TestSnapshot_OnlyVerifiedIsLoaded(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	live, _ := lenderScenario(t)
	snapMgr := persistence.NewSnapshotManager(db)

	snap := live.CreateSnapshotState()
	size, err := snapMgr.SaveSnapshot(ctx, snap)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if size == 0 {
		t.Error("expected a non-empty snapshot")
	}

	loaded, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Fatal("unverified snapshot must not be loaded")
	}

	if err := snapMgr.MarkVerified(ctx, snap.Sequence); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	loaded, err = snapMgr.LoadLatestSnapshot(ctx)
	if err != nil || loaded == nil {
		t.Fatalf("load verified: snap=%v err=%v", loaded, err)
	}

	restored := core.NewDeterministicCore(0, exchange.NewSimulator(), nil, nil, nil, nil)
	if err := restored.RestoreFromSnapshot(loaded); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.GetSequence() != live.GetSequence() || restored.GetStateHash() != live.GetStateHash() {
		t.Errorf("restored at %d/%x, live at %d/%x",
			restored.GetSequence(), restored.GetStateHash(), live.GetSequence(), live.GetStateHash())
	}
}

// ============================================================================
// Migrations
// ============================================================================

func TestMigrator_StatusAfterUp(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	statuses, err := persistence.NewMigrator(db, migrations.FS).Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(statuses))
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s not applied", s.Version)
		}
	}
}
