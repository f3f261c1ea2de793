package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"LendLedger/internal/ingestion"
	"LendLedger/internal/query"
	"LendLedger/internal/server"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var (
	market = uuid.MustParse("00000000-0000-0000-0000-00000000a001")
	owner  = uuid.MustParse("00000000-0000-0000-0000-00000000e002")
)

// ============================================================================
// Fakes
// ============================================================================

type fakeQueries struct {
	reserves   []query.ReserveResponse
	obligation *query.ObligationResponse
	observed   []string
}

func (f *fakeQueries) GetReserves(_ context.Context, m uuid.UUID) ([]query.ReserveResponse, error) {
	if m != market {
		return nil, nil
	}
	return f.reserves, nil
}

func (f *fakeQueries) GetObligation(_ context.Context, m, o uuid.UUID) (*query.ObligationResponse, error) {
	if f.obligation == nil || f.obligation.Owner != o {
		return nil, fmt.Errorf("obligation of %s: %w", o, query.ErrNotFound)
	}
	return f.obligation, nil
}

func (f *fakeQueries) GetBalances(_ context.Context, o uuid.UUID) ([]query.BalanceResponse, error) {
	return []query.BalanceResponse{{AccountPath: "user:" + o.String() + ":wallet:x", Owner: o, Balance: 7}}, nil
}

func (f *fakeQueries) GetLiquidationHistory(_ context.Context, b uuid.UUID, limit int, before *int64) ([]query.LiquidationHistoryResponse, error) {
	out := []query.LiquidationHistoryResponse{{Sequence: int64(limit), Borrower: b}}
	if before != nil {
		out[0].Slot = *before
	}
	return out, nil
}

func (f *fakeQueries) GetJournalHistory(_ context.Context, account string, limit int, _ *int64) ([]query.JournalHistoryEntry, error) {
	return []query.JournalHistoryEntry{{DebitAccount: account, Amount: int64(limit)}}, nil
}

func (f *fakeQueries) VerifyIntegrity(context.Context) (*query.IntegrityReport, error) {
	return &query.IntegrityReport{IsHealthy: true, AsOfSequence: 3}, nil
}

func (f *fakeQueries) Observe(endpoint string, _ time.Time, _ error) {
	f.observed = append(f.observed, endpoint)
}

type fakeSubmitter struct {
	result ingestion.SubmitResult
	err    error
	got    []string
}

func (f *fakeSubmitter) SubmitRaw(_ context.Context, ct string, payload []byte) (ingestion.SubmitResult, error) {
	f.got = append(f.got, ct+":"+string(payload))
	return f.result, f.err
}

type fakeEventLog struct{ seq int64 }

func (f fakeEventLog) GetLatestSequence(context.Context) (int64, error) { return f.seq, nil }

// ============================================================================
// Harness
// ============================================================================

type harness struct {
	srv     *server.GRPCServer
	client  *server.Client
	conn    *grpc.ClientConn
	queries *fakeQueries
	submit  *fakeSubmitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		queries: &fakeQueries{
			reserves: []query.ReserveResponse{{MarketID: market, Index: 0, TotalDeposits: 10_000, Utilization: "0.1"}},
		},
		submit: &fakeSubmitter{},
	}
	h.srv = server.NewGRPCServer("bufnet", "", &server.ServerDeps{
		Queries:   h.queries,
		Submitter: h.submit,
		EventLog:  fakeEventLog{seq: 41},
		StartTime: time.Now(),
	})

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	go h.srv.Serve(ctx, lis)
	t.Cleanup(cancel)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	h.conn = conn
	h.client = server.NewClient(conn)
	return h
}

func requireCode(t *testing.T, err error, want codes.Code) *status.Status {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "not a status error: %v", err)
	require.Equal(t, want, st.Code(), st.Message())
	return st
}

// ============================================================================
// gRPC
// ============================================================================

func TestSubmitCommand_Accepted(t *testing.T) {
	h := newHarness(t)
	h.submit.result = ingestion.SubmitResult{Sequence: 9, StateHash: [32]byte{0xab}}

	resp, err := h.client.SubmitCommand(context.Background(), &server.SubmitCommandRequest{
		CommandType: "deposit",
		Payload:     json.RawMessage(`{"slot":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), resp.Sequence)
	assert.False(t, resp.Duplicate)
	assert.True(t, strings.HasPrefix(resp.StateHash, "ab"))
	require.Len(t, h.submit.got, 1)
	assert.Equal(t, `deposit:{"slot":1}`, h.submit.got[0])
}

func TestSubmitCommand_Duplicate(t *testing.T) {
	h := newHarness(t)
	h.submit.result = ingestion.SubmitResult{Duplicate: true}

	resp, err := h.client.SubmitCommand(context.Background(), &server.SubmitCommandRequest{CommandType: "deposit"})
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)
	assert.Empty(t, resp.StateHash)
}

func TestSubmitCommand_RejectionCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
		kind string
	}{
		{"under-collateralized", fmt.Errorf("borrow: %w", state.ErrInsufficientCollateral), codes.FailedPrecondition, "InsufficientCollateral (6003)"},
		{"wrong signer", fmt.Errorf("init reserve: %w", state.ErrUnauthorized), codes.PermissionDenied, "Unauthorized (6026)"},
		{"unknown reserve", fmt.Errorf("deposit: %w", state.ErrReserveNotFound), codes.NotFound, "ReserveNotFound (6021)"},
		{"halted", state.ErrMarketHalted, codes.FailedPrecondition, "MarketHalted (6011)"},
		{"no exchange", state.ErrNotSupported, codes.Unimplemented, "NotSupported (6007)"},
		{"overflow", state.ErrArithmeticOverflow, codes.OutOfRange, "ArithmeticOverflow (6000)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.submit.result = ingestion.SubmitResult{Err: tt.err}

			_, err := h.client.SubmitCommand(context.Background(), &server.SubmitCommandRequest{CommandType: "borrow"})
			st := requireCode(t, err, tt.code)
			assert.Contains(t, st.Message(), tt.kind)
		})
	}
}

func TestSubmitCommand_TransportErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.SubmitCommand(context.Background(), &server.SubmitCommandRequest{})
	requireCode(t, err, codes.InvalidArgument)

	h.submit.err = fmt.Errorf("%w: bad json", ingestion.ErrMalformedCommand)
	_, err = h.client.SubmitCommand(context.Background(), &server.SubmitCommandRequest{CommandType: "deposit"})
	requireCode(t, err, codes.InvalidArgument)

	h.submit.err = ingestion.ErrIngestClosed
	_, err = h.client.SubmitCommand(context.Background(), &server.SubmitCommandRequest{CommandType: "deposit"})
	requireCode(t, err, codes.Unavailable)
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reserves, err := h.client.GetReserves(ctx, &server.MarketRequest{MarketID: market.String()})
	require.NoError(t, err)
	require.Len(t, reserves.Reserves, 1)
	assert.Equal(t, int64(10_000), reserves.Reserves[0].TotalDeposits)

	_, err = h.client.GetReserves(ctx, &server.MarketRequest{MarketID: "not-a-uuid"})
	requireCode(t, err, codes.InvalidArgument)

	_, err = h.client.GetObligation(ctx, &server.GetObligationRequest{MarketID: market.String(), Owner: owner.String()})
	requireCode(t, err, codes.NotFound)

	balances, err := h.client.GetBalances(ctx, &server.OwnerRequest{Owner: owner.String()})
	require.NoError(t, err)
	require.Len(t, balances.Balances, 1)
	assert.Equal(t, int64(7), balances.Balances[0].Balance)

	liqs, err := h.client.ListLiquidations(ctx, &server.ListLiquidationsRequest{Borrower: owner.String(), PageSize: 1000})
	require.NoError(t, err)
	require.Len(t, liqs.Liquidations, 1)
	assert.Equal(t, int64(50), liqs.Liquidations[0].Sequence, "oversized page falls back to default")

	_, err = h.client.ListJournals(ctx, &server.ListJournalsRequest{})
	requireCode(t, err, codes.InvalidArgument)

	report, err := h.client.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsHealthy)

	info, err := h.client.GetEventLogInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(41), info.LastSequence)

	assert.Contains(t, h.queries.observed, "GetReserves")
	assert.Contains(t, h.queries.observed, "VerifyIntegrity")
}

func TestHealth_FollowsServing(t *testing.T) {
	h := newHarness(t)
	hc := healthpb.NewHealthClient(h.conn)
	ctx := context.Background()

	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: server.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	h.srv.SetServing(true)
	resp, err = hc.Check(ctx, &healthpb.HealthCheckRequest{Service: server.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

// ============================================================================
// HTTP gateway
// ============================================================================

func TestGateway_Routes(t *testing.T) {
	h := newHarness(t)
	handler, err := h.srv.HTTPHandler()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/markets/" + market.String() + "/reserves")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reserves server.GetReservesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reserves))
	require.Len(t, reserves.Reserves, 1)
	assert.Equal(t, "0.1", reserves.Reserves[0].Utilization)

	resp2, err := http.Get(ts.URL + "/v1/markets/" + market.String() + "/obligations/" + owner.String())
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Get(ts.URL + "/v1/journals?account=user:x&page_size=5")
	require.NoError(t, err)
	defer resp3.Body.Close()
	var journals server.ListJournalsResponse
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&journals))
	require.Len(t, journals.Journals, 1)
	assert.Equal(t, int64(5), journals.Journals[0].Amount)

	resp4, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp4.Body.Close()
	assert.Equal(t, http.StatusOK, resp4.StatusCode)
}

func TestGateway_SubmitCommand(t *testing.T) {
	h := newHarness(t)
	handler, err := h.srv.HTTPHandler()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	h.submit.result = ingestion.SubmitResult{Sequence: 4}
	resp, err := http.Post(ts.URL+"/v1/commands/repay", "application/json", strings.NewReader(`{"slot":3}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out server.SubmitCommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(4), out.Sequence)
	assert.Equal(t, `repay:{"slot":3}`, h.submit.got[0])

	h.submit.result = ingestion.SubmitResult{Err: state.ErrUnauthorized}
	resp2, err := http.Post(ts.URL+"/v1/commands/repay", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
}
