package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"LendLedger/internal/ingestion"
	"LendLedger/internal/query"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lendledger.v1.Ledger"

// --- Messages ---

type SubmitCommandRequest struct {
	CommandType string          `json:"command_type"`
	Payload     json.RawMessage `json:"payload"`
}

type SubmitCommandResponse struct {
	Sequence  int64  `json:"sequence"`
	StateHash string `json:"state_hash,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

type MarketRequest struct {
	MarketID string `json:"market_id"`
}

type GetReservesResponse struct {
	Reserves []query.ReserveResponse `json:"reserves"`
}

type GetObligationRequest struct {
	MarketID string `json:"market_id"`
	Owner    string `json:"owner"`
}

type OwnerRequest struct {
	Owner string `json:"owner"`
}

type GetBalancesResponse struct {
	Balances []query.BalanceResponse `json:"balances"`
}

type ListLiquidationsRequest struct {
	Borrower       string `json:"borrower"`
	PageSize       int32  `json:"page_size"`
	BeforeSequence int64  `json:"before_sequence"`
}

type ListLiquidationsResponse struct {
	Liquidations []query.LiquidationHistoryResponse `json:"liquidations"`
}

type ListJournalsRequest struct {
	Account        string `json:"account"`
	PageSize       int32  `json:"page_size"`
	BeforeSequence int64  `json:"before_sequence"`
}

type ListJournalsResponse struct {
	Journals []query.JournalHistoryEntry `json:"journals"`
}

type Empty struct{}

type EventLogInfo struct {
	LastSequence int64  `json:"last_sequence"`
	Uptime       string `json:"uptime"`
}

// --- Dependencies ---

// Querier reads the projection tables.
type Querier interface {
	GetReserves(ctx context.Context, market uuid.UUID) ([]query.ReserveResponse, error)
	GetObligation(ctx context.Context, market, owner uuid.UUID) (*query.ObligationResponse, error)
	GetBalances(ctx context.Context, owner uuid.UUID) ([]query.BalanceResponse, error)
	GetLiquidationHistory(ctx context.Context, borrower uuid.UUID, limit int, before *int64) ([]query.LiquidationHistoryResponse, error)
	GetJournalHistory(ctx context.Context, account string, limit int, before *int64) ([]query.JournalHistoryEntry, error)
	VerifyIntegrity(ctx context.Context) (*query.IntegrityReport, error)
	Observe(endpoint string, start time.Time, err error)
}

// Submitter hands commands to the core and waits for the verdict.
type Submitter interface {
	SubmitRaw(ctx context.Context, commandType string, payload []byte) (ingestion.SubmitResult, error)
}

// EventLog reports the persisted head of the event log.
type EventLog interface {
	GetLatestSequence(ctx context.Context) (int64, error)
}

// LedgerServer is the gRPC surface of the ledger.
type LedgerServer interface {
	SubmitCommand(context.Context, *SubmitCommandRequest) (*SubmitCommandResponse, error)
	GetReserves(context.Context, *MarketRequest) (*GetReservesResponse, error)
	GetObligation(context.Context, *GetObligationRequest) (*query.ObligationResponse, error)
	GetBalances(context.Context, *OwnerRequest) (*GetBalancesResponse, error)
	ListLiquidations(context.Context, *ListLiquidationsRequest) (*ListLiquidationsResponse, error)
	ListJournals(context.Context, *ListJournalsRequest) (*ListJournalsResponse, error)
	VerifyIntegrity(context.Context, *Empty) (*query.IntegrityReport, error)
	GetEventLogInfo(context.Context, *Empty) (*EventLogInfo, error)
}

// ledgerService implements LedgerServer over the query service, the ingest
// path and the event log.
type ledgerService struct {
	queries   Querier
	submitter Submitter
	eventLog  EventLog
	startTime time.Time
}

func (s *ledgerService) SubmitCommand(ctx context.Context, req *SubmitCommandRequest) (*SubmitCommandResponse, error) {
	if req.CommandType == "" {
		return nil, status.Error(codes.InvalidArgument, "command_type is required")
	}
	if s.submitter == nil {
		return nil, status.Error(codes.Unavailable, "command ingest disabled")
	}
	res, err := s.submitter.SubmitRaw(ctx, req.CommandType, req.Payload)
	if err != nil {
		return nil, statusFromError(err)
	}
	if res.Err != nil {
		return nil, statusFromError(res.Err)
	}
	resp := &SubmitCommandResponse{Sequence: res.Sequence, Duplicate: res.Duplicate}
	if !res.Duplicate {
		resp.StateHash = hex.EncodeToString(res.StateHash[:])
	}
	return resp, nil
}

func (s *ledgerService) GetReserves(ctx context.Context, req *MarketRequest) (resp *GetReservesResponse, err error) {
	defer s.observe("GetReserves", time.Now(), &err)
	market, err := parseUUID("market_id", req.MarketID)
	if err != nil {
		return nil, err
	}
	reserves, err := s.queries.GetReserves(ctx, market)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &GetReservesResponse{Reserves: reserves}, nil
}

func (s *ledgerService) GetObligation(ctx context.Context, req *GetObligationRequest) (resp *query.ObligationResponse, err error) {
	defer s.observe("GetObligation", time.Now(), &err)
	market, err := parseUUID("market_id", req.MarketID)
	if err != nil {
		return nil, err
	}
	owner, err := parseUUID("owner", req.Owner)
	if err != nil {
		return nil, err
	}
	ob, err := s.queries.GetObligation(ctx, market, owner)
	if err != nil {
		return nil, statusFromError(err)
	}
	return ob, nil
}

func (s *ledgerService) GetBalances(ctx context.Context, req *OwnerRequest) (resp *GetBalancesResponse, err error) {
	defer s.observe("GetBalances", time.Now(), &err)
	owner, err := parseUUID("owner", req.Owner)
	if err != nil {
		return nil, err
	}
	balances, err := s.queries.GetBalances(ctx, owner)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &GetBalancesResponse{Balances: balances}, nil
}

func (s *ledgerService) ListLiquidations(ctx context.Context, req *ListLiquidationsRequest) (resp *ListLiquidationsResponse, err error) {
	defer s.observe("ListLiquidations", time.Now(), &err)
	borrower, err := parseUUID("borrower", req.Borrower)
	if err != nil {
		return nil, err
	}
	history, err := s.queries.GetLiquidationHistory(ctx, borrower, pageSize(req.PageSize, 50, 100), cursor(req.BeforeSequence))
	if err != nil {
		return nil, statusFromError(err)
	}
	return &ListLiquidationsResponse{Liquidations: history}, nil
}

func (s *ledgerService) ListJournals(ctx context.Context, req *ListJournalsRequest) (resp *ListJournalsResponse, err error) {
	defer s.observe("ListJournals", time.Now(), &err)
	if req.Account == "" {
		return nil, status.Error(codes.InvalidArgument, "account is required")
	}
	entries, err := s.queries.GetJournalHistory(ctx, req.Account, pageSize(req.PageSize, 100, 500), cursor(req.BeforeSequence))
	if err != nil {
		return nil, statusFromError(err)
	}
	return &ListJournalsResponse{Journals: entries}, nil
}

func (s *ledgerService) VerifyIntegrity(ctx context.Context, _ *Empty) (resp *query.IntegrityReport, err error) {
	defer s.observe("VerifyIntegrity", time.Now(), &err)
	report, err := s.queries.VerifyIntegrity(ctx)
	if err != nil {
		return nil, statusFromError(err)
	}
	return report, nil
}

func (s *ledgerService) GetEventLogInfo(ctx context.Context, _ *Empty) (*EventLogInfo, error) {
	latestSeq, err := s.eventLog.GetLatestSequence(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get latest sequence: %v", err)
	}
	return &EventLogInfo{
		LastSequence: latestSeq,
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
	}, nil
}

func (s *ledgerService) observe(endpoint string, start time.Time, err *error) {
	if s.queries != nil {
		s.queries.Observe(endpoint, start, *err)
	}
}

// --- Service descriptor ---

// unary builds a method descriptor that decodes Req with the call's codec.
func unary[Req any, Resp any](name string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(LedgerServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitCommand", LedgerServer.SubmitCommand),
		unary("GetReserves", LedgerServer.GetReserves),
		unary("GetObligation", LedgerServer.GetObligation),
		unary("GetBalances", LedgerServer.GetBalances),
		unary("ListLiquidations", LedgerServer.ListLiquidations),
		unary("ListJournals", LedgerServer.ListJournals),
		unary("VerifyIntegrity", LedgerServer.VerifyIntegrity),
		unary("GetEventLogInfo", LedgerServer.GetEventLogInfo),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lendledger/v1/ledger",
}

// RegisterLedgerServer registers srv on s.
func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

// --- Helpers ---

func parseUUID(field, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", field, err)
	}
	return id, nil
}

func pageSize(requested int32, def, max int) int {
	if requested <= 0 || int(requested) > max {
		return def
	}
	return int(requested)
}

func cursor(before int64) *int64 {
	if before <= 0 {
		return nil
	}
	return &before
}
