package server

import (
	"context"

	"LendLedger/internal/query"

	"google.golang.org/grpc"
)

// Client calls the ledger service over a gRPC connection using the JSON
// codec.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, grpc.CallContentSubtype(codecName))
}

func (c *Client) SubmitCommand(ctx context.Context, in *SubmitCommandRequest) (*SubmitCommandResponse, error) {
	out := new(SubmitCommandResponse)
	return out, c.invoke(ctx, "SubmitCommand", in, out)
}

func (c *Client) GetReserves(ctx context.Context, in *MarketRequest) (*GetReservesResponse, error) {
	out := new(GetReservesResponse)
	return out, c.invoke(ctx, "GetReserves", in, out)
}

func (c *Client) GetObligation(ctx context.Context, in *GetObligationRequest) (*query.ObligationResponse, error) {
	out := new(query.ObligationResponse)
	return out, c.invoke(ctx, "GetObligation", in, out)
}

func (c *Client) GetBalances(ctx context.Context, in *OwnerRequest) (*GetBalancesResponse, error) {
	out := new(GetBalancesResponse)
	return out, c.invoke(ctx, "GetBalances", in, out)
}

func (c *Client) ListLiquidations(ctx context.Context, in *ListLiquidationsRequest) (*ListLiquidationsResponse, error) {
	out := new(ListLiquidationsResponse)
	return out, c.invoke(ctx, "ListLiquidations", in, out)
}

func (c *Client) ListJournals(ctx context.Context, in *ListJournalsRequest) (*ListJournalsResponse, error) {
	out := new(ListJournalsResponse)
	return out, c.invoke(ctx, "ListJournals", in, out)
}

func (c *Client) VerifyIntegrity(ctx context.Context) (*query.IntegrityReport, error) {
	out := new(query.IntegrityReport)
	return out, c.invoke(ctx, "VerifyIntegrity", &Empty{}, out)
}

func (c *Client) GetEventLogInfo(ctx context.Context) (*EventLogInfo, error) {
	out := new(EventLogInfo)
	return out, c.invoke(ctx, "GetEventLogInfo", &Empty{}, out)
}
