package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"LendLedger/internal/observability"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer wraps the gRPC server and the grpc-gateway HTTP mux. Both
// surfaces dispatch to the same LedgerServer.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	ledger        LedgerServer
	health        *health.Server
	healthChecker *observability.HealthChecker
}

// ServerDeps holds all dependencies needed by the gRPC services.
type ServerDeps struct {
	Queries       Querier
	Submitter     Submitter
	EventLog      EventLog
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

// NewGRPCServer creates a new gRPC server with all services registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer()

	ledger := &ledgerService{
		queries:   deps.Queries,
		submitter: deps.Submitter,
		eventLog:  deps.EventLog,
		startTime: deps.StartTime,
	}
	RegisterLedgerServer(grpcServer, ledger)

	// Health check; NOT_SERVING until recovery completes.
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		ledger:        ledger,
		health:        healthServer,
		healthChecker: deps.HealthChecker,
	}
}

// SetServing flips the gRPC health status of the ledger service.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves gRPC on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON gateway (blocking). HTTP/JSON is
// served for tooling, dashboards and curl.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	handler, err := s.HTTPHandler()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP gateway shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP gateway listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// HTTPHandler builds the gateway mux plus health endpoints.
func (s *GRPCServer) HTTPHandler() (http.Handler, error) {
	mux := runtime.NewServeMux()
	if err := registerGatewayRoutes(mux, s.ledger); err != nil {
		return nil, fmt.Errorf("register gateway routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)
	return httpMux, nil
}

// ============================================================================
// Gateway routes
// ============================================================================

var errorMarshaler = &runtime.JSONPb{}

// route adapts a LedgerServer call to a gateway handler. build turns the
// request into the call's input.
func route[Req any, Resp any](
	mux *runtime.ServeMux,
	call func(context.Context, *Req) (*Resp, error),
	build func(r *http.Request, params map[string]string) (*Req, error),
) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		ctx := r.Context()
		req, err := build(r, params)
		if err == nil {
			var resp *Resp
			resp, err = call(ctx, req)
			if err == nil {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(resp)
				return
			}
		}
		runtime.HTTPError(ctx, mux, errorMarshaler, w, r, statusFromError(err))
	}
}

func registerGatewayRoutes(mux *runtime.ServeMux, ledger LedgerServer) error {
	routes := []struct {
		method, path string
		handler      runtime.HandlerFunc
	}{
		{"POST", "/v1/commands/{command_type}", route(mux, ledger.SubmitCommand,
			func(r *http.Request, p map[string]string) (*SubmitCommandRequest, error) {
				body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
				if err != nil {
					return nil, err
				}
				return &SubmitCommandRequest{CommandType: p["command_type"], Payload: body}, nil
			})},
		{"GET", "/v1/markets/{market_id}/reserves", route(mux, ledger.GetReserves,
			func(r *http.Request, p map[string]string) (*MarketRequest, error) {
				return &MarketRequest{MarketID: p["market_id"]}, nil
			})},
		{"GET", "/v1/markets/{market_id}/obligations/{owner}", route(mux, ledger.GetObligation,
			func(r *http.Request, p map[string]string) (*GetObligationRequest, error) {
				return &GetObligationRequest{MarketID: p["market_id"], Owner: p["owner"]}, nil
			})},
		{"GET", "/v1/owners/{owner}/balances", route(mux, ledger.GetBalances,
			func(r *http.Request, p map[string]string) (*OwnerRequest, error) {
				return &OwnerRequest{Owner: p["owner"]}, nil
			})},
		{"GET", "/v1/borrowers/{borrower}/liquidations", route(mux, ledger.ListLiquidations,
			func(r *http.Request, p map[string]string) (*ListLiquidationsRequest, error) {
				size, before := paging(r)
				return &ListLiquidationsRequest{Borrower: p["borrower"], PageSize: size, BeforeSequence: before}, nil
			})},
		{"GET", "/v1/journals", route(mux, ledger.ListJournals,
			func(r *http.Request, p map[string]string) (*ListJournalsRequest, error) {
				size, before := paging(r)
				return &ListJournalsRequest{Account: r.URL.Query().Get("account"), PageSize: size, BeforeSequence: before}, nil
			})},
		{"GET", "/v1/admin/integrity", route(mux, ledger.VerifyIntegrity,
			func(*http.Request, map[string]string) (*Empty, error) { return &Empty{}, nil })},
		{"GET", "/v1/admin/event-log", route(mux, ledger.GetEventLogInfo,
			func(*http.Request, map[string]string) (*Empty, error) { return &Empty{}, nil })},
	}

	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.path, rt.handler); err != nil {
			return fmt.Errorf("%s %s: %w", rt.method, rt.path, err)
		}
	}
	return nil
}

// paging reads page_size and before_sequence query parameters; malformed
// values fall back to defaults.
func paging(r *http.Request) (int32, int64) {
	q := r.URL.Query()
	size, _ := strconv.ParseInt(q.Get("page_size"), 10, 32)
	before, _ := strconv.ParseInt(q.Get("before_sequence"), 10, 64)
	return int32(size), before
}
