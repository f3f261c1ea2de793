package server

import (
	"context"
	"errors"

	"LendLedger/internal/ingestion"
	"LendLedger/internal/query"
	"LendLedger/internal/state"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codeForKind maps the error taxonomy onto gRPC codes. Kinds not listed are
// business-rule rejections and map to FailedPrecondition.
var codeForKind = map[string]codes.Code{
	"InvalidParameter":          codes.InvalidArgument,
	"InvalidAmountUnits":        codes.InvalidArgument,
	"ObligationAccountMismatch": codes.InvalidArgument,
	"InvalidLiquidationConfig":  codes.InvalidArgument,
	"ArithmeticOverflow":        codes.OutOfRange,
	"DivisionByZero":            codes.OutOfRange,
	"NotSupported":              codes.Unimplemented,
	"Unauthorized":              codes.PermissionDenied,
	"AlreadyExists":             codes.AlreadyExists,
	"DuplicatePosition":         codes.AlreadyExists,
	"ReserveNotFound":           codes.NotFound,
	"MarketNotFound":            codes.NotFound,
	"ObligationNotFound":        codes.NotFound,
	"AccountNotFound":           codes.NotFound,
	"PositionNotFound":          codes.NotFound,
}

// statusFromError converts a service or core error to a gRPC status error.
// Core rejections carry their kind name and wire code in the message.
func statusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, ingestion.ErrMalformedCommand):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ingestion.ErrIngestClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, query.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	}

	kind := state.ErrorCode(err)
	if kind == state.UnknownErrorKind {
		return status.Error(codes.Internal, err.Error())
	}
	code, ok := codeForKind[kind.Name]
	if !ok {
		code = codes.FailedPrecondition
	}
	return status.Errorf(code, "%s (%d): %v", kind.Name, kind.Code, err)
}
