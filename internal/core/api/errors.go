package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/formflow/internal/types"
)

// Code classifies a service error:
//   - unknown ids map to NotFound
//   - malformed documents and missing ids map to InvalidArgument
//   - context timeouts map to DeadlineExceeded, cancellation to Canceled
//   - everything else is a store failure and maps to Unavailable
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, types.ErrWorkflowNotFound),
		errors.Is(err, types.ErrRuleSetNotFound),
		errors.Is(err, types.ErrTemplateNotFound):
		return codes.NotFound
	case errors.Is(err, types.ErrInvalidWorkflow),
		errors.Is(err, types.ErrMissingID):
		return codes.InvalidArgument
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Unavailable
}

// ToStatus converts err into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(Code(err), err.Error())
}

// HTTPStatus is the HTTP equivalent of Code.
func HTTPStatus(err error) int {
	switch Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusServiceUnavailable
	}
}
