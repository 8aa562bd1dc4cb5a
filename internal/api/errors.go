package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/raptchat/rapt/internal/auth"
	"github.com/raptchat/rapt/internal/raptapi"
	"github.com/raptchat/rapt/internal/realtime"
	intsync "github.com/raptchat/rapt/internal/sync"
)

// toStatus maps a domain error onto a gRPC status error.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return grpcstatus.FromContextError(err).Err()
	}
	return grpcstatus.Errorf(codeOf(err), "%s: %v", op, err)
}

func codeOf(err error) codes.Code {
	var apiErr *raptapi.Error
	switch {
	case errors.Is(err, auth.ErrAuthenticationMissing), errors.Is(err, auth.ErrRefreshFailed):
		return codes.Unauthenticated
	case errors.Is(err, auth.ErrPhoneRequired), errors.Is(err, intsync.ErrEmptyMessage):
		return codes.InvalidArgument
	case errors.Is(err, raptapi.ErrNetworkUnreachable):
		return codes.Unavailable
	case errors.Is(err, realtime.ErrNotConnected):
		return codes.FailedPrecondition
	case errors.Is(err, intsync.ErrRoomNotFound), errors.Is(err, intsync.ErrContactNotFound):
		return codes.NotFound
	case errors.As(err, &apiErr):
		switch apiErr.Status {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return codes.InvalidArgument
		case http.StatusUnauthorized, http.StatusForbidden:
			return codes.Unauthenticated
		case http.StatusNotFound:
			return codes.NotFound
		case http.StatusConflict:
			return codes.AlreadyExists
		}
		return codes.Unknown
	}
	return codes.Internal
}
