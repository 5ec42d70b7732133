package rpc

import (
	"context"
	"errors"

	"github.com/signalsfoundry/globe-poi/core"
	"github.com/signalsfoundry/globe-poi/internal/scene"
	"github.com/signalsfoundry/globe-poi/kb"
	"github.com/signalsfoundry/globe-poi/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrInvalidRequest marks a request payload that could not be decoded.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoFrame is returned before the scene has rendered its first frame.
	ErrNoFrame = errors.New("no frame rendered yet")
)

// ToStatusError maps globe errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, kb.ErrMarkerNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, model.ErrInvalidMarker),
		errors.Is(err, model.ErrDuplicateMarker),
		errors.Is(err, model.ErrInvalidCoordinate),
		errors.Is(err, core.ErrDegenerateCamera),
		errors.Is(err, core.ErrZeroVector):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, kb.ErrMarkerExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, scene.ErrClosed),
		errors.Is(err, ErrNoFrame):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
