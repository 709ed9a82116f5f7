package grpc

import (
	"context"
	"errors"

	grpcCodes "google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"

	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
	"github.com/sharisseji/Waterloop-Host-Application/proto"
)

// messageFromProto converts a wire message to the relay message type
func messageFromProto(m *proto.HostMessage) *types.Message {
	if m == nil {
		return nil
	}
	return types.NewMessage(m.GetSender(), m.GetRecipient(), m.GetCommand())
}

// messageToProto converts a relay message to its wire form
func messageToProto(m *types.Message) *proto.HostMessage {
	if m == nil {
		return nil
	}
	return &proto.HostMessage{
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Command:   m.Command,
	}
}

// codeToGRPC maps a types.Error code to the closest gRPC status code
func codeToGRPC(code string) grpcCodes.Code {
	switch code {
	case types.ErrCodeInvalidArgument, types.ErrCodeInvalid:
		return grpcCodes.InvalidArgument
	case types.ErrCodeDuplicateSession, types.ErrCodeAlreadyExists:
		return grpcCodes.AlreadyExists
	case types.ErrCodeNotFound:
		return grpcCodes.NotFound
	case types.ErrCodeUnavailable, types.ErrCodeConnectionLost, types.ErrCodeClosed:
		return grpcCodes.Unavailable
	case types.ErrCodeTimeout:
		return grpcCodes.DeadlineExceeded
	case types.ErrCodeCanceled:
		return grpcCodes.Canceled
	case types.ErrCodeFailedPrecondition:
		return grpcCodes.FailedPrecondition
	case types.ErrCodeResourceExhausted:
		return grpcCodes.ResourceExhausted
	case types.ErrCodeInternal, types.ErrCodeRegistryCorruption:
		return grpcCodes.Internal
	default:
		return grpcCodes.Unknown
	}
}

// errorToStatus converts a relay error into a gRPC status error. Errors that
// already carry a status pass through.
func errorToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcStatus.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return grpcStatus.Error(grpcCodes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return grpcStatus.Error(grpcCodes.DeadlineExceeded, err.Error())
	}

	var relayErr *types.Error
	if errors.As(err, &relayErr) {
		return grpcStatus.Error(codeToGRPC(relayErr.Code), relayErr.Error())
	}
	return grpcStatus.Error(grpcCodes.Unknown, err.Error())
}
