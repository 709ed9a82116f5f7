package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	protobuf "google.golang.org/protobuf/proto"

	"github.com/sharisseji/Waterloop-Host-Application/pkg/relay"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
	"github.com/sharisseji/Waterloop-Host-Application/proto"
)

func TestMessageConversion(t *testing.T) {
	wire := &proto.HostMessage{Sender: "telemetry", Recipient: "dashboard", Command: "telemetry:30:10,20,30"}
	msg := messageFromProto(wire)
	assert.Equal(t, types.NewMessage("telemetry", "dashboard", "telemetry:30:10,20,30"), msg)
	assert.True(t, protobuf.Equal(wire, messageToProto(msg)))

	assert.Nil(t, messageFromProto(nil))
	assert.Nil(t, messageToProto(nil))
}

func TestErrorToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"duplicate", types.NewError(types.ErrCodeDuplicateSession, "dup"), codes.AlreadyExists},
		{"shutting down", relay.ErrShuttingDown, codes.Unavailable},
		{"invalid role", types.NewError(types.ErrCodeInvalidArgument, "bad"), codes.InvalidArgument},
		{"handshake timeout", types.NewError(types.ErrCodeTimeout, "slow"), codes.DeadlineExceeded},
		{"connection lost", types.WrapError(types.ErrCodeConnectionLost, "recv", errors.New("reset")), codes.Unavailable},
		{"corruption", types.NewError(types.ErrCodeRegistryCorruption, "broken"), codes.Internal},
		{"wrapped", fmt.Errorf("outer: %w", types.NewError(types.ErrCodeDuplicateSession, "dup")), codes.AlreadyExists},
		{"context canceled", context.Canceled, codes.Canceled},
		{"existing status", status.Error(codes.PermissionDenied, "no"), codes.PermissionDenied},
		{"plain error", errors.New("mystery"), codes.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(errorToStatus(tt.err)))
		})
	}
	assert.NoError(t, errorToStatus(nil))
}
