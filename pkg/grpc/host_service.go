package grpc

import (
	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/relay"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
	"github.com/sharisseji/Waterloop-Host-Application/proto"
)

// RoleMetadataKey is the request metadata key a Connect caller may use to
// declare its role instead of sending a first message
const RoleMetadataKey = "x-relay-role"

// HostService implements proto.HostControlServer by handing every stream to
// the relay as one endpoint session
type HostService struct {
	proto.UnimplementedHostControlServer

	relay  *relay.Server
	logger *logger.Logger
}

var _ proto.HostControlServer = (*HostService)(nil)

// NewHostService creates the HostControl service over r
func NewHostService(r *relay.Server, log *logger.Logger) *HostService {
	if log == nil {
		log = logger.Discard()
	}
	return &HostService{
		relay:  r,
		logger: log.With("component", "host_service"),
	}
}

// TelemetryStream binds the stream to the telemetry role
func (s *HostService) TelemetryStream(stream proto.HostControl_TelemetryStreamServer) error {
	return s.serve(stream, types.RoleTelemetry)
}

// CommandStream binds the stream to the dashboard role
func (s *HostService) CommandStream(stream proto.HostControl_CommandStreamServer) error {
	return s.serve(stream, types.RoleDashboard)
}

// MotorControlStream binds the stream to the motor_control role
func (s *HostService) MotorControlStream(stream proto.HostControl_MotorControlStreamServer) error {
	return s.serve(stream, types.RoleMotorControl)
}

// Connect takes the role from request metadata when present, otherwise from
// the sender of the first message
func (s *HostService) Connect(stream proto.HostControl_ConnectServer) error {
	role := types.Role(metadataValue(stream.Context(), RoleMetadataKey))
	return s.serve(stream, role)
}

func (s *HostService) serve(stream proto.HostControl_ConnectServer, role types.Role) error {
	t := newStreamTransport(stream)
	err := s.relay.Accept(stream.Context(), t, role)
	if err != nil {
		s.logger.Debug("stream ended", "role", role.String(), "remote_addr", t.RemoteAddr(), "error", err)
	}
	return errorToStatus(err)
}
