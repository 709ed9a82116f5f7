package grpc

import (
	"context"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

// HealthServer implements the gRPC health checking protocol
// See https://github.com/grpc/grpc/blob/master/doc/health-checking.md
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	logger   *logger.Logger
	mu       sync.RWMutex
	statuses map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
	shutdown bool
	// changed is closed and replaced on every status update
	changed chan struct{}
}

// HealthServerConfig contains health server configuration
type HealthServerConfig struct {
	// InitialStatuses maps service names to their initial health status
	InitialStatuses map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
}

// NewHealthServer creates a new health check server
func NewHealthServer(cfg HealthServerConfig, log *logger.Logger) (*HealthServer, error) {
	if log == nil {
		var err error
		log, err = logger.NewDefault()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInternal, "failed to create default logger", err)
		}
	}

	statuses := make(map[string]grpc_health_v1.HealthCheckResponse_ServingStatus, len(cfg.InitialStatuses)+1)
	for k, v := range cfg.InitialStatuses {
		statuses[k] = v
	}
	if _, exists := statuses[""]; !exists {
		statuses[""] = grpc_health_v1.HealthCheckResponse_SERVING
	}

	hs := &HealthServer{
		logger:   log.With("component", "health_server"),
		statuses: statuses,
		changed:  make(chan struct{}),
	}

	hs.logger.Debug("Health server initialized",
		"initial_statuses", len(statuses),
		"default_status", statuses[""].String())

	return hs, nil
}

// Check implements the health check RPC. An empty service name reports the
// overall server status; an unregistered name is NotFound.
func (s *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	service := req.GetService()
	if s.shutdown {
		return &grpc_health_v1.HealthCheckResponse{
			Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING,
		}, nil
	}

	servingStatus, exists := s.statuses[service]
	if !exists {
		return nil, status.Error(codes.NotFound, "unknown service")
	}

	return &grpc_health_v1.HealthCheckResponse{Status: servingStatus}, nil
}

// Watch sends the current status of the requested service and then one
// response per change until the client goes away. Unknown services report
// SERVICE_UNKNOWN rather than failing.
func (s *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	service := req.GetService()
	last := grpc_health_v1.HealthCheckResponse_ServingStatus(-1)

	for {
		s.mu.RLock()
		current := s.watchStatus(service)
		changed := s.changed
		s.mu.RUnlock()

		if current != last {
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
				return err
			}
			last = current
		}

		select {
		case <-stream.Context().Done():
			return status.FromContextError(stream.Context().Err()).Err()
		case <-changed:
		}
	}
}

// watchStatus must be called with the lock held
func (s *HealthServer) watchStatus(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if s.shutdown {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	st, ok := s.statuses[service]
	if !ok {
		return grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
	}
	return st
}

// notify must be called with the write lock held
func (s *HealthServer) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// setServingStatus sets the serving status of the given service
func (s *HealthServer) setServingStatus(service string, servingStatus grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}
	old, existed := s.statuses[service]
	s.statuses[service] = servingStatus
	if existed && old == servingStatus {
		return
	}
	s.notify()

	s.logger.Info("Health status updated",
		"service", service,
		"old_status", old.String(),
		"new_status", servingStatus.String())
}

// Shutdown reports NOT_SERVING for every service from now on
func (s *HealthServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}
	s.shutdown = true
	s.notify()
	s.logger.Info("Health server shutdown")
}

// GetStatus returns the current serving status for a service, falling back
// to the overall status for unknown names
func (s *HealthServer) GetStatus(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.shutdown {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	if st, ok := s.statuses[service]; ok {
		return st
	}
	return s.statuses[""]
}

// SetServing sets the service status to SERVING
func (s *HealthServer) SetServing(service string) {
	s.setServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
}

// SetNotServing sets the service status to NOT_SERVING
func (s *HealthServer) SetNotServing(service string) {
	s.setServingStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// IsServing returns true if the service is currently SERVING
func (s *HealthServer) IsServing(service string) bool {
	return s.GetStatus(service) == grpc_health_v1.HealthCheckResponse_SERVING
}

// GetAllStatuses returns a copy of all service statuses
func (s *HealthServer) GetAllStatuses() map[string]grpc_health_v1.HealthCheckResponse_ServingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]grpc_health_v1.HealthCheckResponse_ServingStatus, len(s.statuses))
	for k, v := range s.statuses {
		result[k] = v
	}
	return result
}
