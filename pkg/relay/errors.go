package relay

import (
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

var (
	// ErrClosed is returned when sending to a closed session or queue
	ErrClosed = types.NewError(types.ErrCodeClosed, "session closed")

	// ErrShuttingDown is returned by Accept once Shutdown has begun
	ErrShuttingDown = types.NewError(types.ErrCodeUnavailable, "relay is shutting down")
)
