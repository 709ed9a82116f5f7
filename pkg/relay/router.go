package relay

import (
	"sync/atomic"

	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

// RouterStats contains routing counters
type RouterStats struct {
	Routed      int64 `json:"routed"`
	Deliveries  int64 `json:"deliveries"`
	DeadLetters int64 `json:"dead_letters"`
	Rejected    int64 `json:"rejected"`
}

// Router fans a message out to every live session of its recipient role
type Router struct {
	registry *Registry
	log      *logger.Logger

	routed      atomic.Int64
	deliveries  atomic.Int64
	deadLetters atomic.Int64
	rejected    atomic.Int64
}

// NewRouter creates a router over registry
func NewRouter(registry *Registry, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Discard()
	}
	return &Router{
		registry: registry,
		log:      log.With("component", "router"),
	}
}

// Route enqueues msg to every session registered under its recipient role
// except the session identified by from. It returns the number of sessions
// that accepted the message. Unknown roles and empty buckets are dead
// letters, and closed targets are skipped; neither is an error.
func (r *Router) Route(from types.ID, msg *types.Message) int {
	r.routed.Add(1)

	role := msg.RecipientRole()
	targets := r.registry.Snapshot(role)

	delivered := 0
	for _, target := range targets {
		if target.ID() == from {
			continue
		}
		if err := target.Send(msg); err != nil {
			r.rejected.Add(1)
			r.log.Debug("target rejected message", "target", target.ID().String(), "error", err)
			continue
		}
		delivered++
	}

	if delivered == 0 {
		r.deadLetters.Add(1)
		r.log.Debug("dead letter", "recipient", msg.Recipient, "sender", msg.Sender)
		return 0
	}
	r.deliveries.Add(int64(delivered))
	return delivered
}

// Stats returns routing counters
func (r *Router) Stats() RouterStats {
	return RouterStats{
		Routed:      r.routed.Load(),
		Deliveries:  r.deliveries.Load(),
		DeadLetters: r.deadLetters.Load(),
		Rejected:    r.rejected.Load(),
	}
}
