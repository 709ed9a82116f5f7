package types

// SessionState represents the lifecycle state of an endpoint session
type SessionState string

const (
	SessionStateConnecting SessionState = "connecting"
	SessionStateRegistered SessionState = "registered"
	SessionStateActive     SessionState = "active"
	SessionStateClosing    SessionState = "closing"
	SessionStateClosed     SessionState = "closed"
)

// sessionTransitions lists the legal successors of each state
var sessionTransitions = map[SessionState][]SessionState{
	SessionStateConnecting: {SessionStateRegistered, SessionStateClosing},
	SessionStateRegistered: {SessionStateActive, SessionStateClosing},
	SessionStateActive:     {SessionStateClosing},
	SessionStateClosing:    {SessionStateClosed},
}

// CanTransition reports whether s may move to next
func (s SessionState) CanTransition(next SessionState) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsLive reports whether a session in this state belongs in the registry
func (s SessionState) IsLive() bool {
	return s == SessionStateRegistered || s == SessionStateActive
}

// IsTerminal reports whether the state is Closed
func (s SessionState) IsTerminal() bool {
	return s == SessionStateClosed
}

// SessionInfo is a point-in-time description of a session
type SessionInfo struct {
	ID         ID           `json:"id"`
	Role       Role         `json:"role"`
	State      SessionState `json:"state"`
	Transport  string       `json:"transport"`
	RemoteAddr string       `json:"remote_addr,omitempty"`
	CreatedAt  Timestamp    `json:"created_at"`
	QueueLen   int          `json:"queue_len"`
	Received   int64        `json:"received"`
	Delivered  int64        `json:"delivered"`
	Dropped    int64        `json:"dropped"`
	Limited    int64        `json:"rate_limited"`
}
