package relay

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

// FatalHandler is invoked on a registry invariant violation
type FatalHandler func(err error)

// defaultFatal panics; a corrupted registry cannot route correctly.
func defaultFatal(err error) {
	panic(err)
}

// Registry maps each role to its live sessions. Every mutation happens under
// one lock and readers get copies, so no lock is ever held while sending.
type Registry struct {
	mu     sync.RWMutex
	byRole map[types.Role]map[types.ID]*Session
	index  map[types.ID]types.Role
	fatal  FatalHandler
}

// NewRegistry creates an empty registry. A nil fatal handler panics.
func NewRegistry(fatal FatalHandler) *Registry {
	if fatal == nil {
		fatal = defaultFatal
	}
	return &Registry{
		byRole: make(map[types.Role]map[types.ID]*Session),
		index:  make(map[types.ID]types.Role),
		fatal:  fatal,
	}
}

// Register adds s under role. It fails with DUPLICATE_SESSION if the id is
// already present under any role.
func (r *Registry) Register(role types.Role, s *Session) error {
	if role.IsEmpty() {
		return types.NewError(types.ErrCodeInvalidArgument, "cannot register session without a role")
	}

	r.mu.Lock()
	if existing, ok := r.index[s.ID()]; ok {
		r.mu.Unlock()
		return types.NewError(types.ErrCodeDuplicateSession,
			fmt.Sprintf("session %s already registered as %s", s.ID(), existing))
	}

	bucket, ok := r.byRole[role]
	if !ok {
		bucket = make(map[types.ID]*Session)
		r.byRole[role] = bucket
	}
	if _, stray := bucket[s.ID()]; stray {
		r.mu.Unlock()
		err := types.NewError(types.ErrCodeRegistryCorruption,
			fmt.Sprintf("session %s in %s bucket but missing from index", s.ID(), role))
		r.fatal(err)
		return err
	}
	bucket[s.ID()] = s
	r.index[s.ID()] = role
	r.mu.Unlock()
	return nil
}

// Unregister removes the session with id. It reports whether it was present.
func (r *Registry) Unregister(id types.ID) bool {
	r.mu.Lock()
	role, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return false
	}

	bucket := r.byRole[role]
	if _, present := bucket[id]; !present {
		r.mu.Unlock()
		r.fatal(types.NewError(types.ErrCodeRegistryCorruption,
			fmt.Sprintf("session %s indexed as %s but absent from bucket", id, role)))
		return false
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(r.byRole, role)
	}
	delete(r.index, id)
	r.mu.Unlock()
	return true
}

// Snapshot returns a copy of the sessions registered under role
func (r *Registry) Snapshot(role types.Role) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.byRole[role]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(bucket))
	for _, s := range bucket {
		out = append(out, s)
	}
	return out
}

// Get returns the session with id
func (r *Registry) Get(id types.ID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	role, ok := r.index[id]
	if !ok {
		return nil, false
	}
	s, ok := r.byRole[role][id]
	return s, ok
}

// All returns a copy of every registered session
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.index))
	for _, bucket := range r.byRole {
		for _, s := range bucket {
			out = append(out, s)
		}
	}
	return out
}

// Roles returns the roles that currently have sessions, sorted
func (r *Registry) Roles() []types.Role {
	r.mu.RLock()
	roles := make([]types.Role, 0, len(r.byRole))
	for role := range r.byRole {
		roles = append(roles, role)
	}
	r.mu.RUnlock()

	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Count returns the number of sessions per role
func (r *Registry) Count() map[types.Role]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[types.Role]int, len(r.byRole))
	for role, bucket := range r.byRole {
		out[role] = len(bucket)
	}
	return out
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}

// Check verifies that the index and the buckets agree. A mismatch returns
// REGISTRY_CORRUPTION; it does not invoke the fatal handler.
func (r *Registry) Check() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for role, bucket := range r.byRole {
		if len(bucket) == 0 {
			return types.NewError(types.ErrCodeRegistryCorruption,
				fmt.Sprintf("empty bucket retained for %s", role))
		}
		for id, s := range bucket {
			total++
			indexed, ok := r.index[id]
			if !ok {
				return types.NewError(types.ErrCodeRegistryCorruption,
					fmt.Sprintf("session %s in %s bucket but missing from index", id, role))
			}
			if indexed != role {
				return types.NewError(types.ErrCodeRegistryCorruption,
					fmt.Sprintf("session %s in %s bucket but indexed as %s", id, role, indexed))
			}
			if s.ID() != id {
				return types.NewError(types.ErrCodeRegistryCorruption,
					fmt.Sprintf("bucket key %s holds session %s", id, s.ID()))
			}
		}
	}
	if total != len(r.index) {
		return types.NewError(types.ErrCodeRegistryCorruption,
			fmt.Sprintf("index has %d entries, buckets hold %d", len(r.index), total))
	}
	return nil
}
