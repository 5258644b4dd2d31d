package runtime

import (
	"fmt"
	"quorum/contract"
	"quorum/domain"
	"quorum/errors"
	"sync"
)

type Set map[domain.ConnectionID]struct{}

type session struct {
	identity domain.Identity
	sink     contract.ConnectionSink
	rooms    map[domain.GroupID]struct{}
}

// Registry is the two-sided index between live connections and rooms.
// One lock guards both sides so a fan-out snapshot never sees half of a mutation.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[domain.ConnectionID]*session // connection -> its sink and joined rooms
	roomMembers map[domain.GroupID]Set           // room -> connections
}

var _ contract.IRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[domain.ConnectionID]*session),
		roomMembers: make(map[domain.GroupID]Set),
	}
}

// Register creates the connection record holding its delivery sink.
func (r *Registry) Register(connID domain.ConnectionID, identity domain.Identity, sink contract.ConnectionSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; ok {
		return fmt.Errorf("%w: %s", errors.ErrConnectionExists, connID)
	}
	r.sessions[connID] = &session{
		identity: identity,
		sink:     sink,
		rooms:    make(map[domain.GroupID]struct{}),
	}
	return nil
}

// Join adds the connection to the room. Joining twice is a no-op.
func (r *Registry) Join(connID domain.ConnectionID, groupID domain.GroupID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownConnection, connID)
	}
	if _, ok := r.roomMembers[groupID]; !ok {
		r.roomMembers[groupID] = make(Set)
	}
	r.roomMembers[groupID][connID] = struct{}{}
	s.rooms[groupID] = struct{}{}
	return nil
}

// Leave removes the connection from the room. Unknown connections and rooms are ignored.
func (r *Registry) Leave(connID domain.ConnectionID, groupID domain.GroupID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		delete(s.rooms, groupID)
	}
	r.removeMember(connID, groupID)
}

// Disconnect leaves every joined room then discards the record.
// The sink is handed back so the caller decides when to close it.
func (r *Registry) Disconnect(connID domain.ConnectionID) (contract.ConnectionSink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	for groupID := range s.rooms {
		r.removeMember(connID, groupID)
	}
	delete(r.sessions, connID)
	return s.sink, true
}

// removeMember must be called with the write lock held.
// Empty rooms are dropped so the map does not grow with every room ever used.
func (r *Registry) removeMember(connID domain.ConnectionID, groupID domain.GroupID) {
	members, ok := r.roomMembers[groupID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.roomMembers, groupID)
	}
}

// MembersOf returns a copy of the room's connection set.
func (r *Registry) MembersOf(groupID domain.GroupID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.roomMembers[groupID]
	ids := make([]domain.ConnectionID, 0, len(members))
	for connID := range members {
		ids = append(ids, connID)
	}
	return ids
}

// SinksFor resolves the room members into their sinks in a single read.
func (r *Registry) SinksFor(groupID domain.GroupID) []contract.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[groupID]
	if !ok {
		return nil
	}
	result := make([]contract.Member, 0, len(members))
	for connID := range members {
		if s, exists := r.sessions[connID]; exists {
			result = append(result, contract.Member{ID: connID, Sink: s.sink})
		}
	}
	return result
}

func (r *Registry) JoinedRooms(connID domain.ConnectionID) []domain.GroupID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil
	}
	rooms := make([]domain.GroupID, 0, len(s.rooms))
	for groupID := range s.rooms {
		rooms = append(rooms, groupID)
	}
	return rooms
}

func (r *Registry) Identity(connID domain.ConnectionID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return domain.Identity{}, false
	}
	return s.identity, true
}

// ConnectionsOf lists the live connections of an authenticated user.
// Guests have no user id and are never returned.
func (r *Registry) ConnectionsOf(userID string) []contract.Member {
	if userID == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []contract.Member
	for connID, s := range r.sessions {
		if s.identity.UserID == userID {
			result = append(result, contract.Member{ID: connID, Sink: s.sink})
		}
	}
	return result
}

func (r *Registry) Stats() domain.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.RegistryStats{Connections: len(r.sessions), Rooms: len(r.roomMembers)}
	for _, members := range r.roomMembers {
		stats.Memberships += len(members)
	}
	return stats
}

// CheckInvariants verifies both indexes agree. It is meant for tests.
func (r *Registry) CheckInvariants() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for groupID, members := range r.roomMembers {
		if len(members) == 0 {
			return fmt.Errorf("%w: room %s kept with no member", errors.ErrRegistryInconsistency, groupID)
		}
		for connID := range members {
			s, ok := r.sessions[connID]
			if !ok {
				return fmt.Errorf("%w: room %s lists unknown connection %s", errors.ErrRegistryInconsistency, groupID, connID)
			}
			if _, ok := s.rooms[groupID]; !ok {
				return fmt.Errorf("%w: connection %s missing room %s", errors.ErrRegistryInconsistency, connID, groupID)
			}
		}
	}
	for connID, s := range r.sessions {
		for groupID := range s.rooms {
			if _, ok := r.roomMembers[groupID][connID]; !ok {
				return fmt.Errorf("%w: room %s missing connection %s", errors.ErrRegistryInconsistency, groupID, connID)
			}
		}
	}
	return nil
}
