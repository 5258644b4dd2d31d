package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"quorum/contract"
	"quorum/domain"
	"quorum/errors"

	"github.com/samber/lo"
)

// Router mutates the registry on behalf of connections and fans stored
// messages out to the current members of their room.
type Router struct {
	log        *slog.Logger
	registry   contract.IRegistry
	authorizer contract.IAuthorizer
}

var _ contract.IRouter = (*Router)(nil)

func NewRouter(log *slog.Logger, registry contract.IRegistry, authorizer contract.IAuthorizer) *Router {
	return &Router{log: log, registry: registry, authorizer: authorizer}
}

func (r *Router) Connect(connID domain.ConnectionID, identity domain.Identity, sink contract.ConnectionSink) error {
	if err := r.registry.Register(connID, identity, sink); err != nil {
		return err
	}
	r.log.Debug("Connection registered", "connection_id", connID, "name", identity.Name, "guest", identity.IsGuest())
	return nil
}

// Join checks the connection's identity may enter the room before joining it.
func (r *Router) Join(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID) error {
	identity, ok := r.registry.Identity(connID)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownConnection, connID)
	}
	allowed, err := r.authorizer.Authorize(ctx, identity, groupID)
	if err != nil {
		return fmt.Errorf("authorize %s on %s: %w", identity.Name, groupID, err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s", errors.ErrUnauthorized, groupID)
	}
	if err = r.registry.Join(connID, groupID); err != nil {
		return err
	}
	r.log.Debug("Connection joined room", "connection_id", connID, "group_id", groupID)
	return nil
}

func (r *Router) Leave(connID domain.ConnectionID, groupID domain.GroupID) {
	r.registry.Leave(connID, groupID)
	r.log.Debug("Connection left room", "connection_id", connID, "group_id", groupID)
}

// Reauthorize asks the authorizer again for every connection of userID in
// groupID. Those refused leave the room and are told with a left event.
// It returns how many connections were evicted.
func (r *Router) Reauthorize(ctx context.Context, userID string, groupID domain.GroupID) int {
	evicted := 0
	for _, member := range r.registry.ConnectionsOf(userID) {
		if !lo.Contains(r.registry.JoinedRooms(member.ID), groupID) {
			continue
		}
		identity, ok := r.registry.Identity(member.ID)
		if !ok {
			continue
		}
		allowed, err := r.authorizer.Authorize(ctx, identity, groupID)
		if err != nil {
			// Left in the room, only a refusal evicts.
			r.log.WarnContext(ctx, "Reauthorization failed", "connection_id", member.ID, "group_id", groupID, "error", err)
			continue
		}
		if allowed {
			continue
		}
		r.Leave(member.ID, groupID)
		if err = member.Sink.Deliver(domain.NewEvictionEvent(groupID, "membership revoked")); err != nil {
			r.log.DebugContext(ctx, "Eviction notice not queued", "connection_id", member.ID, "error", err)
		}
		evicted++
	}
	if evicted > 0 {
		r.log.InfoContext(ctx, "Connections evicted from room", "user_id", userID, "group_id", groupID, "count", evicted)
	}
	return evicted
}

// Disconnect is the implicit leave of every room. The sink is closed so the
// write pump drains what is queued and stops.
func (r *Router) Disconnect(connID domain.ConnectionID) {
	sink, ok := r.registry.Disconnect(connID)
	if !ok {
		return
	}
	sink.Close()
	r.log.Debug("Connection disconnected", "connection_id", connID)
}

// Publish delivers message to a snapshot of its room's members.
// Each delivery is an enqueue that never blocks, done in call order, so two
// publishes for the same room reach every common member in the same order.
// A member whose queue overflows is disconnected; other failures are only logged.
func (r *Router) Publish(ctx context.Context, message domain.Message) domain.Delivery {
	members := r.registry.SinksFor(message.GroupID)
	delivery := domain.Delivery{
		GroupID:  message.GroupID,
		Sequence: message.Sequence,
		Targets:  len(members),
	}
	evt := domain.NewMessageEvent(message)

	for _, member := range members {
		err := member.Sink.Deliver(evt)
		switch {
		case err == nil:
			delivery.Delivered++
		case errors.Is(err, errors.ErrSinkFull):
			delivery.Dropped++
			r.log.WarnContext(ctx, errors.ErrDelivery.Error(),
				"connection_id", member.ID, "group_id", message.GroupID, "sequence", message.Sequence, "error", err)
			r.Disconnect(member.ID)
		default:
			delivery.Dropped++
			r.log.InfoContext(ctx, errors.ErrDelivery.Error(),
				"connection_id", member.ID, "group_id", message.GroupID, "sequence", message.Sequence, "error", err)
		}
	}
	return delivery
}
