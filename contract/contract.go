//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"quorum/domain"
	"quorum/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes events emitted after a message was persisted.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// ConnectionSink is the ordered outbound queue of one connection.
// Deliver must never block: it returns errors.ErrSinkFull or errors.ErrSinkClosed instead.
type ConnectionSink interface {
	Deliver(evt domain.Outbound) error
	Close()
}

// Member pairs a connection with its sink in a registry snapshot.
type Member struct {
	ID   domain.ConnectionID
	Sink ConnectionSink
}

type IRegistry interface {
	Register(connID domain.ConnectionID, identity domain.Identity, sink ConnectionSink) error
	Join(connID domain.ConnectionID, groupID domain.GroupID) error
	Leave(connID domain.ConnectionID, groupID domain.GroupID)
	Disconnect(connID domain.ConnectionID) (ConnectionSink, bool)
	MembersOf(groupID domain.GroupID) []domain.ConnectionID
	SinksFor(groupID domain.GroupID) []Member
	JoinedRooms(connID domain.ConnectionID) []domain.GroupID
	Identity(connID domain.ConnectionID) (domain.Identity, bool)
	ConnectionsOf(userID string) []Member
	Stats() domain.RegistryStats
}

type IRouter interface {
	Connect(connID domain.ConnectionID, identity domain.Identity, sink ConnectionSink) error
	Join(ctx context.Context, connID domain.ConnectionID, groupID domain.GroupID) error
	Leave(connID domain.ConnectionID, groupID domain.GroupID)
	Disconnect(connID domain.ConnectionID)
	Publish(ctx context.Context, message domain.Message) domain.Delivery
	IRevoker
}

// IRevoker takes a user out of the rooms they are no longer allowed in.
type IRevoker interface {
	Reauthorize(ctx context.Context, userID string, groupID domain.GroupID) int
}

type IAuthorizer interface {
	Authorize(ctx context.Context, identity domain.Identity, groupID domain.GroupID) (bool, error)
}

type IMembershipService interface {
	IAuthorizer
	AddMember(ctx context.Context, membership domain.Membership) error
	RemoveMember(ctx context.Context, userID string, groupID domain.GroupID) error
	GroupsOf(ctx context.Context, userID string) ([]domain.Membership, error)
}

// ISequencer runs fn exclusively for groupID, other groups are not blocked.
type ISequencer interface {
	Do(groupID domain.GroupID, fn func())
}

// IMessageRepository is the durable store. Append assigns ID and Sequence.
// Query returns messages with a sequence strictly greater than since, ascending.
type IMessageRepository interface {
	Append(ctx context.Context, message domain.Message) (domain.Message, error)
	Query(ctx context.Context, groupID domain.GroupID, since uint64) ([]domain.Message, error)
}

type IMembershipRepository interface {
	Add(ctx context.Context, membership domain.Membership) error
	Remove(ctx context.Context, userID string, groupID domain.GroupID) error
	Get(ctx context.Context, userID string, groupID domain.GroupID) (domain.Membership, error)
	GroupsOf(ctx context.Context, userID string) ([]domain.Membership, error)
}

// ISearchIndex indexes persisted messages in batches.
type ISearchIndex interface {
	Index(ctx context.Context, messages ...domain.Message) error
	Search(ctx context.Context, groupID domain.GroupID, query string, limit int) ([]domain.Message, error)
}

type IIngestService interface {
	Submit(ctx context.Context, cmd domain.SubmitCommand) (domain.Receipt, error)
	History(ctx context.Context, groupID domain.GroupID, since uint64) ([]domain.Message, error)
}
