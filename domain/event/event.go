package event

import (
	"quorum/domain"
	"time"
)

type Type string

const (
	MessagePersistedType Type = "MESSAGE_PERSISTED"
	MessagePublishedType Type = "MESSAGE_PUBLISHED"
	CensorshipHitType    Type = "CENSORSHIP_HIT"
)

// Event is what travels on the internal channels between the pipeline,
// the fan-out worker and the telemetry worker.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

// DomainEvent is a payload bound to a group.
type DomainEvent interface {
	GroupID() domain.GroupID
}

// MessagePersisted is emitted once per stored message, after live fan-out.
type MessagePersisted struct {
	Message domain.Message
}

func (m MessagePersisted) GroupID() domain.GroupID {
	return m.Message.GroupID
}

// MessagePublished summarises one fan-out.
type MessagePublished struct {
	Group       domain.GroupID
	Sequence    uint64
	Targets     int
	Delivered   int
	Dropped     int
	PersistedAt time.Time
}

func (m MessagePublished) GroupID() domain.GroupID {
	return m.Group
}

type Censored struct {
	Group domain.GroupID
	Words []string
}

func (c Censored) GroupID() domain.GroupID {
	return c.Group
}

func New(t Type, payload any) Event {
	return Event{Type: t, CreatedAt: time.Now().UTC(), Payload: payload}
}
