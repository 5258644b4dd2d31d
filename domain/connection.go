package domain

// EventName is the name of a transport event, as the browser client knows it.
type EventName string

const (
	EventJoinGroup  EventName = "joinGroup"
	EventLeaveGroup EventName = "leaveGroup"
	EventNewMessage EventName = "newMessage"
	EventJoined     EventName = "joined"
	EventLeft       EventName = "left"
	EventAck        EventName = "ack"
	EventError      EventName = "error"
)

// Outbound is one event queued for a single connection.
// GroupID lets a client joined to several rooms filter what it receives.
type Outbound struct {
	Event   EventName `json:"event"`
	GroupID GroupID   `json:"group_id,omitempty"`
	Data    any       `json:"data,omitempty"`
}

func NewMessageEvent(message Message) Outbound {
	return Outbound{Event: EventNewMessage, GroupID: message.GroupID, Data: message}
}

// Eviction tells a connection it was taken out of a room it did not leave.
type Eviction struct {
	GroupID GroupID `json:"group_id"`
	Reason  string  `json:"reason"`
}

func NewEvictionEvent(groupID GroupID, reason string) Outbound {
	return Outbound{Event: EventLeft, GroupID: groupID, Data: Eviction{GroupID: groupID, Reason: reason}}
}

// RegistryStats is a point in time view of the connection registry.
type RegistryStats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
	Memberships int `json:"memberships"`
}

// Delivery is the outcome of one fan-out.
type Delivery struct {
	GroupID   GroupID `json:"group_id"`
	Sequence  uint64  `json:"sequence"`
	Targets   int     `json:"targets"`
	Delivered int     `json:"delivered"`
	Dropped   int     `json:"dropped"`
}
