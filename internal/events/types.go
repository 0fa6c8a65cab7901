// Package events defines the lobby lifecycle event types and the
// asynchronous publish-subscribe bus that carries them to the telemetry
// and status surfaces.
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session events
	EventSessionOpened EventType = "session_opened"
	EventSessionClosed EventType = "session_closed"

	// Room lifecycle events
	EventRoomCreated EventType = "room_created"
	EventRoomJoined  EventType = "room_joined"
	EventRoomRemoved EventType = "room_removed"
	EventGameStarted EventType = "game_started"

	// Catalog events
	EventGamePublished EventType = "game_published"

	// System events
	EventShutdown EventType = "shutdown"
)

// Event is a single message carried on the bus.
type Event struct {
	Type    EventType
	Source  string
	Payload any
}

// SessionPayload accompanies session open/close events.
type SessionPayload struct {
	PlayerID int
	Remote   string
}

// RoomPayload accompanies room lifecycle events.
type RoomPayload struct {
	RoomID   int
	GameID   int
	HostID   int
	PlayerID int
	Members  int
}

// GameStartedPayload accompanies game start events.
type GameStartedPayload struct {
	RoomID int
	GameID int
	Port   int
	PID    int
}

// GamePublishedPayload accompanies catalog publish events.
type GamePublishedPayload struct {
	GameID      int
	DeveloperID int
	Version     string
}
