package protocol

// Direction indicates which side may originate a message kind.
type Direction int

const (
	// RoomToClient messages are originated by the room coordinator.
	RoomToClient Direction = iota
	// ClientToRoom messages are originated by a client session.
	ClientToRoom
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case RoomToClient:
		return "room-to-client"
	case ClientToRoom:
		return "client-to-room"
	default:
		return "unknown"
	}
}

// directions maps every message kind to exactly one direction.
// The table is exhaustive over AllTypes; Valid() relies on that.
var directions = map[MessageType]Direction{
	TypeRequestMarkdown:   RoomToClient,
	TypeCanonicalMarkdown: ClientToRoom,
	TypeNeedsInit:         RoomToClient,
	TypeReloadRemote:      RoomToClient,
	TypeRemoteChanged:     RoomToClient,
	TypeSyncStatus:        RoomToClient,
	TypeErrorRetrying:     RoomToClient,
	TypeConflict:          RoomToClient,
	TypePushLocal:         ClientToRoom,
	TypeDiscardLocal:      ClientToRoom,
}

// DirectionOf returns the direction for a message kind.
// ok is false for kinds outside the closed set.
func DirectionOf(mt MessageType) (Direction, bool) {
	d, ok := directions[mt]
	return d, ok
}

// IsClientOriginated reports whether the message flows client → room.
func IsClientOriginated(m Message) bool {
	return directions[m.Type] == ClientToRoom && m.Type.Valid()
}

// IsRoomOriginated reports whether the message flows room → client.
func IsRoomOriginated(m Message) bool {
	return directions[m.Type] == RoomToClient && m.Type.Valid()
}
