// Package protocol implements the wire protocol spoken between Parlor and
// its player, developer, and game-server clients. Every frame is a single
// newline-terminated JSON object {"type": <int>, "data": {...}}.
package protocol

import "encoding/json"

// PacketType identifies the kind of a packet. The numeric values are part of
// the platform wire protocol and must not be renumbered.
type PacketType int

const (
	// Developer actions
	DevRegister    PacketType = 1
	DevLogin       PacketType = 2
	DevUploadGame  PacketType = 3
	DevUpdateGame  PacketType = 4
	DevRemoveGame  PacketType = 5
	DevListMyGames PacketType = 6

	// Heartbeat, pushed by the service; clients take no action on it.
	KeepAlive PacketType = 99

	// Player / lobby actions
	PlayerRegister     PacketType = 100
	PlayerLogin        PacketType = 101
	PlayerListGames    PacketType = 102
	PlayerDownloadGame PacketType = 103
	PlayerCreateRoom   PacketType = 104
	PlayerJoinRoom     PacketType = 105
	PlayerStartGame    PacketType = 106
	PlayerSubmitReview PacketType = 140
	PlayerGetReviews   PacketType = 141

	// Game server <-> game client (not handled by the lobby, reserved)
	JoinGame     PacketType = 200
	PlayerAction PacketType = 201
	StateUpdate  PacketType = 202
	GameEnd      PacketType = 203

	// Generic
	ServerResponse PacketType = 300
	ErrorResponse  PacketType = 301
)

// Response kind strings carried in the "kind" field of SERVER_RESPONSE data.
const (
	KindPlayerRegister = "PLAYER_REGISTER"
	KindPlayerLogin    = "PLAYER_LOGIN"
	KindListGames      = "PLAYER_LIST_GAMES"
	KindGameDownload   = "GAME_DOWNLOAD"
	KindCreateRoom     = "CREATE_ROOM"
	KindJoinRoom       = "JOIN_ROOM"
	KindStartGame      = "START_GAME"
	KindReviewResult   = "PLAYER_REVIEW_RESULT"
	KindReviews        = "PLAYER_REVIEWS"

	KindDevRegister = "DEV_REGISTER"
	KindDevLogin    = "DEV_LOGIN"
	KindDevUpload   = "DEV_UPLOAD_GAME"
	KindDevUpdate   = "DEV_UPDATE_GAME"
	KindDevRemove   = "DEV_REMOVE_GAME"
	KindDevMyGames  = "DEV_LIST_MY_GAMES"
)

// MaxPacketSize is the maximum allowed size for a single frame in bytes.
// Game packages travel base64-encoded inside a frame, so the limit is
// generous.
const MaxPacketSize = 64 << 20

// Packet is one wire frame. Data is kept raw so each handler can decode
// the payload it expects.
type Packet struct {
	Type PacketType      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Payload is the dynamic JSON object carried in responses and pushes.
type Payload map[string]any

// NewPacket builds a packet of the given type around a payload.
// Marshalling a map cannot fail; errors are ignored.
func NewPacket(t PacketType, data Payload) Packet {
	raw, _ := json.Marshal(data)
	return Packet{Type: t, Data: raw}
}

// OK builds a successful SERVER_RESPONSE payload of the given kind.
// Extra fields are merged into the payload.
func OK(kind string, extra Payload) Packet {
	p := Payload{"kind": kind, "ok": true}
	for k, v := range extra {
		p[k] = v
	}
	return NewPacket(ServerResponse, p)
}

// Fail builds a failed SERVER_RESPONSE payload with a reason message.
// Failures never cross the wire as anything but {ok:false, msg}.
func Fail(kind, msg string) Packet {
	return NewPacket(ServerResponse, Payload{"kind": kind, "ok": false, "msg": msg})
}

// Error builds a generic ERROR_RESPONSE packet for protocol-level failures
// (unknown packet type, handler panic).
func Error(msg string) Packet {
	return NewPacket(ErrorResponse, Payload{"msg": msg})
}

// NewKeepAlive builds the periodic heartbeat packet.
func NewKeepAlive() Packet {
	return NewPacket(KeepAlive, Payload{"msg": "ping"})
}
