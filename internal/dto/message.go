package dto

// ClientMessage is the envelope for every inbound WebSocket frame. The
// Type field discriminates; the remaining fields are kind-specific and
// zero-valued otherwise.
type ClientMessage struct {
	Type     string `json:"type" binding:"required,oneof=create join edit leave"`
	RoomID   string `json:"roomId,omitempty"`
	Password string `json:"password,omitempty"`
	Text     string `json:"text,omitempty"`
	// BaseVersion is carried by edit frames but deliberately never
	// validated against the room version: edits are last-write-wins.
	BaseVersion uint64 `json:"baseVersion,omitempty"`
}

// Inbound message kinds.
const (
	TypeCreate = "create"
	TypeJoin   = "join"
	TypeEdit   = "edit"
	TypeLeave  = "leave"
)

// RoomCreatedMessage acknowledges a successful create to the sender.
type RoomCreatedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// JoinedMessage carries the room snapshot to a member that just joined.
type JoinedMessage struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Text    string `json:"text"`
	Version uint64 `json:"version"`
}

// UpdateMessage is broadcast to every room member (the editor included)
// after an accepted edit.
type UpdateMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Version uint64 `json:"version"`
}

// PresenceMessage is broadcast to the whole room after every membership
// change.
type PresenceMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// LeftRoomMessage acknowledges a leave request to the sender.
type LeftRoomMessage struct {
	Type string `json:"type"`
}

// ErrorMessage is delivered to the originating connection only; it never
// tears the connection down.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewRoomCreated(roomID string) RoomCreatedMessage {
	return RoomCreatedMessage{Type: "room_created", RoomID: roomID}
}

func NewJoined(roomID, text string, version uint64) JoinedMessage {
	return JoinedMessage{Type: "joined", RoomID: roomID, Text: text, Version: version}
}

func NewUpdate(text string, version uint64) UpdateMessage {
	return UpdateMessage{Type: "update", Text: text, Version: version}
}

func NewPresence(count int) PresenceMessage {
	return PresenceMessage{Type: "presence", Count: count}
}

func NewLeftRoom() LeftRoomMessage {
	return LeftRoomMessage{Type: "left_room"}
}

func NewError(err error) ErrorMessage {
	return ErrorMessage{Type: "error", Error: err.Error()}
}
