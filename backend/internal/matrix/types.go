package matrix

import (
	"errors"
	"fmt"
)

// Event types used by the messaging layer
const (
	EventRoomMessage  = "m.room.message"
	EventReaction     = "m.reaction"
	AccountDataDirect = "m.direct"
)

// Room presets
const (
	PresetPrivateChat        = "private_chat"
	PresetPublicChat         = "public_chat"
	PresetTrustedPrivateChat = "trusted_private_chat"
)

// AuthResponse is returned by registration and login
type AuthResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// CreateRoomRequest is the body of POST /createRoom
type CreateRoomRequest struct {
	Name       string   `json:"name,omitempty"`
	Topic      string   `json:"topic,omitempty"`
	Visibility string   `json:"visibility,omitempty"`
	Preset     string   `json:"preset,omitempty"`
	Invite     []string `json:"invite,omitempty"`
	IsDirect   bool     `json:"is_direct,omitempty"`
}

// CreateRoomResponse is returned by CreateRoom
type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
}

// SendEventResponse is returned by event sends
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// Event is a room timeline event
type Event struct {
	EventID        string                 `json:"event_id"`
	Type           string                 `json:"type"`
	Sender         string                 `json:"sender"`
	OriginServerTS int64                  `json:"origin_server_ts"`
	Content        map[string]interface{} `json:"content"`
	RoomID         string                 `json:"room_id,omitempty"`
}

// RoomMessagesOptions controls /messages pagination
type RoomMessagesOptions struct {
	From      string
	Direction string // "b" (default) or "f"
	Limit     int
}

// RoomMessagesResponse is a page of room timeline events
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Chunk []Event `json:"chunk"`
}

type membershipRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

// TextMessage builds m.room.message content. A non-empty replyTo adds an
// m.in_reply_to relation.
func TextMessage(body, replyTo string) map[string]interface{} {
	content := map[string]interface{}{
		"msgtype": "m.text",
		"body":    body,
	}
	if replyTo != "" {
		content["m.relates_to"] = map[string]interface{}{
			"m.in_reply_to": map[string]interface{}{"event_id": replyTo},
		}
	}
	return content
}

// Annotation builds m.reaction content for an emoji or text key
func Annotation(targetEventID, key string) map[string]interface{} {
	return map[string]interface{}{
		"m.relates_to": map[string]interface{}{
			"rel_type": "m.annotation",
			"event_id": targetEventID,
			"key":      key,
		},
	}
}

// MatrixError is the structured error body every homeserver returns
type MatrixError struct {
	Code       string `json:"errcode"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard error codes
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeUserInUse     = "M_USER_IN_USE"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
)

// IsMatrixError reports whether err carries a MatrixError with the given code
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}
