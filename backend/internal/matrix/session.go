package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session is an authenticated handle on the homeserver for one user
type Session struct {
	client      *Client
	userID      string
	accessToken string
}

// UserID returns the fully-qualified Matrix user id
func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) call(ctx context.Context, op, method, path string, payload interface{}, query url.Values, dest interface{}) error {
	body, err := s.client.do(ctx, op, method, path, s.accessToken, payload, query)
	if err != nil {
		return apperrors.NewMatrixRequestFailed(op, err)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return apperrors.NewMatrixRequestFailed(op, fmt.Errorf("parse response: %w", err))
	}
	return nil
}

func roomPath(roomID, suffix string) string {
	return "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/" + suffix
}

// CreateRoom creates a room and returns its id
func (s *Session) CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error) {
	var resp CreateRoomResponse
	if err := s.call(ctx, "create_room", http.MethodPost, "/_matrix/client/v3/createRoom", req, nil, &resp); err != nil {
		return "", err
	}
	s.client.logger.Info("Created matrix room",
		zap.String("room_id", resp.RoomID),
		zap.String("preset", req.Preset),
	)
	return resp.RoomID, nil
}

// JoinRoom joins a room the user was invited to or that is public
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	return s.call(ctx, "join_room", http.MethodPost, "/_matrix/client/v3/join/"+url.PathEscape(roomID), struct{}{}, nil, nil)
}

// InviteUser invites a user to a room
func (s *Session) InviteUser(ctx context.Context, roomID, userID string) error {
	return s.call(ctx, "invite", http.MethodPost, roomPath(roomID, "invite"), membershipRequest{UserID: userID}, nil, nil)
}

// LeaveRoom leaves a room
func (s *Session) LeaveRoom(ctx context.Context, roomID string) error {
	return s.call(ctx, "leave_room", http.MethodPost, roomPath(roomID, "leave"), struct{}{}, nil, nil)
}

// SendEvent sends a timeline event with an idempotent transaction id and
// returns the event id.
func (s *Session) SendEvent(ctx context.Context, roomID, eventType string, content interface{}) (string, error) {
	path := roomPath(roomID, "send/"+url.PathEscape(eventType)+"/"+url.PathEscape("circlenet-"+uuid.NewString()))
	var resp SendEventResponse
	if err := s.call(ctx, "send_event", http.MethodPut, path, content, nil, &resp); err != nil {
		return "", err
	}
	return resp.EventID, nil
}

// SendText sends an m.text message, optionally as a reply
func (s *Session) SendText(ctx context.Context, roomID, body, replyTo string) (string, error) {
	return s.SendEvent(ctx, roomID, EventRoomMessage, TextMessage(body, replyTo))
}

// React annotates an event with a key
func (s *Session) React(ctx context.Context, roomID, targetEventID, key string) (string, error) {
	return s.SendEvent(ctx, roomID, EventReaction, Annotation(targetEventID, key))
}

// RoomMessages fetches a page of the room timeline
func (s *Session) RoomMessages(ctx context.Context, roomID string, opts RoomMessagesOptions) (*RoomMessagesResponse, error) {
	query := url.Values{}
	if opts.From != "" {
		query.Set("from", opts.From)
	}
	dir := opts.Direction
	if dir == "" {
		dir = "b"
	}
	query.Set("dir", dir)
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var resp RoomMessagesResponse
	if err := s.call(ctx, "room_messages", http.MethodGet, roomPath(roomID, "messages"), nil, query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Kick removes a user from a room
func (s *Session) Kick(ctx context.Context, roomID, userID, reason string) error {
	return s.call(ctx, "kick", http.MethodPost, roomPath(roomID, "kick"), membershipRequest{UserID: userID, Reason: reason}, nil, nil)
}

// Ban bans a user from a room
func (s *Session) Ban(ctx context.Context, roomID, userID, reason string) error {
	return s.call(ctx, "ban", http.MethodPost, roomPath(roomID, "ban"), membershipRequest{UserID: userID, Reason: reason}, nil, nil)
}

// Unban lifts a ban
func (s *Session) Unban(ctx context.Context, roomID, userID, reason string) error {
	return s.call(ctx, "unban", http.MethodPost, roomPath(roomID, "unban"), membershipRequest{UserID: userID, Reason: reason}, nil, nil)
}

func accountDataPath(userID, eventType string) string {
	return "/_matrix/client/v3/user/" + url.PathEscape(userID) + "/account_data/" + url.PathEscape(eventType)
}

// DirectRooms reads the user's m.direct account data. A missing entry yields
// an empty map.
func (s *Session) DirectRooms(ctx context.Context) (map[string][]string, error) {
	body, err := s.client.do(ctx, "get_account_data", http.MethodGet, accountDataPath(s.userID, AccountDataDirect), s.accessToken, nil, nil)
	if err != nil {
		if IsMatrixError(err, ErrCodeNotFound) {
			return map[string][]string{}, nil
		}
		return nil, apperrors.NewMatrixRequestFailed("get_account_data", err)
	}
	direct := map[string][]string{}
	if err := json.Unmarshal(body, &direct); err != nil {
		return nil, apperrors.NewMatrixRequestFailed("get_account_data", fmt.Errorf("parse m.direct: %w", err))
	}
	return direct, nil
}

// SetDirectRooms overwrites the user's m.direct account data
func (s *Session) SetDirectRooms(ctx context.Context, direct map[string][]string) error {
	return s.call(ctx, "set_account_data", http.MethodPut, accountDataPath(s.userID, AccountDataDirect), direct, nil, nil)
}
