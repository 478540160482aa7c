package messaging

import (
	"context"
	"strings"
	"unicode/utf8"

	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/matrix"
	apperrors "circlenet/backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxBodyLength       = 10000
	maxReactionKeyRunes = 32
	defaultPageSize     = 30
	maxPageSize         = 100
)

// MessagePage is one page of a room timeline
type MessagePage struct {
	RoomID string         `json:"room_id"`
	Start  string         `json:"start"`
	End    string         `json:"end"`
	Events []matrix.Event `json:"events"`
}

// ListConversations returns the user's conversations, most recent first
func (s *Service) ListConversations(ctx context.Context, userUID string) ([]graph.Conversation, error) {
	return s.graph.ListConversations(ctx, userUID)
}

// SendMessage posts a text message to a room the caller belongs to and
// mirrors it, with a preview of its first link, in the graph.
func (s *Service) SendMessage(ctx context.Context, userUID, roomID, body, replyTo string) (*graph.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.Validation("message body is required")
	}
	if utf8.RuneCountInString(body) > maxBodyLength {
		return nil, apperrors.Validation("message body must be at most %d characters", maxBodyLength)
	}
	if err := s.requireWriter(ctx, roomID, userUID); err != nil {
		return nil, err
	}

	sess, err := s.session(ctx, userUID)
	if err != nil {
		return nil, err
	}
	eventID, err := sess.SendText(ctx, roomID, body, replyTo)
	if err != nil {
		return nil, err
	}

	msg := &graph.Message{
		UID:       uuid.NewString(),
		EventID:   eventID,
		RoomID:    roomID,
		SenderUID: userUID,
		Body:      body,
		ReplyTo:   replyTo,
	}
	if s.previews != nil {
		msg.LinkPreview = s.previews.Preview(ctx, body)
	}
	if err := s.graph.SaveMessage(ctx, msg); err != nil {
		// The message is already in the room; only the mirror is missing.
		s.logger.Error("Failed to mirror message",
			zap.String("room_id", roomID),
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil, err
	}
	return msg, nil
}

// FetchMessages pages backwards through a room timeline from the given token
func (s *Service) FetchMessages(ctx context.Context, userUID, roomID, from string, limit int) (*MessagePage, error) {
	access, err := s.graph.CheckRoomAccess(ctx, roomID, userUID)
	if err != nil {
		return nil, err
	}
	if !access.Allowed {
		return nil, apperrors.Forbidden("not a participant of this room")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	sess, err := s.session(ctx, userUID)
	if err != nil {
		return nil, err
	}
	resp, err := sess.RoomMessages(ctx, roomID, matrix.RoomMessagesOptions{From: from, Limit: limit})
	if err != nil {
		return nil, err
	}
	events := resp.Chunk
	if events == nil {
		events = []matrix.Event{}
	}
	return &MessagePage{RoomID: roomID, Start: resp.Start, End: resp.End, Events: events}, nil
}

// React annotates a message with a key, usually an emoji
func (s *Service) React(ctx context.Context, userUID, roomID, eventID, key string) (*graph.Reaction, error) {
	key = strings.TrimSpace(key)
	if eventID == "" || key == "" {
		return nil, apperrors.Validation("event id and reaction key are required")
	}
	if utf8.RuneCountInString(key) > maxReactionKeyRunes {
		return nil, apperrors.Validation("reaction key is too long")
	}
	if err := s.requireWriter(ctx, roomID, userUID); err != nil {
		return nil, err
	}

	sess, err := s.session(ctx, userUID)
	if err != nil {
		return nil, err
	}
	reactionID, err := sess.React(ctx, roomID, eventID, key)
	if err != nil {
		return nil, err
	}

	reaction := &graph.Reaction{
		UID:      uuid.NewString(),
		EventID:  reactionID,
		RoomID:   roomID,
		TargetID: eventID,
		Key:      key,
		UserUID:  userUID,
	}
	if err := s.graph.SaveReaction(ctx, reaction); err != nil {
		return nil, err
	}
	return reaction, nil
}

func (s *Service) requireWriter(ctx context.Context, roomID, userUID string) error {
	if roomID == "" {
		return apperrors.Validation("room id is required")
	}
	access, err := s.graph.CheckRoomAccess(ctx, roomID, userUID)
	if err != nil {
		return err
	}
	if !access.Allowed {
		return apperrors.Forbidden("not a participant of this room")
	}
	if access.Muted {
		return apperrors.Forbidden("you are muted in this community")
	}
	return nil
}
