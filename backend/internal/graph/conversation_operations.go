package graph

import (
	"context"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Conversation Operations
// ============================================================================

const conversationReturn = `
	OPTIONAL MATCH (p:User)-[:PARTICIPATES_IN]->(cv)
	RETURN cv {.*} AS conversation, collect(p.uid) AS participants
`

// FindDirectConversation returns the direct conversation between two users,
// or nil when they have none.
func (r *Repository) FindDirectConversation(ctx context.Context, a, b string) (*Conversation, error) {
	records, err := r.read(ctx, "find_direct_conversation", `
		MATCH (:User {uid: $a})-[:PARTICIPATES_IN]->(cv:Conversation {is_direct: true})<-[:PARTICIPATES_IN]-(:User {uid: $b})
		WITH cv
		ORDER BY cv.created_at
		LIMIT 1
	`+conversationReturn, map[string]interface{}{"a": a, "b": b})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	cv := conversationFromRecord(records[0])
	return &cv, nil
}

// CreateConversation stores a conversation and links its participants
func (r *Repository) CreateConversation(ctx context.Context, cv *Conversation) error {
	records, err := r.write(ctx, "create_conversation", `
		MERGE (cv:Conversation {room_id: $roomID})
		ON CREATE SET cv.uid = $uid,
		              cv.is_direct = $isDirect,
		              cv.created_at = datetime($now),
		              cv.last_message_at = datetime($now)
		WITH cv
		UNWIND $participants AS participant
		MATCH (u:User {uid: participant})
		MERGE (u)-[:PARTICIPATES_IN]->(cv)
		WITH DISTINCT cv
	`+conversationReturn, map[string]interface{}{
		"uid":          cv.UID,
		"roomID":       cv.RoomID,
		"isDirect":     cv.IsDirect,
		"participants": cv.Participants,
		"now":          nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("user", "conversation participants")
	}
	*cv = conversationFromRecord(records[0])
	return nil
}

// ListConversations returns the user's conversations, most recently active first
func (r *Repository) ListConversations(ctx context.Context, userUID string) ([]Conversation, error) {
	records, err := r.read(ctx, "list_conversations", `
		MATCH (:User {uid: $uid})-[:PARTICIPATES_IN]->(cv:Conversation)
		WITH cv
		ORDER BY cv.last_message_at DESC
	`+conversationReturn, map[string]interface{}{"uid": userUID})
	if err != nil {
		return nil, err
	}
	conversations := make([]Conversation, 0, len(records))
	for _, record := range records {
		conversations = append(conversations, conversationFromRecord(record))
	}
	return conversations, nil
}

// RoomAccess describes what a user may do in a room
type RoomAccess struct {
	Allowed      bool
	Muted        bool
	CommunityUID string
}

// CheckRoomAccess reports whether the user participates in the conversation
// or is a member of the community backed by roomID.
func (r *Repository) CheckRoomAccess(ctx context.Context, roomID, userUID string) (RoomAccess, error) {
	records, err := r.read(ctx, "check_room_access", `
		OPTIONAL MATCH (:User {uid: $uid})-[p:PARTICIPATES_IN]->(:Conversation {room_id: $roomID})
		OPTIONAL MATCH (:User {uid: $uid})-[m:MEMBER_OF]->(c:Community {room_id: $roomID})
		RETURN p IS NOT NULL AS participant,
		       m IS NOT NULL AS member,
		       coalesce(m.is_muted, false) AS muted,
		       c.uid AS community_uid
		LIMIT 1
	`, map[string]interface{}{"uid": userUID, "roomID": roomID})
	if err != nil {
		return RoomAccess{}, err
	}
	if len(records) == 0 {
		return RoomAccess{}, nil
	}
	record := records[0]
	return RoomAccess{
		Allowed:      getBoolFromRecord(record, "participant") || getBoolFromRecord(record, "member"),
		Muted:        getBoolFromRecord(record, "muted"),
		CommunityUID: getStringFromRecord(record, "community_uid"),
	}, nil
}

// SaveMessage mirrors a sent message and bumps the conversation activity
func (r *Repository) SaveMessage(ctx context.Context, msg *Message) error {
	props := map[string]interface{}{
		"uid":        msg.UID,
		"event_id":   msg.EventID,
		"room_id":    msg.RoomID,
		"sender_uid": msg.SenderUID,
		"body":       msg.Body,
		"reply_to":   msg.ReplyTo,
	}
	if msg.LinkPreview != nil {
		props["preview_url"] = msg.LinkPreview.URL
		props["preview_title"] = msg.LinkPreview.Title
		props["preview_description"] = msg.LinkPreview.Description
		props["preview_image_url"] = msg.LinkPreview.ImageURL
		props["preview_site_name"] = msg.LinkPreview.SiteName
	}

	records, err := r.write(ctx, "save_message", `
		MATCH (u:User {uid: $sender})
		MERGE (m:Message {event_id: $eventID})
		ON CREATE SET m += $props, m.sent_at = datetime($now)
		MERGE (u)-[:SENT_MESSAGE]->(m)
		WITH m
		OPTIONAL MATCH (cv:Conversation {room_id: $roomID})
		FOREACH (_ IN CASE WHEN cv IS NULL THEN [] ELSE [1] END |
			MERGE (m)-[:IN_CONVERSATION]->(cv)
			SET cv.last_message_at = datetime($now))
		WITH m
		OPTIONAL MATCH (c:Community {room_id: $roomID})
		FOREACH (_ IN CASE WHEN c IS NULL THEN [] ELSE [1] END |
			MERGE (m)-[:IN_COMMUNITY]->(c))
		RETURN m.sent_at AS sent_at
	`, map[string]interface{}{
		"sender":  msg.SenderUID,
		"eventID": msg.EventID,
		"roomID":  msg.RoomID,
		"props":   props,
		"now":     nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("user", msg.SenderUID)
	}
	msg.SentAt = getTimeFromRecord(records[0], "sent_at")
	return nil
}

// SaveReaction mirrors an annotation on a message
func (r *Repository) SaveReaction(ctx context.Context, reaction *Reaction) error {
	records, err := r.write(ctx, "save_reaction", `
		MATCH (u:User {uid: $user})
		MERGE (rx:Reaction {event_id: $eventID})
		ON CREATE SET rx.uid = $uid,
		              rx.room_id = $roomID,
		              rx.target_event_id = $target,
		              rx.key = $key,
		              rx.user_uid = $user,
		              rx.created_at = datetime($now)
		MERGE (u)-[:REACTED]->(rx)
		WITH rx
		OPTIONAL MATCH (m:Message {event_id: $target})
		FOREACH (_ IN CASE WHEN m IS NULL THEN [] ELSE [1] END |
			MERGE (rx)-[:ON_MESSAGE]->(m))
		RETURN rx.created_at AS created_at
	`, map[string]interface{}{
		"uid":     reaction.UID,
		"eventID": reaction.EventID,
		"roomID":  reaction.RoomID,
		"target":  reaction.TargetID,
		"key":     reaction.Key,
		"user":    reaction.UserUID,
		"now":     nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("user", reaction.UserUID)
	}
	reaction.CreatedAt = getTimeFromRecord(records[0], "created_at")
	return nil
}

func conversationFromRecord(record *neo4j.Record) Conversation {
	m := getMapFromRecord(record, "conversation")
	participants := []string{}
	if val, ok := record.Get("participants"); ok {
		participants = getStringSliceFromMap(map[string]interface{}{"p": val}, "p")
	}
	return Conversation{
		UID:           getStringFromMap(m, "uid", ""),
		RoomID:        getStringFromMap(m, "room_id", ""),
		IsDirect:      getBoolFromMap(m, "is_direct"),
		Participants:  participants,
		CreatedAt:     getTimeFromMap(m, "created_at"),
		LastMessageAt: getTimeFromMap(m, "last_message_at"),
	}
}
