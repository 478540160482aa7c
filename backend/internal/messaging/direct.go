package messaging

import (
	"context"
	"sort"

	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/matrix"
	apperrors "circlenet/backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GetOrCreateDirectRoom returns the direct conversation between the caller
// and peer, creating the room on first contact.
func (s *Service) GetOrCreateDirectRoom(ctx context.Context, userUID, peerUID string) (*graph.Conversation, error) {
	if peerUID == "" {
		return nil, apperrors.Validation("peer is required")
	}
	if peerUID == userUID {
		return nil, apperrors.Validation("cannot message yourself")
	}
	if _, err := s.graph.GetUser(ctx, peerUID); err != nil {
		return nil, err
	}

	pair := []string{userUID, peerUID}
	sort.Strings(pair)
	// Waiters share the result, so one caller going away must not fail the rest.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.flight.Do("dm:"+pair[0]+":"+pair[1], func() (interface{}, error) {
		return s.directRoom(shared, userUID, peerUID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Conversation), nil
}

func (s *Service) directRoom(ctx context.Context, userUID, peerUID string) (*graph.Conversation, error) {
	existing, err := s.graph.FindDirectConversation(ctx, userUID, peerUID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	me, err := s.session(ctx, userUID)
	if err != nil {
		return nil, err
	}
	peer, err := s.session(ctx, peerUID)
	if err != nil {
		return nil, err
	}

	roomID, err := me.CreateRoom(ctx, matrix.CreateRoomRequest{
		Preset:   matrix.PresetTrustedPrivateChat,
		Invite:   []string{peer.UserID()},
		IsDirect: true,
	})
	if err != nil {
		return nil, err
	}
	if err := peer.JoinRoom(ctx, roomID); err != nil {
		s.logger.Error("Peer failed to join direct room",
			zap.String("room_id", roomID),
			zap.String("user_id", peerUID),
			zap.Error(err))
		s.abandonRoom(ctx, roomID, me)
		return nil, err
	}

	cv := &graph.Conversation{
		UID:          uuid.NewString(),
		RoomID:       roomID,
		IsDirect:     true,
		Participants: []string{userUID, peerUID},
	}
	if err := s.graph.CreateConversation(ctx, cv); err != nil {
		s.abandonRoom(ctx, roomID, me, peer)
		return nil, err
	}

	s.syncDirect(ctx, me, peer.UserID(), roomID)
	s.syncDirect(ctx, peer, me.UserID(), roomID)

	s.logger.Info("Direct room created",
		zap.String("room_id", roomID),
		zap.String("user_id", userUID),
		zap.String("peer_id", peerUID))
	return cv, nil
}

// syncDirect records roomID under peer in the session owner's m.direct.
// Failures are logged only.
func (s *Service) syncDirect(ctx context.Context, sess *matrix.Session, peerMatrixID, roomID string) {
	direct, err := sess.DirectRooms(ctx)
	if err != nil {
		s.logger.Warn("Failed to read m.direct", zap.String("matrix_user_id", sess.UserID()), zap.Error(err))
		return
	}
	merged, changed := MergeDirectRooms(direct, peerMatrixID, roomID)
	if !changed {
		return
	}
	if err := sess.SetDirectRooms(ctx, merged); err != nil {
		s.logger.Warn("Failed to write m.direct", zap.String("matrix_user_id", sess.UserID()), zap.Error(err))
	}
}

// MergeDirectRooms returns a copy of direct with roomID listed under peer.
// changed is false when the room was already present.
func MergeDirectRooms(direct map[string][]string, peer, roomID string) (map[string][]string, bool) {
	merged := make(map[string][]string, len(direct)+1)
	for k, rooms := range direct {
		merged[k] = append([]string(nil), rooms...)
	}
	for _, id := range merged[peer] {
		if id == roomID {
			return merged, false
		}
	}
	merged[peer] = append(merged[peer], roomID)
	return merged, true
}
