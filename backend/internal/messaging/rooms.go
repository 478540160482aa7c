package messaging

import (
	"context"

	"circlenet/backend/internal/matrix"

	"go.uber.org/zap"
)

// CreateCommunityRoom creates the room backing a community. With a service
// account configured the account owns the room and invites the creator.
func (s *Service) CreateCommunityRoom(ctx context.Context, creatorUID, name, topic string, public bool) (string, error) {
	creator, err := s.session(ctx, creatorUID)
	if err != nil {
		return "", err
	}
	req := matrix.CreateRoomRequest{
		Name:       name,
		Topic:      topic,
		Visibility: "private",
		Preset:     matrix.PresetPrivateChat,
	}
	if public {
		req.Visibility = "public"
		req.Preset = matrix.PresetPublicChat
	}
	if s.bot == nil {
		return creator.CreateRoom(ctx, req)
	}

	req.Invite = []string{creator.UserID()}
	roomID, err := s.bot.CreateRoom(ctx, req)
	if err != nil {
		return "", err
	}
	if err := creator.JoinRoom(ctx, roomID); err != nil {
		s.abandonRoom(ctx, roomID, s.bot)
		return "", err
	}
	return roomID, nil
}

// DiscardCommunityRoom undoes CreateCommunityRoom. The creator and the
// service account both leave so the homeserver can purge the empty room.
func (s *Service) DiscardCommunityRoom(ctx context.Context, creatorUID, roomID string) error {
	creator, err := s.session(ctx, creatorUID)
	if err != nil {
		return err
	}
	s.abandonRoom(ctx, roomID, creator, s.bot)
	return nil
}

// abandonRoom leaves roomID with every given session. Failures are logged
// only; the caller is already unwinding another error.
func (s *Service) abandonRoom(ctx context.Context, roomID string, members ...*matrix.Session) {
	ctx = context.WithoutCancel(ctx)
	for _, m := range members {
		if m == nil {
			continue
		}
		if err := m.LeaveRoom(ctx, roomID); err != nil {
			s.logger.Warn("Failed to leave abandoned room",
				zap.String("room_id", roomID),
				zap.String("matrix_user_id", m.UserID()),
				zap.Error(err))
		}
	}
}

// AddToRoom invites userUID on behalf of actorUID and joins them
func (s *Service) AddToRoom(ctx context.Context, actorUID, roomID, userUID string) error {
	inviter, err := s.manager(ctx, actorUID)
	if err != nil {
		return err
	}
	member, err := s.session(ctx, userUID)
	if err != nil {
		return err
	}
	if err := inviter.InviteUser(ctx, roomID, member.UserID()); err != nil {
		return err
	}
	return member.JoinRoom(ctx, roomID)
}

// JoinCommunityRoom joins a public community room
func (s *Service) JoinCommunityRoom(ctx context.Context, userUID, roomID string) error {
	sess, err := s.session(ctx, userUID)
	if err != nil {
		return err
	}
	return sess.JoinRoom(ctx, roomID)
}

// LeaveCommunityRoom leaves a community room
func (s *Service) LeaveCommunityRoom(ctx context.Context, userUID, roomID string) error {
	sess, err := s.session(ctx, userUID)
	if err != nil {
		return err
	}
	return sess.LeaveRoom(ctx, roomID)
}

// KickFromRoom removes userUID from the room
func (s *Service) KickFromRoom(ctx context.Context, actorUID, roomID, userUID, reason string) error {
	return s.membershipAction(ctx, actorUID, roomID, userUID, func(m *matrix.Session, target string) error {
		return m.Kick(ctx, roomID, target, reason)
	})
}

// BanFromRoom bans userUID from the room
func (s *Service) BanFromRoom(ctx context.Context, actorUID, roomID, userUID, reason string) error {
	return s.membershipAction(ctx, actorUID, roomID, userUID, func(m *matrix.Session, target string) error {
		return m.Ban(ctx, roomID, target, reason)
	})
}

// UnbanFromRoom lifts a ban on userUID
func (s *Service) UnbanFromRoom(ctx context.Context, actorUID, roomID, userUID, reason string) error {
	return s.membershipAction(ctx, actorUID, roomID, userUID, func(m *matrix.Session, target string) error {
		return m.Unban(ctx, roomID, target, reason)
	})
}

// Announce posts a text message to a room as the room manager
func (s *Service) Announce(ctx context.Context, actorUID, roomID, body string) (string, error) {
	m, err := s.manager(ctx, actorUID)
	if err != nil {
		return "", err
	}
	return m.SendText(ctx, roomID, body, "")
}

func (s *Service) membershipAction(ctx context.Context, actorUID, roomID, userUID string, fn func(*matrix.Session, string) error) error {
	m, err := s.manager(ctx, actorUID)
	if err != nil {
		return err
	}
	target, err := s.EnsureMatrixProfile(ctx, userUID)
	if err != nil {
		return err
	}
	return fn(m, target.MatrixUserID)
}
