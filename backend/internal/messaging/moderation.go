package messaging

import (
	"context"

	"circlenet/backend/internal/community"
	"circlenet/backend/internal/graph"
	apperrors "circlenet/backend/pkg/errors"

	"go.uber.org/zap"
)

// Moderation actions on community rooms
const (
	ActionKick  = "kick"
	ActionBan   = "ban"
	ActionUnban = "unban"
)

// Kick removes a member from a community and its room
func (s *Service) Kick(ctx context.Context, actorUID, communityUID, targetUID, reason string) error {
	return s.moderate(ctx, ActionKick, actorUID, communityUID, targetUID, reason)
}

// Ban removes a member and bans them from the room
func (s *Service) Ban(ctx context.Context, actorUID, communityUID, targetUID, reason string) error {
	return s.moderate(ctx, ActionBan, actorUID, communityUID, targetUID, reason)
}

// Unban lifts a room ban; the user can then be added again
func (s *Service) Unban(ctx context.Context, actorUID, communityUID, targetUID, reason string) error {
	return s.moderate(ctx, ActionUnban, actorUID, communityUID, targetUID, reason)
}

func (s *Service) moderate(ctx context.Context, action, actorUID, communityUID, targetUID, reason string) error {
	if targetUID == "" {
		return apperrors.Validation("target user is required")
	}
	if targetUID == actorUID {
		return apperrors.Validation("cannot %s yourself", action)
	}
	c, err := s.graph.GetCommunity(ctx, communityUID)
	if err != nil {
		return err
	}
	actor, err := s.graph.GetMembership(ctx, communityUID, actorUID)
	if err != nil {
		return err
	}
	if actor == nil || (actor.Role != graph.RoleAdmin && actor.Role != graph.RoleModerator) {
		return apperrors.Forbidden("only admins and moderators can %s", action)
	}
	target, err := s.graph.GetMembership(ctx, communityUID, targetUID)
	if err != nil {
		return err
	}
	if target == nil && action == ActionKick {
		return apperrors.NewNotFound("membership", targetUID)
	}
	if target != nil && !community.Outranks(actor.Role, target.Role) {
		return apperrors.Forbidden("cannot %s a %s", action, target.Role)
	}

	switch action {
	case ActionKick:
		err = s.KickFromRoom(ctx, actorUID, c.RoomID, targetUID, reason)
	case ActionBan:
		err = s.BanFromRoom(ctx, actorUID, c.RoomID, targetUID, reason)
	case ActionUnban:
		err = s.UnbanFromRoom(ctx, actorUID, c.RoomID, targetUID, reason)
	}
	if err != nil {
		return err
	}
	if target != nil && action != ActionUnban {
		if err := s.graph.RemoveMember(ctx, communityUID, targetUID); err != nil {
			return err
		}
	}

	s.logger.Info("Community moderation",
		zap.String("action", action),
		zap.String("community_uid", communityUID),
		zap.String("actor", actorUID),
		zap.String("target", targetUID))
	return nil
}
