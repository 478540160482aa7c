package agentic

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"circlenet/backend/internal/adapter"
	"circlenet/backend/internal/community"
	"circlenet/backend/internal/graph"
	apperrors "circlenet/backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Logged action types
const (
	LogEditCommunity     = "edit_community"
	LogSendAnnouncement  = "send_announcement"
	LogDraftAnnouncement = "draft_announcement"
	LogUpdateMemory      = "update_memory"
	LogClearMemory       = "clear_memory"
)

// Moderation verbs accepted by ModerateUser
const (
	ModerationKick   = "kick"
	ModerationBan    = "ban"
	ModerationUnban  = "unban"
	ModerationMute   = "mute"
	ModerationUnmute = "unmute"
)

const maxAnnouncementLength = 4000

// ModerationInput names a moderation verb and its target
type ModerationInput struct {
	Action    string `json:"action"`
	TargetUID string `json:"target_uid"`
	Reason    string `json:"reason"`
}

// DraftInput asks for an announcement draft
type DraftInput struct {
	Topic string `json:"topic"`
	Tone  string `json:"tone"`
}

// actionScope is what an authorized action runs with. Room operations are
// performed as the admin who assigned the agent.
type actionScope struct {
	agent      *graph.Agent
	assignment *graph.AgentCommunityAssignment
	details    map[string]interface{}
}

func (a *actionScope) actor() string {
	return a.assignment.AssignedBy
}

// run authorizes and executes one agent action. Every attempt, denied or
// not, is written to the action log.
func (s *Service) run(ctx context.Context, callerUID, agentUID, communityUID, logType, permission string, details map[string]interface{}, fn func(*actionScope) error) error {
	start := time.Now()
	if details == nil {
		details = map[string]interface{}{}
	}

	scope, err := s.authorize(ctx, callerUID, agentUID, communityUID, permission)
	if err == nil {
		scope.details = details
		err = fn(scope)
	}

	entry := &graph.AgentActionLog{
		UID:          uuid.NewString(),
		AgentUID:     agentUID,
		CommunityUID: communityUID,
		ActionType:   logType,
		Details:      details,
		Success:      err == nil,
		DurationMS:   time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	if logErr := s.graph.CreateActionLog(ctx, entry); logErr != nil {
		s.logger.Warn("Failed to write agent action log",
			zap.String("agent_uid", agentUID),
			zap.String("action", logType),
			zap.Error(logErr))
	}
	s.metrics.ObserveAgentAction(logType, err)

	if err != nil {
		s.logger.Debug("Agent action failed",
			zap.String("agent_uid", agentUID),
			zap.String("community_uid", communityUID),
			zap.String("action", logType),
			zap.Error(err))
	}
	return err
}

func (s *Service) authorize(ctx context.Context, callerUID, agentUID, communityUID, permission string) (*actionScope, error) {
	agent, err := s.ownedAgent(ctx, callerUID, agentUID)
	if err != nil {
		return nil, err
	}
	assignment, err := s.graph.GetAssignment(ctx, agentUID, communityUID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, apperrors.Forbidden("agent is not assigned to this community")
	}
	if !s.granted(agent, assignment, permission) {
		return nil, apperrors.Forbidden("agent lacks the %s permission in this community", permission)
	}
	return &actionScope{agent: agent, assignment: assignment}, nil
}

// EditCommunity changes community fields through the agent
func (s *Service) EditCommunity(ctx context.Context, callerUID, agentUID, communityUID string, update graph.CommunityUpdate) (*graph.Community, error) {
	details := map[string]interface{}{}
	if update.Name != nil {
		details["name"] = *update.Name
	}
	if update.Description != nil {
		details["description"] = *update.Description
	}
	if update.IconKey != nil {
		details["icon_key"] = *update.IconKey
	}
	if update.CommunityType != nil {
		details["community_type"] = *update.CommunityType
	}

	var updated *graph.Community
	err := s.run(ctx, callerUID, agentUID, communityUID, LogEditCommunity, ActionEditCommunity, details, func(scope *actionScope) error {
		var err error
		updated, err = s.communities.Update(ctx, scope.actor(), communityUID, update)
		return err
	})
	return updated, err
}

// ModerateUser applies a moderation verb to a community member
func (s *Service) ModerateUser(ctx context.Context, callerUID, agentUID, communityUID string, in ModerationInput) error {
	details := map[string]interface{}{"target_uid": in.TargetUID, "action": in.Action}
	if in.Reason != "" {
		details["reason"] = in.Reason
	}
	logType := in.Action + "_user"

	return s.run(ctx, callerUID, agentUID, communityUID, logType, ActionModerateUsers, details, func(scope *actionScope) error {
		if in.TargetUID == "" {
			return apperrors.Validation("target user is required")
		}
		reason := in.Reason
		if reason == "" {
			reason = "moderated by " + scope.agent.Name
		}
		switch in.Action {
		case ModerationKick:
			return s.rooms.Kick(ctx, scope.actor(), communityUID, in.TargetUID, reason)
		case ModerationBan:
			return s.rooms.Ban(ctx, scope.actor(), communityUID, in.TargetUID, reason)
		case ModerationUnban:
			return s.rooms.Unban(ctx, scope.actor(), communityUID, in.TargetUID, reason)
		case ModerationMute, ModerationUnmute:
			return s.setMuted(ctx, scope.actor(), communityUID, in.TargetUID, in.Action == ModerationMute)
		default:
			return apperrors.Validation("unknown moderation action %q", in.Action)
		}
	})
}

func (s *Service) setMuted(ctx context.Context, actorUID, communityUID, targetUID string, muted bool) error {
	if actorUID == targetUID {
		return apperrors.Validation("the assigning admin cannot be muted by their own agent")
	}
	actor, err := s.graph.GetMembership(ctx, communityUID, actorUID)
	if err != nil {
		return err
	}
	if actor == nil || (actor.Role != graph.RoleAdmin && actor.Role != graph.RoleModerator) {
		return apperrors.Forbidden("the assigning user can no longer moderate this community")
	}
	target, err := s.graph.GetMembership(ctx, communityUID, targetUID)
	if err != nil {
		return err
	}
	if target == nil {
		return apperrors.NewNotFound("membership", targetUID)
	}
	if !community.Outranks(actor.Role, target.Role) {
		return apperrors.Forbidden("cannot moderate a %s", target.Role)
	}
	return s.graph.SetMemberMuted(ctx, communityUID, targetUID, muted)
}

// SendAnnouncement posts body to the community room and appends it to the
// agent's history there. Returns the event id.
func (s *Service) SendAnnouncement(ctx context.Context, callerUID, agentUID, communityUID, body string) (string, error) {
	body = strings.TrimSpace(body)
	details := map[string]interface{}{"length": utf8.RuneCountInString(body)}

	var eventID string
	err := s.run(ctx, callerUID, agentUID, communityUID, LogSendAnnouncement, ActionSendAnnouncements, details, func(scope *actionScope) error {
		if body == "" {
			return apperrors.Validation("announcement body is required")
		}
		if utf8.RuneCountInString(body) > maxAnnouncementLength {
			return apperrors.Validation("announcement must be at most %d characters", maxAnnouncementLength)
		}
		c, err := s.graph.GetCommunity(ctx, communityUID)
		if err != nil {
			return err
		}
		if c.RoomID == "" {
			return apperrors.Conflict("community has no chat room")
		}
		eventID, err = s.rooms.Announce(ctx, scope.actor(), c.RoomID, body)
		if err != nil {
			return err
		}
		scope.details["event_id"] = eventID
		s.remember(ctx, agentUID, communityUID, "announced: "+summarize(body, 120))
		return nil
	})
	return eventID, err
}

// DraftAnnouncement asks the LLM for announcement text using the community
// profile and the agent's memory. Nothing is posted.
func (s *Service) DraftAnnouncement(ctx context.Context, callerUID, agentUID, communityUID string, in DraftInput) (string, error) {
	topic := strings.TrimSpace(in.Topic)
	details := map[string]interface{}{"topic": topic}
	if in.Tone != "" {
		details["tone"] = in.Tone
	}

	var draft string
	err := s.run(ctx, callerUID, agentUID, communityUID, LogDraftAnnouncement, ActionSendAnnouncements, details, func(scope *actionScope) error {
		if topic == "" {
			return apperrors.Validation("topic is required")
		}
		if s.drafter == nil {
			return apperrors.NewAgentLLMFailed("", 0, false, apperrors.NewConfigMissingRequired("LLM_API_KEY"))
		}

		var (
			c      *graph.Community
			memory *graph.AgentMemory
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			c, err = s.graph.GetCommunity(gctx, communityUID)
			return err
		})
		g.Go(func() error {
			var err error
			memory, err = s.graph.GetAgentMemory(gctx, agentUID, communityUID)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		req := adapter.AnnouncementRequest{
			CommunityName:        c.Name,
			CommunityDescription: c.Description,
			Topic:                topic,
			Tone:                 in.Tone,
		}
		if memory != nil {
			req.Context = memory.Context
			req.History = memory.History
		}
		var err error
		draft, err = s.drafter.Draft(ctx, req)
		if err != nil {
			return err
		}
		scope.details["length"] = utf8.RuneCountInString(draft)
		return nil
	})
	return draft, err
}

// remember appends one history line; failures are logged only
func (s *Service) remember(ctx context.Context, agentUID, communityUID, line string) {
	memory, err := s.graph.GetAgentMemory(ctx, agentUID, communityUID)
	if err == nil {
		memory = appendHistory(memoryOrNew(memory, agentUID, communityUID), []string{line})
		err = s.graph.SaveAgentMemory(ctx, memory)
	}
	if err != nil {
		s.logger.Warn("Failed to record agent history",
			zap.String("agent_uid", agentUID),
			zap.String("community_uid", communityUID),
			zap.Error(err))
	}
}

func summarize(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-3]) + "..."
}
