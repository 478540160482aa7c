package community

import (
	"context"
	"strings"
	"unicode/utf8"

	"circlenet/backend/internal/graph"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Graph is the subset of the graph repository used for communities
type Graph interface {
	GetUser(ctx context.Context, uid string) (*graph.User, error)
	CreateCommunity(ctx context.Context, community *graph.Community) error
	SetCommunityRoom(ctx context.Context, communityUID, roomID string) error
	UpdateCommunity(ctx context.Context, uid string, update graph.CommunityUpdate) (*graph.Community, error)
	GetCommunity(ctx context.Context, uid string) (*graph.Community, error)
	ListCommunitiesForUser(ctx context.Context, userUID string) ([]graph.Community, error)
	GetMembership(ctx context.Context, communityUID, userUID string) (*graph.Membership, error)
	AddMember(ctx context.Context, communityUID, userUID, role string) error
	RemoveMember(ctx context.Context, communityUID, userUID string) error
	SetMemberRole(ctx context.Context, communityUID, userUID, role string) error
	CountAdmins(ctx context.Context, communityUID string) (int, error)
	ListMembers(ctx context.Context, communityUID string) ([]graph.Member, error)
	DeleteCommunity(ctx context.Context, uid string) error
}

// Rooms manages the chat room backing each community
type Rooms interface {
	CreateCommunityRoom(ctx context.Context, creatorUID, name, topic string, public bool) (string, error)
	DiscardCommunityRoom(ctx context.Context, creatorUID, roomID string) error
	AddToRoom(ctx context.Context, actorUID, roomID, userUID string) error
	JoinCommunityRoom(ctx context.Context, userUID, roomID string) error
	LeaveCommunityRoom(ctx context.Context, userUID, roomID string) error
	KickFromRoom(ctx context.Context, actorUID, roomID, userUID, reason string) error
}

const (
	minNameLength        = 3
	maxNameLength        = 100
	maxDescriptionLength = 2000
	maxBulkMembers       = 50
)

// CreateInput describes a new community
type CreateInput struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	CommunityType string `json:"community_type"`
	IconKey       string `json:"icon_key"`
}

// Detail is a community as seen by one viewer
type Detail struct {
	graph.Community
	Membership *graph.Membership `json:"membership,omitempty"`
}

// MemberFailure explains why one user was not added
type MemberFailure struct {
	UserUID string `json:"user_uid"`
	Reason  string `json:"reason"`
}

// BulkResult is the outcome of AddMembers
type BulkResult struct {
	Added  []string        `json:"added"`
	Failed []MemberFailure `json:"failed"`
}

// Service implements communities and their memberships
type Service struct {
	graph  Graph
	rooms  Rooms
	logger *zap.Logger
}

// NewService creates a community service
func NewService(g Graph, rooms Rooms) *Service {
	return &Service{graph: g, rooms: rooms, logger: logger.Named("community")}
}

// Create stores the community with the creator as admin and provisions its
// room. The community and any room already created are removed again when
// provisioning fails part way.
func (s *Service) Create(ctx context.Context, creatorUID string, in CreateInput) (*graph.Community, error) {
	name := strings.TrimSpace(in.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLength {
		return nil, apperrors.Validation("description must be at most %d characters", maxDescriptionLength)
	}
	kind, err := normalizeType(in.CommunityType)
	if err != nil {
		return nil, err
	}

	community := &graph.Community{
		UID:           uuid.NewString(),
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		CommunityType: kind,
		IconKey:       in.IconKey,
		CreatedBy:     creatorUID,
	}
	if err := s.graph.CreateCommunity(ctx, community); err != nil {
		return nil, err
	}

	roomID, err := s.rooms.CreateCommunityRoom(ctx, creatorUID, community.Name, community.Description, kind == graph.CommunityPublic)
	if err != nil {
		s.logger.Error("Failed to provision community room",
			zap.String("community_uid", community.UID),
			zap.Error(err))
		s.rollbackCreate(ctx, creatorUID, community.UID, "")
		return nil, err
	}
	if err := s.graph.SetCommunityRoom(ctx, community.UID, roomID); err != nil {
		s.logger.Error("Failed to link community room",
			zap.String("community_uid", community.UID),
			zap.String("room_id", roomID),
			zap.Error(err))
		s.rollbackCreate(ctx, creatorUID, community.UID, roomID)
		return nil, err
	}
	community.RoomID = roomID

	s.logger.Info("Community created",
		zap.String("community_uid", community.UID),
		zap.String("room_id", roomID),
		zap.String("created_by", creatorUID))
	return community, nil
}

// rollbackCreate discards whatever Create managed to provision. Failures
// are logged only.
func (s *Service) rollbackCreate(ctx context.Context, creatorUID, communityUID, roomID string) {
	ctx = context.WithoutCancel(ctx)
	if roomID != "" {
		if err := s.rooms.DiscardCommunityRoom(ctx, creatorUID, roomID); err != nil {
			s.logger.Error("Failed to discard community room",
				zap.String("community_uid", communityUID),
				zap.String("room_id", roomID),
				zap.Error(err))
		}
	}
	if err := s.graph.DeleteCommunity(ctx, communityUID); err != nil {
		s.logger.Error("Failed to roll back community",
			zap.String("community_uid", communityUID),
			zap.Error(err))
	}
}

// Update edits a community; admins only
func (s *Service) Update(ctx context.Context, actorUID, communityUID string, update graph.CommunityUpdate) (*graph.Community, error) {
	if _, err := s.requireRole(ctx, communityUID, actorUID, graph.RoleAdmin); err != nil {
		return nil, err
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		update.Name = &name
	}
	if update.Description != nil && utf8.RuneCountInString(*update.Description) > maxDescriptionLength {
		return nil, apperrors.Validation("description must be at most %d characters", maxDescriptionLength)
	}
	if update.CommunityType != nil {
		kind, err := normalizeType(*update.CommunityType)
		if err != nil {
			return nil, err
		}
		update.CommunityType = &kind
	}
	return s.graph.UpdateCommunity(ctx, communityUID, update)
}

// Get returns a community with the viewer's membership. Private communities
// are visible to members only.
func (s *Service) Get(ctx context.Context, viewerUID, communityUID string) (*Detail, error) {
	community, err := s.graph.GetCommunity(ctx, communityUID)
	if err != nil {
		return nil, err
	}
	membership, err := s.graph.GetMembership(ctx, communityUID, viewerUID)
	if err != nil {
		return nil, err
	}
	if community.CommunityType == graph.CommunityPrivate && membership == nil {
		return nil, apperrors.Forbidden("this community is private")
	}
	return &Detail{Community: *community, Membership: membership}, nil
}

// ListMine returns the communities the user belongs to
func (s *Service) ListMine(ctx context.Context, userUID string) ([]graph.Community, error) {
	return s.graph.ListCommunitiesForUser(ctx, userUID)
}

// ListMembers returns members; private communities require membership
func (s *Service) ListMembers(ctx context.Context, viewerUID, communityUID string) ([]graph.Member, error) {
	if _, err := s.Get(ctx, viewerUID, communityUID); err != nil {
		return nil, err
	}
	return s.graph.ListMembers(ctx, communityUID)
}

// AddMembers adds several users at once. Failures are reported per user and
// do not abort the rest of the batch.
func (s *Service) AddMembers(ctx context.Context, actorUID, communityUID string, userUIDs []string) (*BulkResult, error) {
	if len(userUIDs) == 0 {
		return nil, apperrors.Validation("at least one user is required")
	}
	if len(userUIDs) > maxBulkMembers {
		return nil, apperrors.Validation("at most %d users can be added at once", maxBulkMembers)
	}
	community, err := s.graph.GetCommunity(ctx, communityUID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireRole(ctx, communityUID, actorUID, graph.RoleAdmin, graph.RoleModerator); err != nil {
		return nil, err
	}

	result := &BulkResult{Added: []string{}, Failed: []MemberFailure{}}
	seen := make(map[string]bool, len(userUIDs))
	for _, raw := range userUIDs {
		uid := strings.TrimSpace(raw)
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		if err := s.addOne(ctx, actorUID, community, uid); err != nil {
			s.logger.Warn("Failed to add community member",
				zap.String("community_uid", communityUID),
				zap.String("user_id", uid),
				zap.Error(err))
			result.Failed = append(result.Failed, MemberFailure{UserUID: uid, Reason: apperrors.MessageOf(err)})
			continue
		}
		result.Added = append(result.Added, uid)
	}
	return result, nil
}

func (s *Service) addOne(ctx context.Context, actorUID string, community *graph.Community, userUID string) error {
	if _, err := s.graph.GetUser(ctx, userUID); err != nil {
		return err
	}
	existing, err := s.graph.GetMembership(ctx, community.UID, userUID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.Conflict("already a member")
	}
	if err := s.graph.AddMember(ctx, community.UID, userUID, graph.RoleMember); err != nil {
		return err
	}
	if err := s.rooms.AddToRoom(ctx, actorUID, community.RoomID, userUID); err != nil {
		s.undoMembership(ctx, community.UID, userUID)
		return err
	}
	return nil
}

// Join adds the caller to a public community
func (s *Service) Join(ctx context.Context, userUID, communityUID string) (*graph.Membership, error) {
	community, err := s.graph.GetCommunity(ctx, communityUID)
	if err != nil {
		return nil, err
	}
	if community.CommunityType != graph.CommunityPublic {
		return nil, apperrors.Forbidden("private communities are invite only")
	}
	existing, err := s.graph.GetMembership(ctx, communityUID, userUID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Conflict("already a member")
	}
	if err := s.graph.AddMember(ctx, communityUID, userUID, graph.RoleMember); err != nil {
		return nil, err
	}
	if err := s.rooms.JoinCommunityRoom(ctx, userUID, community.RoomID); err != nil {
		s.undoMembership(ctx, communityUID, userUID)
		return nil, err
	}
	return s.graph.GetMembership(ctx, communityUID, userUID)
}

// Leave removes the caller. The last admin has to hand over or delete the
// community instead.
func (s *Service) Leave(ctx context.Context, userUID, communityUID string) error {
	community, err := s.graph.GetCommunity(ctx, communityUID)
	if err != nil {
		return err
	}
	membership, err := s.graph.GetMembership(ctx, communityUID, userUID)
	if err != nil {
		return err
	}
	if membership == nil {
		return apperrors.NewNotFound("membership", userUID)
	}
	if membership.Role == graph.RoleAdmin {
		admins, err := s.graph.CountAdmins(ctx, communityUID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return apperrors.Conflict("the last admin cannot leave; promote another admin or delete the community")
		}
	}
	if err := s.graph.RemoveMember(ctx, communityUID, userUID); err != nil {
		return err
	}
	if err := s.rooms.LeaveCommunityRoom(ctx, userUID, community.RoomID); err != nil {
		s.logger.Warn("Failed to leave community room",
			zap.String("community_uid", communityUID),
			zap.String("user_id", userUID),
			zap.Error(err))
	}
	return nil
}

// RemoveMember removes another member. Moderators may only remove plain
// members.
func (s *Service) RemoveMember(ctx context.Context, actorUID, communityUID, targetUID string) error {
	if actorUID == targetUID {
		return apperrors.Validation("use leave to remove yourself")
	}
	community, err := s.graph.GetCommunity(ctx, communityUID)
	if err != nil {
		return err
	}
	actor, err := s.requireRole(ctx, communityUID, actorUID, graph.RoleAdmin, graph.RoleModerator)
	if err != nil {
		return err
	}
	target, err := s.graph.GetMembership(ctx, communityUID, targetUID)
	if err != nil {
		return err
	}
	if target == nil {
		return apperrors.NewNotFound("membership", targetUID)
	}
	if !Outranks(actor.Role, target.Role) {
		return apperrors.Forbidden("cannot remove a %s", target.Role)
	}
	if err := s.graph.RemoveMember(ctx, communityUID, targetUID); err != nil {
		return err
	}
	if err := s.rooms.KickFromRoom(ctx, actorUID, community.RoomID, targetUID, "removed from community"); err != nil {
		s.logger.Warn("Failed to kick removed member from room",
			zap.String("community_uid", communityUID),
			zap.String("user_id", targetUID),
			zap.Error(err))
	}
	return nil
}

// SetRole changes a member's role; admins only
func (s *Service) SetRole(ctx context.Context, actorUID, communityUID, targetUID, role string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if !ValidRole(role) {
		return apperrors.Validation("role must be admin, moderator or member")
	}
	if _, err := s.requireRole(ctx, communityUID, actorUID, graph.RoleAdmin); err != nil {
		return err
	}
	target, err := s.graph.GetMembership(ctx, communityUID, targetUID)
	if err != nil {
		return err
	}
	if target == nil {
		return apperrors.NewNotFound("membership", targetUID)
	}
	if target.Role == role {
		return nil
	}
	if target.Role == graph.RoleAdmin {
		admins, err := s.graph.CountAdmins(ctx, communityUID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return apperrors.Conflict("a community needs at least one admin")
		}
	}
	return s.graph.SetMemberRole(ctx, communityUID, targetUID, role)
}

// Delete removes the community and everything hanging off it; admins only
func (s *Service) Delete(ctx context.Context, actorUID, communityUID string) error {
	if _, err := s.requireRole(ctx, communityUID, actorUID, graph.RoleAdmin); err != nil {
		return err
	}
	if err := s.graph.DeleteCommunity(ctx, communityUID); err != nil {
		return err
	}
	s.logger.Info("Community deleted", zap.String("community_uid", communityUID), zap.String("by", actorUID))
	return nil
}

// requireRole returns the membership of userUID when it holds one of roles
func (s *Service) requireRole(ctx context.Context, communityUID, userUID string, roles ...string) (*graph.Membership, error) {
	m, err := s.graph.GetMembership(ctx, communityUID, userUID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperrors.Forbidden("not a member of this community")
	}
	for _, r := range roles {
		if m.Role == r {
			return m, nil
		}
	}
	return nil, apperrors.Forbidden("requires %s role", strings.Join(roles, " or "))
}

func (s *Service) undoMembership(ctx context.Context, communityUID, userUID string) {
	if err := s.graph.RemoveMember(ctx, communityUID, userUID); err != nil {
		s.logger.Error("Failed to roll back membership",
			zap.String("community_uid", communityUID),
			zap.String("user_id", userUID),
			zap.Error(err))
	}
}

// ValidRole reports whether role is a community role
func ValidRole(role string) bool {
	switch role {
	case graph.RoleAdmin, graph.RoleModerator, graph.RoleMember:
		return true
	}
	return false
}

var roleRank = map[string]int{graph.RoleMember: 0, graph.RoleModerator: 1, graph.RoleAdmin: 2}

// Outranks reports whether an actor with role a may act on a member with
// role b. Admins may act on anyone but other admins.
func Outranks(a, b string) bool {
	if a == graph.RoleAdmin {
		return b != graph.RoleAdmin
	}
	return roleRank[a] > roleRank[b]
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return apperrors.Validation("name must be %d-%d characters", minNameLength, maxNameLength)
	}
	return nil
}

func normalizeType(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", graph.CommunityPublic:
		return graph.CommunityPublic, nil
	case graph.CommunityPrivate:
		return graph.CommunityPrivate, nil
	}
	return "", apperrors.Validation("community_type must be public or private")
}
