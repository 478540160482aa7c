package messaging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/matrix"
	"circlenet/backend/internal/store"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Graph is the subset of the graph repository used for messaging
type Graph interface {
	GetUser(ctx context.Context, uid string) (*graph.User, error)
	FindDirectConversation(ctx context.Context, a, b string) (*graph.Conversation, error)
	CreateConversation(ctx context.Context, cv *graph.Conversation) error
	ListConversations(ctx context.Context, userUID string) ([]graph.Conversation, error)
	CheckRoomAccess(ctx context.Context, roomID, userUID string) (graph.RoomAccess, error)
	SaveMessage(ctx context.Context, msg *graph.Message) error
	SaveReaction(ctx context.Context, reaction *graph.Reaction) error
	GetCommunity(ctx context.Context, uid string) (*graph.Community, error)
	GetMembership(ctx context.Context, communityUID, userUID string) (*graph.Membership, error)
	RemoveMember(ctx context.Context, communityUID, userUID string) error
}

// ProfileStore persists homeserver credentials per user
type ProfileStore interface {
	GetMatrixProfile(ctx context.Context, userID string) (*store.MatrixProfile, error)
	SaveMatrixProfile(ctx context.Context, p *store.MatrixProfile) error
}

// Homeserver registers accounts and hands out authenticated sessions
type Homeserver interface {
	Register(ctx context.Context, username, password string) (*matrix.AuthResponse, error)
	Session(userID, accessToken string) *matrix.Session
}

// Previewer unfurls the first link of a message body
type Previewer interface {
	Preview(ctx context.Context, text string) *graph.LinkPreview
}

// Options configures the optional service account used to manage community
// rooms. Without it the acting user's own session is used.
type Options struct {
	BotUserID      string
	BotAccessToken string
}

// Service bridges local users, conversations and communities to Matrix
type Service struct {
	graph      Graph
	profiles   ProfileStore
	homeserver Homeserver
	previews   Previewer
	bot        *matrix.Session
	flight     singleflight.Group
	logger     *zap.Logger
}

// NewService creates a messaging service
func NewService(g Graph, profiles ProfileStore, homeserver Homeserver, previews Previewer, opts Options) *Service {
	s := &Service{
		graph:      g,
		profiles:   profiles,
		homeserver: homeserver,
		previews:   previews,
		logger:     logger.Named("messaging"),
	}
	if opts.BotUserID != "" && opts.BotAccessToken != "" {
		s.bot = homeserver.Session(opts.BotUserID, opts.BotAccessToken)
	}
	return s
}

// EnsureMatrixProfile returns the user's homeserver credentials, registering
// an account on first use. Concurrent callers for one user share a single
// registration.
func (s *Service) EnsureMatrixProfile(ctx context.Context, userUID string) (*store.MatrixProfile, error) {
	p, err := s.profiles.GetMatrixProfile(ctx, userUID)
	if err == nil {
		return p, nil
	}
	if !apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	v, err, _ := s.flight.Do("register:"+userUID, func() (interface{}, error) {
		if p, err := s.profiles.GetMatrixProfile(ctx, userUID); err == nil {
			return p, nil
		}
		password, err := randomSecret()
		if err != nil {
			return nil, err
		}
		auth, err := s.homeserver.Register(ctx, Localpart(userUID), password)
		if err != nil {
			return nil, err
		}
		p := &store.MatrixProfile{
			UserID:       userUID,
			MatrixUserID: auth.UserID,
			AccessToken:  auth.AccessToken,
			DeviceID:     auth.DeviceID,
		}
		if err := s.profiles.SaveMatrixProfile(ctx, p); err != nil {
			return nil, err
		}
		s.logger.Info("Provisioned matrix profile",
			zap.String("user_id", userUID),
			zap.String("matrix_user_id", auth.UserID))
		return p, nil
	})
	if err != nil {
		s.logger.Error("Failed to provision matrix profile", zap.String("user_id", userUID), zap.Error(err))
		return nil, err
	}
	return v.(*store.MatrixProfile), nil
}

// session returns an authenticated session for a local user
func (s *Service) session(ctx context.Context, userUID string) (*matrix.Session, error) {
	p, err := s.EnsureMatrixProfile(ctx, userUID)
	if err != nil {
		return nil, err
	}
	return s.homeserver.Session(p.MatrixUserID, p.AccessToken), nil
}

// manager returns the session that performs room administration
func (s *Service) manager(ctx context.Context, actorUID string) (*matrix.Session, error) {
	if s.bot != nil {
		return s.bot, nil
	}
	return s.session(ctx, actorUID)
}

// Localpart maps a user id to the homeserver localpart
func Localpart(userUID string) string {
	return "cn_" + strings.ToLower(strings.ReplaceAll(userUID, "-", ""))
}

func randomSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate matrix password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
