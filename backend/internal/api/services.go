package api

import (
	"context"

	"circlenet/backend/internal/agentic"
	"circlenet/backend/internal/auth"
	"circlenet/backend/internal/community"
	"circlenet/backend/internal/connection"
	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/marketplace"
	"circlenet/backend/internal/messaging"
	"circlenet/backend/internal/opportunity"
	"circlenet/backend/internal/profile"
	"circlenet/backend/internal/storage"
	"circlenet/backend/internal/store"
)

// TokenValidator checks bearer tokens
type TokenValidator interface {
	Validate(tokenString, expectedType string) (*auth.Claims, error)
}

// AuthService covers account lifecycle
type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (string, error)
	Login(ctx context.Context, identifier, password string) (*auth.TokenPair, *store.Account, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	SendOTP(ctx context.Context, email, purpose string) error
	VerifyOTP(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	DeleteAccount(ctx context.Context, userID, password string) error
	Me(ctx context.Context, userID string) (*auth.Me, error)
}

// ProfileService covers profiles, search, uploads and vibes
type ProfileService interface {
	GetProfile(ctx context.Context, userUID string) (*profile.FullProfile, error)
	UpdateProfile(ctx context.Context, userUID string, update graph.ProfileUpdate) (*graph.Profile, error)
	AddEducation(ctx context.Context, userUID string, e *graph.Education) error
	UpdateEducation(ctx context.Context, userUID string, e *graph.Education) error
	AddExperience(ctx context.Context, userUID string, e *graph.Experience) error
	UpdateExperience(ctx context.Context, userUID string, e *graph.Experience) error
	AddAchievement(ctx context.Context, userUID string, a *graph.Achievement) error
	UpdateAchievement(ctx context.Context, userUID string, a *graph.Achievement) error
	AddSkill(ctx context.Context, userUID, name string) (*graph.Skill, error)
	DeleteItem(ctx context.Context, userUID string, kind graph.ProfileItemKind, uid string) error
	ListEducation(ctx context.Context, userUID string) ([]graph.Education, error)
	ListExperience(ctx context.Context, userUID string) ([]graph.Experience, error)
	ListAchievements(ctx context.Context, userUID string) ([]graph.Achievement, error)
	ListSkills(ctx context.Context, userUID string) ([]graph.Skill, error)
	SearchUsers(ctx context.Context, viewerUID, query string, limit int) ([]graph.UserSummary, error)
	ImageUploadURL(ctx context.Context, userUID, kind, contentType string) (*storage.PresignedURL, error)
	FileURL(ctx context.Context, key string) (*storage.PresignedURL, error)
	ReactWithVibe(ctx context.Context, reactorUID, targetUID, vibe string, intensity int) (*profile.VibeSummary, error)
	ListVibes(ctx context.Context, targetUID string) (*profile.VibeSummary, error)
}

// ConnectionService covers circles and connection requests
type ConnectionService interface {
	Taxonomy() *connection.Taxonomy
	SendRequest(ctx context.Context, senderUID string, in connection.RequestInput) (*graph.ConnectionView, error)
	Accept(ctx context.Context, userUID, connectionUID string) (*graph.ConnectionView, error)
	Reject(ctx context.Context, userUID, connectionUID string) (*graph.ConnectionView, error)
	Cancel(ctx context.Context, userUID, connectionUID string) error
	Remove(ctx context.Context, userUID, connectionUID string) error
	UpdateCircle(ctx context.Context, userUID, connectionUID, circle, relation, subRelation string) (*graph.ConnectionView, error)
	ListConnections(ctx context.Context, userUID string, f connection.ListFilter) ([]graph.ConnectionView, error)
	ListPending(ctx context.Context, userUID, direction string) ([]graph.ConnectionView, error)
	MutualConnections(ctx context.Context, userUID, otherUID string) ([]graph.UserSummary, error)
	Recommendations(ctx context.Context, userUID string, limit int) ([]graph.Recommendation, error)
	Stats(ctx context.Context, userUID string) (map[string]int, error)
}

// CommunityService covers communities and memberships
type CommunityService interface {
	Create(ctx context.Context, creatorUID string, in community.CreateInput) (*graph.Community, error)
	Update(ctx context.Context, actorUID, communityUID string, update graph.CommunityUpdate) (*graph.Community, error)
	Get(ctx context.Context, viewerUID, communityUID string) (*community.Detail, error)
	ListMine(ctx context.Context, userUID string) ([]graph.Community, error)
	ListMembers(ctx context.Context, viewerUID, communityUID string) ([]graph.Member, error)
	AddMembers(ctx context.Context, actorUID, communityUID string, userUIDs []string) (*community.BulkResult, error)
	Join(ctx context.Context, userUID, communityUID string) (*graph.Membership, error)
	Leave(ctx context.Context, userUID, communityUID string) error
	RemoveMember(ctx context.Context, actorUID, communityUID, targetUID string) error
	SetRole(ctx context.Context, actorUID, communityUID, targetUID, role string) error
	Delete(ctx context.Context, actorUID, communityUID string) error
}

// MessagingService covers chat rooms and moderation
type MessagingService interface {
	GetOrCreateDirectRoom(ctx context.Context, userUID, peerUID string) (*graph.Conversation, error)
	ListConversations(ctx context.Context, userUID string) ([]graph.Conversation, error)
	SendMessage(ctx context.Context, userUID, roomID, body, replyTo string) (*graph.Message, error)
	FetchMessages(ctx context.Context, userUID, roomID, from string, limit int) (*messaging.MessagePage, error)
	React(ctx context.Context, userUID, roomID, eventID, key string) (*graph.Reaction, error)
	Kick(ctx context.Context, actorUID, communityUID, targetUID, reason string) error
	Ban(ctx context.Context, actorUID, communityUID, targetUID, reason string) error
	Unban(ctx context.Context, actorUID, communityUID, targetUID, reason string) error
}

// AgentService covers AI agents and their community actions
type AgentService interface {
	Permissions() *agentic.Permissions
	CreateAgent(ctx context.Context, ownerUID string, in agentic.AgentInput) (*graph.Agent, error)
	UpdateAgent(ctx context.Context, ownerUID, agentUID string, in agentic.AgentInput) (*graph.Agent, error)
	GetAgent(ctx context.Context, ownerUID, agentUID string) (*graph.Agent, error)
	ListAgents(ctx context.Context, ownerUID string) ([]graph.Agent, error)
	DeleteAgent(ctx context.Context, ownerUID, agentUID string) error
	Assign(ctx context.Context, callerUID, agentUID, communityUID string, permissions []string) (*graph.AgentCommunityAssignment, error)
	Unassign(ctx context.Context, callerUID, agentUID, communityUID string) error
	UpdatePermissions(ctx context.Context, callerUID, agentUID, communityUID string, permissions []string) (*graph.AgentCommunityAssignment, error)
	ListAssignments(ctx context.Context, callerUID, communityUID string) ([]graph.AgentCommunityAssignment, error)
	CheckPermission(ctx context.Context, agentUID, communityUID, action string) (bool, error)
	EditCommunity(ctx context.Context, callerUID, agentUID, communityUID string, update graph.CommunityUpdate) (*graph.Community, error)
	ModerateUser(ctx context.Context, callerUID, agentUID, communityUID string, in agentic.ModerationInput) error
	SendAnnouncement(ctx context.Context, callerUID, agentUID, communityUID, body string) (string, error)
	DraftAnnouncement(ctx context.Context, callerUID, agentUID, communityUID string, in agentic.DraftInput) (string, error)
	GetMemory(ctx context.Context, callerUID, agentUID, communityUID string) (*graph.AgentMemory, error)
	UpdateMemory(ctx context.Context, callerUID, agentUID, communityUID string, update agentic.MemoryUpdate) (*graph.AgentMemory, error)
	ClearMemory(ctx context.Context, callerUID, agentUID, communityUID string) error
	ListActionLogs(ctx context.Context, callerUID, agentUID, communityUID string, limit int) ([]graph.AgentActionLog, error)
}

// OpportunityService covers job postings
type OpportunityService interface {
	Create(ctx context.Context, ownerUID string, in opportunity.Input) (*graph.Opportunity, error)
	Update(ctx context.Context, ownerUID, uid string, in opportunity.Input) (*graph.Opportunity, error)
	Close(ctx context.Context, ownerUID, uid string) error
	Delete(ctx context.Context, ownerUID, uid string) error
	Get(ctx context.Context, viewerUID, uid string) (*opportunity.Detail, error)
	ListMine(ctx context.Context, ownerUID string) ([]graph.Opportunity, error)
	Feed(ctx context.Context, viewerUID string, filter graph.OpportunityFilter) ([]graph.Opportunity, error)
	Apply(ctx context.Context, userUID, uid, note string) (*graph.Application, error)
	ListApplicants(ctx context.Context, ownerUID, uid string) ([]graph.Application, error)
}

// MarketplaceService covers service listings and reviews
type MarketplaceService interface {
	Create(ctx context.Context, ownerUID string, in marketplace.Input) (*graph.ServiceListing, error)
	Update(ctx context.Context, ownerUID, uid string, in marketplace.Input) (*graph.ServiceListing, error)
	SetStatus(ctx context.Context, ownerUID, uid, status string) error
	Delete(ctx context.Context, ownerUID, uid string) error
	Get(ctx context.Context, viewerUID, uid string) (*graph.ServiceListing, error)
	ListMine(ctx context.Context, ownerUID string) ([]graph.ServiceListing, error)
	Feed(ctx context.Context, filter graph.ServiceFilter) ([]graph.ServiceListing, error)
	Review(ctx context.Context, reviewerUID, uid string, rating int, comment string) (*graph.ServiceListing, error)
	ListReviews(ctx context.Context, uid string) ([]graph.Review, error)
}

// Pinger is a dependency checked by /health
type Pinger interface {
	Ping(ctx context.Context) error
}
