package agentic

import (
	"context"
	"strings"
	"unicode/utf8"

	"circlenet/backend/internal/adapter"
	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/metrics"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Graph is the subset of the graph repository used by agents
type Graph interface {
	CreateAgent(ctx context.Context, agent *graph.Agent) error
	UpdateAgent(ctx context.Context, agent *graph.Agent) error
	GetAgent(ctx context.Context, uid string) (*graph.Agent, error)
	ListAgents(ctx context.Context, createdBy string) ([]graph.Agent, error)
	DeleteAgent(ctx context.Context, uid string) error

	CreateAssignment(ctx context.Context, a *graph.AgentCommunityAssignment) error
	GetAssignment(ctx context.Context, agentUID, communityUID string) (*graph.AgentCommunityAssignment, error)
	UpdateAssignmentPermissions(ctx context.Context, agentUID, communityUID string, permissions []string) error
	DeleteAssignment(ctx context.Context, agentUID, communityUID string) error
	ListAssignments(ctx context.Context, communityUID string) ([]graph.AgentCommunityAssignment, error)

	GetAgentMemory(ctx context.Context, agentUID, communityUID string) (*graph.AgentMemory, error)
	SaveAgentMemory(ctx context.Context, memory *graph.AgentMemory) error
	DeleteAgentMemory(ctx context.Context, agentUID, communityUID string) error

	CreateActionLog(ctx context.Context, entry *graph.AgentActionLog) error
	ListActionLogs(ctx context.Context, agentUID, communityUID string, limit int) ([]graph.AgentActionLog, error)

	GetCommunity(ctx context.Context, uid string) (*graph.Community, error)
	GetMembership(ctx context.Context, communityUID, userUID string) (*graph.Membership, error)
	SetMemberMuted(ctx context.Context, communityUID, userUID string, muted bool) error
}

// Communities applies community edits on behalf of a user
type Communities interface {
	Update(ctx context.Context, actorUID, communityUID string, update graph.CommunityUpdate) (*graph.Community, error)
}

// Rooms performs moderation and posting in community rooms
type Rooms interface {
	Kick(ctx context.Context, actorUID, communityUID, targetUID, reason string) error
	Ban(ctx context.Context, actorUID, communityUID, targetUID, reason string) error
	Unban(ctx context.Context, actorUID, communityUID, targetUID, reason string) error
	Announce(ctx context.Context, actorUID, roomID, body string) (string, error)
}

// Drafter writes announcement text
type Drafter interface {
	Draft(ctx context.Context, req adapter.AnnouncementRequest) (string, error)
}

const (
	maxAgentNameLength    = 100
	maxHistoryEntries     = 50
	defaultActionLogLimit = 50
	maxActionLogLimit     = 200
)

// AgentInput describes a new or edited agent
type AgentInput struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	AgentType    string   `json:"agent_type"`
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities"`
}

// Service manages AI agents and the actions they take in communities
type Service struct {
	graph       Graph
	communities Communities
	rooms       Rooms
	drafter     Drafter
	permissions *Permissions
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// NewService creates an agent service. drafter may be nil when no LLM is
// configured.
func NewService(g Graph, communities Communities, rooms Rooms, drafter Drafter, permissions *Permissions, collector *metrics.Collector) *Service {
	return &Service{
		graph:       g,
		communities: communities,
		rooms:       rooms,
		drafter:     drafter,
		permissions: permissions,
		metrics:     collector,
		logger:      logger.Named("agentic"),
	}
}

// Permissions returns the permission dictionary
func (s *Service) Permissions() *Permissions {
	return s.permissions
}

// CreateAgent stores an agent owned by ownerUID. Capabilities default to the
// full action set of the agent type.
func (s *Service) CreateAgent(ctx context.Context, ownerUID string, in AgentInput) (*graph.Agent, error) {
	name, err := validateAgentName(in.Name)
	if err != nil {
		return nil, err
	}
	if !s.permissions.HasType(in.AgentType) {
		return nil, apperrors.Validation("unknown agent type %q", in.AgentType)
	}
	capabilities, err := s.resolveActions(in.AgentType, in.Capabilities)
	if err != nil {
		return nil, err
	}

	agent := &graph.Agent{
		UID:          uuid.NewString(),
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		AgentType:    in.AgentType,
		Status:       graph.AgentActive,
		Capabilities: capabilities,
		CreatedBy:    ownerUID,
	}
	if err := s.graph.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}
	s.logger.Info("Created agent",
		zap.String("agent_uid", agent.UID),
		zap.String("agent_type", agent.AgentType),
		zap.String("owner_uid", ownerUID))
	return agent, nil
}

// UpdateAgent edits name, description, status and capabilities. The agent
// type is fixed at creation.
func (s *Service) UpdateAgent(ctx context.Context, ownerUID, agentUID string, in AgentInput) (*graph.Agent, error) {
	agent, err := s.ownedAgent(ctx, ownerUID, agentUID)
	if err != nil {
		return nil, err
	}
	if in.AgentType != "" && in.AgentType != agent.AgentType {
		return nil, apperrors.Validation("agent type cannot be changed")
	}
	if in.Name != "" {
		if agent.Name, err = validateAgentName(in.Name); err != nil {
			return nil, err
		}
	}
	if in.Description != "" {
		agent.Description = strings.TrimSpace(in.Description)
	}
	switch in.Status {
	case "":
	case graph.AgentActive, graph.AgentInactive:
		agent.Status = in.Status
	default:
		return nil, apperrors.Validation("status must be %s or %s", graph.AgentActive, graph.AgentInactive)
	}
	if in.Capabilities != nil {
		if agent.Capabilities, err = s.resolveActions(agent.AgentType, in.Capabilities); err != nil {
			return nil, err
		}
	}
	if err := s.graph.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// GetAgent returns an agent to its owner
func (s *Service) GetAgent(ctx context.Context, ownerUID, agentUID string) (*graph.Agent, error) {
	return s.ownedAgent(ctx, ownerUID, agentUID)
}

// ListAgents returns the caller's agents
func (s *Service) ListAgents(ctx context.Context, ownerUID string) ([]graph.Agent, error) {
	return s.graph.ListAgents(ctx, ownerUID)
}

// DeleteAgent removes an agent with all of its assignments, memory and logs
func (s *Service) DeleteAgent(ctx context.Context, ownerUID, agentUID string) error {
	if _, err := s.ownedAgent(ctx, ownerUID, agentUID); err != nil {
		return err
	}
	if err := s.graph.DeleteAgent(ctx, agentUID); err != nil {
		return err
	}
	s.logger.Info("Deleted agent", zap.String("agent_uid", agentUID))
	return nil
}

func (s *Service) ownedAgent(ctx context.Context, ownerUID, agentUID string) (*graph.Agent, error) {
	agent, err := s.graph.GetAgent(ctx, agentUID)
	if err != nil {
		return nil, err
	}
	if agent.CreatedBy != ownerUID {
		return nil, apperrors.Forbidden("you do not own this agent")
	}
	return agent, nil
}

// resolveActions defaults an empty list to the type's full set and rejects
// anything outside it. Duplicates are dropped.
func (s *Service) resolveActions(agentType string, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return s.permissions.TypeActions(agentType), nil
	}
	if action, ok := s.permissions.Subset(agentType, requested); !ok {
		return nil, apperrors.Validation("action %q is not available to %s agents", action, agentType)
	}
	seen := make(map[string]bool, len(requested))
	out := make([]string, 0, len(requested))
	for _, a := range requested {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out, nil
}

func validateAgentName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperrors.Validation("agent name is required")
	}
	if utf8.RuneCountInString(name) > maxAgentNameLength {
		return "", apperrors.Validation("agent name must be at most %d characters", maxAgentNameLength)
	}
	return name, nil
}
