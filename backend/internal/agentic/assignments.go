package agentic

import (
	"context"

	"circlenet/backend/internal/graph"
	apperrors "circlenet/backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Assignment states
const (
	AssignmentActive = "active"
)

// Assign places an agent in a community. The caller must own the agent and
// administer the community.
func (s *Service) Assign(ctx context.Context, callerUID, agentUID, communityUID string, permissions []string) (*graph.AgentCommunityAssignment, error) {
	agent, err := s.ownedAgent(ctx, callerUID, agentUID)
	if err != nil {
		return nil, err
	}
	if agent.Status != graph.AgentActive {
		return nil, apperrors.Validation("agent is inactive")
	}
	if err := s.requireAdmin(ctx, callerUID, communityUID); err != nil {
		return nil, err
	}
	existing, err := s.graph.GetAssignment(ctx, agentUID, communityUID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Conflict("agent is already assigned to this community")
	}
	granted, err := s.assignable(agent, permissions)
	if err != nil {
		return nil, err
	}

	assignment := &graph.AgentCommunityAssignment{
		UID:          uuid.NewString(),
		AgentUID:     agentUID,
		CommunityUID: communityUID,
		Permissions:  granted,
		Status:       AssignmentActive,
		AssignedBy:   callerUID,
	}
	if err := s.graph.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}
	s.logger.Info("Assigned agent to community",
		zap.String("agent_uid", agentUID),
		zap.String("community_uid", communityUID),
		zap.Strings("permissions", granted))
	return assignment, nil
}

// Unassign removes an agent from a community along with its memory there.
// Either the agent owner or a community admin may do this.
func (s *Service) Unassign(ctx context.Context, callerUID, agentUID, communityUID string) error {
	agent, err := s.graph.GetAgent(ctx, agentUID)
	if err != nil {
		return err
	}
	if agent.CreatedBy != callerUID {
		if err := s.requireAdmin(ctx, callerUID, communityUID); err != nil {
			return err
		}
	}
	return s.graph.DeleteAssignment(ctx, agentUID, communityUID)
}

// UpdatePermissions replaces the permission set of an assignment
func (s *Service) UpdatePermissions(ctx context.Context, callerUID, agentUID, communityUID string, permissions []string) (*graph.AgentCommunityAssignment, error) {
	agent, err := s.ownedAgent(ctx, callerUID, agentUID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, callerUID, communityUID); err != nil {
		return nil, err
	}
	assignment, err := s.graph.GetAssignment(ctx, agentUID, communityUID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, apperrors.NewNotFound("assignment", agentUID+"/"+communityUID)
	}
	granted, err := s.assignable(agent, permissions)
	if err != nil {
		return nil, err
	}
	if err := s.graph.UpdateAssignmentPermissions(ctx, agentUID, communityUID, granted); err != nil {
		return nil, err
	}
	assignment.Permissions = granted
	return assignment, nil
}

// ListAssignments returns the agents assigned to a community; members only
func (s *Service) ListAssignments(ctx context.Context, callerUID, communityUID string) ([]graph.AgentCommunityAssignment, error) {
	membership, err := s.graph.GetMembership(ctx, communityUID, callerUID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, apperrors.Forbidden("you are not a member of this community")
	}
	return s.graph.ListAssignments(ctx, communityUID)
}

// CheckPermission reports whether an active agent may perform action in the
// community. Missing agents and assignments yield false, not an error.
func (s *Service) CheckPermission(ctx context.Context, agentUID, communityUID, action string) (bool, error) {
	agent, err := s.graph.GetAgent(ctx, agentUID)
	if apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	assignment, err := s.graph.GetAssignment(ctx, agentUID, communityUID)
	if err != nil {
		return false, err
	}
	return s.granted(agent, assignment, action), nil
}

func (s *Service) granted(agent *graph.Agent, assignment *graph.AgentCommunityAssignment, action string) bool {
	if agent.Status != graph.AgentActive || assignment == nil || assignment.Status != AssignmentActive {
		return false
	}
	if !s.permissions.Allowed(agent.AgentType, action) || !contains(agent.Capabilities, action) {
		return false
	}
	return contains(assignment.Permissions, action)
}

// assignable resolves the permissions of an assignment. An empty request
// takes the agent's capabilities; anything else must stay within them.
func (s *Service) assignable(agent *graph.Agent, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return append([]string(nil), agent.Capabilities...), nil
	}
	granted, err := s.resolveActions(agent.AgentType, requested)
	if err != nil {
		return nil, err
	}
	for _, action := range granted {
		if !contains(agent.Capabilities, action) {
			return nil, apperrors.Validation("agent %q does not have the %s capability", agent.Name, action)
		}
	}
	return granted, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (s *Service) requireAdmin(ctx context.Context, userUID, communityUID string) error {
	membership, err := s.graph.GetMembership(ctx, communityUID, userUID)
	if err != nil {
		return err
	}
	if membership == nil || membership.Role != graph.RoleAdmin {
		return apperrors.Forbidden("only community admins can manage agents")
	}
	return nil
}
