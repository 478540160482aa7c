package graph

import (
	"context"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Agent Operations
// ============================================================================

// CreateAgent stores a new agent
func (r *Repository) CreateAgent(ctx context.Context, agent *Agent) error {
	records, err := r.write(ctx, "create_agent", `
		MATCH (u:User {uid: $createdBy})
		CREATE (u)-[:CREATED_AGENT]->(a:Agent {
			uid: $uid,
			name: $name,
			description: $description,
			agent_type: $agentType,
			status: $status,
			capabilities: $capabilities,
			created_by: $createdBy,
			created_at: datetime($now),
			updated_at: datetime($now)
		})
		RETURN a {.*} AS agent
	`, map[string]interface{}{
		"uid":          agent.UID,
		"name":         agent.Name,
		"description":  agent.Description,
		"agentType":    agent.AgentType,
		"status":       agent.Status,
		"capabilities": nonNilStrings(agent.Capabilities),
		"createdBy":    agent.CreatedBy,
		"now":          nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("user", agent.CreatedBy)
	}
	*agent = agentFromMap(getMapFromRecord(records[0], "agent"))
	return nil
}

// UpdateAgent overwrites the editable agent fields
func (r *Repository) UpdateAgent(ctx context.Context, agent *Agent) error {
	records, err := r.write(ctx, "update_agent", `
		MATCH (a:Agent {uid: $uid})
		SET a.name = $name,
		    a.description = $description,
		    a.status = $status,
		    a.capabilities = $capabilities,
		    a.updated_at = datetime($now)
		RETURN a {.*} AS agent
	`, map[string]interface{}{
		"uid":          agent.UID,
		"name":         agent.Name,
		"description":  agent.Description,
		"status":       agent.Status,
		"capabilities": nonNilStrings(agent.Capabilities),
		"now":          nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("agent", agent.UID)
	}
	*agent = agentFromMap(getMapFromRecord(records[0], "agent"))
	return nil
}

// GetAgent returns an agent by uid
func (r *Repository) GetAgent(ctx context.Context, uid string) (*Agent, error) {
	records, err := r.read(ctx, "get_agent", `
		MATCH (a:Agent {uid: $uid}) RETURN a {.*} AS agent
	`, map[string]interface{}{"uid": uid})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("agent", uid)
	}
	agent := agentFromMap(getMapFromRecord(records[0], "agent"))
	return &agent, nil
}

// ListAgents returns agents created by a user
func (r *Repository) ListAgents(ctx context.Context, createdBy string) ([]Agent, error) {
	records, err := r.read(ctx, "list_agents", `
		MATCH (a:Agent {created_by: $createdBy})
		RETURN a {.*} AS agent
		ORDER BY a.created_at DESC
	`, map[string]interface{}{"createdBy": createdBy})
	if err != nil {
		return nil, err
	}
	agents := make([]Agent, 0, len(records))
	for _, record := range records {
		agents = append(agents, agentFromMap(getMapFromRecord(record, "agent")))
	}
	return agents, nil
}

// DeleteAgent removes an agent with its assignments, memories and logs
func (r *Repository) DeleteAgent(ctx context.Context, uid string) error {
	params := map[string]interface{}{"uid": uid}
	return r.inWriteTx(ctx, "delete_agent", func(tx neo4j.ManagedTransaction) error {
		records, err := txCollect(ctx, tx, `MATCH (a:Agent {uid: $uid}) RETURN a.uid AS uid`, params)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return apperrors.NewNotFound("agent", uid)
		}
		steps := []string{
			`MATCH (x:AgentCommunityAssignment {agent_uid: $uid}) DETACH DELETE x`,
			`MATCH (x:AgentMemory {agent_uid: $uid}) DETACH DELETE x`,
			`MATCH (x:AgentActionLog {agent_uid: $uid}) DETACH DELETE x`,
			`MATCH (a:Agent {uid: $uid}) DETACH DELETE a`,
		}
		for _, step := range steps {
			if err := txExec(ctx, tx, step, params); err != nil {
				return err
			}
		}
		return nil
	})
}

// ----------------------------------------------------------------------------
// Assignments
// ----------------------------------------------------------------------------

// CreateAssignment assigns an agent to a community
func (r *Repository) CreateAssignment(ctx context.Context, a *AgentCommunityAssignment) error {
	records, err := r.write(ctx, "create_assignment", `
		MATCH (ag:Agent {uid: $agentUID}), (c:Community {uid: $communityUID})
		CREATE (ag)-[:HAS_ASSIGNMENT]->(x:AgentCommunityAssignment {
			uid: $uid,
			agent_uid: $agentUID,
			community_uid: $communityUID,
			permissions: $permissions,
			status: $status,
			assigned_by: $assignedBy,
			assigned_at: datetime($now)
		})-[:IN_COMMUNITY]->(c)
		RETURN x {.*} AS assignment
	`, map[string]interface{}{
		"uid":          a.UID,
		"agentUID":     a.AgentUID,
		"communityUID": a.CommunityUID,
		"permissions":  nonNilStrings(a.Permissions),
		"status":       a.Status,
		"assignedBy":   a.AssignedBy,
		"now":          nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("agent or community", a.AgentUID+"/"+a.CommunityUID)
	}
	*a = assignmentFromMap(getMapFromRecord(records[0], "assignment"))
	return nil
}

// GetAssignment returns the assignment of an agent to a community, or nil
func (r *Repository) GetAssignment(ctx context.Context, agentUID, communityUID string) (*AgentCommunityAssignment, error) {
	records, err := r.read(ctx, "get_assignment", `
		MATCH (x:AgentCommunityAssignment {agent_uid: $agentUID, community_uid: $communityUID})
		RETURN x {.*} AS assignment
		LIMIT 1
	`, map[string]interface{}{"agentUID": agentUID, "communityUID": communityUID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	a := assignmentFromMap(getMapFromRecord(records[0], "assignment"))
	return &a, nil
}

// UpdateAssignmentPermissions replaces the permission set of an assignment
func (r *Repository) UpdateAssignmentPermissions(ctx context.Context, agentUID, communityUID string, permissions []string) error {
	records, err := r.write(ctx, "update_assignment_permissions", `
		MATCH (x:AgentCommunityAssignment {agent_uid: $agentUID, community_uid: $communityUID})
		SET x.permissions = $permissions
		RETURN x.uid AS uid
	`, map[string]interface{}{
		"agentUID":     agentUID,
		"communityUID": communityUID,
		"permissions":  nonNilStrings(permissions),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("assignment", agentUID+"/"+communityUID)
	}
	return nil
}

// DeleteAssignment removes an assignment and the agent's memory for that community
func (r *Repository) DeleteAssignment(ctx context.Context, agentUID, communityUID string) error {
	params := map[string]interface{}{"agentUID": agentUID, "communityUID": communityUID}
	return r.inWriteTx(ctx, "delete_assignment", func(tx neo4j.ManagedTransaction) error {
		records, err := txCollect(ctx, tx, `
			MATCH (x:AgentCommunityAssignment {agent_uid: $agentUID, community_uid: $communityUID})
			DETACH DELETE x
			RETURN count(*) AS deleted
		`, params)
		if err != nil {
			return err
		}
		if len(records) == 0 || getIntFromRecord(records[0], "deleted") == 0 {
			return apperrors.NewNotFound("assignment", agentUID+"/"+communityUID)
		}
		return txExec(ctx, tx, `
			MATCH (x:AgentMemory {agent_uid: $agentUID, community_uid: $communityUID}) DETACH DELETE x
		`, params)
	})
}

// ListAssignments returns the agents assigned to a community
func (r *Repository) ListAssignments(ctx context.Context, communityUID string) ([]AgentCommunityAssignment, error) {
	records, err := r.read(ctx, "list_assignments", `
		MATCH (x:AgentCommunityAssignment {community_uid: $communityUID})
		RETURN x {.*} AS assignment
		ORDER BY x.assigned_at
	`, map[string]interface{}{"communityUID": communityUID})
	if err != nil {
		return nil, err
	}
	assignments := make([]AgentCommunityAssignment, 0, len(records))
	for _, record := range records {
		assignments = append(assignments, assignmentFromMap(getMapFromRecord(record, "assignment")))
	}
	return assignments, nil
}

// ----------------------------------------------------------------------------
// Memory
// ----------------------------------------------------------------------------

// GetAgentMemory returns the agent's memory for a community, or nil
func (r *Repository) GetAgentMemory(ctx context.Context, agentUID, communityUID string) (*AgentMemory, error) {
	records, err := r.read(ctx, "get_agent_memory", `
		MATCH (m:AgentMemory {agent_uid: $agentUID, community_uid: $communityUID})
		RETURN m {.*} AS memory
		LIMIT 1
	`, map[string]interface{}{"agentUID": agentUID, "communityUID": communityUID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	memory := memoryFromMap(getMapFromRecord(records[0], "memory"))
	return &memory, nil
}

// SaveAgentMemory creates or overwrites the agent's memory for a community
func (r *Repository) SaveAgentMemory(ctx context.Context, memory *AgentMemory) error {
	records, err := r.write(ctx, "save_agent_memory", `
		MATCH (a:Agent {uid: $agentUID})
		MERGE (a)-[:REMEMBERS]->(m:AgentMemory {agent_uid: $agentUID, community_uid: $communityUID})
		ON CREATE SET m.uid = $uid
		SET m.context_json = $context,
		    m.history = $history,
		    m.updated_at = datetime($now)
		RETURN m {.*} AS memory
	`, map[string]interface{}{
		"uid":          memory.UID,
		"agentUID":     memory.AgentUID,
		"communityUID": memory.CommunityUID,
		"context":      encodeJSON(memory.Context),
		"history":      nonNilStrings(memory.History),
		"now":          nowString(),
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("agent", memory.AgentUID)
	}
	*memory = memoryFromMap(getMapFromRecord(records[0], "memory"))
	return nil
}

// DeleteAgentMemory clears the agent's memory for a community
func (r *Repository) DeleteAgentMemory(ctx context.Context, agentUID, communityUID string) error {
	_, err := r.write(ctx, "delete_agent_memory", `
		MATCH (m:AgentMemory {agent_uid: $agentUID, community_uid: $communityUID})
		DETACH DELETE m
	`, map[string]interface{}{"agentUID": agentUID, "communityUID": communityUID})
	return err
}

// ----------------------------------------------------------------------------
// Action logs
// ----------------------------------------------------------------------------

// CreateActionLog appends an audit entry
func (r *Repository) CreateActionLog(ctx context.Context, entry *AgentActionLog) error {
	_, err := r.write(ctx, "create_action_log", `
		CREATE (l:AgentActionLog {
			uid: $uid,
			agent_uid: $agentUID,
			community_uid: $communityUID,
			action_type: $actionType,
			details_json: $details,
			success: $success,
			error_message: $errorMessage,
			duration_ms: $durationMS,
			timestamp: datetime($now)
		})
		WITH l
		OPTIONAL MATCH (a:Agent {uid: $agentUID})
		FOREACH (_ IN CASE WHEN a IS NULL THEN [] ELSE [1] END | CREATE (a)-[:LOGGED]->(l))
	`, map[string]interface{}{
		"uid":          entry.UID,
		"agentUID":     entry.AgentUID,
		"communityUID": entry.CommunityUID,
		"actionType":   entry.ActionType,
		"details":      encodeJSON(entry.Details),
		"success":      entry.Success,
		"errorMessage": entry.ErrorMessage,
		"durationMS":   entry.DurationMS,
		"now":          nowString(),
	})
	return err
}

// ListActionLogs returns the newest audit entries for an agent in a community
func (r *Repository) ListActionLogs(ctx context.Context, agentUID, communityUID string, limit int) ([]AgentActionLog, error) {
	records, err := r.read(ctx, "list_action_logs", `
		MATCH (l:AgentActionLog {agent_uid: $agentUID, community_uid: $communityUID})
		RETURN l {.*} AS log
		ORDER BY l.timestamp DESC
		LIMIT $limit
	`, map[string]interface{}{"agentUID": agentUID, "communityUID": communityUID, "limit": limit})
	if err != nil {
		return nil, err
	}
	logs := make([]AgentActionLog, 0, len(records))
	for _, record := range records {
		m := getMapFromRecord(record, "log")
		entry := AgentActionLog{
			UID:          getStringFromMap(m, "uid", ""),
			AgentUID:     getStringFromMap(m, "agent_uid", ""),
			CommunityUID: getStringFromMap(m, "community_uid", ""),
			ActionType:   getStringFromMap(m, "action_type", ""),
			Success:      getBoolFromMap(m, "success"),
			ErrorMessage: getStringFromMap(m, "error_message", ""),
			DurationMS:   getInt64FromMap(m, "duration_ms"),
			Timestamp:    getTimeFromMap(m, "timestamp"),
		}
		decodeJSONFromMap(m, "details_json", &entry.Details)
		logs = append(logs, entry)
	}
	return logs, nil
}

func agentFromMap(m map[string]interface{}) Agent {
	return Agent{
		UID:          getStringFromMap(m, "uid", ""),
		Name:         getStringFromMap(m, "name", ""),
		Description:  getStringFromMap(m, "description", ""),
		AgentType:    getStringFromMap(m, "agent_type", ""),
		Status:       getStringFromMap(m, "status", ""),
		Capabilities: getStringSliceFromMap(m, "capabilities"),
		CreatedBy:    getStringFromMap(m, "created_by", ""),
		CreatedAt:    getTimeFromMap(m, "created_at"),
		UpdatedAt:    getTimeFromMap(m, "updated_at"),
	}
}

func assignmentFromMap(m map[string]interface{}) AgentCommunityAssignment {
	return AgentCommunityAssignment{
		UID:          getStringFromMap(m, "uid", ""),
		AgentUID:     getStringFromMap(m, "agent_uid", ""),
		CommunityUID: getStringFromMap(m, "community_uid", ""),
		Permissions:  getStringSliceFromMap(m, "permissions"),
		Status:       getStringFromMap(m, "status", ""),
		AssignedBy:   getStringFromMap(m, "assigned_by", ""),
		AssignedAt:   getTimeFromMap(m, "assigned_at"),
	}
}

func memoryFromMap(m map[string]interface{}) AgentMemory {
	memory := AgentMemory{
		UID:          getStringFromMap(m, "uid", ""),
		AgentUID:     getStringFromMap(m, "agent_uid", ""),
		CommunityUID: getStringFromMap(m, "community_uid", ""),
		Context:      map[string]string{},
		History:      getStringSliceFromMap(m, "history"),
		UpdatedAt:    getTimeFromMap(m, "updated_at"),
	}
	decodeJSONFromMap(m, "context_json", &memory.Context)
	if memory.Context == nil {
		memory.Context = map[string]string{}
	}
	return memory
}
