package agentic

import (
	"context"
	"strings"

	"circlenet/backend/internal/graph"
	apperrors "circlenet/backend/pkg/errors"

	"github.com/google/uuid"
)

// MemoryUpdate is merged into an agent's memory. Context keys with an empty
// value are removed; history lines are appended.
type MemoryUpdate struct {
	Context map[string]string `json:"context"`
	History []string          `json:"history"`
}

// GetMemory returns the agent's memory for a community; empty when nothing
// has been stored yet.
func (s *Service) GetMemory(ctx context.Context, callerUID, agentUID, communityUID string) (*graph.AgentMemory, error) {
	if _, err := s.authorize(ctx, callerUID, agentUID, communityUID, ActionManageMemory); err != nil {
		return nil, err
	}
	memory, err := s.graph.GetAgentMemory(ctx, agentUID, communityUID)
	if err != nil {
		return nil, err
	}
	return memoryOrNew(memory, agentUID, communityUID), nil
}

// UpdateMemory merges update into the stored memory
func (s *Service) UpdateMemory(ctx context.Context, callerUID, agentUID, communityUID string, update MemoryUpdate) (*graph.AgentMemory, error) {
	details := map[string]interface{}{
		"context_keys":  len(update.Context),
		"history_lines": len(update.History),
	}

	var saved *graph.AgentMemory
	err := s.run(ctx, callerUID, agentUID, communityUID, LogUpdateMemory, ActionManageMemory, details, func(*actionScope) error {
		if len(update.Context) == 0 && len(update.History) == 0 {
			return apperrors.Validation("memory update is empty")
		}
		current, err := s.graph.GetAgentMemory(ctx, agentUID, communityUID)
		if err != nil {
			return err
		}
		memory := mergeContext(memoryOrNew(current, agentUID, communityUID), update.Context)
		memory = appendHistory(memory, update.History)
		if err := s.graph.SaveAgentMemory(ctx, memory); err != nil {
			return err
		}
		saved = memory
		return nil
	})
	return saved, err
}

// ClearMemory forgets everything the agent stored for a community
func (s *Service) ClearMemory(ctx context.Context, callerUID, agentUID, communityUID string) error {
	return s.run(ctx, callerUID, agentUID, communityUID, LogClearMemory, ActionManageMemory, nil, func(*actionScope) error {
		return s.graph.DeleteAgentMemory(ctx, agentUID, communityUID)
	})
}

// ListActionLogs returns the newest log entries for an agent in a community.
// The owner may always read them; a community admin may when the agent holds
// view_logs there.
func (s *Service) ListActionLogs(ctx context.Context, callerUID, agentUID, communityUID string, limit int) ([]graph.AgentActionLog, error) {
	agent, err := s.graph.GetAgent(ctx, agentUID)
	if err != nil {
		return nil, err
	}
	if agent.CreatedBy != callerUID {
		if err := s.requireAdmin(ctx, callerUID, communityUID); err != nil {
			return nil, err
		}
		assignment, err := s.graph.GetAssignment(ctx, agentUID, communityUID)
		if err != nil {
			return nil, err
		}
		if !s.granted(agent, assignment, ActionViewLogs) {
			return nil, apperrors.Forbidden("agent logs are not visible in this community")
		}
	}

	switch {
	case limit <= 0:
		limit = defaultActionLogLimit
	case limit > maxActionLogLimit:
		limit = maxActionLogLimit
	}
	return s.graph.ListActionLogs(ctx, agentUID, communityUID, limit)
}

func memoryOrNew(m *graph.AgentMemory, agentUID, communityUID string) *graph.AgentMemory {
	if m != nil {
		return m
	}
	return &graph.AgentMemory{
		UID:          uuid.NewString(),
		AgentUID:     agentUID,
		CommunityUID: communityUID,
		Context:      map[string]string{},
		History:      []string{},
	}
}

func mergeContext(m *graph.AgentMemory, update map[string]string) *graph.AgentMemory {
	if m.Context == nil {
		m.Context = map[string]string{}
	}
	for k, v := range update {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if v == "" {
			delete(m.Context, k)
			continue
		}
		m.Context[k] = v
	}
	return m
}

// appendHistory adds lines and keeps only the newest maxHistoryEntries
func appendHistory(m *graph.AgentMemory, lines []string) *graph.AgentMemory {
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			m.History = append(m.History, line)
		}
	}
	if over := len(m.History) - maxHistoryEntries; over > 0 {
		m.History = append([]string(nil), m.History[over:]...)
	}
	return m
}
