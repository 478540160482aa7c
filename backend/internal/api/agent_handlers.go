package api

import (
	"circlenet/backend/internal/agentic"
	"circlenet/backend/internal/graph"

	"github.com/gin-gonic/gin"
)

type agentRequest struct {
	Name         string   `json:"name" validate:"required"`
	Description  string   `json:"description" validate:"max=1000"`
	AgentType    string   `json:"agent_type" validate:"required"`
	Status       string   `json:"status" validate:"omitempty,oneof=active inactive"`
	Capabilities []string `json:"capabilities"`
}

type assignRequest struct {
	Permissions []string `json:"permissions"`
}

type agentModerationRequest struct {
	Action    string `json:"action" validate:"required,oneof=kick ban unban mute unmute"`
	TargetUID string `json:"target_uid" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
}

type announceRequest struct {
	Body string `json:"body" validate:"required"`
}

type draftRequest struct {
	Topic string `json:"topic" validate:"required,max=500"`
	Tone  string `json:"tone" validate:"max=50"`
}

func (h *handler) mountAgents(r *gin.RouterGroup) {
	r.GET("/agents/permissions", h.agentPermissions)

	g := r.Group("/agents")
	g.GET("", h.listAgents)
	g.POST("", h.createAgent)
	g.GET("/:agent", h.getAgent)
	g.PUT("/:agent", h.updateAgent)
	g.DELETE("/:agent", h.deleteAgent)
}

// mountCommunityAgents mounts the agent routes scoped to one community
func (h *handler) mountCommunityAgents(g *gin.RouterGroup) {
	g.GET("/:uid/agents", h.listAssignments)
	g.POST("/:uid/agents/:agent", h.assignAgent)
	g.DELETE("/:uid/agents/:agent", h.unassignAgent)
	g.PUT("/:uid/agents/:agent/permissions", h.updateAgentPermissions)
	g.GET("/:uid/agents/:agent/permissions/:action", h.checkAgentPermission)

	g.PATCH("/:uid/agents/:agent/community", h.agentEditCommunity)
	g.POST("/:uid/agents/:agent/moderate", h.agentModerate)
	g.POST("/:uid/agents/:agent/announcements", h.agentAnnounce)
	g.POST("/:uid/agents/:agent/announcements/draft", h.agentDraft)

	g.GET("/:uid/agents/:agent/memory", h.agentMemory)
	g.PUT("/:uid/agents/:agent/memory", h.updateAgentMemory)
	g.DELETE("/:uid/agents/:agent/memory", h.clearAgentMemory)
	g.GET("/:uid/agents/:agent/logs", h.agentLogs)
}

func (h *handler) agentPermissions(c *gin.Context) {
	ok(c, h.deps.Agents.Permissions())
}

func (r agentRequest) input() agentic.AgentInput {
	return agentic.AgentInput{
		Name:         r.Name,
		Description:  r.Description,
		AgentType:    r.AgentType,
		Status:       r.Status,
		Capabilities: r.Capabilities,
	}
}

func (h *handler) createAgent(c *gin.Context) {
	var req agentRequest
	if !bindJSON(c, &req) {
		return
	}
	agent, err := h.deps.Agents.CreateAgent(c.Request.Context(), userID(c), req.input())
	if err != nil {
		fail(c, err)
		return
	}
	created(c, agent)
}

func (h *handler) updateAgent(c *gin.Context) {
	var req agentRequest
	if !bindJSON(c, &req) {
		return
	}
	agent, err := h.deps.Agents.UpdateAgent(c.Request.Context(), userID(c), c.Param("agent"), req.input())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, agent)
}

func (h *handler) getAgent(c *gin.Context) {
	agent, err := h.deps.Agents.GetAgent(c.Request.Context(), userID(c), c.Param("agent"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, agent)
}

func (h *handler) listAgents(c *gin.Context) {
	agents, err := h.deps.Agents.ListAgents(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, agents)
}

func (h *handler) deleteAgent(c *gin.Context) {
	if err := h.deps.Agents.DeleteAgent(c.Request.Context(), userID(c), c.Param("agent")); err != nil {
		fail(c, err)
		return
	}
	done(c, "agent deleted")
}

func (h *handler) listAssignments(c *gin.Context) {
	out, err := h.deps.Agents.ListAssignments(c.Request.Context(), userID(c), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) assignAgent(c *gin.Context) {
	var req assignRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Agents.Assign(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid"), req.Permissions)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, out)
}

func (h *handler) unassignAgent(c *gin.Context) {
	if err := h.deps.Agents.Unassign(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid")); err != nil {
		fail(c, err)
		return
	}
	done(c, "agent unassigned")
}

func (h *handler) updateAgentPermissions(c *gin.Context) {
	var req assignRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Agents.UpdatePermissions(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid"), req.Permissions)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) checkAgentPermission(c *gin.Context) {
	action := c.Param("action")
	allowed, err := h.deps.Agents.CheckPermission(c.Request.Context(), c.Param("agent"), c.Param("uid"), action)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"action": action, "allowed": allowed})
}

func (h *handler) agentEditCommunity(c *gin.Context) {
	var req graph.CommunityUpdate
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Agents.EditCommunity(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid"), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) agentModerate(c *gin.Context) {
	var req agentModerationRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.deps.Agents.ModerateUser(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid"), agentic.ModerationInput{
		Action:    req.Action,
		TargetUID: req.TargetUID,
		Reason:    req.Reason,
	})
	if err != nil {
		fail(c, err)
		return
	}
	done(c, req.Action+" applied")
}

func (h *handler) agentAnnounce(c *gin.Context) {
	var req announceRequest
	if !bindJSON(c, &req) {
		return
	}
	eventID, err := h.deps.Agents.SendAnnouncement(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid"), req.Body)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, gin.H{"event_id": eventID})
}

func (h *handler) agentDraft(c *gin.Context) {
	var req draftRequest
	if !bindJSON(c, &req) {
		return
	}
	body, err := h.deps.Agents.DraftAnnouncement(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid"), agentic.DraftInput{
		Topic: req.Topic,
		Tone:  req.Tone,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"body": body})
}

func (h *handler) agentMemory(c *gin.Context) {
	mem, err := h.deps.Agents.GetMemory(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, mem)
}

func (h *handler) updateAgentMemory(c *gin.Context) {
	var req agentic.MemoryUpdate
	if !bindJSON(c, &req) {
		return
	}
	mem, err := h.deps.Agents.UpdateMemory(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid"), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, mem)
}

func (h *handler) clearAgentMemory(c *gin.Context) {
	if err := h.deps.Agents.ClearMemory(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid")); err != nil {
		fail(c, err)
		return
	}
	done(c, "memory cleared")
}

func (h *handler) agentLogs(c *gin.Context) {
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}
	logs, err := h.deps.Agents.ListActionLogs(c.Request.Context(), userID(c), c.Param("agent"), c.Param("uid"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, logs)
}
