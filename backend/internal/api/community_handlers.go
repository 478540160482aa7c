package api

import (
	"circlenet/backend/internal/community"
	"circlenet/backend/internal/graph"

	"github.com/gin-gonic/gin"
)

type createCommunityRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	Description   string `json:"description" validate:"max=2000"`
	CommunityType string `json:"community_type" validate:"omitempty,oneof=public private"`
	IconKey       string `json:"icon_key"`
}

type addMembersRequest struct {
	UserUIDs []string `json:"user_uids" validate:"required,min=1,max=100"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin moderator member"`
}

type moderationRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *handler) mountCommunities(r *gin.RouterGroup) {
	g := r.Group("/communities")
	g.GET("", h.listMyCommunities)
	g.POST("", h.createCommunity)
	g.GET("/:uid", h.getCommunity)
	g.PATCH("/:uid", h.updateCommunity)
	g.DELETE("/:uid", h.deleteCommunity)
	g.GET("/:uid/members", h.listMembers)
	g.POST("/:uid/members", h.addMembers)
	g.DELETE("/:uid/members/:user", h.removeMember)
	g.PUT("/:uid/members/:user/role", h.setRole)
	g.POST("/:uid/join", h.joinCommunity)
	g.POST("/:uid/leave", h.leaveCommunity)

	g.POST("/:uid/members/:user/kick", h.kick)
	g.POST("/:uid/members/:user/ban", h.ban)
	g.POST("/:uid/members/:user/unban", h.unban)

	h.mountCommunityAgents(g)
}

func (h *handler) createCommunity(c *gin.Context) {
	var req createCommunityRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Communities.Create(c.Request.Context(), userID(c), community.CreateInput{
		Name:          req.Name,
		Description:   req.Description,
		CommunityType: req.CommunityType,
		IconKey:       req.IconKey,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, out)
}

func (h *handler) updateCommunity(c *gin.Context) {
	var req graph.CommunityUpdate
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Communities.Update(c.Request.Context(), userID(c), c.Param("uid"), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) getCommunity(c *gin.Context) {
	out, err := h.deps.Communities.Get(c.Request.Context(), userID(c), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) listMyCommunities(c *gin.Context) {
	out, err := h.deps.Communities.ListMine(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) listMembers(c *gin.Context) {
	out, err := h.deps.Communities.ListMembers(c.Request.Context(), userID(c), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) addMembers(c *gin.Context) {
	var req addMembersRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Communities.AddMembers(c.Request.Context(), userID(c), c.Param("uid"), req.UserUIDs)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) joinCommunity(c *gin.Context) {
	m, err := h.deps.Communities.Join(c.Request.Context(), userID(c), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}

func (h *handler) leaveCommunity(c *gin.Context) {
	if err := h.deps.Communities.Leave(c.Request.Context(), userID(c), c.Param("uid")); err != nil {
		fail(c, err)
		return
	}
	done(c, "left community")
}

func (h *handler) removeMember(c *gin.Context) {
	if err := h.deps.Communities.RemoveMember(c.Request.Context(), userID(c), c.Param("uid"), c.Param("user")); err != nil {
		fail(c, err)
		return
	}
	done(c, "member removed")
}

func (h *handler) setRole(c *gin.Context) {
	var req roleRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.deps.Communities.SetRole(c.Request.Context(), userID(c), c.Param("uid"), c.Param("user"), req.Role); err != nil {
		fail(c, err)
		return
	}
	done(c, "role updated")
}

func (h *handler) deleteCommunity(c *gin.Context) {
	if err := h.deps.Communities.Delete(c.Request.Context(), userID(c), c.Param("uid")); err != nil {
		fail(c, err)
		return
	}
	done(c, "community deleted")
}

// moderationReason reads the optional reason body; an empty body is allowed
func moderationReason(c *gin.Context) (string, bool) {
	if c.Request.ContentLength == 0 {
		return "", true
	}
	var req moderationRequest
	if !bindJSON(c, &req) {
		return "", false
	}
	return req.Reason, true
}

func (h *handler) kick(c *gin.Context) {
	reason, valid := moderationReason(c)
	if !valid {
		return
	}
	if err := h.deps.Messaging.Kick(c.Request.Context(), userID(c), c.Param("uid"), c.Param("user"), reason); err != nil {
		fail(c, err)
		return
	}
	done(c, "member kicked")
}

func (h *handler) ban(c *gin.Context) {
	reason, valid := moderationReason(c)
	if !valid {
		return
	}
	if err := h.deps.Messaging.Ban(c.Request.Context(), userID(c), c.Param("uid"), c.Param("user"), reason); err != nil {
		fail(c, err)
		return
	}
	done(c, "member banned")
}

func (h *handler) unban(c *gin.Context) {
	reason, valid := moderationReason(c)
	if !valid {
		return
	}
	if err := h.deps.Messaging.Unban(c.Request.Context(), userID(c), c.Param("uid"), c.Param("user"), reason); err != nil {
		fail(c, err)
		return
	}
	done(c, "member unbanned")
}
