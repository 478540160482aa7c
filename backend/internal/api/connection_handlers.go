package api

import (
	"circlenet/backend/internal/connection"

	"github.com/gin-gonic/gin"
)

type connectionRequest struct {
	ReceiverUID string `json:"receiver_uid" validate:"required"`
	Circle      string `json:"circle" validate:"required"`
	Relation    string `json:"relation"`
	SubRelation string `json:"sub_relation"`
}

type circleRequest struct {
	Circle      string `json:"circle" validate:"required"`
	Relation    string `json:"relation"`
	SubRelation string `json:"sub_relation"`
}

func (h *handler) mountConnections(r *gin.RouterGroup) {
	g := r.Group("/connections")
	g.GET("", h.listConnections)
	g.POST("", h.sendConnectionRequest)
	g.GET("/pending", h.listPending)
	g.GET("/stats", h.connectionStats)
	g.GET("/recommendations", h.recommendations)
	g.GET("/mutual/:uid", h.mutualConnections)
	g.POST("/:uid/accept", h.acceptConnection)
	g.POST("/:uid/reject", h.rejectConnection)
	g.POST("/:uid/cancel", h.cancelConnection)
	g.PUT("/:uid/circle", h.updateCircle)
	g.DELETE("/:uid", h.removeConnection)
}

func (h *handler) sendConnectionRequest(c *gin.Context) {
	var req connectionRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.deps.Connections.SendRequest(c.Request.Context(), userID(c), connection.RequestInput{
		ReceiverUID: req.ReceiverUID,
		Circle:      req.Circle,
		Relation:    req.Relation,
		SubRelation: req.SubRelation,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, view)
}

func (h *handler) acceptConnection(c *gin.Context) {
	view, err := h.deps.Connections.Accept(c.Request.Context(), userID(c), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, view)
}

func (h *handler) rejectConnection(c *gin.Context) {
	view, err := h.deps.Connections.Reject(c.Request.Context(), userID(c), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, view)
}

func (h *handler) cancelConnection(c *gin.Context) {
	if err := h.deps.Connections.Cancel(c.Request.Context(), userID(c), c.Param("uid")); err != nil {
		fail(c, err)
		return
	}
	done(c, "connection request cancelled")
}

func (h *handler) removeConnection(c *gin.Context) {
	if err := h.deps.Connections.Remove(c.Request.Context(), userID(c), c.Param("uid")); err != nil {
		fail(c, err)
		return
	}
	done(c, "connection removed")
}

func (h *handler) updateCircle(c *gin.Context) {
	var req circleRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.deps.Connections.UpdateCircle(c.Request.Context(), userID(c), c.Param("uid"), req.Circle, req.Relation, req.SubRelation)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, view)
}

func (h *handler) listConnections(c *gin.Context) {
	skip, valid := queryInt(c, "skip", 0)
	if !valid {
		return
	}
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}
	views, err := h.deps.Connections.ListConnections(c.Request.Context(), userID(c), connection.ListFilter{
		Status: c.Query("status"),
		Circle: c.Query("circle"),
		Skip:   skip,
		Limit:  limit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, views)
}

func (h *handler) listPending(c *gin.Context) {
	views, err := h.deps.Connections.ListPending(c.Request.Context(), userID(c), c.DefaultQuery("direction", connection.DirectionIncoming))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, views)
}

func (h *handler) mutualConnections(c *gin.Context) {
	users, err := h.deps.Connections.MutualConnections(c.Request.Context(), userID(c), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, users)
}

func (h *handler) recommendations(c *gin.Context) {
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}
	recs, err := h.deps.Connections.Recommendations(c.Request.Context(), userID(c), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, recs)
}

func (h *handler) connectionStats(c *gin.Context) {
	stats, err := h.deps.Connections.Stats(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, stats)
}
