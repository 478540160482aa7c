package api

import (
	"github.com/gin-gonic/gin"
)

type directRoomRequest struct {
	PeerUID string `json:"peer_uid" validate:"required"`
}

type sendMessageRequest struct {
	Body    string `json:"body" validate:"required"`
	ReplyTo string `json:"reply_to"`
}

type reactRequest struct {
	Key string `json:"key" validate:"required,max=64"`
}

func (h *handler) mountMessaging(r *gin.RouterGroup) {
	g := r.Group("/conversations")
	g.GET("", h.listConversations)
	g.POST("/direct", h.directRoom)
	g.GET("/:room/messages", h.fetchMessages)
	g.POST("/:room/messages", h.sendMessage)
	g.POST("/:room/messages/:event/reactions", h.react)
}

func (h *handler) directRoom(c *gin.Context) {
	var req directRoomRequest
	if !bindJSON(c, &req) {
		return
	}
	conv, err := h.deps.Messaging.GetOrCreateDirectRoom(c.Request.Context(), userID(c), req.PeerUID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conv)
}

func (h *handler) listConversations(c *gin.Context) {
	convs, err := h.deps.Messaging.ListConversations(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, convs)
}

func (h *handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.deps.Messaging.SendMessage(c.Request.Context(), userID(c), c.Param("room"), req.Body, req.ReplyTo)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, msg)
}

func (h *handler) fetchMessages(c *gin.Context) {
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}
	page, err := h.deps.Messaging.FetchMessages(c.Request.Context(), userID(c), c.Param("room"), c.Query("from"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, page)
}

func (h *handler) react(c *gin.Context) {
	var req reactRequest
	if !bindJSON(c, &req) {
		return
	}
	reaction, err := h.deps.Messaging.React(c.Request.Context(), userID(c), c.Param("room"), c.Param("event"), req.Key)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, reaction)
}
