package api

import (
	"strconv"

	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/marketplace"
	"circlenet/backend/internal/opportunity"

	"github.com/gin-gonic/gin"
)

type applyRequest struct {
	Note string `json:"note"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active paused"`
}

type reviewRequest struct {
	Rating  int    `json:"rating" validate:"required"`
	Comment string `json:"comment"`
}

func (h *handler) mountOpportunities(r *gin.RouterGroup) {
	g := r.Group("/opportunities")
	g.GET("", h.opportunityFeed)
	g.POST("", h.createOpportunity)
	g.GET("/mine", h.myOpportunities)
	g.GET("/:uid", h.getOpportunity)
	g.PUT("/:uid", h.updateOpportunity)
	g.POST("/:uid/close", h.closeOpportunity)
	g.DELETE("/:uid", h.deleteOpportunity)
	g.POST("/:uid/applications", h.applyToOpportunity)
	g.GET("/:uid/applications", h.listApplicants)
}

func (h *handler) mountMarketplace(r *gin.RouterGroup) {
	g := r.Group("/services")
	g.GET("", h.serviceFeed)
	g.POST("", h.createService)
	g.GET("/mine", h.myServices)
	g.GET("/:uid", h.getService)
	g.PUT("/:uid", h.updateService)
	g.PUT("/:uid/status", h.setServiceStatus)
	g.DELETE("/:uid", h.deleteService)
	g.POST("/:uid/reviews", h.reviewService)
	g.GET("/:uid/reviews", h.listReviews)
}

func (h *handler) opportunityFeed(c *gin.Context) {
	skip, valid := queryInt(c, "skip", 0)
	if !valid {
		return
	}
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}
	filter := graph.OpportunityFilter{
		JobType:         c.Query("job_type"),
		Location:        c.Query("location"),
		Skill:           c.Query("skill"),
		ExperienceLevel: c.Query("experience_level"),
		Text:            c.Query("q"),
		Skip:            skip,
		Limit:           limit,
	}
	if raw := c.Query("remote"); raw != "" {
		remote, err := strconv.ParseBool(raw)
		if err != nil {
			invalid(c, []string{"remote must be true or false"})
			return
		}
		filter.Remote = &remote
	}
	out, err := h.deps.Opportunities.Feed(c.Request.Context(), userID(c), filter)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) createOpportunity(c *gin.Context) {
	var req opportunity.Input
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Opportunities.Create(c.Request.Context(), userID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, out)
}

func (h *handler) updateOpportunity(c *gin.Context) {
	var req opportunity.Input
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Opportunities.Update(c.Request.Context(), userID(c), c.Param("uid"), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) closeOpportunity(c *gin.Context) {
	if err := h.deps.Opportunities.Close(c.Request.Context(), userID(c), c.Param("uid")); err != nil {
		fail(c, err)
		return
	}
	done(c, "opportunity closed")
}

func (h *handler) deleteOpportunity(c *gin.Context) {
	if err := h.deps.Opportunities.Delete(c.Request.Context(), userID(c), c.Param("uid")); err != nil {
		fail(c, err)
		return
	}
	done(c, "opportunity deleted")
}

func (h *handler) getOpportunity(c *gin.Context) {
	out, err := h.deps.Opportunities.Get(c.Request.Context(), userID(c), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) myOpportunities(c *gin.Context) {
	out, err := h.deps.Opportunities.ListMine(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) applyToOpportunity(c *gin.Context) {
	var req applyRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Opportunities.Apply(c.Request.Context(), userID(c), c.Param("uid"), req.Note)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, out)
}

func (h *handler) listApplicants(c *gin.Context) {
	out, err := h.deps.Opportunities.ListApplicants(c.Request.Context(), userID(c), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) serviceFeed(c *gin.Context) {
	skip, valid := queryInt(c, "skip", 0)
	if !valid {
		return
	}
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return
	}
	filter := graph.ServiceFilter{
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
		Text:     c.Query("q"),
		Skip:     skip,
		Limit:    limit,
	}
	if raw := c.Query("max_price"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			invalid(c, []string{"max_price must be a number"})
			return
		}
		filter.MaxPrice = &price
	}
	out, err := h.deps.Marketplace.Feed(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) createService(c *gin.Context) {
	var req marketplace.Input
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Marketplace.Create(c.Request.Context(), userID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, out)
}

func (h *handler) updateService(c *gin.Context) {
	var req marketplace.Input
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Marketplace.Update(c.Request.Context(), userID(c), c.Param("uid"), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) setServiceStatus(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.deps.Marketplace.SetStatus(c.Request.Context(), userID(c), c.Param("uid"), req.Status); err != nil {
		fail(c, err)
		return
	}
	done(c, "status updated")
}

func (h *handler) deleteService(c *gin.Context) {
	if err := h.deps.Marketplace.Delete(c.Request.Context(), userID(c), c.Param("uid")); err != nil {
		fail(c, err)
		return
	}
	done(c, "service deleted")
}

func (h *handler) getService(c *gin.Context) {
	out, err := h.deps.Marketplace.Get(c.Request.Context(), userID(c), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) myServices(c *gin.Context) {
	out, err := h.deps.Marketplace.ListMine(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) reviewService(c *gin.Context) {
	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.deps.Marketplace.Review(c.Request.Context(), userID(c), c.Param("uid"), req.Rating, req.Comment)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) listReviews(c *gin.Context) {
	out, err := h.deps.Marketplace.ListReviews(c.Request.Context(), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}
