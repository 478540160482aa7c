package api

import (
	"circlenet/backend/internal/graph"

	"github.com/gin-gonic/gin"
)

const defaultSearchLimit = 20

type skillRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type uploadRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=avatar cover"`
	ContentType string `json:"content_type" validate:"required"`
}

type vibeRequest struct {
	Vibe      string `json:"vibe" validate:"required"`
	Intensity int    `json:"intensity"`
}

func (h *handler) mountProfiles(r *gin.RouterGroup) {
	r.GET("/profile", h.getOwnProfile)
	r.PATCH("/profile", h.updateProfile)
	r.GET("/users/search", h.searchUsers)
	r.GET("/users/:uid/profile", h.getProfile)
	r.GET("/users/:uid/vibes", h.listVibes)
	r.POST("/users/:uid/vibes", h.reactWithVibe)
	r.GET("/users/:uid/education", h.listEducation)
	r.GET("/users/:uid/experience", h.listExperience)
	r.GET("/users/:uid/achievements", h.listAchievements)
	r.GET("/users/:uid/skills", h.listSkills)

	r.POST("/profile/education", h.addEducation)
	r.PUT("/profile/education/:item", h.updateEducation)
	r.POST("/profile/experience", h.addExperience)
	r.PUT("/profile/experience/:item", h.updateExperience)
	r.POST("/profile/achievements", h.addAchievement)
	r.PUT("/profile/achievements/:item", h.updateAchievement)
	r.POST("/profile/skills", h.addSkill)
	r.DELETE("/profile/:kind/:item", h.deleteProfileItem)

	r.POST("/uploads/images", h.imageUploadURL)
	r.GET("/files/*key", h.fileURL)
}

func (h *handler) getOwnProfile(c *gin.Context) {
	p, err := h.deps.Profiles.GetProfile(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func (h *handler) getProfile(c *gin.Context) {
	p, err := h.deps.Profiles.GetProfile(c.Request.Context(), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func (h *handler) updateProfile(c *gin.Context) {
	var req graph.ProfileUpdate
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.deps.Profiles.UpdateProfile(c.Request.Context(), userID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func (h *handler) searchUsers(c *gin.Context) {
	limit, valid := queryInt(c, "limit", defaultSearchLimit)
	if !valid {
		return
	}
	users, err := h.deps.Profiles.SearchUsers(c.Request.Context(), userID(c), c.Query("q"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, users)
}

func (h *handler) addEducation(c *gin.Context) {
	var e graph.Education
	if !bindJSON(c, &e) {
		return
	}
	e.UID = ""
	if err := h.deps.Profiles.AddEducation(c.Request.Context(), userID(c), &e); err != nil {
		fail(c, err)
		return
	}
	created(c, e)
}

func (h *handler) updateEducation(c *gin.Context) {
	var e graph.Education
	if !bindJSON(c, &e) {
		return
	}
	e.UID = c.Param("item")
	if err := h.deps.Profiles.UpdateEducation(c.Request.Context(), userID(c), &e); err != nil {
		fail(c, err)
		return
	}
	ok(c, e)
}

func (h *handler) addExperience(c *gin.Context) {
	var e graph.Experience
	if !bindJSON(c, &e) {
		return
	}
	e.UID = ""
	if err := h.deps.Profiles.AddExperience(c.Request.Context(), userID(c), &e); err != nil {
		fail(c, err)
		return
	}
	created(c, e)
}

func (h *handler) updateExperience(c *gin.Context) {
	var e graph.Experience
	if !bindJSON(c, &e) {
		return
	}
	e.UID = c.Param("item")
	if err := h.deps.Profiles.UpdateExperience(c.Request.Context(), userID(c), &e); err != nil {
		fail(c, err)
		return
	}
	ok(c, e)
}

func (h *handler) addAchievement(c *gin.Context) {
	var a graph.Achievement
	if !bindJSON(c, &a) {
		return
	}
	a.UID = ""
	if err := h.deps.Profiles.AddAchievement(c.Request.Context(), userID(c), &a); err != nil {
		fail(c, err)
		return
	}
	created(c, a)
}

func (h *handler) updateAchievement(c *gin.Context) {
	var a graph.Achievement
	if !bindJSON(c, &a) {
		return
	}
	a.UID = c.Param("item")
	if err := h.deps.Profiles.UpdateAchievement(c.Request.Context(), userID(c), &a); err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}

func (h *handler) addSkill(c *gin.Context) {
	var req skillRequest
	if !bindJSON(c, &req) {
		return
	}
	skill, err := h.deps.Profiles.AddSkill(c.Request.Context(), userID(c), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, skill)
}

// itemKinds maps the URL segment to the profile section
var itemKinds = map[string]graph.ProfileItemKind{
	"education":    graph.KindEducation,
	"experience":   graph.KindExperience,
	"achievements": graph.KindAchievement,
	"skills":       graph.KindSkill,
}

func (h *handler) deleteProfileItem(c *gin.Context) {
	kind, known := itemKinds[c.Param("kind")]
	if !known {
		invalid(c, []string{"kind must be one of: education experience achievements skills"})
		return
	}
	if err := h.deps.Profiles.DeleteItem(c.Request.Context(), userID(c), kind, c.Param("item")); err != nil {
		fail(c, err)
		return
	}
	done(c, string(kind)+" deleted")
}

func (h *handler) imageUploadURL(c *gin.Context) {
	var req uploadRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.deps.Profiles.ImageUploadURL(c.Request.Context(), userID(c), req.Kind, req.ContentType)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, u)
}

func (h *handler) fileURL(c *gin.Context) {
	key := c.Param("key")
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}
	u, err := h.deps.Profiles.FileURL(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, u)
}

func (h *handler) reactWithVibe(c *gin.Context) {
	var req vibeRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := h.deps.Profiles.ReactWithVibe(c.Request.Context(), userID(c), c.Param("uid"), req.Vibe, req.Intensity)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, summary)
}

func (h *handler) listVibes(c *gin.Context) {
	summary, err := h.deps.Profiles.ListVibes(c.Request.Context(), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, summary)
}

func (h *handler) listEducation(c *gin.Context) {
	out, err := h.deps.Profiles.ListEducation(c.Request.Context(), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) listExperience(c *gin.Context) {
	out, err := h.deps.Profiles.ListExperience(c.Request.Context(), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) listAchievements(c *gin.Context) {
	out, err := h.deps.Profiles.ListAchievements(c.Request.Context(), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}

func (h *handler) listSkills(c *gin.Context) {
	out, err := h.deps.Profiles.ListSkills(c.Request.Context(), c.Param("uid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, out)
}
