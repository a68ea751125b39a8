package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/announcement"
	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/event"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

func toRoles(in []string) []model.Role {
	if in == nil {
		return nil
	}
	out := make([]model.Role, len(in))
	for i, r := range in {
		out[i] = model.Role(r)
	}
	return out
}

type announcementRequest struct {
	Title       string   `json:"title" binding:"required,max=200"`
	Content     string   `json:"content" binding:"required"`
	Category    string   `json:"category" binding:"omitempty,oneof=academic event maintenance general urgent"`
	TargetRoles []string `json:"targetRoles" binding:"omitempty,dive,oneof=student faculty admin"`
	IsPinned    bool     `json:"isPinned"`
}

func (a *api) createAnnouncement(c *gin.Context) {
	var req announcementRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	out, err := a.Announcements.Create(c.Request.Context(), auth.PrincipalFrom(c), announcement.CreateInput{
		Title:       req.Title,
		Content:     req.Content,
		Category:    req.Category,
		TargetRoles: toRoles(req.TargetRoles),
		IsPinned:    req.IsPinned,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "announcement created successfully", out)
}

func (a *api) listAnnouncements(c *gin.Context) {
	items, pg, err := a.Announcements.List(c.Request.Context(), auth.PrincipalFrom(c), c.Query("category"), page(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "announcements retrieved successfully", items, pg)
}

func (a *api) getAnnouncement(c *gin.Context) {
	out, err := a.Announcements.Get(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "announcement retrieved successfully", out)
}

type announcementPatchRequest struct {
	Title       *string  `json:"title" binding:"omitempty,max=200"`
	Content     *string  `json:"content"`
	Category    *string  `json:"category" binding:"omitempty,oneof=academic event maintenance general urgent"`
	TargetRoles []string `json:"targetRoles" binding:"omitempty,dive,oneof=student faculty admin"`
	IsPinned    *bool    `json:"isPinned"`
}

func (a *api) updateAnnouncement(c *gin.Context) {
	var req announcementPatchRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	out, err := a.Announcements.Update(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), model.AnnouncementPatch{
		Title:       req.Title,
		Content:     req.Content,
		Category:    req.Category,
		TargetRoles: toRoles(req.TargetRoles),
		IsPinned:    req.IsPinned,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "announcement updated successfully", out)
}

func (a *api) deleteAnnouncement(c *gin.Context) {
	if err := a.Announcements.Delete(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "announcement deleted successfully", nil)
}

type eventRequest struct {
	Title       string   `json:"title" binding:"required,max=200"`
	Description string   `json:"description"`
	StartDate   string   `json:"startDate" binding:"required"`
	EndDate     string   `json:"endDate" binding:"required"`
	Location    string   `json:"location" binding:"max=200"`
	Category    string   `json:"category" binding:"omitempty,oneof=academic cultural sports technical social other"`
	Capacity    int      `json:"capacity" binding:"required,min=1"`
	VisibleTo   []string `json:"visibleTo" binding:"omitempty,dive,oneof=student faculty admin"`
}

func (a *api) createEvent(c *gin.Context) {
	var req eventRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		writeError(c, err)
		return
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := a.Events.Create(c.Request.Context(), auth.PrincipalFrom(c), event.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   start,
		EndDate:     end,
		Location:    req.Location,
		Category:    req.Category,
		Capacity:    req.Capacity,
		VisibleTo:   toRoles(req.VisibleTo),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "event created successfully", out)
}

func (a *api) listEvents(c *gin.Context) {
	items, pg, err := a.Events.List(c.Request.Context(), auth.PrincipalFrom(c), c.Query("category"), page(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "events retrieved successfully", items, pg)
}

func (a *api) getEvent(c *gin.Context) {
	out, err := a.Events.Get(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "event retrieved successfully", out)
}

type eventPatchRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=200"`
	Description *string `json:"description"`
	Location    *string `json:"location" binding:"omitempty,max=200"`
	Capacity    *int    `json:"capacity" binding:"omitempty,min=1"`
	IsPublished *bool   `json:"isPublished"`
}

func (a *api) updateEvent(c *gin.Context) {
	var req eventPatchRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	out, err := a.Events.Update(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), model.EventPatch{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Capacity:    req.Capacity,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "event updated successfully", out)
}

func (a *api) deleteEvent(c *gin.Context) {
	if err := a.Events.Delete(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "event deleted successfully", nil)
}

func (a *api) registerForEvent(c *gin.Context) {
	out, err := a.Events.Register(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "registered for event successfully", out)
}

func (a *api) unregisterFromEvent(c *gin.Context) {
	out, err := a.Events.Unregister(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "unregistered from event successfully", out)
}
