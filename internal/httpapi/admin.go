package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

type userQuery struct {
	Role   string `form:"role" binding:"omitempty,oneof=student faculty admin"`
	Active *bool  `form:"isActive"`
}

func (a *api) listUsers(c *gin.Context) {
	var q userQuery
	if err := bindQuery(c, &q); err != nil {
		writeError(c, err)
		return
	}
	items, pg, err := a.Admin.ListUsers(c.Request.Context(), auth.PrincipalFrom(c), model.UserFilter{
		Role:   model.Role(q.Role),
		Active: q.Active,
		Page:   page(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "users retrieved successfully", items, pg)
}

func (a *api) getUser(c *gin.Context) {
	u, err := a.Admin.GetUser(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "user retrieved successfully", u)
}

type roleRequest struct {
	Role string `json:"role" binding:"required,oneof=student faculty admin"`
}

func (a *api) changeRole(c *gin.Context) {
	var req roleRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	u, err := a.Admin.ChangeRole(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), model.Role(req.Role))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "user role updated successfully", u)
}

func (a *api) activateUser(c *gin.Context) {
	u, err := a.Admin.Activate(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "user activated successfully", u)
}

func (a *api) deactivateUser(c *gin.Context) {
	u, err := a.Admin.Deactivate(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "user deactivated successfully", u)
}

func (a *api) adminStats(c *gin.Context) {
	st, err := a.Admin.Stats(c.Request.Context(), auth.PrincipalFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "statistics retrieved successfully", st)
}
