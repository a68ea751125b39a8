package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

type registerRequest struct {
	FirstName  string `json:"firstName" binding:"required,max=50"`
	LastName   string `json:"lastName" binding:"required,max=50"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	Role       string `json:"role" binding:"omitempty,oneof=student faculty admin"`
	Department string `json:"department" binding:"max=100"`
	Phone      string `json:"phone" binding:"max=20"`
}

func (a *api) register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	u, err := a.Auth.Register(c.Request.Context(), auth.PrincipalFrom(c), auth.RegisterInput{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Password:   req.Password,
		Role:       model.Role(req.Role),
		Department: req.Department,
		Phone:      req.Phone,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "user registered successfully", u)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (a *api) login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	res, err := a.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "login successful", res)
}

func (a *api) me(c *gin.Context) {
	u, err := a.Auth.Me(c.Request.Context(), auth.PrincipalFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "user retrieved successfully", u)
}

type profileRequest struct {
	FirstName *string `json:"firstName" binding:"omitempty,max=50"`
	LastName  *string `json:"lastName" binding:"omitempty,max=50"`
	Phone     *string `json:"phone" binding:"omitempty,max=20"`
}

func (a *api) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	u, err := a.Auth.UpdateProfile(c.Request.Context(), auth.PrincipalFrom(c), model.ProfilePatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "profile updated successfully", u)
}

type apiKeyRequest struct {
	Name        string   `json:"name" binding:"required,max=100"`
	Description string   `json:"description" binding:"max=500"`
	Permissions []string `json:"permissions" binding:"omitempty,dive,oneof=read write delete admin"`
}

type issuedKey struct {
	model.APIKey
	Key string `json:"key"`
}

func (a *api) createAPIKey(c *gin.Context) {
	var req apiKeyRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	key, raw, err := a.Auth.IssueAPIKey(c.Request.Context(), auth.PrincipalFrom(c), auth.IssueKeyInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "API key created, store it now as it will not be shown again", issuedKey{APIKey: key, Key: raw})
}

func (a *api) listAPIKeys(c *gin.Context) {
	keys, err := a.Auth.ListAPIKeys(c.Request.Context(), auth.PrincipalFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "API keys retrieved successfully", keys)
}

func (a *api) revokeAPIKey(c *gin.Context) {
	if err := a.Auth.RevokeAPIKey(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "API key revoked successfully", nil)
}
