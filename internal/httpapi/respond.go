package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// envelope is the body of every response.
type envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Data       any               `json:"data,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
	Pagination *model.Pagination `json:"pagination,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

func respond(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, envelope{Success: true, Message: msg, Data: data, Timestamp: time.Now().UTC()})
}

func respondPage(c *gin.Context, msg string, data any, p model.Pagination) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: msg, Data: data, Pagination: &p, Timestamp: time.Now().UTC()})
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError is the single translator from domain errors to responses.
func writeError(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.KindInternal {
		logging.Service(c.Request.Context(), nil, "httpapi", c.FullPath()).Error("request failed", "error", err)
		e = apperr.ErrInternal
	}
	c.AbortWithStatusJSON(statusOf(e.Kind), envelope{
		Message:   e.Message,
		Code:      e.Code,
		Errors:    e.Fields,
		Timestamp: time.Now().UTC(),
	})
}

// page reads page and limit query parameters. Bad values fall back to defaults.
func page(c *gin.Context) model.PageRequest {
	p, _ := strconv.Atoi(c.Query("page"))
	l, _ := strconv.Atoi(c.Query("limit"))
	return model.PageRequest{Page: p, Limit: l}.Normalize()
}
