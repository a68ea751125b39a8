package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/result"
)

type resultRequest struct {
	StudentID string   `json:"studentId" binding:"required"`
	CourseID  string   `json:"courseId" binding:"required"`
	Semester  string   `json:"semester" binding:"omitempty,oneof=Fall Spring Summer"`
	Year      int      `json:"year" binding:"omitempty,min=2000,max=2100"`
	Marks     *float64 `json:"marks" binding:"required,min=0,max=100"`
	Remarks   string   `json:"remarks" binding:"max=500"`
}

func (a *api) createResult(c *gin.Context) {
	var req resultRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	r, err := a.Results.Create(c.Request.Context(), auth.PrincipalFrom(c), result.CreateInput{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Semester:  model.Semester(req.Semester),
		Year:      req.Year,
		Marks:     *req.Marks,
		Remarks:   req.Remarks,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "result created successfully", r)
}

type resultPatchRequest struct {
	Marks   *float64 `json:"marks" binding:"omitempty,min=0,max=100"`
	Remarks *string  `json:"remarks" binding:"omitempty,max=500"`
}

func (a *api) updateResult(c *gin.Context) {
	var req resultPatchRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	r, err := a.Results.Update(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), req.Marks, req.Remarks)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "result updated successfully", r)
}

type publishRequest struct {
	ResultIDs []string `json:"resultIds" binding:"required,min=1,max=500"`
}

func (a *api) publishResults(c *gin.Context) {
	var req publishRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	out, err := a.Results.Publish(c.Request.Context(), auth.PrincipalFrom(c), req.ResultIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "results published successfully", out)
}

type resultQuery struct {
	StudentID string `form:"studentId"`
	CourseID  string `form:"courseId"`
}

func (a *api) listResults(c *gin.Context) {
	var q resultQuery
	if err := bindQuery(c, &q); err != nil {
		writeError(c, err)
		return
	}
	items, pg, err := a.Results.List(c.Request.Context(), auth.PrincipalFrom(c), result.ListInput{
		StudentID: q.StudentID,
		CourseID:  q.CourseID,
		Page:      page(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "results retrieved successfully", items, pg)
}

func (a *api) studentResults(c *gin.Context) {
	items, pg, err := a.Results.StudentResults(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), page(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "student results retrieved successfully", items, pg)
}

func (a *api) getResult(c *gin.Context) {
	r, err := a.Results.Get(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "result retrieved successfully", r)
}

func (a *api) deleteResult(c *gin.Context) {
	if err := a.Results.Delete(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "result deleted successfully", nil)
}
