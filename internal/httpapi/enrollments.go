package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

func (a *api) enroll(c *gin.Context) {
	e, err := a.Enrollments.Enroll(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "enrolled successfully", e)
}

func (a *api) drop(c *gin.Context) {
	e, err := a.Enrollments.Drop(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "course dropped successfully", e)
}

type enrollmentQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=active completed dropped suspended"`
}

func (a *api) myEnrollments(c *gin.Context) {
	var q enrollmentQuery
	if err := bindQuery(c, &q); err != nil {
		writeError(c, err)
		return
	}
	items, pg, err := a.Enrollments.ListMine(c.Request.Context(), auth.PrincipalFrom(c), model.EnrollmentStatus(q.Status), page(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "enrollments retrieved successfully", items, pg)
}

func (a *api) courseEnrollments(c *gin.Context) {
	var q enrollmentQuery
	if err := bindQuery(c, &q); err != nil {
		writeError(c, err)
		return
	}
	items, pg, err := a.Enrollments.ListForCourse(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), model.EnrollmentStatus(q.Status), page(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "course enrollments retrieved successfully", items, pg)
}

func (a *api) enrollmentStats(c *gin.Context) {
	st, err := a.Enrollments.CourseStats(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "enrollment statistics retrieved successfully", st)
}

type enrollmentPatchRequest struct {
	Status               *string  `json:"status" binding:"omitempty,oneof=active completed dropped suspended"`
	AttendancePercentage *float64 `json:"attendancePercentage" binding:"omitempty,min=0,max=100"`
}

func (a *api) updateEnrollment(c *gin.Context) {
	var req enrollmentPatchRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	patch := model.EnrollmentPatch{AttendancePercentage: req.AttendancePercentage}
	if req.Status != nil {
		s := model.EnrollmentStatus(*req.Status)
		patch.Status = &s
	}
	e, err := a.Enrollments.Update(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "enrollment updated successfully", e)
}
