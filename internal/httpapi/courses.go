package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/course"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

type courseRequest struct {
	Code         string `json:"courseCode" binding:"required,max=20"`
	Title        string `json:"title" binding:"required,max=200"`
	Description  string `json:"description"`
	Credits      int    `json:"credits" binding:"required,min=1,max=6"`
	InstructorID string `json:"instructorId" binding:"required"`
	Department   string `json:"department" binding:"required"`
	Semester     string `json:"semester" binding:"required,oneof=Fall Spring Summer"`
	Year         int    `json:"year" binding:"required,min=2000,max=2100"`
	Capacity     int    `json:"maxStudents" binding:"required,min=1"`
}

func (a *api) createCourse(c *gin.Context) {
	var req courseRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	out, err := a.Courses.Create(c.Request.Context(), auth.PrincipalFrom(c), course.CreateInput{
		Code:         req.Code,
		Title:        req.Title,
		Description:  req.Description,
		Credits:      req.Credits,
		InstructorID: req.InstructorID,
		Department:   req.Department,
		Semester:     model.Semester(req.Semester),
		Year:         req.Year,
		Capacity:     req.Capacity,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "course created successfully", out)
}

type courseQuery struct {
	Department string `form:"department"`
	Semester   string `form:"semester" binding:"omitempty,oneof=Fall Spring Summer"`
	Instructor string `form:"instructor"`
}

func (a *api) listCourses(c *gin.Context) {
	var q courseQuery
	if err := bindQuery(c, &q); err != nil {
		writeError(c, err)
		return
	}
	items, pg, err := a.Courses.List(c.Request.Context(), auth.PrincipalFrom(c), model.CourseFilter{
		Department:   strings.TrimSpace(q.Department),
		Semester:     model.Semester(q.Semester),
		InstructorID: q.Instructor,
		Page:         page(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "courses retrieved successfully", items, pg)
}

func (a *api) getCourse(c *gin.Context) {
	out, err := a.Courses.Get(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "course retrieved successfully", out)
}

type coursePatchRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=200"`
	Description *string `json:"description"`
	Credits     *int    `json:"credits" binding:"omitempty,min=1,max=6"`
	Capacity    *int    `json:"maxStudents" binding:"omitempty,min=1"`
	IsActive    *bool   `json:"isActive"`
}

func (a *api) updateCourse(c *gin.Context) {
	var req coursePatchRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	out, err := a.Courses.Update(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), model.CoursePatch{
		Title:       req.Title,
		Description: req.Description,
		Credits:     req.Credits,
		Capacity:    req.Capacity,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "course updated successfully", out)
}

func (a *api) deleteCourse(c *gin.Context) {
	if err := a.Courses.Delete(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "course deleted successfully", nil)
}
