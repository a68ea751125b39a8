package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/attendance"
	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// parseDate accepts RFC 3339 timestamps and plain calendar dates.
func parseDate(field, v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Invalid(field, "datetime")
}

type markRequest struct {
	StudentID string `json:"studentId" binding:"required"`
	CourseID  string `json:"courseId" binding:"required"`
	Date      string `json:"date" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=present absent late excused"`
	Remarks   string `json:"remarks" binding:"max=500"`
}

func (a *api) markAttendance(c *gin.Context) {
	var req markRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		writeError(c, err)
		return
	}
	rec, err := a.Attendance.Mark(c.Request.Context(), auth.PrincipalFrom(c), attendance.MarkInput{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		Date:      date,
		Status:    model.AttendanceStatus(req.Status),
		Remarks:   req.Remarks,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "attendance marked successfully", rec)
}

type bulkEntry struct {
	StudentID string `json:"studentId" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=present absent late excused"`
	Remarks   string `json:"remarks" binding:"max=500"`
}

type bulkRequest struct {
	CourseID string      `json:"courseId" binding:"required"`
	Date     string      `json:"date" binding:"required"`
	Records  []bulkEntry `json:"attendanceData" binding:"required,min=1,max=500,dive"`
}

type bulkResponse struct {
	Results   []attendance.BulkItem `json:"results"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
}

func (a *api) bulkMarkAttendance(c *gin.Context) {
	var req bulkRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]attendance.MarkInput, len(req.Records))
	for i, r := range req.Records {
		items[i] = attendance.MarkInput{
			StudentID: r.StudentID,
			CourseID:  req.CourseID,
			Date:      date,
			Status:    model.AttendanceStatus(r.Status),
			Remarks:   r.Remarks,
		}
	}
	out, err := a.Attendance.BulkMark(c.Request.Context(), auth.PrincipalFrom(c), req.CourseID, items)
	if err != nil {
		writeError(c, err)
		return
	}
	res := bulkResponse{Results: out}
	for _, item := range out {
		if item.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	respond(c, http.StatusOK, "bulk attendance processed", res)
}

type attendanceQuery struct {
	StudentID string `form:"studentId"`
	CourseID  string `form:"courseId"`
}

func (a *api) listAttendance(c *gin.Context) {
	var q attendanceQuery
	if err := bindQuery(c, &q); err != nil {
		writeError(c, err)
		return
	}
	items, pg, err := a.Attendance.List(c.Request.Context(), auth.PrincipalFrom(c), model.AttendanceFilter{
		StudentID: q.StudentID,
		CourseID:  q.CourseID,
		Page:      page(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "attendance records retrieved successfully", items, pg)
}

func (a *api) studentCourseAttendance(c *gin.Context) {
	rep, err := a.Attendance.StudentCourse(c.Request.Context(), auth.PrincipalFrom(c), c.Param("studentId"), c.Param("courseId"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "student attendance retrieved successfully", rep)
}

type attendancePatchRequest struct {
	Status  *string `json:"status" binding:"omitempty,oneof=present absent late excused"`
	Remarks *string `json:"remarks" binding:"omitempty,max=500"`
}

func (a *api) updateAttendance(c *gin.Context) {
	var req attendancePatchRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	patch := model.AttendancePatch{Remarks: req.Remarks}
	if req.Status != nil {
		s := model.AttendanceStatus(*req.Status)
		patch.Status = &s
	}
	rec, err := a.Attendance.Update(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "attendance updated successfully", rec)
}

func (a *api) deleteAttendance(c *gin.Context) {
	if err := a.Attendance.Delete(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "attendance deleted successfully", nil)
}
