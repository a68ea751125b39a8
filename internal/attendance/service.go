package attendance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/authz"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// Store persists attendance. CreateAttendance must reject a second record for the same
// student, course and day with ErrDuplicateAttendance at the storage layer.
type Store interface {
	GetCourse(ctx context.Context, id string) (model.Course, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	CourseIDsByInstructor(ctx context.Context, instructorID string) ([]string, error)
	CreateAttendance(ctx context.Context, a model.Attendance) (model.Attendance, error)
	GetAttendance(ctx context.Context, id string) (model.Attendance, error)
	ListAttendance(ctx context.Context, f model.AttendanceFilter) ([]model.Attendance, int, error)
	StudentCourseAttendance(ctx context.Context, studentID, courseID string) ([]model.Attendance, error)
	UpdateAttendance(ctx context.Context, id string, patch model.AttendancePatch, at time.Time) (model.Attendance, error)
	DeleteAttendance(ctx context.Context, id string) error
}

// MarkInput is one attendance mark.
type MarkInput struct {
	StudentID string
	CourseID  string
	Date      time.Time
	Status    model.AttendanceStatus
	Remarks   string
}

// BulkItem reports the outcome of one mark in a bulk request.
type BulkItem struct {
	Index      int               `json:"index"`
	StudentID  string            `json:"studentId"`
	Success    bool              `json:"success"`
	Attendance *model.Attendance `json:"attendance,omitempty"`
	Error      string            `json:"error,omitempty"`
	Code       string            `json:"code,omitempty"`
}

// StudentReport is a student's records in a course plus the summary.
type StudentReport struct {
	Records []model.Attendance      `json:"records"`
	Summary model.AttendanceSummary `json:"summary"`
}

// Service coordinates attendance marking and one-per-day deduplication.
type Service struct {
	store  Store
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a service. Calendar days are computed in loc.
func NewService(store Store, loc *time.Location, now func() time.Time, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, loc: loc, now: now, logger: logger}
}

// DayKey returns the calendar day of t in loc as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

// Mark records one attendance entry.
func (s *Service) Mark(ctx context.Context, p *model.Principal, in MarkInput) (model.Attendance, error) {
	if _, err := authz.Check(p, authz.ActCreate, authz.On(authz.Attendance)); err != nil {
		return model.Attendance{}, err
	}
	c, err := s.store.GetCourse(ctx, in.CourseID)
	if err != nil {
		return model.Attendance{}, err
	}
	return s.mark(ctx, p, c, in)
}

func (s *Service) mark(ctx context.Context, p *model.Principal, c model.Course, in MarkInput) (model.Attendance, error) {
	if _, err := authz.Check(p, authz.ActCreate, authz.Resource{Type: authz.Attendance, InstructorID: c.InstructorID}); err != nil {
		return model.Attendance{}, err
	}
	fields := map[string]string{}
	if in.StudentID == "" {
		fields["studentId"] = "required"
	}
	if in.Date.IsZero() {
		fields["date"] = "required"
	}
	if !in.Status.Valid() {
		fields["status"] = "must be one of present absent late excused"
	}
	if len(fields) > 0 {
		return model.Attendance{}, apperr.Validation(fields)
	}
	student, err := s.store.UserByID(ctx, in.StudentID)
	if err != nil || student.Role != model.RoleStudent {
		return model.Attendance{}, apperr.Invalid("studentId", "unknown student")
	}

	now := s.now().UTC()
	a, err := s.store.CreateAttendance(ctx, model.Attendance{
		StudentID:  in.StudentID,
		CourseID:   c.ID,
		Date:       in.Date.UTC(),
		Day:        DayKey(in.Date, s.loc),
		Status:     in.Status,
		Remarks:    in.Remarks,
		RecordedBy: p.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrDuplicateAttendance) {
			logging.Service(ctx, s.logger, "attendance", "mark").Error("mark attendance failed",
				"student_id", in.StudentID, "course_id", c.ID, "error", err)
		}
		return model.Attendance{}, err
	}
	return a, nil
}

// BulkMark applies each mark independently and reports per-item outcomes.
// Batch-level failures (authorization, unknown course) fail the whole call.
func (s *Service) BulkMark(ctx context.Context, p *model.Principal, courseID string, items []MarkInput) ([]BulkItem, error) {
	if _, err := authz.Check(p, authz.ActCreate, authz.On(authz.Attendance)); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.Invalid("records", "must not be empty")
	}
	c, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if _, err := authz.Check(p, authz.ActCreate, authz.Resource{Type: authz.Attendance, InstructorID: c.InstructorID}); err != nil {
		return nil, err
	}

	out := make([]BulkItem, 0, len(items))
	for i, in := range items {
		in.CourseID = c.ID
		item := BulkItem{Index: i, StudentID: in.StudentID}
		a, err := s.mark(ctx, p, c, in)
		if err != nil {
			item.Error = errMessage(err)
			item.Code = apperr.CodeOf(err)
		} else {
			item.Success = true
			item.Attendance = &a
		}
		out = append(out, item)
	}
	return out, nil
}

// List returns attendance records. Faculty only see courses they teach.
func (s *Service) List(ctx context.Context, p *model.Principal, f model.AttendanceFilter) ([]model.Attendance, model.Pagination, error) {
	scope, err := authz.Check(p, authz.ActList, authz.On(authz.Attendance))
	if err != nil {
		return nil, model.Pagination{}, err
	}
	if scope == authz.ScopeInstructed {
		ids, err := s.store.CourseIDsByInstructor(ctx, p.UserID)
		if err != nil {
			return nil, model.Pagination{}, err
		}
		f.CourseIDs = ids
	}
	f.Page = f.Page.Normalize()
	items, total, err := s.store.ListAttendance(ctx, f)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return items, model.PaginationFor(f.Page, total), nil
}

// StudentCourse returns a student's records and summary for one course.
func (s *Service) StudentCourse(ctx context.Context, p *model.Principal, studentID, courseID string) (StudentReport, error) {
	if _, err := authz.Check(p, authz.ActRead, authz.Owned(authz.Attendance, studentID)); err != nil {
		return StudentReport{}, err
	}
	c, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return StudentReport{}, err
	}
	if _, err := authz.Check(p, authz.ActRead, authz.Resource{Type: authz.Attendance, OwnerID: studentID, InstructorID: c.InstructorID}); err != nil {
		return StudentReport{}, err
	}
	records, err := s.store.StudentCourseAttendance(ctx, studentID, courseID)
	if err != nil {
		return StudentReport{}, err
	}
	return StudentReport{Records: records, Summary: model.Summarize(records)}, nil
}

// Update changes status or remarks. The date is immutable.
func (s *Service) Update(ctx context.Context, p *model.Principal, id string, patch model.AttendancePatch) (model.Attendance, error) {
	if err := s.checkRecord(ctx, p, authz.ActUpdate, id); err != nil {
		return model.Attendance{}, err
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return model.Attendance{}, apperr.Invalid("status", "must be one of present absent late excused")
	}
	return s.store.UpdateAttendance(ctx, id, patch, s.now().UTC())
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, p *model.Principal, id string) error {
	if err := s.checkRecord(ctx, p, authz.ActDelete, id); err != nil {
		return err
	}
	return s.store.DeleteAttendance(ctx, id)
}

func (s *Service) checkRecord(ctx context.Context, p *model.Principal, action authz.Action, id string) error {
	if _, err := authz.Check(p, action, authz.On(authz.Attendance)); err != nil {
		return err
	}
	a, err := s.store.GetAttendance(ctx, id)
	if err != nil {
		return err
	}
	c, err := s.store.GetCourse(ctx, a.CourseID)
	if err != nil {
		return err
	}
	_, err = authz.Check(p, action, authz.Resource{Type: authz.Attendance, InstructorID: c.InstructorID})
	return err
}

func errMessage(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind != apperr.KindInternal {
		return e.Message
	}
	return apperr.ErrInternal.Message
}
