package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/authz"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/metrics"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/notification"
)

// Store owns the roster, the enrollment records and the student course lists.
// Enroll, Drop and UpdateEnrollment must apply all three writes atomically, and Enroll must
// take the seat with a single conditional write so two racing students cannot both win it.
type Store interface {
	GetCourse(ctx context.Context, id string) (model.Course, error)
	Enroll(ctx context.Context, studentID, courseID string, at time.Time) (model.Enrollment, error)
	Drop(ctx context.Context, studentID, courseID string, at time.Time) (model.Enrollment, error)
	GetEnrollment(ctx context.Context, id string) (model.Enrollment, error)
	ListEnrollments(ctx context.Context, f model.EnrollmentFilter) ([]model.Enrollment, int, error)
	UpdateEnrollment(ctx context.Context, id string, patch model.EnrollmentPatch, at time.Time) (model.Enrollment, error)
	EnrollmentStats(ctx context.Context, courseID string) (model.EnrollmentStats, error)
	SyncAttendancePercentages(ctx context.Context, at time.Time) (int, error)
}

// Service mediates student enrollment.
type Service struct {
	store    Store
	notifier notification.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates an enrollment service.
func NewService(store Store, notifier notification.Notifier, now func() time.Time, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, notifier: notifier, now: now, logger: logger}
}

// Enroll places the calling student on a course roster.
func (s *Service) Enroll(ctx context.Context, p *model.Principal, courseID string) (model.Enrollment, error) {
	logger := logging.Service(ctx, s.logger, "enrollment", "enroll", "course_id", courseID)
	if _, err := authz.Check(p, authz.ActEnroll, authz.Owned(authz.Enrollment, principalID(p))); err != nil {
		return model.Enrollment{}, err
	}

	e, err := s.store.Enroll(ctx, p.UserID, courseID, s.now().UTC())
	metrics.EnrollmentAttempts.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			logger.Error("enroll failed", "student_id", p.UserID, "error", err)
		}
		return model.Enrollment{}, err
	}
	logger.Info("student enrolled", "student_id", p.UserID, "enrollment_id", e.ID)

	title := "Enrollment confirmed"
	if c, cerr := s.store.GetCourse(ctx, courseID); cerr == nil {
		title = fmt.Sprintf("Enrolled in %s", c.Code)
	}
	s.notifier.Notify(ctx, notification.Dispatch{
		RecipientIDs: []string{p.UserID},
		Title:        title,
		Message:      "You have been enrolled successfully.",
		Type:         model.NotifyEnrollment,
		Resource:     notification.Ref("course", courseID),
	})
	return e, nil
}

// Drop removes the calling student from a course.
func (s *Service) Drop(ctx context.Context, p *model.Principal, courseID string) (model.Enrollment, error) {
	if _, err := authz.Check(p, authz.ActDrop, authz.Owned(authz.Enrollment, principalID(p))); err != nil {
		return model.Enrollment{}, err
	}
	e, err := s.store.Drop(ctx, p.UserID, courseID, s.now().UTC())
	if err != nil {
		return model.Enrollment{}, err
	}
	logging.Service(ctx, s.logger, "enrollment", "drop").Info("student dropped", "student_id", p.UserID, "course_id", courseID)
	return e, nil
}

// ListMine returns the caller's enrollment history.
func (s *Service) ListMine(ctx context.Context, p *model.Principal, status model.EnrollmentStatus, page model.PageRequest) ([]model.Enrollment, model.Pagination, error) {
	if _, err := authz.Check(p, authz.ActList, authz.Owned(authz.Enrollment, principalID(p))); err != nil {
		return nil, model.Pagination{}, err
	}
	return s.list(ctx, model.EnrollmentFilter{StudentID: p.UserID, Status: status, Page: page})
}

// ListForCourse is the roster view for the course's instructor or an admin.
func (s *Service) ListForCourse(ctx context.Context, p *model.Principal, courseID string, status model.EnrollmentStatus, page model.PageRequest) ([]model.Enrollment, model.Pagination, error) {
	if err := s.checkRoster(ctx, p, courseID); err != nil {
		return nil, model.Pagination{}, err
	}
	return s.list(ctx, model.EnrollmentFilter{CourseID: courseID, Status: status, Page: page})
}

// CourseStats summarizes a course's enrollments.
func (s *Service) CourseStats(ctx context.Context, p *model.Principal, courseID string) (model.EnrollmentStats, error) {
	if err := s.checkRoster(ctx, p, courseID); err != nil {
		return model.EnrollmentStats{}, err
	}
	return s.store.EnrollmentStats(ctx, courseID)
}

// Update lets an admin change status or attendance percentage.
func (s *Service) Update(ctx context.Context, p *model.Principal, id string, patch model.EnrollmentPatch) (model.Enrollment, error) {
	if _, err := authz.Check(p, authz.ActUpdate, authz.On(authz.Enrollment)); err != nil {
		return model.Enrollment{}, err
	}
	fields := map[string]string{}
	if patch.Status != nil && !patch.Status.Valid() {
		fields["status"] = "must be one of active completed dropped suspended"
	}
	if patch.AttendancePercentage != nil && (*patch.AttendancePercentage < 0 || *patch.AttendancePercentage > 100) {
		fields["attendancePercentage"] = "must be between 0 and 100"
	}
	if len(fields) > 0 {
		return model.Enrollment{}, apperr.Validation(fields)
	}
	e, err := s.store.UpdateEnrollment(ctx, id, patch, s.now().UTC())
	if err != nil {
		return model.Enrollment{}, err
	}
	logging.Service(ctx, s.logger, "enrollment", "update").Info("enrollment updated", "enrollment_id", id, "status", e.Status)
	return e, nil
}

// SyncAttendance recomputes attendance percentages of active enrollments from attendance records.
func (s *Service) SyncAttendance(ctx context.Context) (int, error) {
	n, err := s.store.SyncAttendancePercentages(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	logging.Service(ctx, s.logger, "enrollment", "sync_attendance").Info("attendance percentages synced", "updated", n)
	return n, nil
}

func (s *Service) checkRoster(ctx context.Context, p *model.Principal, courseID string) error {
	if _, err := authz.Check(p, authz.ActList, authz.On(authz.Roster)); err != nil {
		return err
	}
	c, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	_, err = authz.Check(p, authz.ActList, authz.Resource{Type: authz.Roster, InstructorID: c.InstructorID})
	return err
}

func (s *Service) list(ctx context.Context, f model.EnrollmentFilter) ([]model.Enrollment, model.Pagination, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, model.Pagination{}, apperr.Invalid("status", "unknown status")
	}
	f.Page = f.Page.Normalize()
	items, total, err := s.store.ListEnrollments(ctx, f)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return items, model.PaginationFor(f.Page, total), nil
}

func principalID(p *model.Principal) string {
	if p == nil {
		return ""
	}
	return p.UserID
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperr.ErrCourseFull):
		return "course_full"
	case errors.Is(err, apperr.ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	}
	return "error"
}
