package result

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/authz"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/notification"
)

// Store persists results. CreateResult must reject a second result for the same student,
// course, semester and year with ErrDuplicateResult. UpdateResult and PublishResults must
// only touch unpublished rows, in the same statement that checks the flag.
type Store interface {
	GetCourse(ctx context.Context, id string) (model.Course, error)
	UserByID(ctx context.Context, id string) (model.User, error)
	CourseIDsByInstructor(ctx context.Context, instructorID string) ([]string, error)
	CreateResult(ctx context.Context, r model.Result) (model.Result, error)
	GetResult(ctx context.Context, id string) (model.Result, error)
	ListResults(ctx context.Context, f model.ResultFilter) ([]model.Result, int, error)
	UpdateResult(ctx context.Context, id string, patch model.ResultPatch, at time.Time) (model.Result, error)
	PublishResults(ctx context.Context, ids []string, by string, at time.Time) ([]model.Result, error)
	DeleteResult(ctx context.Context, id string) error
}

// Grade maps marks to a letter using fixed cut points.
func Grade(marks float64) string {
	switch {
	case marks >= 90:
		return "A"
	case marks >= 80:
		return "B"
	case marks >= 70:
		return "C"
	case marks >= 60:
		return "D"
	}
	return "F"
}

// CreateInput is a new result. Semester and year default to the course's term.
type CreateInput struct {
	StudentID string
	CourseID  string
	Semester  model.Semester
	Year      int
	Marks     float64
	Remarks   string
}

// PublishOutcome lists the results that became visible and the ids that were skipped
// because they were unknown or already published.
type PublishOutcome struct {
	Published []model.Result `json:"published"`
	Skipped   []string       `json:"skipped"`
}

// Service controls the result lifecycle.
type Service struct {
	store    Store
	notifier notification.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a result service.
func NewService(store Store, notifier notification.Notifier, now func() time.Time, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, notifier: notifier, now: now, logger: logger}
}

func validMarks(m float64) bool {
	return !math.IsNaN(m) && m >= 0 && m <= 100
}

// Create records a draft result.
func (s *Service) Create(ctx context.Context, p *model.Principal, in CreateInput) (model.Result, error) {
	if _, err := authz.Check(p, authz.ActCreate, authz.On(authz.Result)); err != nil {
		return model.Result{}, err
	}
	if !validMarks(in.Marks) {
		return model.Result{}, apperr.Invalid("marks", "must be between 0 and 100")
	}
	c, err := s.store.GetCourse(ctx, in.CourseID)
	if err != nil {
		return model.Result{}, err
	}
	student, err := s.store.UserByID(ctx, in.StudentID)
	if err != nil || student.Role != model.RoleStudent {
		return model.Result{}, apperr.Invalid("studentId", "unknown student")
	}
	if in.Semester == "" {
		in.Semester = c.Semester
	}
	if in.Year == 0 {
		in.Year = c.Year
	}
	if !in.Semester.Valid() {
		return model.Result{}, apperr.Invalid("semester", "must be one of Fall Spring Summer")
	}

	now := s.now().UTC()
	r, err := s.store.CreateResult(ctx, model.Result{
		StudentID: in.StudentID,
		CourseID:  c.ID,
		Semester:  in.Semester,
		Year:      in.Year,
		Marks:     in.Marks,
		Grade:     Grade(in.Marks),
		Remarks:   strings.TrimSpace(in.Remarks),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return model.Result{}, err
	}
	logging.Service(ctx, s.logger, "result", "create").Info("result created", "result_id", r.ID, "student_id", r.StudentID, "course_id", r.CourseID)
	return r, nil
}

// Update edits marks or remarks of an unpublished result. Grade follows marks.
func (s *Service) Update(ctx context.Context, p *model.Principal, id string, marks *float64, remarks *string) (model.Result, error) {
	if _, err := authz.Check(p, authz.ActUpdate, authz.On(authz.Result)); err != nil {
		return model.Result{}, err
	}
	patch := model.ResultPatch{Remarks: remarks}
	if marks != nil {
		if !validMarks(*marks) {
			return model.Result{}, apperr.Invalid("marks", "must be between 0 and 100")
		}
		patch.Marks = marks
		patch.Grade = Grade(*marks)
	}
	return s.store.UpdateResult(ctx, id, patch, s.now().UTC())
}

// Publish makes results visible to their students. Already published or unknown ids are
// skipped. Each affected student is notified on a best-effort basis.
func (s *Service) Publish(ctx context.Context, p *model.Principal, ids []string) (PublishOutcome, error) {
	if _, err := authz.Check(p, authz.ActPublish, authz.On(authz.Result)); err != nil {
		return PublishOutcome{}, err
	}
	ids = uniq(ids)
	if len(ids) == 0 {
		return PublishOutcome{}, apperr.Invalid("resultIds", "must not be empty")
	}
	published, err := s.store.PublishResults(ctx, ids, p.UserID, s.now().UTC())
	if err != nil {
		return PublishOutcome{}, err
	}

	done := make(map[string]bool, len(published))
	for _, r := range published {
		done[r.ID] = true
	}
	out := PublishOutcome{Published: published, Skipped: []string{}}
	for _, id := range ids {
		if !done[id] {
			out.Skipped = append(out.Skipped, id)
		}
	}
	logging.Service(ctx, s.logger, "result", "publish").Info("results published",
		"published", len(out.Published), "skipped", len(out.Skipped))

	for _, r := range published {
		title := "Result published"
		if c, err := s.store.GetCourse(ctx, r.CourseID); err == nil {
			title = fmt.Sprintf("Result published for %s", c.Code)
		}
		s.notifier.Notify(ctx, notification.Dispatch{
			RecipientIDs: []string{r.StudentID},
			Title:        title,
			Message:      fmt.Sprintf("Your %s %d result is now available.", r.Semester, r.Year),
			Type:         model.NotifyResult,
			Resource:     notification.Ref("result", r.ID),
		})
	}
	return out, nil
}

// ListInput narrows a result listing.
type ListInput struct {
	StudentID string
	CourseID  string
	Page      model.PageRequest
}

// List returns results visible to the caller: students see their own published results,
// faculty see results of courses they teach, admins see everything.
func (s *Service) List(ctx context.Context, p *model.Principal, in ListInput) ([]model.Result, model.Pagination, error) {
	res := authz.Resource{Type: authz.Result, OwnerID: in.StudentID}
	scope, err := authz.Check(p, authz.ActList, res)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	f := model.ResultFilter{StudentID: in.StudentID, CourseID: in.CourseID, Page: in.Page.Normalize()}
	if err := s.narrow(ctx, p, scope, &f); err != nil {
		return nil, model.Pagination{}, err
	}
	items, total, err := s.store.ListResults(ctx, f)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return items, model.PaginationFor(f.Page, total), nil
}

// StudentResults returns one student's results under the same visibility rules as List.
func (s *Service) StudentResults(ctx context.Context, p *model.Principal, studentID string, page model.PageRequest) ([]model.Result, model.Pagination, error) {
	if studentID == "" {
		return nil, model.Pagination{}, apperr.Invalid("studentId", "required")
	}
	return s.List(ctx, p, ListInput{StudentID: studentID, Page: page})
}

// Get returns one result if the caller may see it.
func (s *Service) Get(ctx context.Context, p *model.Principal, id string) (model.Result, error) {
	r, err := s.store.GetResult(ctx, id)
	if err != nil {
		return model.Result{}, err
	}
	c, err := s.store.GetCourse(ctx, r.CourseID)
	if err != nil {
		return model.Result{}, err
	}
	scope, err := authz.Check(p, authz.ActRead, authz.Resource{Type: authz.Result, OwnerID: r.StudentID, InstructorID: c.InstructorID})
	if err != nil {
		return model.Result{}, err
	}
	if scope == authz.ScopeSelf && !r.IsPublished {
		return model.Result{}, apperr.NotFound("result")
	}
	return r, nil
}

// Delete removes a result.
func (s *Service) Delete(ctx context.Context, p *model.Principal, id string) error {
	if _, err := authz.Check(p, authz.ActDelete, authz.On(authz.Result)); err != nil {
		return err
	}
	return s.store.DeleteResult(ctx, id)
}

func (s *Service) narrow(ctx context.Context, p *model.Principal, scope authz.Scope, f *model.ResultFilter) error {
	switch scope {
	case authz.ScopeSelf:
		f.StudentID = p.UserID
		f.PublishedOnly = true
	case authz.ScopeInstructed:
		ids, err := s.store.CourseIDsByInstructor(ctx, p.UserID)
		if err != nil {
			return err
		}
		f.CourseIDs = ids
	case authz.ScopeAll:
	default:
		return errors.New("result: unexpected scope")
	}
	return nil
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
