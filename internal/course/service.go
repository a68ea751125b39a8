package course

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/authz"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// Store persists courses.
type Store interface {
	CreateCourse(ctx context.Context, c model.Course) (model.Course, error)
	GetCourse(ctx context.Context, id string) (model.Course, error)
	ListCourses(ctx context.Context, f model.CourseFilter) ([]model.Course, int, error)
	UpdateCourse(ctx context.Context, id string, patch model.CoursePatch, at time.Time) (model.Course, error)
	DeleteCourse(ctx context.Context, id string) error
	UserByID(ctx context.Context, id string) (model.User, error)
}

// CreateInput is a validated course creation request.
type CreateInput struct {
	Code         string
	Title        string
	Description  string
	Credits      int
	InstructorID string
	Department   string
	Semester     model.Semester
	Year         int
	Capacity     int
}

// Service manages the course catalogue.
type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a course service.
func NewService(store Store, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now, logger: logger}
}

// Create adds a course. Codes are stored upper-cased and must be unique.
func (s *Service) Create(ctx context.Context, p *model.Principal, in CreateInput) (model.Course, error) {
	if _, err := authz.Check(p, authz.ActCreate, authz.On(authz.Course)); err != nil {
		return model.Course{}, err
	}
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if err := validateCreate(in); err != nil {
		return model.Course{}, err
	}
	instructor, err := s.store.UserByID(ctx, in.InstructorID)
	if err != nil {
		return model.Course{}, apperr.Invalid("instructorId", "unknown instructor")
	}
	if instructor.Role == model.RoleStudent {
		return model.Course{}, apperr.Invalid("instructorId", "instructor must be faculty or admin")
	}

	now := s.now().UTC()
	c, err := s.store.CreateCourse(ctx, model.Course{
		Code:         in.Code,
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Credits:      in.Credits,
		InstructorID: in.InstructorID,
		Department:   strings.TrimSpace(in.Department),
		Semester:     in.Semester,
		Year:         in.Year,
		Capacity:     in.Capacity,
		EnrolledIDs:  []string{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return model.Course{}, err
	}
	logging.Service(ctx, s.logger, "course", "create").Info("course created", "course_id", c.ID, "code", c.Code)
	return c, nil
}

func validateCreate(in CreateInput) error {
	fields := map[string]string{}
	if in.Code == "" {
		fields["courseCode"] = "required"
	}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "required"
	}
	if in.Credits < 1 || in.Credits > 6 {
		fields["credits"] = "must be between 1 and 6"
	}
	if in.Capacity < 1 {
		fields["maxStudents"] = "must be at least 1"
	}
	if !in.Semester.Valid() {
		fields["semester"] = "must be one of Fall Spring Summer"
	}
	if in.Year < 2000 {
		fields["year"] = "must be 2000 or later"
	}
	if in.InstructorID == "" {
		fields["instructorId"] = "required"
	}
	if strings.TrimSpace(in.Department) == "" {
		fields["department"] = "required"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

// List returns active courses.
func (s *Service) List(ctx context.Context, p *model.Principal, f model.CourseFilter) ([]model.Course, model.Pagination, error) {
	if _, err := authz.Check(p, authz.ActList, authz.On(authz.Course)); err != nil {
		return nil, model.Pagination{}, err
	}
	f.Page = f.Page.Normalize()
	items, total, err := s.store.ListCourses(ctx, f)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return items, model.PaginationFor(f.Page, total), nil
}

// Get returns one course.
func (s *Service) Get(ctx context.Context, p *model.Principal, id string) (model.Course, error) {
	if _, err := authz.Check(p, authz.ActRead, authz.On(authz.Course)); err != nil {
		return model.Course{}, err
	}
	return s.store.GetCourse(ctx, id)
}

// Update edits a course. Capacity may not drop below the current roster size.
func (s *Service) Update(ctx context.Context, p *model.Principal, id string, patch model.CoursePatch) (model.Course, error) {
	if _, err := authz.Check(p, authz.ActUpdate, authz.On(authz.Course)); err != nil {
		return model.Course{}, err
	}
	if patch.Credits != nil && (*patch.Credits < 1 || *patch.Credits > 6) {
		return model.Course{}, apperr.Invalid("credits", "must be between 1 and 6")
	}
	if patch.Capacity != nil && *patch.Capacity < 1 {
		return model.Course{}, apperr.Invalid("maxStudents", "must be at least 1")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return model.Course{}, apperr.Invalid("title", "must not be empty")
	}
	return s.store.UpdateCourse(ctx, id, patch, s.now().UTC())
}

// Delete removes a course with its enrollments.
func (s *Service) Delete(ctx context.Context, p *model.Principal, id string) error {
	if _, err := authz.Check(p, authz.ActDelete, authz.On(authz.Course)); err != nil {
		return err
	}
	if err := s.store.DeleteCourse(ctx, id); err != nil {
		return err
	}
	logging.Service(ctx, s.logger, "course", "delete").Info("course deleted", "course_id", id)
	return nil
}

// ErrCapacityBelowRoster is returned when a capacity edit would orphan enrolled students.
var ErrCapacityBelowRoster = apperr.Invalid("maxStudents", "cannot be lower than the number of enrolled students")
