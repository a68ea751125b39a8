package material

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/authz"
	"github.com/phasehumans/campus-portal-api/internal/filestore"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// Store persists course materials.
type Store interface {
	GetCourse(ctx context.Context, id string) (model.Course, error)
	CreateMaterial(ctx context.Context, m model.Material) (model.Material, error)
	GetMaterial(ctx context.Context, id string) (model.Material, error)
	ListMaterials(ctx context.Context, f model.MaterialFilter) ([]model.Material, int, error)
	UpdateMaterial(ctx context.Context, id string, patch model.MaterialPatch, at time.Time) (model.Material, error)
	DeleteMaterial(ctx context.Context, id string) error
	IncrementMaterialDownloads(ctx context.Context, id string) (model.Material, error)
}

// CreateInput is a new material. FileURL is required unless the file is uploaded.
type CreateInput struct {
	CourseID    string
	Title       string
	Description string
	Type        string
	FileName    string
	FileSize    int64
	FileURL     string
	DueDate     *time.Time
	IsDraft     bool
}

// Service manages course materials.
type Service struct {
	store    Store
	uploader filestore.Uploader
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a material service. A nil uploader disables file uploads.
func NewService(store Store, uploader filestore.Uploader, now func() time.Time, logger *slog.Logger) *Service {
	if uploader == nil {
		uploader = filestore.Disabled{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, uploader: uploader, now: now, logger: logger}
}

// Create attaches a linked material to a course taught by the caller.
func (s *Service) Create(ctx context.Context, p *model.Principal, in CreateInput) (model.Material, error) {
	if _, err := s.authorizeCreate(ctx, p, in.CourseID); err != nil {
		return model.Material{}, err
	}
	if err := validateLink(in.FileURL); err != nil {
		return model.Material{}, err
	}
	return s.create(ctx, p, in)
}

// Upload stores the file remotely and attaches it to a course taught by the caller.
func (s *Service) Upload(ctx context.Context, p *model.Principal, in CreateInput, filename string, r io.Reader) (model.Material, error) {
	if _, err := s.authorizeCreate(ctx, p, in.CourseID); err != nil {
		return model.Material{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return model.Material{}, apperr.Invalid("title", "required")
	}
	stored, err := s.uploader.Upload(ctx, filename, r)
	if errors.Is(err, filestore.ErrNotConfigured) {
		return model.Material{}, apperr.Invalid("file", "file uploads are not enabled")
	}
	if err != nil {
		logging.Service(ctx, s.logger, "material", "upload").Error("upload failed", "course_id", in.CourseID, "file_name", filename, "error", err)
		return model.Material{}, apperr.Internal(err)
	}
	in.FileURL = stored.URL
	in.FileName = filename
	if stored.Bytes > 0 {
		in.FileSize = stored.Bytes
	}
	if in.Type == "" {
		in.Type = typeFromName(filename)
	}
	return s.create(ctx, p, in)
}

func (s *Service) authorizeCreate(ctx context.Context, p *model.Principal, courseID string) (model.Course, error) {
	if _, err := authz.Check(p, authz.ActCreate, authz.On(authz.Material)); err != nil {
		return model.Course{}, err
	}
	c, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return model.Course{}, err
	}
	if _, err := authz.Check(p, authz.ActCreate, authz.Resource{Type: authz.Material, InstructorID: c.InstructorID}); err != nil {
		return model.Course{}, err
	}
	return c, nil
}

func (s *Service) create(ctx context.Context, p *model.Principal, in CreateInput) (model.Material, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "required"
	}
	if in.Type == "" {
		in.Type = "other"
	}
	if !model.ValidMaterialType(in.Type) {
		fields["type"] = "must be one of " + strings.Join(model.MaterialTypes, " ")
	}
	if in.FileSize < 0 {
		fields["fileSize"] = "must not be negative"
	}
	if len(fields) > 0 {
		return model.Material{}, apperr.Validation(fields)
	}

	now := s.now().UTC()
	m, err := s.store.CreateMaterial(ctx, model.Material{
		CourseID:    in.CourseID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Type:        in.Type,
		FileName:    in.FileName,
		FileSize:    in.FileSize,
		FileURL:     in.FileURL,
		UploaderID:  p.UserID,
		DueDate:     in.DueDate,
		IsPublished: !in.IsDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return model.Material{}, err
	}
	logging.Service(ctx, s.logger, "material", "create").Info("material created", "material_id", m.ID, "course_id", m.CourseID, "uploader_id", p.UserID)
	return m, nil
}

// List returns a course's materials, newest first. Drafts are included for the course
// instructor and admins.
func (s *Service) List(ctx context.Context, p *model.Principal, courseID, typ string, page model.PageRequest) ([]model.Material, model.Pagination, error) {
	if _, err := authz.Check(p, authz.ActList, authz.On(authz.Material)); err != nil {
		return nil, model.Pagination{}, err
	}
	c, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	f := model.MaterialFilter{
		CourseID:      c.ID,
		Type:          typ,
		IncludeDrafts: p.IsAdmin() || c.InstructorID == p.UserID,
		Page:          page.Normalize(),
	}
	items, total, err := s.store.ListMaterials(ctx, f)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return items, model.PaginationFor(f.Page, total), nil
}

// Get returns a material of a course.
func (s *Service) Get(ctx context.Context, p *model.Principal, courseID, id string) (model.Material, error) {
	return s.readable(ctx, p, courseID, id)
}

// Download returns a material and counts the access.
func (s *Service) Download(ctx context.Context, p *model.Principal, courseID, id string) (model.Material, error) {
	if _, err := s.readable(ctx, p, courseID, id); err != nil {
		return model.Material{}, err
	}
	return s.store.IncrementMaterialDownloads(ctx, id)
}

func (s *Service) readable(ctx context.Context, p *model.Principal, courseID, id string) (model.Material, error) {
	if _, err := authz.Check(p, authz.ActRead, authz.On(authz.Material)); err != nil {
		return model.Material{}, err
	}
	m, err := s.inCourse(ctx, courseID, id)
	if err != nil {
		return model.Material{}, err
	}
	if !m.IsPublished && !p.IsAdmin() && m.UploaderID != p.UserID {
		return model.Material{}, apperr.NotFound("material")
	}
	return m, nil
}

// inCourse loads a material and hides it when it belongs to another course.
func (s *Service) inCourse(ctx context.Context, courseID, id string) (model.Material, error) {
	m, err := s.store.GetMaterial(ctx, id)
	if err != nil {
		return model.Material{}, err
	}
	if m.CourseID != courseID {
		return model.Material{}, apperr.NotFound("material")
	}
	return m, nil
}

// Update edits a material. Only its uploader or an admin may do so.
func (s *Service) Update(ctx context.Context, p *model.Principal, courseID, id string, patch model.MaterialPatch) (model.Material, error) {
	m, err := s.inCourse(ctx, courseID, id)
	if err != nil {
		return model.Material{}, err
	}
	if _, err := authz.Check(p, authz.ActUpdate, authz.Owned(authz.Material, m.UploaderID)); err != nil {
		return model.Material{}, err
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return model.Material{}, apperr.Invalid("title", "must not be empty")
	}
	if patch.Type != nil && !model.ValidMaterialType(*patch.Type) {
		return model.Material{}, apperr.Invalid("type", "must be one of "+strings.Join(model.MaterialTypes, " "))
	}
	return s.store.UpdateMaterial(ctx, id, patch, s.now().UTC())
}

// Delete removes a material. Only its uploader or an admin may do so.
func (s *Service) Delete(ctx context.Context, p *model.Principal, courseID, id string) error {
	m, err := s.inCourse(ctx, courseID, id)
	if err != nil {
		return err
	}
	if _, err := authz.Check(p, authz.ActDelete, authz.Owned(authz.Material, m.UploaderID)); err != nil {
		return err
	}
	return s.store.DeleteMaterial(ctx, id)
}

func validateLink(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.Invalid("fileUrl", "must be an http or https URL")
	}
	return nil
}

func typeFromName(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	switch ext {
	case "pdf", "doc", "docx", "ppt", "pptx":
		return ext
	case "mp4", "mov", "webm", "mkv":
		return "video"
	case "png", "jpg", "jpeg", "gif", "webp":
		return "image"
	}
	return "other"
}
