package material_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/filestore"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/material"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/store/memory"
)

type stubUploader struct {
	got  string
	body string
	err  error
}

func (u *stubUploader) Upload(_ context.Context, filename string, r io.Reader) (filestore.Stored, error) {
	if u.err != nil {
		return filestore.Stored{}, u.err
	}
	b, _ := io.ReadAll(r)
	u.got, u.body = filename, string(b)
	return filestore.Stored{URL: "https://cdn.example.com/" + filename, PublicID: "materials/" + filename, Bytes: int64(len(b))}, nil
}

func seedUser(t *testing.T, m *memory.Store, email string, role model.Role) *model.Principal {
	t.Helper()
	u, err := m.CreateUser(context.Background(), model.UserCredentials{
		User: model.User{FirstName: "F", LastName: "L", Email: email, Role: role, IsActive: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	p := model.PrincipalFor(u, model.AuthJWT)
	return &p
}

func seedCourse(t *testing.T, m *memory.Store, code, instructorID string) model.Course {
	t.Helper()
	c, err := m.CreateCourse(context.Background(), model.Course{
		Code: code, Title: code, Credits: 3, InstructorID: instructorID, Department: "CS",
		Semester: model.SemesterFall, Year: 2026, Capacity: 10, IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCreateLinkedMaterial(t *testing.T) {
	t.Parallel()
	m := memory.New()
	svc := material.NewService(m, nil, nil, logging.Discard())
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	other := seedUser(t, m, "other@campus.edu", model.RoleFaculty)
	student := seedUser(t, m, "s@campus.edu", model.RoleStudent)
	c := seedCourse(t, m, "CS101", prof.UserID)

	got, err := svc.Create(ctx, prof, material.CreateInput{CourseID: c.ID, Title: " Syllabus ", Type: "link", FileURL: "https://example.com/syllabus"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Syllabus" || !got.IsPublished || got.UploaderID != prof.UserID {
		t.Fatalf("material = %+v", got)
	}

	for _, raw := range []string{"", "ftp://example.com/x", "javascript:alert(1)", "https://"} {
		if _, err := svc.Create(ctx, prof, material.CreateInput{CourseID: c.ID, Title: "x", FileURL: raw}); apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("url %q: err = %v, want validation", raw, err)
		}
	}
	if _, err := svc.Create(ctx, prof, material.CreateInput{CourseID: c.ID, Title: "x", Type: "binary", FileURL: "https://example.com"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad type: %v", err)
	}
	if _, err := svc.Create(ctx, other, material.CreateInput{CourseID: c.ID, Title: "x", FileURL: "https://example.com"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("other faculty: %v", err)
	}
	if _, err := svc.Create(ctx, student, material.CreateInput{CourseID: c.ID, Title: "x", FileURL: "https://example.com"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("student: %v", err)
	}
}

func TestUpload(t *testing.T) {
	t.Parallel()
	m := memory.New()
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	c := seedCourse(t, m, "CS101", prof.UserID)

	t.Run("disabled", func(t *testing.T) {
		svc := material.NewService(m, filestore.Disabled{}, nil, logging.Discard())
		_, err := svc.Upload(ctx, prof, material.CreateInput{CourseID: c.ID, Title: "Notes"}, "notes.pdf", strings.NewReader("%PDF"))
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("err = %v, want validation", err)
		}
	})

	t.Run("stored", func(t *testing.T) {
		up := &stubUploader{}
		svc := material.NewService(m, up, nil, logging.Discard())
		tests := []struct {
			file string
			want string
		}{
			{"Week1.PDF", "pdf"},
			{"lecture.mp4", "video"},
			{"diagram.png", "image"},
			{"slides.pptx", "pptx"},
			{"data.csv", "other"},
		}
		for _, tt := range tests {
			got, err := svc.Upload(ctx, prof, material.CreateInput{CourseID: c.ID, Title: tt.file}, tt.file, strings.NewReader("content"))
			if err != nil {
				t.Fatalf("%s: %v", tt.file, err)
			}
			if got.Type != tt.want || got.FileName != tt.file || got.FileSize != 7 || got.FileURL != "https://cdn.example.com/"+tt.file {
				t.Errorf("%s: material = %+v", tt.file, got)
			}
		}
		if up.body != "content" {
			t.Fatalf("uploaded body = %q", up.body)
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		svc := material.NewService(m, &stubUploader{err: errors.New("boom")}, nil, logging.Discard())
		_, err := svc.Upload(ctx, prof, material.CreateInput{CourseID: c.ID, Title: "Notes"}, "notes.pdf", strings.NewReader("x"))
		if apperr.KindOf(err) != apperr.KindInternal {
			t.Fatalf("err = %v, want internal", err)
		}
	})
}

func TestReadAndDownload(t *testing.T) {
	t.Parallel()
	m := memory.New()
	svc := material.NewService(m, nil, nil, logging.Discard())
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	student := seedUser(t, m, "s@campus.edu", model.RoleStudent)
	c := seedCourse(t, m, "CS101", prof.UserID)
	other := seedCourse(t, m, "CS102", prof.UserID)

	pub, err := svc.Create(ctx, prof, material.CreateInput{CourseID: c.ID, Title: "Slides", Type: "ppt", FileURL: "https://example.com/s.ppt"})
	if err != nil {
		t.Fatal(err)
	}
	draft, err := svc.Create(ctx, prof, material.CreateInput{CourseID: c.ID, Title: "Exam key", FileURL: "https://example.com/k", IsDraft: true})
	if err != nil {
		t.Fatal(err)
	}

	if got, err := svc.Get(ctx, student, c.ID, pub.ID); err != nil || got.DownloadCount != 0 {
		t.Fatalf("get = %+v, %v", got, err)
	}
	for want := 1; want <= 2; want++ {
		got, err := svc.Download(ctx, student, c.ID, pub.ID)
		if err != nil || got.DownloadCount != want {
			t.Fatalf("download %d = %+v, %v", want, got, err)
		}
	}
	if got, _ := svc.Get(ctx, student, c.ID, pub.ID); got.DownloadCount != 2 {
		t.Fatalf("get after downloads = %d", got.DownloadCount)
	}

	if _, err := svc.Get(ctx, student, other.ID, pub.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("wrong course: %v", err)
	}
	if _, err := svc.Download(ctx, student, c.ID, draft.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("draft download by student: %v", err)
	}

	items, _, err := svc.List(ctx, student, c.ID, "", model.PageRequest{})
	if err != nil || len(items) != 1 {
		t.Fatalf("student list = %d, %v", len(items), err)
	}
	items, _, err = svc.List(ctx, prof, c.ID, "", model.PageRequest{})
	if err != nil || len(items) != 2 {
		t.Fatalf("instructor list = %d, %v", len(items), err)
	}
	items, _, _ = svc.List(ctx, prof, c.ID, "ppt", model.PageRequest{})
	if len(items) != 1 || items[0].ID != pub.ID {
		t.Fatalf("type filter = %+v", items)
	}
}

func TestUpdateAndDeleteOwnership(t *testing.T) {
	t.Parallel()
	m := memory.New()
	svc := material.NewService(m, nil, nil, logging.Discard())
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	other := seedUser(t, m, "other@campus.edu", model.RoleFaculty)
	admin := seedUser(t, m, "admin@campus.edu", model.RoleAdmin)
	c := seedCourse(t, m, "CS101", prof.UserID)

	mat, err := svc.Create(ctx, prof, material.CreateInput{CourseID: c.ID, Title: "Slides", FileURL: "https://example.com/s"})
	if err != nil {
		t.Fatal(err)
	}
	title := "Slides v2"
	if _, err := svc.Update(ctx, other, c.ID, mat.ID, model.MaterialPatch{Title: &title}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("other faculty update: %v", err)
	}
	got, err := svc.Update(ctx, prof, c.ID, mat.ID, model.MaterialPatch{Title: &title})
	if err != nil || got.Title != title {
		t.Fatalf("update = %+v, %v", got, err)
	}
	empty := " "
	if _, err := svc.Update(ctx, prof, c.ID, mat.ID, model.MaterialPatch{Title: &empty}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("empty title: %v", err)
	}
	if err := svc.Delete(ctx, other, c.ID, mat.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("other faculty delete: %v", err)
	}
	if err := svc.Delete(ctx, admin, c.ID, mat.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, prof, c.ID, mat.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}
