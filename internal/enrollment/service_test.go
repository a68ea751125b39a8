package enrollment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/enrollment"
	"github.com/phasehumans/campus-portal-api/internal/logging"
	"github.com/phasehumans/campus-portal-api/internal/model"
	"github.com/phasehumans/campus-portal-api/internal/notification"
	"github.com/phasehumans/campus-portal-api/internal/store/memory"
)

var t0 = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	sent []notification.Dispatch
}

func (r *recorder) Notify(_ context.Context, d notification.Dispatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, d)
}

func seedUser(t *testing.T, m *memory.Store, email string, role model.Role) *model.Principal {
	t.Helper()
	u, err := m.CreateUser(context.Background(), model.UserCredentials{
		User: model.User{FirstName: "F", LastName: "L", Email: email, Role: role, IsActive: true, CreatedAt: t0},
	})
	if err != nil {
		t.Fatal(err)
	}
	p := model.PrincipalFor(u, model.AuthJWT)
	return &p
}

func seedCourse(t *testing.T, m *memory.Store, code string, capacity int, instructorID string) model.Course {
	t.Helper()
	c, err := m.CreateCourse(context.Background(), model.Course{
		Code: code, Title: code, Credits: 3, InstructorID: instructorID, Department: "CS",
		Semester: model.SemesterFall, Year: 2026, Capacity: capacity, IsActive: true, CreatedAt: t0,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestEnrollAndDrop(t *testing.T) {
	t.Parallel()
	m := memory.New()
	rec := &recorder{}
	svc := enrollment.NewService(m, rec, func() time.Time { return t0 }, logging.Discard())
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	student := seedUser(t, m, "s@campus.edu", model.RoleStudent)
	c := seedCourse(t, m, "CS101", 5, prof.UserID)

	if _, err := svc.Enroll(ctx, prof, c.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("faculty enroll: %v", err)
	}
	e, err := svc.Enroll(ctx, student, c.ID)
	if err != nil || e.Status != model.EnrollmentActive || e.Semester != model.SemesterFall {
		t.Fatalf("enroll = %+v, %v", e, err)
	}
	if len(rec.sent) != 1 || rec.sent[0].RecipientIDs[0] != student.UserID || rec.sent[0].Title != "Enrolled in CS101" {
		t.Fatalf("dispatches = %+v", rec.sent)
	}
	if _, err := svc.Enroll(ctx, student, c.ID); !errors.Is(err, apperr.ErrAlreadyEnrolled) {
		t.Fatalf("second enroll: %v", err)
	}
	if _, err := svc.Enroll(ctx, student, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown course: %v", err)
	}

	dropped, err := svc.Drop(ctx, student, c.ID)
	if err != nil || dropped.Status != model.EnrollmentDropped || dropped.DroppedAt == nil {
		t.Fatalf("drop = %+v, %v", dropped, err)
	}
	if _, err := svc.Drop(ctx, student, c.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second drop: %v", err)
	}

	again, err := svc.Enroll(ctx, student, c.ID)
	if err != nil || again.ID != e.ID {
		t.Fatalf("re-enroll should reactivate %s, got %+v, %v", e.ID, again, err)
	}
	mine, pg, err := svc.ListMine(ctx, student, "", model.PageRequest{})
	if err != nil || len(mine) != 1 || pg.Total != 1 {
		t.Fatalf("list mine = %+v, %v", mine, err)
	}
}

func TestConcurrentEnrollNeverOverfills(t *testing.T) {
	t.Parallel()
	m := memory.New()
	svc := enrollment.NewService(m, nil, nil, logging.Discard())
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	c := seedCourse(t, m, "CS200", 3, prof.UserID)

	students := make([]*model.Principal, 12)
	for i := range students {
		students[i] = seedUser(t, m, "s"+string(rune('a'+i))+"@campus.edu", model.RoleStudent)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, full := 0, 0
	for _, p := range students {
		wg.Add(1)
		go func(p *model.Principal) {
			defer wg.Done()
			_, err := svc.Enroll(ctx, p, c.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrCourseFull):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(p)
	}
	wg.Wait()
	if ok != 3 || full != 9 {
		t.Fatalf("ok=%d full=%d, want 3 and 9", ok, full)
	}
	got, err := m.GetCourse(ctx, c.ID)
	if err != nil || len(got.EnrolledIDs) != 3 {
		t.Fatalf("roster = %v, %v", got.EnrolledIDs, err)
	}
}

func TestRosterAccess(t *testing.T) {
	t.Parallel()
	m := memory.New()
	svc := enrollment.NewService(m, nil, func() time.Time { return t0 }, logging.Discard())
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	otherProf := seedUser(t, m, "other@campus.edu", model.RoleFaculty)
	root := seedUser(t, m, "root@campus.edu", model.RoleAdmin)
	student := seedUser(t, m, "s@campus.edu", model.RoleStudent)
	c := seedCourse(t, m, "CS300", 5, prof.UserID)
	e, err := svc.Enroll(ctx, student, c.ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.ListForCourse(ctx, prof, c.ID, "", model.PageRequest{}); err != nil {
		t.Fatalf("instructor roster: %v", err)
	}
	if _, _, err := svc.ListForCourse(ctx, otherProf, c.ID, "", model.PageRequest{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("other faculty roster: %v", err)
	}
	if _, _, err := svc.ListForCourse(ctx, student, c.ID, "", model.PageRequest{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("student roster: %v", err)
	}
	if _, _, err := svc.ListForCourse(ctx, root, c.ID, "graduated", model.PageRequest{}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad status filter: %v", err)
	}

	bad := 120.0
	if _, err := svc.Update(ctx, root, e.ID, model.EnrollmentPatch{AttendancePercentage: &bad}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad percentage: %v", err)
	}
	if _, err := svc.Update(ctx, prof, e.ID, model.EnrollmentPatch{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("faculty update: %v", err)
	}
	done := model.EnrollmentCompleted
	if _, err := svc.Update(ctx, root, e.ID, model.EnrollmentPatch{Status: &done}); err != nil {
		t.Fatal(err)
	}
	st, err := svc.CourseStats(ctx, prof, c.ID)
	if err != nil || st.Total != 1 || st.Completed != 1 {
		t.Fatalf("stats = %+v, %v", st, err)
	}
}

func TestSyncAttendance(t *testing.T) {
	t.Parallel()
	m := memory.New()
	svc := enrollment.NewService(m, nil, func() time.Time { return t0 }, logging.Discard())
	ctx := context.Background()
	prof := seedUser(t, m, "prof@campus.edu", model.RoleFaculty)
	student := seedUser(t, m, "s@campus.edu", model.RoleStudent)
	c := seedCourse(t, m, "CS400", 5, prof.UserID)
	if _, err := svc.Enroll(ctx, student, c.ID); err != nil {
		t.Fatal(err)
	}
	for i, status := range []model.AttendanceStatus{model.AttendancePresent, model.AttendanceAbsent, model.AttendanceExcused, model.AttendanceLate} {
		day := t0.AddDate(0, 0, i)
		if _, err := m.CreateAttendance(ctx, model.Attendance{
			StudentID: student.UserID, CourseID: c.ID, Date: day, Day: day.Format(time.DateOnly), Status: status, RecordedBy: prof.UserID,
		}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := svc.SyncAttendance(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sync = %d, %v", n, err)
	}
	mine, _, err := svc.ListMine(ctx, student, model.EnrollmentActive, model.PageRequest{})
	if err != nil || len(mine) != 1 || mine[0].AttendancePercentage != 50 {
		t.Fatalf("after sync = %+v, %v", mine, err)
	}
	if n, _ := svc.SyncAttendance(ctx); n != 0 {
		t.Fatalf("second sync updated %d rows", n)
	}
}
