package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

var t0 = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, s *Store, email string, role model.Role) model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), model.UserCredentials{
		User:         model.User{FirstName: "A", LastName: "B", Email: email, Role: role, Department: "CS", IsActive: true, CreatedAt: t0},
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedCourse(t *testing.T, s *Store, code string, capacity int, instructor string) model.Course {
	t.Helper()
	c, err := s.CreateCourse(context.Background(), model.Course{
		Code: code, Title: code, Credits: 3, InstructorID: instructor, Department: "CS",
		Semester: model.SemesterFall, Year: 2026, Capacity: capacity, IsActive: true, CreatedAt: t0,
	})
	if err != nil {
		t.Fatalf("seed course: %v", err)
	}
	return c
}

func TestUniqueEmailAndCode(t *testing.T) {
	t.Parallel()
	s := New()
	prof := seedUser(t, s, "p@x.edu", model.RoleFaculty)
	if _, err := s.CreateUser(context.Background(), model.UserCredentials{User: model.User{Email: "p@x.edu"}}); !errors.Is(err, apperr.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	seedCourse(t, s, "CS101", 2, prof.ID)
	if _, err := s.CreateCourse(context.Background(), model.Course{Code: "CS101"}); !errors.Is(err, apperr.ErrCourseCodeTaken) {
		t.Fatalf("expected ErrCourseCodeTaken, got %v", err)
	}
}

func TestConcurrentLastSeat(t *testing.T) {
	t.Parallel()
	s := New()
	prof := seedUser(t, s, "p@x.edu", model.RoleFaculty)
	c := seedCourse(t, s, "CS101", 1, prof.ID)

	const n = 20
	students := make([]model.User, n)
	for i := range students {
		students[i] = seedUser(t, s, fmt.Sprintf("s%d@x.edu", i), model.RoleStudent)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range students {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Enroll(context.Background(), students[i].ID, c.ID, t0)
		}(i)
	}
	wg.Wait()

	ok, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrCourseFull):
			full++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || full != n-1 {
		t.Fatalf("ok=%d full=%d", ok, full)
	}
	got, _ := s.GetCourse(context.Background(), c.ID)
	if len(got.EnrolledIDs) != 1 {
		t.Fatalf("roster size %d", len(got.EnrolledIDs))
	}
}

func TestEnrollDropReenroll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	prof := seedUser(t, s, "p@x.edu", model.RoleFaculty)
	st := seedUser(t, s, "s@x.edu", model.RoleStudent)
	c := seedCourse(t, s, "CS101", 5, prof.ID)

	first, err := s.Enroll(ctx, st.ID, c.ID, t0)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, err := s.Enroll(ctx, st.ID, c.ID, t0); !errors.Is(err, apperr.ErrAlreadyEnrolled) {
		t.Fatalf("expected ErrAlreadyEnrolled, got %v", err)
	}
	u, _ := s.UserByID(ctx, st.ID)
	if len(u.EnrolledCourses) != 1 || u.EnrolledCourses[0] != c.ID {
		t.Fatalf("course list %v", u.EnrolledCourses)
	}

	dropped, err := s.Drop(ctx, st.ID, c.ID, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if dropped.Status != model.EnrollmentDropped || dropped.DroppedAt == nil {
		t.Fatalf("unexpected drop result %+v", dropped)
	}

	again, err := s.Enroll(ctx, st.ID, c.ID, t0.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("re-enroll: %v", err)
	}
	if again.ID != first.ID || again.Status != model.EnrollmentActive || again.DroppedAt != nil {
		t.Fatalf("expected reactivated row, got %+v", again)
	}
	if _, total, _ := s.ListEnrollments(ctx, model.EnrollmentFilter{StudentID: st.ID}); total != 1 {
		t.Fatalf("expected one enrollment row, got %d", total)
	}
}

func TestSuspendedCannotReenroll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	prof := seedUser(t, s, "p@x.edu", model.RoleFaculty)
	st := seedUser(t, s, "s@x.edu", model.RoleStudent)
	c := seedCourse(t, s, "CS101", 5, prof.ID)

	e, _ := s.Enroll(ctx, st.ID, c.ID, t0)
	suspended := model.EnrollmentSuspended
	if _, err := s.UpdateEnrollment(ctx, e.ID, model.EnrollmentPatch{Status: &suspended}, t0); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	got, _ := s.GetCourse(ctx, c.ID)
	if got.HasStudent(st.ID) {
		t.Fatal("suspended student should leave the roster")
	}
	if _, err := s.Enroll(ctx, st.ID, c.ID, t0); !errors.Is(err, apperr.ErrAlreadyEnrolled) {
		t.Fatalf("expected ErrAlreadyEnrolled, got %v", err)
	}
	got, _ = s.GetCourse(ctx, c.ID)
	if got.HasStudent(st.ID) {
		t.Fatal("failed enroll must not take a seat")
	}
}

func TestDropWithoutEnrollmentStillClearsRoster(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	prof := seedUser(t, s, "p@x.edu", model.RoleFaculty)
	st := seedUser(t, s, "s@x.edu", model.RoleStudent)
	c := seedCourse(t, s, "CS101", 5, prof.ID)

	// Roster entry with no enrollment row.
	s.mu.Lock()
	s.seat(st.ID, s.courses[c.ID], t0)
	s.mu.Unlock()

	if _, err := s.Drop(ctx, st.ID, c.ID, t0); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	got, _ := s.GetCourse(ctx, c.ID)
	if got.HasStudent(st.ID) {
		t.Fatal("roster entry should be removed")
	}
}

func TestCapacityBelowRoster(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	prof := seedUser(t, s, "p@x.edu", model.RoleFaculty)
	c := seedCourse(t, s, "CS101", 3, prof.ID)
	for i := 0; i < 2; i++ {
		st := seedUser(t, s, fmt.Sprintf("s%d@x.edu", i), model.RoleStudent)
		if _, err := s.Enroll(ctx, st.ID, c.ID, t0); err != nil {
			t.Fatal(err)
		}
	}
	one := 1
	if _, err := s.UpdateCourse(ctx, c.ID, model.CoursePatch{Capacity: &one}, t0); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	two := 2
	if _, err := s.UpdateCourse(ctx, c.ID, model.CoursePatch{Capacity: &two}, t0); err != nil {
		t.Fatalf("capacity equal to roster should pass: %v", err)
	}
}

func TestEventRegistration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	e, _ := s.CreateEvent(ctx, model.Event{Title: "Fair", Capacity: 1, StartDate: t0, EndDate: t0.Add(time.Hour), IsPublished: true})

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.RegisterForEvent(ctx, e.ID, fmt.Sprintf("u%d", i), t0); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else if !errors.Is(err, apperr.ErrEventFull) {
				t.Errorf("unexpected error %v", err)
			}
		}(i)
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("expected one registration, got %d", ok)
	}

	got, _ := s.GetEvent(ctx, e.ID)
	holder := got.Registrations[0].UserID
	if _, err := s.UnregisterFromEvent(ctx, e.ID, "nobody", t0); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.UnregisterFromEvent(ctx, e.ID, holder, t0); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if _, err := s.RegisterForEvent(ctx, e.ID, holder, t0); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	two := 2
	if _, err := s.UpdateEvent(ctx, e.ID, model.EventPatch{Capacity: &two}, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RegisterForEvent(ctx, e.ID, holder, t0); !errors.Is(err, apperr.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestDuplicateAttendanceAndResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	a := model.Attendance{StudentID: "s", CourseID: "c", Day: "2026-09-01", Status: model.AttendancePresent}
	if _, err := s.CreateAttendance(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateAttendance(ctx, a); !errors.Is(err, apperr.ErrDuplicateAttendance) {
		t.Fatalf("expected duplicate attendance, got %v", err)
	}
	a.Day = "2026-09-02"
	if _, err := s.CreateAttendance(ctx, a); err != nil {
		t.Fatalf("different day should pass: %v", err)
	}

	r := model.Result{StudentID: "s", CourseID: "c", Semester: model.SemesterFall, Year: 2026, Marks: 80, Grade: "B"}
	created, err := s.CreateResult(ctx, r)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateResult(ctx, r); !errors.Is(err, apperr.ErrDuplicateResult) {
		t.Fatalf("expected duplicate result, got %v", err)
	}
	published, _ := s.PublishResults(ctx, []string{created.ID, "missing"}, "admin", t0)
	if len(published) != 1 {
		t.Fatalf("published %d", len(published))
	}
	marks := 90.0
	if _, err := s.UpdateResult(ctx, created.ID, model.ResultPatch{Marks: &marks, Grade: "A"}, t0); !errors.Is(err, apperr.ErrResultPublished) {
		t.Fatalf("expected ErrResultPublished, got %v", err)
	}
}

func TestAnnouncementOrderingAndViews(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	old, _ := s.CreateAnnouncement(ctx, model.Announcement{Title: "old", TargetRoles: []model.Role{model.RoleStudent}, IsPublished: true, CreatedAt: t0})
	pinned, _ := s.CreateAnnouncement(ctx, model.Announcement{Title: "pinned", TargetRoles: []model.Role{model.RoleStudent}, IsPinned: true, IsPublished: true, CreatedAt: t0.Add(-time.Hour)})
	newer, _ := s.CreateAnnouncement(ctx, model.Announcement{Title: "new", TargetRoles: []model.Role{model.RoleStudent}, IsPublished: true, CreatedAt: t0.Add(time.Hour)})
	s.CreateAnnouncement(ctx, model.Announcement{Title: "staff", TargetRoles: []model.Role{model.RoleFaculty}, IsPublished: true, CreatedAt: t0})

	items, total, _ := s.ListAnnouncements(ctx, model.AnnouncementFilter{Role: model.RoleStudent})
	if total != 3 || items[0].ID != pinned.ID || items[1].ID != newer.ID || items[2].ID != old.ID {
		t.Fatalf("unexpected order %+v", items)
	}

	for i := 0; i < 3; i++ {
		_ = s.RecordAnnouncementView(ctx, old.ID, "u1")
	}
	_ = s.RecordAnnouncementView(ctx, old.ID, "u2")
	got, _ := s.GetAnnouncement(ctx, old.ID)
	if got.ViewCount != 2 {
		t.Fatalf("view count %d", got.ViewCount)
	}
}

func TestInboxScopedToRecipient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	_ = s.CreateNotifications(ctx, []model.Notification{
		{ID: "n1", RecipientID: "a", Title: "1", CreatedAt: t0},
		{ID: "n2", RecipientID: "a", Title: "2", CreatedAt: t0.Add(time.Minute)},
		{ID: "n3", RecipientID: "b", Title: "3", CreatedAt: t0},
	})
	items, total, unread, _ := s.ListNotifications(ctx, "a", false, model.PageRequest{})
	if total != 2 || unread != 2 || items[0].ID != "n2" {
		t.Fatalf("unexpected inbox %v %d %d", items, total, unread)
	}
	if _, err := s.MarkNotificationRead(ctx, "n3", "a", t0); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("foreign notification must look missing, got %v", err)
	}
	if n, _ := s.MarkAllNotificationsRead(ctx, "a", t0); n != 2 {
		t.Fatalf("marked %d", n)
	}
	if _, _, unread, _ := s.ListNotifications(ctx, "a", false, model.PageRequest{}); unread != 0 {
		t.Fatalf("unread %d", unread)
	}
	if err := s.DeleteNotification(ctx, "n3", "a"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteCourseCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	prof := seedUser(t, s, "p@x.edu", model.RoleFaculty)
	st := seedUser(t, s, "s@x.edu", model.RoleStudent)
	c := seedCourse(t, s, "CS101", 5, prof.ID)
	_, _ = s.Enroll(ctx, st.ID, c.ID, t0)
	_, _ = s.CreateAttendance(ctx, model.Attendance{StudentID: st.ID, CourseID: c.ID, Day: "2026-09-01"})

	if err := s.DeleteCourse(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	u, _ := s.UserByID(ctx, st.ID)
	if len(u.EnrolledCourses) != 0 {
		t.Fatalf("course list %v", u.EnrolledCourses)
	}
	if _, total, _ := s.ListEnrollments(ctx, model.EnrollmentFilter{StudentID: st.ID}); total != 0 {
		t.Fatalf("enrollments left: %d", total)
	}
	if _, err := s.CreateCourse(ctx, model.Course{Code: "CS101"}); err != nil {
		t.Fatalf("code should be free again: %v", err)
	}
}
