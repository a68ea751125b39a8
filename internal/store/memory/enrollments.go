package memory

import (
	"context"
	"errors"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// seatCheck reports why studentID cannot take a seat in c, if anything. Callers hold mu.
func (s *Store) seatCheck(studentID, courseID string) (model.Course, error) {
	c, ok := s.courses[courseID]
	switch {
	case !ok || !c.IsActive:
		return model.Course{}, apperr.NotFound("course")
	case len(c.EnrolledIDs) >= c.Capacity:
		return model.Course{}, apperr.ErrCourseFull
	case hasString(c.EnrolledIDs, studentID):
		return model.Course{}, apperr.ErrAlreadyEnrolled
	}
	return c, nil
}

func (s *Store) seat(studentID string, c model.Course, at time.Time) {
	c.EnrolledIDs = append(cloneStrings(c.EnrolledIDs), studentID)
	c.UpdatedAt = at
	s.courses[c.ID] = c
	s.linkCourse(studentID, c.ID)
}

func (s *Store) linkCourse(studentID, courseID string) {
	if row, ok := s.users[studentID]; ok && !hasString(row.user.EnrolledCourses, courseID) {
		row.user.EnrolledCourses = append(row.user.EnrolledCourses, courseID)
	}
}

func (s *Store) unseat(studentID, courseID string, at time.Time) {
	if c, ok := s.courses[courseID]; ok {
		c.EnrolledIDs = removeString(c.EnrolledIDs, studentID)
		c.UpdatedAt = at
		s.courses[courseID] = c
	}
	if row, ok := s.users[studentID]; ok {
		row.user.EnrolledCourses = removeString(row.user.EnrolledCourses, courseID)
	}
}

// Enroll takes a seat and records the enrollment. A dropped enrollment for the same
// term is reactivated; any other existing enrollment yields ErrAlreadyEnrolled.
func (s *Store) Enroll(_ context.Context, studentID, courseID string, at time.Time) (model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.seatCheck(studentID, courseID)
	if err != nil {
		return model.Enrollment{}, err
	}
	key := termKey{studentID, courseID, c.Semester, c.Year}
	if id, ok := s.terms[key]; ok {
		e := s.enrollments[id]
		if e.Status != model.EnrollmentDropped {
			return model.Enrollment{}, apperr.ErrAlreadyEnrolled
		}
		e.Status = model.EnrollmentActive
		e.EnrolledAt = at
		e.DroppedAt = nil
		e.UpdatedAt = at
		s.enrollments[id] = e
		s.seat(studentID, c, at)
		return e, nil
	}
	e := model.Enrollment{
		ID:         s.newID(""),
		StudentID:  studentID,
		CourseID:   courseID,
		Semester:   c.Semester,
		Year:       c.Year,
		Status:     model.EnrollmentActive,
		EnrolledAt: at,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	s.enrollments[e.ID] = e
	s.terms[key] = e.ID
	s.seat(studentID, c, at)
	return e, nil
}

// Drop removes the student from the roster and marks the active enrollment dropped.
// The roster removal happens even when no active enrollment exists; NotFound is returned then.
func (s *Store) Drop(_ context.Context, studentID, courseID string, at time.Time) (model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[courseID]
	if !ok {
		return model.Enrollment{}, apperr.NotFound("course")
	}
	s.unseat(studentID, courseID, at)
	id, ok := s.terms[termKey{studentID, courseID, c.Semester, c.Year}]
	if !ok || s.enrollments[id].Status != model.EnrollmentActive {
		return model.Enrollment{}, apperr.NotFound("enrollment")
	}
	e := s.enrollments[id]
	e.Status = model.EnrollmentDropped
	e.DroppedAt = timePtr(at)
	e.UpdatedAt = at
	s.enrollments[id] = e
	return e, nil
}

// GetEnrollment returns a single enrollment.
func (s *Store) GetEnrollment(_ context.Context, id string) (model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok {
		return model.Enrollment{}, apperr.NotFound("enrollment")
	}
	return e, nil
}

// ListEnrollments returns enrollments matching the filter, newest first.
func (s *Store) ListEnrollments(_ context.Context, f model.EnrollmentFilter) ([]model.Enrollment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Enrollment{}
	for _, e := range s.enrollments {
		if f.StudentID != "" && e.StudentID != f.StudentID {
			continue
		}
		if f.CourseID != "" && e.CourseID != f.CourseID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	newestFirst(s, out, func(e model.Enrollment) time.Time { return e.EnrolledAt }, func(e model.Enrollment) string { return e.ID })
	return model.Paginate(out, f.Page), len(out), nil
}

// UpdateEnrollment changes status and attendance percentage, moving the seat with the status.
func (s *Store) UpdateEnrollment(_ context.Context, id string, patch model.EnrollmentPatch, at time.Time) (model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok {
		return model.Enrollment{}, apperr.NotFound("enrollment")
	}
	next := e.Status
	if patch.Status != nil {
		next = *patch.Status
	}
	switch {
	case e.Status == model.EnrollmentActive && next != model.EnrollmentActive:
		s.unseat(e.StudentID, e.CourseID, at)
	case e.Status != model.EnrollmentActive && next == model.EnrollmentActive:
		c, err := s.seatCheck(e.StudentID, e.CourseID)
		switch {
		case err == nil:
			s.seat(e.StudentID, c, at)
		case errors.Is(err, apperr.ErrAlreadyEnrolled):
			s.linkCourse(e.StudentID, e.CourseID)
		default:
			return model.Enrollment{}, err
		}
	}
	if next == model.EnrollmentDropped && e.Status != model.EnrollmentDropped {
		e.DroppedAt = timePtr(at)
	}
	if next == model.EnrollmentActive {
		e.DroppedAt = nil
	}
	if next == model.EnrollmentCompleted && e.Status != model.EnrollmentCompleted {
		e.CompletedAt = timePtr(at)
	}
	if patch.AttendancePercentage != nil {
		e.AttendancePercentage = *patch.AttendancePercentage
	}
	e.Status = next
	e.UpdatedAt = at
	s.enrollments[id] = e
	return e, nil
}

// EnrollmentStats counts a course's enrollments per status.
func (s *Store) EnrollmentStats(_ context.Context, courseID string) (model.EnrollmentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st model.EnrollmentStats
	var sum float64
	for _, e := range s.enrollments {
		if e.CourseID != courseID {
			continue
		}
		st.Total++
		sum += e.AttendancePercentage
		switch e.Status {
		case model.EnrollmentActive:
			st.Active++
		case model.EnrollmentCompleted:
			st.Completed++
		case model.EnrollmentDropped:
			st.Dropped++
		case model.EnrollmentSuspended:
			st.Suspended++
		}
	}
	if st.Total > 0 {
		st.AverageAttendance = model.Round2(sum / float64(st.Total))
	}
	return st, nil
}

// SyncAttendancePercentages recomputes the attended percentage of active enrollments.
func (s *Store) SyncAttendancePercentages(_ context.Context, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type pair struct{ studentID, courseID string }
	records := map[pair][]model.Attendance{}
	for _, a := range s.attendance {
		k := pair{a.StudentID, a.CourseID}
		records[k] = append(records[k], a)
	}
	changed := 0
	for id, e := range s.enrollments {
		if e.Status != model.EnrollmentActive {
			continue
		}
		recs, ok := records[pair{e.StudentID, e.CourseID}]
		if !ok {
			continue
		}
		pct := model.Summarize(recs).Percentage
		if pct == e.AttendancePercentage {
			continue
		}
		e.AttendancePercentage = pct
		e.UpdatedAt = at
		s.enrollments[id] = e
		changed++
	}
	return changed, nil
}
