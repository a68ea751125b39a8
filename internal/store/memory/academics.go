package memory

import (
	"context"
	"sort"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

// CreateAttendance writes a new record. A second record for the same student, course
// and day yields ErrDuplicateAttendance.
func (s *Store) CreateAttendance(_ context.Context, a model.Attendance) (model.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey{a.StudentID, a.CourseID, a.Day}
	if _, dup := s.days[key]; dup {
		return model.Attendance{}, apperr.ErrDuplicateAttendance
	}
	a.ID = s.newID(a.ID)
	s.attendance[a.ID] = a
	s.days[key] = a.ID
	return a, nil
}

// GetAttendance returns a single record.
func (s *Store) GetAttendance(_ context.Context, id string) (model.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[id]
	if !ok {
		return model.Attendance{}, apperr.NotFound("attendance record")
	}
	return a, nil
}

// ListAttendance returns records with basic filters, newest day first.
func (s *Store) ListAttendance(_ context.Context, f model.AttendanceFilter) ([]model.Attendance, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Attendance{}
	for _, a := range s.attendance {
		if f.StudentID != "" && a.StudentID != f.StudentID {
			continue
		}
		if f.CourseID != "" && a.CourseID != f.CourseID {
			continue
		}
		if f.CourseIDs != nil && !hasString(f.CourseIDs, a.CourseID) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day > out[j].Day
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.ord[out[i].ID] > s.ord[out[j].ID]
	})
	return model.Paginate(out, f.Page), len(out), nil
}

// StudentCourseAttendance returns every record of a student in a course, oldest first.
func (s *Store) StudentCourseAttendance(_ context.Context, studentID, courseID string) ([]model.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Attendance{}
	for _, a := range s.attendance {
		if a.StudentID == studentID && a.CourseID == courseID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// UpdateAttendance sets status and remarks.
func (s *Store) UpdateAttendance(_ context.Context, id string, patch model.AttendancePatch, at time.Time) (model.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[id]
	if !ok {
		return model.Attendance{}, apperr.NotFound("attendance record")
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.Remarks != nil {
		a.Remarks = *patch.Remarks
	}
	a.UpdatedAt = at
	s.attendance[id] = a
	return a, nil
}

// DeleteAttendance removes a record.
func (s *Store) DeleteAttendance(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[id]
	if !ok {
		return apperr.NotFound("attendance record")
	}
	delete(s.attendance, id)
	delete(s.days, dayKey{a.StudentID, a.CourseID, a.Day})
	return nil
}

// CreateResult inserts a draft result. A second result for the same student, course and
// term yields ErrDuplicateResult.
func (s *Store) CreateResult(_ context.Context, r model.Result) (model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := termKey{r.StudentID, r.CourseID, r.Semester, r.Year}
	if _, dup := s.resultKeys[key]; dup {
		return model.Result{}, apperr.ErrDuplicateResult
	}
	r.ID = s.newID(r.ID)
	s.results[r.ID] = r
	s.resultKeys[key] = r.ID
	return r, nil
}

// GetResult returns a single result.
func (s *Store) GetResult(_ context.Context, id string) (model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok {
		return model.Result{}, apperr.NotFound("result")
	}
	return r, nil
}

// ListResults returns results matching the filter, newest term first.
func (s *Store) ListResults(_ context.Context, f model.ResultFilter) ([]model.Result, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Result{}
	for _, r := range s.results {
		if f.StudentID != "" && r.StudentID != f.StudentID {
			continue
		}
		if f.CourseID != "" && r.CourseID != f.CourseID {
			continue
		}
		if f.CourseIDs != nil && !hasString(f.CourseIDs, r.CourseID) {
			continue
		}
		if f.PublishedOnly && !r.IsPublished {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.ord[out[i].ID] > s.ord[out[j].ID]
	})
	return model.Paginate(out, f.Page), len(out), nil
}

// UpdateResult edits an unpublished result.
func (s *Store) UpdateResult(_ context.Context, id string, patch model.ResultPatch, at time.Time) (model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok {
		return model.Result{}, apperr.NotFound("result")
	}
	if r.IsPublished {
		return model.Result{}, apperr.ErrResultPublished
	}
	if patch.Marks != nil {
		r.Marks = *patch.Marks
		r.Grade = patch.Grade
	}
	if patch.Remarks != nil {
		r.Remarks = *patch.Remarks
	}
	r.UpdatedAt = at
	s.results[id] = r
	return r, nil
}

// PublishResults flips unpublished results among ids and returns those that changed.
func (s *Store) PublishResults(_ context.Context, ids []string, by string, at time.Time) ([]model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Result{}
	for _, id := range ids {
		r, ok := s.results[id]
		if !ok || r.IsPublished {
			continue
		}
		r.IsPublished = true
		r.PublishedAt = timePtr(at)
		r.PublishedBy = by
		r.UpdatedAt = at
		s.results[id] = r
		out = append(out, r)
	}
	return out, nil
}

// DeleteResult removes a result.
func (s *Store) DeleteResult(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok {
		return apperr.NotFound("result")
	}
	delete(s.results, id)
	delete(s.resultKeys, termKey{r.StudentID, r.CourseID, r.Semester, r.Year})
	return nil
}
