package memory

import (
	"context"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/course"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

func cloneCourse(c model.Course) model.Course {
	c.EnrolledIDs = cloneStrings(c.EnrolledIDs)
	return c
}

// CreateCourse inserts a course. A duplicate code yields ErrCourseCodeTaken.
func (s *Store) CreateCourse(_ context.Context, c model.Course) (model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[c.Code]; taken {
		return model.Course{}, apperr.ErrCourseCodeTaken
	}
	c.ID = s.newID(c.ID)
	c.EnrolledIDs = []string{}
	s.courses[c.ID] = c
	s.codes[c.Code] = c.ID
	return cloneCourse(c), nil
}

// GetCourse returns a single course.
func (s *Store) GetCourse(_ context.Context, id string) (model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return model.Course{}, apperr.NotFound("course")
	}
	return cloneCourse(c), nil
}

// ListCourses returns active courses matching the filter, newest first.
func (s *Store) ListCourses(_ context.Context, f model.CourseFilter) ([]model.Course, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Course{}
	for _, c := range s.courses {
		if !c.IsActive {
			continue
		}
		if f.Department != "" && c.Department != f.Department {
			continue
		}
		if f.Semester != "" && c.Semester != f.Semester {
			continue
		}
		if f.InstructorID != "" && c.InstructorID != f.InstructorID {
			continue
		}
		out = append(out, cloneCourse(c))
	}
	newestFirst(s, out, func(c model.Course) time.Time { return c.CreatedAt }, func(c model.Course) string { return c.ID })
	return model.Paginate(out, f.Page), len(out), nil
}

// CourseIDsByInstructor returns the ids of every course taught by instructorID.
func (s *Store) CourseIDsByInstructor(_ context.Context, instructorID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	for id, c := range s.courses {
		if c.InstructorID == instructorID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// UpdateCourse applies non-nil fields. Capacity cannot drop below the roster size.
func (s *Store) UpdateCourse(_ context.Context, id string, patch model.CoursePatch, at time.Time) (model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return model.Course{}, apperr.NotFound("course")
	}
	if patch.Capacity != nil && *patch.Capacity < len(c.EnrolledIDs) {
		return model.Course{}, course.ErrCapacityBelowRoster
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.Credits != nil {
		c.Credits = *patch.Credits
	}
	if patch.Capacity != nil {
		c.Capacity = *patch.Capacity
	}
	if patch.IsActive != nil {
		c.IsActive = *patch.IsActive
	}
	c.UpdatedAt = at
	s.courses[id] = c
	return cloneCourse(c), nil
}

// DeleteCourse removes a course with its enrollments, attendance, results and materials.
func (s *Store) DeleteCourse(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return apperr.NotFound("course")
	}
	delete(s.courses, id)
	delete(s.codes, c.Code)
	for _, row := range s.users {
		row.user.EnrolledCourses = removeString(row.user.EnrolledCourses, id)
	}
	for eid, e := range s.enrollments {
		if e.CourseID == id {
			delete(s.enrollments, eid)
			delete(s.terms, termKey{e.StudentID, e.CourseID, e.Semester, e.Year})
		}
	}
	for aid, a := range s.attendance {
		if a.CourseID == id {
			delete(s.attendance, aid)
			delete(s.days, dayKey{a.StudentID, a.CourseID, a.Day})
		}
	}
	for rid, r := range s.results {
		if r.CourseID == id {
			delete(s.results, rid)
			delete(s.resultKeys, termKey{r.StudentID, r.CourseID, r.Semester, r.Year})
		}
	}
	for mid, m := range s.materials {
		if m.CourseID == id {
			delete(s.materials, mid)
		}
	}
	return nil
}
