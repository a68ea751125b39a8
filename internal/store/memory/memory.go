// Package memory is an in-process implementation of every storage interface. It keeps the
// same uniqueness and capacity rules as the Postgres repositories and serializes all
// mutations behind one mutex, so check-and-write sequences are atomic.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phasehumans/campus-portal-api/internal/model"
)

type userRow struct {
	user model.User
	hash string
}

type termKey struct {
	studentID, courseID string
	semester            model.Semester
	year                int
}

type dayKey struct {
	studentID, courseID, day string
}

type viewKey struct {
	announcementID, userID string
}

// Store holds all records in maps keyed by id.
type Store struct {
	mu  sync.Mutex
	seq uint64
	ord map[string]uint64

	users     map[string]*userRow
	emails    map[string]string
	keys      map[string]model.APIKey
	keyHashes map[string]string

	courses     map[string]model.Course
	codes       map[string]string
	enrollments map[string]model.Enrollment
	terms       map[termKey]string

	attendance map[string]model.Attendance
	days       map[dayKey]string
	results    map[string]model.Result
	resultKeys map[termKey]string

	announcements map[string]model.Announcement
	views         map[viewKey]bool
	events        map[string]model.Event
	materials     map[string]model.Material
	notifications map[string]model.Notification
}

// New creates an empty store.
func New() *Store {
	return &Store{
		ord:           map[string]uint64{},
		users:         map[string]*userRow{},
		emails:        map[string]string{},
		keys:          map[string]model.APIKey{},
		keyHashes:     map[string]string{},
		courses:       map[string]model.Course{},
		codes:         map[string]string{},
		enrollments:   map[string]model.Enrollment{},
		terms:         map[termKey]string{},
		attendance:    map[string]model.Attendance{},
		days:          map[dayKey]string{},
		results:       map[string]model.Result{},
		resultKeys:    map[termKey]string{},
		announcements: map[string]model.Announcement{},
		views:         map[viewKey]bool{},
		events:        map[string]model.Event{},
		materials:     map[string]model.Material{},
		notifications: map[string]model.Notification{},
	}
}

// newID assigns an id and remembers insertion order. Callers hold mu.
func (s *Store) newID(id string) string {
	if id == "" {
		id = uuid.NewString()
	}
	s.seq++
	s.ord[id] = s.seq
	return id
}

// newestFirst sorts by timestamp descending with insertion order breaking ties.
func newestFirst[T any](s *Store, items []T, at func(T) time.Time, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ti, tj := at(items[i]), at(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return s.ord[id(items[i])] > s.ord[id(items[j])]
	})
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRoles(in []model.Role) []model.Role {
	out := make([]model.Role, len(in))
	copy(out, in)
	return out
}

func removeString(in []string, v string) []string {
	out := in[:0:0]
	for _, x := range in {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func hasString(in []string, v string) bool {
	for _, x := range in {
		if x == v {
			return true
		}
	}
	return false
}

func timePtr(t time.Time) *time.Time {
	return &t
}
