package model

import (
	"math"
	"strings"
	"time"
)

// Role is the campus role carried by every principal.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	}
	return false
}

// AuthMethod records how a principal was authenticated.
type AuthMethod string

const (
	AuthJWT    AuthMethod = "jwt"
	AuthAPIKey AuthMethod = "api-key"
)

// User is a registered account. The password hash lives in UserCredentials only.
type User struct {
	ID              string     `json:"id"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Email           string     `json:"email"`
	Role            Role       `json:"role"`
	Department      string     `json:"department"`
	Phone           string     `json:"phone,omitempty"`
	IsActive        bool       `json:"isActive"`
	EnrolledCourses []string   `json:"enrolledCourses"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// UserCredentials pairs a user with its stored password hash.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// ProfilePatch carries the self-service profile edits.
type ProfilePatch struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// API key permissions.
const (
	PermRead   = "read"
	PermWrite  = "write"
	PermDelete = "delete"
	PermAdmin  = "admin"
)

// ValidPermission reports whether p is a known API key permission.
func ValidPermission(p string) bool {
	switch p {
	case PermRead, PermWrite, PermDelete, PermAdmin:
		return true
	}
	return false
}

// APIKey is a long-lived credential owned by a user. Revocation is soft.
type APIKey struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	KeyHash     string     `json:"-"`
	Permissions []string   `json:"permissions"`
	IsActive    bool       `json:"isActive"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// HasPermission reports whether the key carries perm. The admin permission implies all others.
func (k APIKey) HasPermission(perm string) bool {
	for _, p := range k.Permissions {
		if p == perm || p == PermAdmin {
			return true
		}
	}
	return false
}

// Usable reports whether the key can authenticate at the given instant.
func (k APIKey) Usable(now time.Time) bool {
	return k.IsActive && now.Before(k.ExpiresAt)
}

// Principal is the authenticated actor of a request.
type Principal struct {
	UserID         string     `json:"id"`
	Role           Role       `json:"role"`
	Department     string     `json:"department"`
	Active         bool       `json:"active"`
	Method         AuthMethod `json:"authMethod"`
	KeyPermissions []string   `json:"keyPermissions,omitempty"`
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// PrincipalFor builds a principal for an authenticated user.
func PrincipalFor(u User, method AuthMethod) Principal {
	return Principal{
		UserID:     u.ID,
		Role:       u.Role,
		Department: u.Department,
		Active:     u.IsActive,
		Method:     method,
	}
}

// Semester names used by courses, enrollments and results.
type Semester string

const (
	SemesterFall   Semester = "Fall"
	SemesterSpring Semester = "Spring"
	SemesterSummer Semester = "Summer"
)

// Valid reports whether s is a known semester.
func (s Semester) Valid() bool {
	switch s {
	case SemesterFall, SemesterSpring, SemesterSummer:
		return true
	}
	return false
}

// Course is a course offering. EnrolledIDs is the roster cache kept in step with active enrollments.
type Course struct {
	ID           string    `json:"id"`
	Code         string    `json:"courseCode"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Credits      int       `json:"credits"`
	InstructorID string    `json:"instructorId"`
	Department   string    `json:"department"`
	Semester     Semester  `json:"semester"`
	Year         int       `json:"year"`
	Capacity     int       `json:"maxStudents"`
	EnrolledIDs  []string  `json:"enrolledStudents"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasStudent reports whether studentID is on the roster.
func (c Course) HasStudent(studentID string) bool {
	return contains(c.EnrolledIDs, studentID)
}

// SeatsLeft returns the number of free seats.
func (c Course) SeatsLeft() int {
	if n := c.Capacity - len(c.EnrolledIDs); n > 0 {
		return n
	}
	return 0
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	Department   string
	Semester     Semester
	InstructorID string
	Page         PageRequest
}

// CoursePatch carries optional course updates.
type CoursePatch struct {
	Title       *string
	Description *string
	Credits     *int
	Capacity    *int
	IsActive    *bool
}

// EnrollmentStatus is the lifecycle state of an enrollment record.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
	EnrollmentSuspended EnrollmentStatus = "suspended"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentActive, EnrollmentCompleted, EnrollmentDropped, EnrollmentSuspended:
		return true
	}
	return false
}

// Enrollment is the durable record of a student's relationship to a course in a semester.
type Enrollment struct {
	ID                   string           `json:"id"`
	StudentID            string           `json:"studentId"`
	CourseID             string           `json:"courseId"`
	Semester             Semester         `json:"semester"`
	Year                 int              `json:"year"`
	Status               EnrollmentStatus `json:"status"`
	EnrolledAt           time.Time        `json:"enrolledAt"`
	DroppedAt            *time.Time       `json:"droppedAt,omitempty"`
	CompletedAt          *time.Time       `json:"completedAt,omitempty"`
	AttendancePercentage float64          `json:"attendancePercentage"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// EnrollmentPatch carries an admin status edit.
type EnrollmentPatch struct {
	Status               *EnrollmentStatus
	AttendancePercentage *float64
}

// EnrollmentFilter narrows enrollment listings.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      PageRequest
}

// EnrollmentStats summarizes a course's enrollment history.
type EnrollmentStats struct {
	Total             int     `json:"total"`
	Active            int     `json:"active"`
	Completed         int     `json:"completed"`
	Dropped           int     `json:"dropped"`
	Suspended         int     `json:"suspended"`
	AverageAttendance float64 `json:"averageAttendance"`
}

// AttendanceStatus is the state recorded for one class day.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

// Valid reports whether s is a known attendance status.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	}
	return false
}

// Attendance is one record per student, course and calendar day.
type Attendance struct {
	ID         string           `json:"id"`
	StudentID  string           `json:"studentId"`
	CourseID   string           `json:"courseId"`
	Date       time.Time        `json:"date"`
	Day        string           `json:"day"`
	Status     AttendanceStatus `json:"status"`
	Remarks    string           `json:"remarks,omitempty"`
	RecordedBy string           `json:"recordedBy"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// AttendanceFilter narrows attendance listings. CourseIDs restricts to a set of courses when non-nil.
type AttendanceFilter struct {
	StudentID string
	CourseID  string
	CourseIDs []string
	Page      PageRequest
}

// AttendancePatch carries the mutable attendance fields. The day key never changes.
type AttendancePatch struct {
	Status  *AttendanceStatus
	Remarks *string
}

// AttendanceSummary aggregates a student's attendance in a course.
type AttendanceSummary struct {
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	Late       int     `json:"late"`
	Excused    int     `json:"excused"`
	Percentage float64 `json:"percentage"`
}

// Summarize computes counts and the attended percentage, (present+excused)/total, to two decimals.
func Summarize(records []Attendance) AttendanceSummary {
	var s AttendanceSummary
	for _, r := range records {
		s.Total++
		switch r.Status {
		case AttendancePresent:
			s.Present++
		case AttendanceAbsent:
			s.Absent++
		case AttendanceLate:
			s.Late++
		case AttendanceExcused:
			s.Excused++
		}
	}
	if s.Total > 0 {
		s.Percentage = Round2(float64(s.Present+s.Excused) / float64(s.Total) * 100)
	}
	return s
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Result is a student's mark for a course in a semester.
type Result struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"studentId"`
	CourseID    string     `json:"courseId"`
	Semester    Semester   `json:"semester"`
	Year        int        `json:"year"`
	Marks       float64    `json:"marks"`
	Grade       string     `json:"grade"`
	Remarks     string     `json:"remarks"`
	IsPublished bool       `json:"isPublished"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	PublishedBy string     `json:"publishedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ResultFilter narrows result listings. CourseIDs restricts to a set of courses when non-nil.
type ResultFilter struct {
	StudentID     string
	CourseID      string
	CourseIDs     []string
	PublishedOnly bool
	Page          PageRequest
}

// ResultPatch carries result edits. Grade is derived by the caller whenever Marks is set.
type ResultPatch struct {
	Marks   *float64
	Grade   string
	Remarks *string
}

// Announcement categories.
const (
	CategoryAcademic    = "academic"
	CategoryEvent       = "event"
	CategoryMaintenance = "maintenance"
	CategoryGeneral     = "general"
	CategoryUrgent      = "urgent"
)

// Announcement is a message authored by faculty or admins for a set of roles.
type Announcement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	AuthorID    string    `json:"authorId"`
	Category    string    `json:"category"`
	TargetRoles []Role    `json:"targetRoles"`
	IsPinned    bool      `json:"isPinned"`
	IsPublished bool      `json:"isPublished"`
	ViewCount   int       `json:"viewCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AnnouncementFilter narrows announcement listings. An empty Role lists every audience.
type AnnouncementFilter struct {
	Role     Role
	Category string
	Page     PageRequest
}

// ValidAnnouncementCategory reports whether c is a known category.
func ValidAnnouncementCategory(c string) bool {
	switch c {
	case CategoryAcademic, CategoryEvent, CategoryMaintenance, CategoryGeneral, CategoryUrgent:
		return true
	}
	return false
}

// AnnouncementPatch carries optional announcement updates.
type AnnouncementPatch struct {
	Title       *string
	Content     *string
	Category    *string
	TargetRoles []Role
	IsPinned    *bool
}

// Registration is one seat taken on an event.
type Registration struct {
	UserID       string    `json:"userId"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event is a campus event with a bounded registration list.
type Event struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	OrganizerID   string         `json:"organizerId"`
	StartDate     time.Time      `json:"startDate"`
	EndDate       time.Time      `json:"endDate"`
	Location      string         `json:"location"`
	Category      string         `json:"category"`
	Capacity      int            `json:"capacity"`
	Registrations []Registration `json:"registrations"`
	VisibleTo     []Role         `json:"visibleTo"`
	IsPublished   bool           `json:"isPublished"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// IsRegistered reports whether userID holds a seat.
func (e Event) IsRegistered(userID string) bool {
	for _, r := range e.Registrations {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Event categories.
var EventCategories = []string{"academic", "cultural", "sports", "technical", "social", "other"}

// ValidEventCategory reports whether c is a known event category.
func ValidEventCategory(c string) bool {
	for _, x := range EventCategories {
		if x == c {
			return true
		}
	}
	return false
}

// EventFilter narrows event listings. Role restricts to that audience and a non-zero From
// to events starting at or after it; IncludeDrafts also returns unpublished events.
type EventFilter struct {
	Role          Role
	From          time.Time
	Category      string
	IncludeDrafts bool
	Page          PageRequest
}

// EventPatch carries optional event updates.
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	Capacity    *int
	IsPublished *bool
}

// Material is a file or link attached to a course.
type Material struct {
	ID            string     `json:"id"`
	CourseID      string     `json:"courseId"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Type          string     `json:"type"`
	FileName      string     `json:"fileName"`
	FileSize      int64      `json:"fileSize"`
	FileURL       string     `json:"fileUrl"`
	UploaderID    string     `json:"uploaderId"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	IsPublished   bool       `json:"isPublished"`
	DownloadCount int        `json:"downloadCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Material types.
var MaterialTypes = []string{"pdf", "doc", "docx", "ppt", "pptx", "video", "image", "link", "other"}

// ValidMaterialType reports whether t is a known material type.
func ValidMaterialType(t string) bool {
	for _, x := range MaterialTypes {
		if x == t {
			return true
		}
	}
	return false
}

// MaterialFilter narrows material listings.
type MaterialFilter struct {
	CourseID      string
	Type          string
	IncludeDrafts bool
	Page          PageRequest
}

// MaterialPatch carries optional material updates.
type MaterialPatch struct {
	Title       *string
	Description *string
	Type        *string
	DueDate     *time.Time
	IsPublished *bool
}

// Notification types.
const (
	NotifyAnnouncement = "announcement"
	NotifyResult       = "result"
	NotifyEvent        = "event"
	NotifyEnrollment   = "enrollment"
	NotifySystem       = "system"
)

// ResourceRef points at the record a notification is about.
type ResourceRef struct {
	Type string `json:"resourceType"`
	ID   string `json:"resourceId"`
}

// Notification is an inbox entry for one recipient.
type Notification struct {
	ID              string       `json:"id"`
	RecipientID     string       `json:"recipientId"`
	Title           string       `json:"title"`
	Message         string       `json:"message"`
	Type            string       `json:"type"`
	RelatedResource *ResourceRef `json:"relatedResource,omitempty"`
	IsRead          bool         `json:"isRead"`
	ReadAt          *time.Time   `json:"readAt,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// UserFilter narrows admin user listings.
type UserFilter struct {
	Role   Role
	Active *bool
	Page   PageRequest
}

// AdminStats is the dashboard summary.
type AdminStats struct {
	Users struct {
		Total  int          `json:"total"`
		Active int          `json:"active"`
		ByRole map[Role]int `json:"byRole"`
	} `json:"users"`
	Courses struct {
		Total  int `json:"total"`
		Active int `json:"active"`
	} `json:"courses"`
	Enrollments struct {
		Total int `json:"total"`
	} `json:"enrollments"`
}

// Pagination defaults.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	// MaxPage keeps (Page-1)*Limit inside int32 range.
	MaxPage = math.MaxInt32 / MaxPageLimit
)

// PageRequest is a 1-based page selection.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize clamps the request to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// Pagination is the page metadata returned with listings.
type Pagination struct {
	Total       int `json:"total"`
	Pages       int `json:"pages"`
	CurrentPage int `json:"currentPage"`
	Limit       int `json:"limit"`
}

// PaginationFor builds page metadata for a total row count.
func PaginationFor(p PageRequest, total int) Pagination {
	n := p.Normalize()
	pages := 0
	if total > 0 {
		pages = (total + n.Limit - 1) / n.Limit
	}
	return Pagination{Total: total, Pages: pages, CurrentPage: n.Page, Limit: n.Limit}
}

// Paginate slices items for the requested page.
func Paginate[T any](items []T, p PageRequest) []T {
	off := p.Offset()
	if off < 0 || off >= len(items) {
		return []T{}
	}
	end := off + p.Normalize().Limit
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}

// ContainsRole reports whether roles includes r.
func ContainsRole(roles []Role, r Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
