package apperr

import (
	"errors"
	"fmt"
)

// Kind groups errors by how the transport should render them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	}
	return "internal"
}

// Error is a typed domain failure with a stable machine code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so callers can compare against sentinels
// even when the message was customised.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidCredentials  = newErr(KindUnauthenticated, "INVALID_CREDENTIALS", "invalid email or password")
	ErrAccountInactive     = newErr(KindUnauthenticated, "ACCOUNT_INACTIVE", "account is deactivated")
	ErrInvalidKey          = newErr(KindUnauthenticated, "INVALID_API_KEY", "invalid or expired API key")
	ErrUnauthenticated     = newErr(KindUnauthenticated, "UNAUTHENTICATED", "authentication required")
	ErrForbidden           = newErr(KindForbidden, "FORBIDDEN", "not permitted")
	ErrNotFound            = newErr(KindNotFound, "NOT_FOUND", "not found")
	ErrEmailTaken          = newErr(KindConflict, "EMAIL_TAKEN", "email already registered")
	ErrCourseCodeTaken     = newErr(KindConflict, "COURSE_CODE_TAKEN", "course code already exists")
	ErrCourseFull          = newErr(KindConflict, "COURSE_FULL", "course is full")
	ErrAlreadyEnrolled     = newErr(KindConflict, "ALREADY_ENROLLED", "already enrolled in this course")
	ErrDuplicateAttendance = newErr(KindConflict, "DUPLICATE_ATTENDANCE", "attendance already marked for this day")
	ErrDuplicateResult     = newErr(KindConflict, "DUPLICATE_RESULT", "result already exists for this student, course and semester")
	ErrResultPublished     = newErr(KindConflict, "RESULT_ALREADY_PUBLISHED", "result is published and can no longer be changed")
	ErrEventFull           = newErr(KindConflict, "EVENT_FULL", "event is full")
	ErrAlreadyRegistered   = newErr(KindConflict, "ALREADY_REGISTERED", "already registered for this event")
	ErrValidation          = newErr(KindValidation, "VALIDATION_FAILED", "validation failed")
	ErrInternal            = newErr(KindInternal, "INTERNAL", "internal server error")
)

// NotFound returns a not-found error naming the missing resource.
func NotFound(resource string) *Error {
	return newErr(KindNotFound, ErrNotFound.Code, resource+" not found")
}

// Forbidden returns a forbidden error with a reason.
func Forbidden(reason string) *Error {
	if reason == "" {
		reason = ErrForbidden.Message
	}
	return newErr(KindForbidden, ErrForbidden.Code, reason)
}

// Validation returns a validation error carrying field level messages.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: ErrValidation.Code, Message: ErrValidation.Message, Fields: fields}
}

// Invalid is shorthand for a single-field validation error.
func Invalid(field, msg string) *Error {
	return Validation(map[string]string{field: msg})
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: ErrInternal.Code, Message: ErrInternal.Message, Err: err}
}

// KindOf reports the kind of err. Unknown errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine code of err, or INTERNAL.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}
