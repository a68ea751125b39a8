// Package app assembles the domain services over a storage backend.
package app

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/phasehumans/campus-portal-api/internal/admin"
	"github.com/phasehumans/campus-portal-api/internal/announcement"
	"github.com/phasehumans/campus-portal-api/internal/attendance"
	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/course"
	"github.com/phasehumans/campus-portal-api/internal/enrollment"
	"github.com/phasehumans/campus-portal-api/internal/event"
	"github.com/phasehumans/campus-portal-api/internal/filestore"
	"github.com/phasehumans/campus-portal-api/internal/httpapi"
	"github.com/phasehumans/campus-portal-api/internal/material"
	"github.com/phasehumans/campus-portal-api/internal/notification"
	"github.com/phasehumans/campus-portal-api/internal/result"
	"github.com/phasehumans/campus-portal-api/internal/store/memory"
)

// Stores holds one storage implementation per service.
type Stores struct {
	Auth          auth.Store
	Courses       course.Store
	Enrollments   enrollment.Store
	Attendance    attendance.Store
	Results       result.Store
	Announcements announcement.Store
	Events        event.Store
	Materials     material.Store
	Inbox         notification.InboxStore
	Delivery      notification.DeliveryStore
	Admin         admin.Store
}

// Postgres returns repositories over db.
func Postgres(db *sql.DB) Stores {
	notes := notification.NewRepository(db)
	return Stores{
		Auth:          auth.NewRepository(db),
		Courses:       course.NewRepository(db),
		Enrollments:   enrollment.NewRepository(db),
		Attendance:    attendance.NewRepository(db),
		Results:       result.NewRepository(db),
		Announcements: announcement.NewRepository(db),
		Events:        event.NewRepository(db),
		Materials:     material.NewRepository(db),
		Inbox:         notes,
		Delivery:      notes,
		Admin:         admin.NewRepository(db),
	}
}

// Memory returns every store backed by one in-process store.
func Memory(m *memory.Store) Stores {
	return Stores{
		Auth:          m,
		Courses:       m,
		Enrollments:   m,
		Attendance:    m,
		Results:       m,
		Announcements: m,
		Events:        m,
		Materials:     m,
		Inbox:         m,
		Delivery:      m,
		Admin:         m,
	}
}

// Options are the knobs shared by the services.
type Options struct {
	SigningKey string
	Issuer     string
	AccessTTL  time.Duration
	APIKeyTTL  time.Duration
	Location   *time.Location
	Hasher     auth.Hasher
	Notifier   notification.Notifier
	Uploader   filestore.Uploader
	Now        func() time.Time
	Logger     *slog.Logger
}

// Services builds every domain service.
func Services(st Stores, o Options) httpapi.Services {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	signer := auth.NewSigner(o.SigningKey, o.Issuer, o.AccessTTL)
	return httpapi.Services{
		Auth:          auth.NewService(st.Auth, o.Hasher, signer, o.APIKeyTTL, o.Now, o.Logger),
		Courses:       course.NewService(st.Courses, o.Now, o.Logger),
		Enrollments:   enrollment.NewService(st.Enrollments, o.Notifier, o.Now, o.Logger),
		Attendance:    attendance.NewService(st.Attendance, o.Location, o.Now, o.Logger),
		Results:       result.NewService(st.Results, o.Notifier, o.Now, o.Logger),
		Announcements: announcement.NewService(st.Announcements, o.Notifier, o.Now, o.Logger),
		Events:        event.NewService(st.Events, o.Notifier, o.Now, o.Logger),
		Materials:     material.NewService(st.Materials, o.Uploader, o.Now, o.Logger),
		Notifications: notification.NewService(st.Inbox, o.Now, o.Logger),
		Admin:         admin.NewService(st.Admin, o.Now, o.Logger),
	}
}
