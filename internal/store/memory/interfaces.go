package memory

import (
	"github.com/phasehumans/campus-portal-api/internal/admin"
	"github.com/phasehumans/campus-portal-api/internal/announcement"
	"github.com/phasehumans/campus-portal-api/internal/attendance"
	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/course"
	"github.com/phasehumans/campus-portal-api/internal/enrollment"
	"github.com/phasehumans/campus-portal-api/internal/event"
	"github.com/phasehumans/campus-portal-api/internal/material"
	"github.com/phasehumans/campus-portal-api/internal/notification"
	"github.com/phasehumans/campus-portal-api/internal/result"
)

var (
	_ auth.Store                 = (*Store)(nil)
	_ course.Store               = (*Store)(nil)
	_ enrollment.Store           = (*Store)(nil)
	_ attendance.Store           = (*Store)(nil)
	_ result.Store               = (*Store)(nil)
	_ announcement.Store         = (*Store)(nil)
	_ event.Store                = (*Store)(nil)
	_ material.Store             = (*Store)(nil)
	_ notification.InboxStore    = (*Store)(nil)
	_ notification.DeliveryStore = (*Store)(nil)
	_ admin.Store                = (*Store)(nil)
)
