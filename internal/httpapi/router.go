// Package httpapi is the REST surface of the campus portal. Handlers bind and validate
// requests, call one service operation and render the standard envelope.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phasehumans/campus-portal-api/internal/admin"
	"github.com/phasehumans/campus-portal-api/internal/announcement"
	"github.com/phasehumans/campus-portal-api/internal/attendance"
	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/course"
	"github.com/phasehumans/campus-portal-api/internal/enrollment"
	"github.com/phasehumans/campus-portal-api/internal/event"
	"github.com/phasehumans/campus-portal-api/internal/httpmiddleware"
	"github.com/phasehumans/campus-portal-api/internal/material"
	"github.com/phasehumans/campus-portal-api/internal/notification"
	"github.com/phasehumans/campus-portal-api/internal/result"
)

// Services are the domain operations exposed over HTTP.
type Services struct {
	Auth          *auth.Service
	Courses       *course.Service
	Enrollments   *enrollment.Service
	Attendance    *attendance.Service
	Results       *result.Service
	Announcements *announcement.Service
	Events        *event.Service
	Materials     *material.Service
	Notifications *notification.Service
	Admin         *admin.Service
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Config wires the router.
type Config struct {
	Services       Services
	Logger         *slog.Logger
	Limiter        httpmiddleware.Limiter
	RequestTimeout time.Duration
	AllowOrigins   []string
	Health         map[string]HealthCheck
}

type api struct {
	Services
	health map[string]HealthCheck
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{Services: cfg.Services, health: cfg.Health}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(httpmiddleware.Metrics())
	r.Use(cors.New(corsConfig(cfg.AllowOrigins)))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.Timeout(cfg.RequestTimeout))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", a.healthz)

	requireAuth := auth.Require(a.Auth, writeError)
	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.Limiter != nil {
		limit = httpmiddleware.RateLimit(cfg.Limiter, auth.PrincipalFrom)
	}

	v1 := r.Group("/api")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", limit, auth.Optional(a.Auth, writeError), a.register)
	authGroup.POST("/login", limit, a.login)

	secured := v1.Group("", requireAuth, limit)

	me := secured.Group("/auth")
	me.GET("/me", a.me)
	me.PUT("/me", a.updateProfile)
	me.POST("/api-key", a.createAPIKey)
	me.GET("/api-keys", a.listAPIKeys)
	me.DELETE("/api-keys/:id", a.revokeAPIKey)

	courses := secured.Group("/courses")
	courses.GET("", a.listCourses)
	courses.POST("", a.createCourse)
	courses.GET("/:id", a.getCourse)
	courses.PUT("/:id", a.updateCourse)
	courses.DELETE("/:id", a.deleteCourse)
	courses.POST("/:id/enroll", a.enroll)
	courses.DELETE("/:id/drop", a.drop)
	courses.GET("/:id/materials", a.listMaterials)
	courses.POST("/:id/materials", a.createMaterial)
	courses.GET("/:id/materials/:materialId", a.getMaterial)
	courses.GET("/:id/materials/:materialId/download", a.downloadMaterial)
	courses.PUT("/:id/materials/:materialId", a.updateMaterial)
	courses.DELETE("/:id/materials/:materialId", a.deleteMaterial)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("/my-enrollments", a.myEnrollments)
	enrollments.GET("/course/:id", a.courseEnrollments)
	enrollments.GET("/course/:id/stats", a.enrollmentStats)
	enrollments.PUT("/:id", a.updateEnrollment)

	att := secured.Group("/attendance")
	att.POST("", a.markAttendance)
	att.POST("/bulk", a.bulkMarkAttendance)
	att.GET("/records", a.listAttendance)
	att.GET("/student/:studentId/course/:courseId", a.studentCourseAttendance)
	att.PUT("/:id", a.updateAttendance)
	att.DELETE("/:id", a.deleteAttendance)

	results := secured.Group("/results")
	results.GET("", a.listResults)
	results.POST("", a.createResult)
	results.POST("/publish", a.publishResults)
	results.GET("/student/:id", a.studentResults)
	results.GET("/:id", a.getResult)
	results.PUT("/:id", a.updateResult)
	results.DELETE("/:id", a.deleteResult)

	ann := secured.Group("/announcements")
	ann.GET("", a.listAnnouncements)
	ann.POST("", a.createAnnouncement)
	ann.GET("/:id", a.getAnnouncement)
	ann.PUT("/:id", a.updateAnnouncement)
	ann.DELETE("/:id", a.deleteAnnouncement)

	events := secured.Group("/events")
	events.GET("", a.listEvents)
	events.POST("", a.createEvent)
	events.GET("/:id", a.getEvent)
	events.PUT("/:id", a.updateEvent)
	events.DELETE("/:id", a.deleteEvent)
	events.POST("/:id/register", a.registerForEvent)
	events.DELETE("/:id/register", a.unregisterFromEvent)

	notes := secured.Group("/notifications")
	notes.GET("", a.listNotifications)
	notes.PUT("/mark-all-read", a.markAllNotificationsRead)
	notes.PUT("/:id/read", a.markNotificationRead)
	notes.DELETE("/:id", a.deleteNotification)

	adm := secured.Group("/admin")
	adm.GET("/users", a.listUsers)
	adm.GET("/users/:id", a.getUser)
	adm.PUT("/users/:id/role", a.changeRole)
	adm.PUT("/users/:id/activate", a.activateUser)
	adm.PUT("/users/:id/deactivate", a.deactivateUser)
	adm.GET("/stats", a.adminStats)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, envelope{Message: "route not found", Code: "NOT_FOUND", Timestamp: time.Now().UTC()})
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", auth.HeaderAPIKey, httpmiddleware.RequestIDHeader},
		ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func (a *api) healthz(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, check := range a.health {
		ok := check(c.Request.Context())
		checks[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks, "timestamp": time.Now().UTC()})
}
