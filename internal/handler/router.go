package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/arvichandar/facemark-api/internal/middleware"
	"github.com/arvichandar/facemark-api/internal/models"
	"github.com/arvichandar/facemark-api/internal/service"
)

// Handlers bundles everything the router mounts. Audit builds a per-route
// audit middleware for admin mutations; nil disables auditing.
type Handlers struct {
	Auth       *AuthHandler
	Students   *StudentHandler
	Attendance *AttendanceHandler
	Settings   *SettingsHandler
	Health     *HealthHandler
	Photos     *PhotoHandler
	Audit      func(action, resource string) gin.HandlerFunc
}

// RegisterRoutes mounts the API surface under the given prefix. Admin-only
// routes carry an RBAC guard here; per-record student access is enforced a
// layer down by the gate service, which also re-checks the self-auth flag.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth *service.AuthService) {
	audit := h.Audit
	if audit == nil {
		audit = func(string, string) gin.HandlerFunc {
			return func(c *gin.Context) { c.Next() }
		}
	}

	r.GET("/healthz", h.Health.Live)
	r.GET("/readyz", h.Health.Ready)

	api := r.Group(prefix)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", middleware.JWT(auth), h.Auth.Logout)
		authGroup.GET("/me", middleware.JWT(auth), h.Auth.Me)
	}

	api.GET("/photos/:token", h.Photos.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(auth))

	students := protected.Group("/students")
	{
		students.POST("", middleware.RequireRoles(models.RoleAdmin), audit("student.register", "students"), h.Students.Register)
		students.GET("", middleware.RequireRoles(models.RoleAdmin), h.Students.List)
		students.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.SelfRole), h.Students.Get)
		students.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), audit("student.delete", "students"), h.Students.Delete)
		students.GET("/:id/history", middleware.RBAC(string(models.RoleAdmin), middleware.SelfRole), h.Students.History)
		students.GET("/:id/percentage", middleware.RBAC(string(models.RoleAdmin), middleware.SelfRole), h.Students.Percentage)
	}

	attendance := protected.Group("/attendance")
	{
		attendance.POST("/mark", h.Attendance.Mark)
		attendance.POST("/manual", middleware.RequireRoles(models.RoleAdmin), audit("attendance.manual_mark", "attendance"), h.Attendance.MarkManual)
		attendance.GET("/today", h.Attendance.Today)
		attendance.GET("", middleware.RequireRoles(models.RoleAdmin), h.Attendance.List)
		attendance.DELETE("", middleware.RequireRoles(models.RoleAdmin), audit("attendance.bulk_clear", "attendance"), h.Attendance.BulkDelete)
		attendance.GET("/export", middleware.RequireRoles(models.RoleAdmin), h.Attendance.Export)
		attendance.POST("/reconcile", middleware.RequireRoles(models.RoleAdmin), audit("attendance.reconcile", "attendance"), h.Attendance.Reconcile)
		attendance.GET("/reconcile/status", middleware.RequireRoles(models.RoleAdmin), h.Attendance.ReconcileStatus)
	}

	settings := protected.Group("/settings")
	{
		settings.GET("/student-auth", h.Settings.GetStudentAuth)
		settings.PUT("/student-auth", middleware.RequireRoles(models.RoleAdmin), audit("settings.student_auth_update", "feature_flags"), h.Settings.UpdateStudentAuth)
	}
}
