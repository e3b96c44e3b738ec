package routes

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	controller "leadflow/controllers"
	"leadflow/middleware"
	"leadflow/notify"
	"leadflow/store"
	"leadflow/utils"
)

// SetupRoutes wires every HTTP and websocket endpoint.
func SetupRoutes(app *fiber.App, db *gorm.DB, hub *notify.Hub, logger *logrus.Logger) {
	leadStore := &store.LeadStore{DB: db, Logger: logger}
	classStore := &store.ClassStore{DB: db, Logger: logger}

	leadController := controller.NewLeadController(db, leadStore, hub, logger)
	importController := controller.NewLeadImportController(db, leadStore, logger)
	classController := controller.NewClassController(db, classStore, hub, logger)
	dashboardController := controller.NewDashboardController(db, logger)
	notificationController := controller.NewNotificationController(db, hub, logger)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth endpoints
	auth := app.Group("/api/auth", fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	auth.Post("/login", middleware.LoginRateLimiter(), controller.Login)
	auth.Post("/logout", middleware.Protected(), controller.Logout)
	app.Post("/api/logout", middleware.Protected(), controller.Logout)
	auth.Get("/me", middleware.Protected(), controller.GetCurrentUser)
	auth.Post("/register", middleware.Protected(), controller.Register)

	// Everything below requires a session
	api := app.Group("/api", middleware.Protected(), fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Lead endpoints
	leads := api.Group("/leads")
	leads.Post("/", leadController.CreateLead)
	leads.Get("/", leadController.GetLeads)
	leads.Get("/export", leadController.ExportLeads)
	leads.Get("/:id", leadController.GetLead)
	leads.Put("/:id", leadController.UpdateLead)
	leads.Delete("/:id", leadController.DeleteLead)
	leads.Post("/:id/assign", leadController.AssignLead)
	leads.Post("/:id/pass-to-accounts", leadController.PassToAccounts)
	leads.Get("/:id/history", leadController.GetLeadHistory)

	// Caller-scoped listings
	my := api.Group("/my")
	my.Get("/leads", leadController.GetMyLeads)
	my.Get("/completed", leadController.GetMyCompleted)
	my.Get("/accounts-pending", leadController.GetMyAccountsPending)

	// Global audit ledger
	api.Get("/history/all", leadController.GetAllHistory)

	// Bulk CSV import
	api.Post("/upload-leads", importController.UploadLeads)

	// Class and student endpoints
	classes := api.Group("/classes")
	classes.Post("/", classController.CreateClass)
	classes.Get("/", classController.GetClasses)
	classes.Get("/:id", classController.GetClass)
	classes.Put("/:id", classController.UpdateClass)
	classes.Delete("/:id", classController.DeleteClass)
	classes.Post("/:id/students", classController.EnrollStudent)
	classes.Delete("/:id/students/:leadId", classController.WithdrawStudent)
	classes.Get("/:id/students", classController.GetRoster)
	classes.Post("/:id/assign-student-ids", classController.AssignStudentIDs)
	classes.Post("/:id/attendance", classController.MarkAttendance)
	classes.Get("/:id/attendance", classController.GetAttendance)
	classes.Post("/:id/marks", classController.UpsertMarks)
	classes.Get("/:id/marks", classController.GetMarks)

	// Dashboard
	api.Get("/dashboard/stats", dashboardController.GetStats)

	// Stored notifications
	api.Get("/notifications", notificationController.GetNotifications)
	api.Put("/notifications/:id/read", notificationController.MarkRead)

	// Websocket push stream
	ws := app.Group("/ws", middleware.Protected(), notificationController.UpgradeRequired)
	ws.Get("/notifications", notificationController.Stream())

	app.Use(func(c *fiber.Ctx) error {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Route not found", nil)
	})
}
