package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/authz"
	"leadflow/models"
	"leadflow/utils"
)

type DashboardController struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewDashboardController(db *gorm.DB, logger *logrus.Logger) *DashboardController {
	return &DashboardController{DB: db, Logger: logger}
}

type statusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type ownerCount struct {
	OwnerID   uint   `json:"owner_id"`
	OwnerName string `json:"owner_name"`
	Count     int64  `json:"count"`
}

// GetStats returns pipeline-wide counts for the manager dashboard.
func (dc *DashboardController) GetStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	allowed, err := authz.Can(dc.DB, user, authz.DashboardView, nil)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Authorization check failed", err)
	}
	if !allowed {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You may not view the dashboard", nil)
	}

	var total, unassigned int64
	if err := dc.DB.Model(&models.Lead{}).Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute stats", err)
	}
	if err := dc.DB.Model(&models.Lead{}).Where("current_owner_id IS NULL").Count(&unassigned).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute stats", err)
	}

	var byStatus []statusCount
	if err := dc.DB.Model(&models.Lead{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("count DESC").
		Scan(&byStatus).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute stats", err)
	}

	var byOwner []ownerCount
	if err := dc.DB.Model(&models.Lead{}).
		Select("leads.current_owner_id as owner_id, users.name as owner_name, COUNT(*) as count").
		Joins("JOIN users ON users.id = leads.current_owner_id").
		Where("leads.current_owner_id IS NOT NULL").
		Group("leads.current_owner_id, users.name").
		Order("count DESC").
		Scan(&byOwner).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute stats", err)
	}

	var activeClasses, enrolledStudents int64
	if err := dc.DB.Model(&models.Class{}).Where("is_active = ?", true).Count(&activeClasses).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute stats", err)
	}
	if err := dc.DB.Model(&models.ClassStudent{}).Count(&enrolledStudents).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute stats", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"total_leads":       total,
		"unassigned_leads":  unassigned,
		"by_status":         byStatus,
		"by_owner":          byOwner,
		"active_classes":    activeClasses,
		"enrolled_students": enrolledStudents,
	}))
}
