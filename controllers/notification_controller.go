package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"leadflow/models"
	"leadflow/notify"
	"leadflow/utils"
)

type NotificationController struct {
	DB     *gorm.DB
	Hub    *notify.Hub
	Logger *logrus.Logger
}

func NewNotificationController(db *gorm.DB, hub *notify.Hub, logger *logrus.Logger) *NotificationController {
	return &NotificationController{DB: db, Hub: hub, Logger: logger}
}

// UpgradeRequired rejects plain HTTP requests to the websocket endpoint.
// Runs after auth so the handler can read the user from locals.
func (nc *NotificationController) UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Stream registers the connection with the hub and blocks reading until
// the client disconnects. Incoming messages are discarded; the socket is
// push-only.
func (nc *NotificationController) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		user, ok := conn.Locals("user").(*models.User)
		if !ok {
			conn.Close()
			return
		}

		id := nc.Hub.Register(conn, user.Role)
		nc.Logger.WithFields(logrus.Fields{
			"client_id": id,
			"user_id":   user.ID,
			"role":      user.Role,
		}).Info("notification client connected")

		defer func() {
			nc.Hub.Unregister(id)
			conn.Close()
			nc.Logger.WithField("client_id", id).Info("notification client disconnected")
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}

// GetNotifications lists the stored notifications for the caller, newest
// first.
func (nc *NotificationController) GetNotifications(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, limit, offset := utils.Pagination(c)

	query := nc.DB.Model(&models.Notification{}).
		Where("role = ? OR role = ''", user.Role)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count notifications", err)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&notifications).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch notifications", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  notifications,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// MarkRead marks one notification as read.
func (nc *NotificationController) MarkRead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	result := nc.DB.Model(&models.Notification{}).
		Where("id = ? AND (role = ? OR role = '')", id, user.Role).
		Update("is_read", true)
	if result.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update notification", result.Error)
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Notification not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Notification marked read",
	}))
}
