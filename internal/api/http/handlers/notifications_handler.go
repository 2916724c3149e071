package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ohd-platform/facility-helpdesk/internal/api/dto"
	"github.com/ohd-platform/facility-helpdesk/internal/service"
)

// NotificationsHandler serves a user's notification inbox.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /api/notifications/:userId.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	list, err := h.service.ListNotifications(c.UserContext(), actor, c.Params("userId"))
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, 0, len(list.Notifications))
	for _, n := range list.Notifications {
		items = append(items, dto.NewNotificationResponse(n))
	}
	return c.JSON(dto.NotificationListResponse{Count: list.Count, Notifications: items})
}

// UnreadCount GET /api/notifications/:userId/unread-count.
func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	count, err := h.service.UnreadCount(c.UserContext(), actor, c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"unreadCount": count})
}

// MarkRead PUT /api/notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.service.MarkRead(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// MarkAllRead PUT /api/notifications/:userId/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	updated, err := h.service.MarkAllRead(c.UserContext(), actor, c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updatedCount": updated})
}

// Delete DELETE /api/notifications/:id.
func (h *NotificationsHandler) Delete(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteNotification(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ClearAll DELETE /api/notifications/clear/:userId.
func (h *NotificationsHandler) ClearAll(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	deleted, err := h.service.ClearAll(c.UserContext(), actor, c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deletedCount": deleted})
}
