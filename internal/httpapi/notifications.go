package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/auth"
)

func (a *api) listNotifications(c *gin.Context) {
	inbox, pg, err := a.Notifications.List(c.Request.Context(), auth.PrincipalFrom(c), c.Query("unread") == "true", page(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "notifications retrieved successfully", inbox, pg)
}

func (a *api) markNotificationRead(c *gin.Context) {
	n, err := a.Notifications.MarkRead(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "notification marked as read", n)
}

func (a *api) markAllNotificationsRead(c *gin.Context) {
	n, err := a.Notifications.MarkAllRead(c.Request.Context(), auth.PrincipalFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "all notifications marked as read", gin.H{"updated": n})
}

func (a *api) deleteNotification(c *gin.Context) {
	if err := a.Notifications.Delete(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "notification deleted successfully", nil)
}
