package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/service"
)

// NotificationPage is the paginated list envelope
type NotificationPage struct {
	Count   int                 `json:"count"`
	Results []core.Notification `json:"results"`
}

// NotificationHandlers serve the REST fallback of the notification channel
type NotificationHandlers struct {
	notifications *service.NotificationService
}

func NewNotificationHandlers(notifications *service.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{notifications: notifications}
}

// List returns ?page=&per_page= of the caller's notifications
func (h *NotificationHandlers) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(service.DefaultPageSize)))

	items, total, err := h.notifications.List(c.Request.Context(), currentSession(c).AccountID, page, perPage)
	if err != nil {
		abortWithError(c, err)
		return
	}
	for i := range items {
		items[i].AccountID = ""
	}
	c.JSON(http.StatusOK, NotificationPage{Count: total, Results: items})
}

func (h *NotificationHandlers) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context(), currentSession(c).AccountID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), currentSession(c).AccountID, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *NotificationHandlers) MarkAllRead(c *gin.Context) {
	changed, err := h.notifications.MarkAllRead(c.Request.Context(), currentSession(c).AccountID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": changed})
}
