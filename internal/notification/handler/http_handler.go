package handler

import (
	"strconv"
	"time"

	"appraisal_portal_backend/internal/notification/inapp"
	"appraisal_portal_backend/internal/notification/outbox"
	"appraisal_portal_backend/internal/notification/prefs"
	"appraisal_portal_backend/platform/apperr"
	"appraisal_portal_backend/platform/httpkit"
	"appraisal_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type HTTPHandler struct {
	svc      *inapp.Service
	prefRepo *prefs.Repository
	outbox   *outbox.Repository
	val      *validator.Validator
}

func NewHTTPHandler(svc *inapp.Service, prefRepo *prefs.Repository, outboxRepo *outbox.Repository, val *validator.Validator) *HTTPHandler {
	return &HTTPHandler{svc: svc, prefRepo: prefRepo, outbox: outboxRepo, val: val}
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/unread", h.Unread)
	rg.PATCH("/:id/read", h.MarkRead)
	rg.PATCH("/read-all", h.MarkAllRead)
	rg.DELETE("/:id", h.Delete)
}

func (h *HTTPHandler) RegisterPreferenceRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.GetPreferences)
	rg.PUT("", h.PutPreferences)
}

func (h *HTTPHandler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/outbox/:id/requeue", h.RequeueOutbox)
}

func (h *HTTPHandler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, total, err := h.svc.List(c.Request.Context(), identity.UserID(), page, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"items": items,
		"total": total,
		"page":  page,
	})
}

// Unread returns the unread count together with the DND/Snooze suppression
// flag. Suppression is evaluated at read time only; rows are never dropped.
func (h *HTTPHandler) Unread(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	badge, err := h.svc.Unread(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, badge)
}

func (h *HTTPHandler) MarkRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, 400, "invalid id", nil)
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), identity.UserID(), id); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}

func (h *HTTPHandler) MarkAllRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.svc.MarkAllRead(c.Request.Context(), identity.UserID()); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}

func (h *HTTPHandler) Delete(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, 400, "invalid id", nil)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), identity.UserID(), id); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}

type preferencePayload struct {
	DNDEnabled     bool                            `json:"dndEnabled"`
	DNDStartMinute int                             `json:"dndStartMinute" validate:"gte=0,lt=1440"`
	DNDEndMinute   int                             `json:"dndEndMinute" validate:"gte=0,lt=1440"`
	SnoozeUntil    *time.Time                      `json:"snoozeUntil"`
	SelfActions    bool                            `json:"selfActions"`
	Categories     map[string]prefs.ChannelToggles `json:"categories"`
}

func (h *HTTPHandler) GetPreferences(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	pref, err := h.prefRepo.Get(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, preferencePayload{
		DNDEnabled:     pref.DNDEnabled,
		DNDStartMinute: pref.DNDStartMinute,
		DNDEndMinute:   pref.DNDEndMinute,
		SnoozeUntil:    pref.SnoozeUntil,
		SelfActions:    pref.SelfActions,
		Categories:     pref.Categories,
	})
}

func (h *HTTPHandler) PutPreferences(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var body preferencePayload
	if err := c.ShouldBindJSON(&body); err != nil {
		httpkit.Error(c, 400, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(body); err != nil {
		httpkit.Error(c, 400, "invalid request body", err.Error())
		return
	}

	pref := prefs.Preference{
		UserID:         identity.UserID(),
		DNDEnabled:     body.DNDEnabled,
		DNDStartMinute: body.DNDStartMinute,
		DNDEndMinute:   body.DNDEndMinute,
		SnoozeUntil:    body.SnoozeUntil,
		SelfActions:    body.SelfActions,
		Categories:     body.Categories,
	}
	if err := h.prefRepo.Upsert(c.Request.Context(), pref); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "ok"})
}

// RequeueOutbox resets one failed outbox row to pending. Failed emails are
// retried only through this explicit admin action.
func (h *HTTPHandler) RequeueOutbox(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, 400, "invalid id", nil)
		return
	}

	if err := h.outbox.Requeue(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, apperr.Conflict(err.Error()))
		return
	}

	httpkit.OK(c, gin.H{"status": "requeued"})
}
