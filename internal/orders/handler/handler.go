package handler

import (
	"errors"
	"strconv"

	identityrepo "appraisal_portal_backend/internal/identity/repository"
	"appraisal_portal_backend/internal/orders/domain"
	"appraisal_portal_backend/internal/orders/lifecycle"
	"appraisal_portal_backend/internal/orders/repository"
	"appraisal_portal_backend/internal/orders/routing"
	"appraisal_portal_backend/internal/orders/transport"
	"appraisal_portal_backend/platform/httpkit"
	"appraisal_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type HTTPHandler struct {
	repo      *repository.Repository
	lifecycle *lifecycle.Service
	routing   *routing.Service
	directory *identityrepo.Repository
	val       *validator.Validator
}

func NewHTTPHandler(repo *repository.Repository, lifecycleSvc *lifecycle.Service, routingSvc *routing.Service, directory *identityrepo.Repository, val *validator.Validator) *HTTPHandler {
	return &HTTPHandler{
		repo:      repo,
		lifecycle: lifecycleSvc,
		routing:   routingSvc,
		directory: directory,
		val:       val,
	}
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/actions", h.Actions)
	rg.GET("/:id/activity", h.Activity)
	rg.POST("/:id/transitions", h.Transition)
}

func (h *HTTPHandler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.PUT("/orders/:id/route", h.SetRoute)
	rg.POST("/orders/:id/route/steps/:idx/move", h.MoveRouteStep)
	rg.DELETE("/orders/:id/route/steps/:idx", h.RemoveRouteStep)
	rg.POST("/orders/:id/assign-next", h.AssignNext)
}

func (h *HTTPHandler) List(c *gin.Context) {
	if identity := httpkit.MustGetIdentity(c); identity == nil {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	items, err := h.repo.ListActive(c.Request.Context(), limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": items})
}

func (h *HTTPHandler) Get(c *gin.Context) {
	if identity := httpkit.MustGetIdentity(c); identity == nil {
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}

	order, err := h.repo.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, order)
}

// Actions returns the lifecycle actions the caller may take on the order in
// its current status. The UI renders exactly this list; the same table gates
// the transition endpoint, so the two can never disagree.
func (h *HTTPHandler) Actions(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}

	order, err := h.repo.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	role, ok := domain.PrimaryRole(identity.Roles())
	if !ok {
		httpkit.OK(c, gin.H{"actions": []lifecycle.Action{}})
		return
	}

	httpkit.OK(c, gin.H{"actions": lifecycle.AllowedActions(order.Status, role)})
}

func (h *HTTPHandler) Activity(c *gin.Context) {
	if identity := httpkit.MustGetIdentity(c); identity == nil {
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.repo.ListActivity(c.Request.Context(), id, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": items})
}

func (h *HTTPHandler) Transition(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, 400, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, 400, "invalid request body", err.Error())
		return
	}

	action, err := lifecycle.ParseAction(req.Action)
	if httpkit.HandleError(c, err) {
		return
	}

	role, ok := domain.PrimaryRole(identity.Roles())
	if !ok {
		httpkit.Error(c, 403, "no workflow role", nil)
		return
	}

	actor := lifecycle.Actor{ID: identity.UserID(), Role: role}
	if user, dirErr := h.directory.GetByID(c.Request.Context(), identity.UserID()); dirErr == nil {
		actor.Name = user.Name
	}

	order, err := h.lifecycle.ApplyTransition(c.Request.Context(), id, action, actor, lifecycle.Options{
		Note:            req.Note,
		ConfirmOverride: req.ConfirmOverride,
	})
	if err != nil {
		h.handleTransitionError(c, id, actor, req.Note, err)
		return
	}

	httpkit.OK(c, order)
}

// handleTransitionError maps lifecycle gating failures to responses that name
// the failed precondition. A note submitted with a rejected transition is
// still recorded so the comment is not lost.
func (h *HTTPHandler) handleTransitionError(c *gin.Context, orderID uuid.UUID, actor lifecycle.Actor, note *string, err error) {
	var illegal *lifecycle.IllegalTransitionError
	var needsConfirm *lifecycle.OverrideConfirmationRequiredError

	switch {
	case errors.As(err, &illegal):
		h.preserveNote(c, orderID, actor, note)
		httpkit.Error(c, 409, illegal.Error(), gin.H{
			"action": string(illegal.Action),
			"status": string(illegal.Status),
			"role":   string(illegal.Role),
		})
	case errors.As(err, &needsConfirm):
		h.preserveNote(c, orderID, actor, note)
		httpkit.Error(c, 409, needsConfirm.Error(), gin.H{
			"confirmOverride": true,
			"status":          string(needsConfirm.Status),
		})
	default:
		httpkit.HandleError(c, err)
	}
}

func (h *HTTPHandler) preserveNote(c *gin.Context, orderID uuid.UUID, actor lifecycle.Actor, note *string) {
	if note == nil || *note == "" {
		return
	}
	_, _ = h.repo.AppendActivity(c.Request.Context(), repository.AppendActivityParams{
		OrderID:   orderID,
		EventType: repository.EventTypeNoteAdded,
		ActorID:   actor.ID,
		Message:   note,
	})
}

func (h *HTTPHandler) SetRoute(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.SetRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, 400, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, 400, "invalid request body", err.Error())
		return
	}

	steps := make([]repository.RouteStep, 0, len(req.Steps))
	for _, step := range req.Steps {
		steps = append(steps, repository.RouteStep{ReviewerID: step.ReviewerID})
	}

	if err := h.routing.SetRoute(c.Request.Context(), id, steps); err != nil {
		h.handleRoutingError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"steps": steps})
}

func (h *HTTPHandler) MoveRouteStep(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		httpkit.Error(c, 400, "invalid step index", nil)
		return
	}

	var req transport.MoveStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, 400, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, 400, "invalid request body", err.Error())
		return
	}
	direction := 1
	if req.Direction == "up" {
		direction = -1
	}

	steps, err := h.routing.MoveRouteStep(c.Request.Context(), id, idx, direction)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"steps": steps})
}

func (h *HTTPHandler) RemoveRouteStep(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		httpkit.Error(c, 400, "invalid step index", nil)
		return
	}

	steps, err := h.routing.RemoveRouteStep(c.Request.Context(), id, idx)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"steps": steps})
}

func (h *HTTPHandler) AssignNext(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}

	req := transport.AssignNextRequest{}
	// The body is optional: with a planned route no reviewer is supplied.
	_ = c.ShouldBindJSON(&req)

	reviewer, err := h.routing.AssignNext(c.Request.Context(), id, identity.UserID(), req.ReviewerID)
	if err != nil {
		h.handleRoutingError(c, err)
		return
	}

	httpkit.OK(c, gin.H{
		"reviewerId":   reviewer.ID,
		"reviewerName": reviewer.Name,
	})
}

func (h *HTTPHandler) handleRoutingError(c *gin.Context, err error) {
	var invalid *routing.InvalidRouteError
	var assigned *routing.AlreadyAssignedError

	switch {
	case errors.As(err, &invalid):
		httpkit.Error(c, 422, invalid.Error(), nil)
	case errors.As(err, &assigned):
		httpkit.Error(c, 409, assigned.Error(), gin.H{"reviewerId": assigned.ReviewerID})
	default:
		httpkit.HandleError(c, err)
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, 400, "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}
