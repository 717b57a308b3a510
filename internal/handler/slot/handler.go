package slot

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odontoapp/booking-api/internal/handler"
	"github.com/odontoapp/booking-api/internal/middleware"
	"github.com/odontoapp/booking-api/internal/model"
	slotService "github.com/odontoapp/booking-api/internal/service/slot"
)

type Handler struct {
	service  *slotService.Service
	validate *validator.Validate
}

func NewHandler(service *slotService.Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

// CreateSlot opens a new bookable slot for the authenticated provider.
func (h *Handler) CreateSlot(c *gin.Context) {
	var req model.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.CreateSlot(c.Request.Context(), middleware.CallerID(c), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

// ListAvailable is public: patients browse open slots, optionally narrowed
// by provider and/or date.
func (h *Handler) ListAvailable(c *gin.Context) {
	filters := &model.SlotFilters{}

	if provider := c.Query("provider"); provider != "" {
		providerID, err := uuid.Parse(provider)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid provider ID"))
			return
		}
		filters.ProviderID = &providerID
	}

	filters.Date = c.Query("date")

	slots, err := h.service.ListAvailable(c.Request.Context(), filters)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(slots))
}

// ClaimSlot books an available slot for the authenticated patient.
func (h *Handler) ClaimSlot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid slot ID"))
		return
	}

	booked, err := h.service.ClaimSlot(c.Request.Context(), id, middleware.CallerID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(booked))
}

// RemoveSlot deletes an unbooked slot owned by the authenticated provider.
func (h *Handler) RemoveSlot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid slot ID"))
		return
	}

	if err := h.service.RemoveSlot(c.Request.Context(), id, middleware.CallerID(c)); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

// ListMine returns the caller's slots (provider) or appointments (patient).
func (h *Handler) ListMine(c *gin.Context) {
	slots, err := h.service.ListMine(c.Request.Context(), middleware.CallerID(c), middleware.CallerRole(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(slots))
}

// CancelAppointment cancels a booked appointment on behalf of either party.
func (h *Handler) CancelAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	var req model.CancelAppointmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
			return
		}
		if err := h.validate.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
			return
		}
	}

	updated, err := h.service.CancelAppointment(c.Request.Context(),
		id, middleware.CallerID(c), middleware.CallerRole(c), req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}

func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	public.GET("/slots", h.ListAvailable)

	slots := protected.Group("/slots")
	{
		slots.POST("", auth.RequireRole(model.RoleProvider), h.CreateSlot)
		slots.PATCH("/:id/claim", auth.RequireRole(model.RolePatient), h.ClaimSlot)
		slots.DELETE("/:id", auth.RequireRole(model.RoleProvider), h.RemoveSlot)
	}

	appointments := protected.Group("/appointments")
	{
		appointments.GET("/mine", h.ListMine)
		appointments.PATCH("/:id/cancel", h.CancelAppointment)
	}
}
