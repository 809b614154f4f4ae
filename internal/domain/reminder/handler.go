package reminder

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthvault/healthvault/internal/platform/auth"
	"github.com/healthvault/healthvault/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/reminders", h.Create)
	api.GET("/reminders", h.List)
	api.GET("/reminders/:id", h.Get)
	api.PUT("/reminders/:id", h.Update)
	api.DELETE("/reminders/:id", h.Delete)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/reminders/dispatch", h.Dispatch)
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

// List returns the caller's own reminders, or a chosen patient's with
// patient_id (subject to consent).
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	patientID := auth.UserIDFromContext(c.Request().Context())
	if pid := c.QueryParam("patient_id"); pid != "" {
		parsed, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = parsed
	}

	reminders, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if reminders == nil {
		reminders = []*Reminder{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(reminders, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Dispatch triggers a due-reminder sweep. Admin only; deployments without a
// scheduler can call this from cron.
func (h *Handler) Dispatch(c echo.Context) error {
	sent, err := h.svc.DispatchDue(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"sent": sent})
}
