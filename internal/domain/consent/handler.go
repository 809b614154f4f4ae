package consent

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthvault/healthvault/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/consents", h.Grant)
	api.GET("/consents", h.List)
	api.GET("/consents/:id", h.Get)
	api.DELETE("/consents/:id", h.Revoke)
}

func (h *Handler) Grant(c echo.Context) error {
	var in GrantInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.Grant(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	consent, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, consent)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	if pid := c.QueryParam("patient_id"); pid != "" {
		patientID, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		consents, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
		if err != nil {
			return err
		}
		if consents == nil {
			consents = []*Consent{}
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(consents, total, pg))
	}

	consents, total, err := h.svc.ListMine(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if consents == nil {
		consents = []*Consent{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(consents, total, pg))
}

func (h *Handler) Revoke(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Revoke(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
