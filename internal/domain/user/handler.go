package user

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

// RegisterRoutes mounts the unauthenticated auth endpoints on public and the
// account endpoints on api.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/register", h.Register)
	public.POST("/auth/login", h.Login)
	public.POST("/auth/forgot-password", h.ForgotPassword)
	public.POST("/auth/reset-password", h.ResetPassword)

	api.GET("/users/me", h.Me)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.GET("/users", h.List)
	adminGroup.GET("/users/:id", h.Get)
	adminGroup.POST("/users", h.CreateWithRole)
	adminGroup.PATCH("/users/:id/role", h.ChangeRole)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	tenantID, _ := c.Get("tenant_id").(string)
	res, err := h.svc.Login(c.Request().Context(), in.Email, in.Password, tenantID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var in struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ForgotPassword(c.Request().Context(), in.Email); err != nil {
		return err
	}
	// Same response whether or not the account exists.
	return c.JSON(http.StatusOK, map[string]string{
		"message": "if the account exists, a reset link has been sent",
	})
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ResetPassword(c.Request().Context(), in.Token, in.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *Handler) Me(c echo.Context) error {
	id := auth.UserIDFromContext(c.Request().Context())
	if id == uuid.Nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	u, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	role := auth.Role(c.QueryParam("role"))

	users, total, err := h.svc.List(c.Request().Context(), role, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if users == nil {
		users = []*User{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg))
}

func (h *Handler) CreateWithRole(c echo.Context) error {
	var in struct {
		RegisterInput
		Role string `json:"role"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.CreateWithRole(c.Request().Context(), in.RegisterInput, auth.Role(in.Role))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ChangeRole(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ChangeRole(c.Request().Context(), id, auth.Role(in.Role)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
