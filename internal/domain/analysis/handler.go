package analysis

import (
	"fmt"
	"io"
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
	api.POST("/analyses", h.Upload)
	api.GET("/analyses", h.List)
	api.GET("/analyses/:id", h.Get)
	api.GET("/analyses/:id/file", h.DownloadFile)
	api.DELETE("/analyses/:id", h.Delete)
}

// Upload accepts a multipart payload: patient (id), file (PDF/JPEG/PNG),
// optional title, ocr_language, order_id and strict flag.
func (h *Handler) Upload(c echo.Context) error {
	patientID, err := uuid.Parse(c.FormValue("patient"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read uploaded file")
	}

	in := UploadInput{
		PatientID:   patientID,
		OCRLanguage: c.FormValue("ocr_language"),
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Strict:      c.FormValue("strict") == "true",
		Content:     content,
	}
	if title := c.FormValue("title"); title != "" {
		in.Title = &title
	}
	if orderID := c.FormValue("order_id"); orderID != "" {
		in.OrderID = &orderID
	}

	a, err := h.svc.Upload(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// List returns the caller's own analyses, or a chosen patient's with
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

	analyses, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if analyses == nil {
		analyses = []*Analysis{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(analyses, total, pg))
}

func (h *Handler) DownloadFile(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	_, meta, content, err := h.svc.OpenFile(c.Request().Context(), id)
	if err != nil {
		return err
	}

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, meta.FileName))
	return c.Blob(http.StatusOK, meta.ContentType, content)
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
