package linkage

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/links", h.LinkPatient, auth.RequireRole(auth.RolePatient))
	api.GET("/doctors/:doctorId/patients", h.ListPatients, auth.RequireRole(auth.RoleDoctor))
	api.GET("/patients/:patientId/doctors", h.ListDoctors, auth.RequireRole(auth.RolePatient))
}

type linkRequest struct {
	DoctorCode string `json:"doctor_code"`
}

func (h *Handler) LinkPatient(c echo.Context) error {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	var req linkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l, err := h.svc.LinkPatient(c.Request().Context(), ident, req.DoctorCode)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) ListPatients(c echo.Context) error {
	return h.list(c, "doctorId", h.svc.ListPatients)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	return h.list(c, "patientId", h.svc.ListDoctors)
}

type listFunc func(ctx context.Context, actor auth.Identity, id uuid.UUID, limit, offset int) ([]*Counterpart, int, error)

func (h *Handler) list(c echo.Context, param string, fn listFunc) error {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := fn(c.Request().Context(), ident, id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
