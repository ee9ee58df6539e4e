package catalog

import (
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	catalog *Catalog
}

func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/doctors/:doctorId/services", auth.RequireRole(auth.RoleDoctor))
	g.POST("", h.CreateService)
	g.GET("", h.ListServices)
	g.PUT("/:name", h.UpdatePrice)
}

type createServiceRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type updatePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

func actorAndDoctor(c echo.Context) (auth.Identity, uuid.UUID, error) {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return auth.Identity{}, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return auth.Identity{}, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	return ident, doctorID, nil
}

func (h *Handler) CreateService(c echo.Context) error {
	ident, doctorID, err := actorAndDoctor(c)
	if err != nil {
		return err
	}
	var req createServiceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	svc, err := h.catalog.CreateService(c.Request().Context(), ident, doctorID, req.Name, req.Price)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, svc)
}

func (h *Handler) ListServices(c echo.Context) error {
	ident, doctorID, err := actorAndDoctor(c)
	if err != nil {
		return err
	}
	list, err := h.catalog.ListServices(c.Request().Context(), ident, doctorID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) UpdatePrice(c echo.Context) error {
	ident, doctorID, err := actorAndDoctor(c)
	if err != nil {
		return err
	}
	var req updatePriceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid service name")
	}
	svc, err := h.catalog.UpdatePrice(c.Request().Context(), ident, doctorID, name, req.Price)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, svc)
}
