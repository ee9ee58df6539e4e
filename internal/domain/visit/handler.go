package visit

import (
	"fmt"
	"net/http"
	"time"

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
	doc := api.Group("/doctors/:doctorId/visits", auth.RequireRole(auth.RoleDoctor))
	doc.POST("", h.CreateVisit)
	doc.GET("", h.ListDoctorVisits)
	doc.PUT("/:visitId/schedule", h.RescheduleVisit)
	doc.DELETE("/:visitId", h.CancelVisit)
	doc.POST("/:visitId/finish", h.FinishVisit)
	doc.POST("/:visitId/attachments", h.UploadAttachment)

	api.GET("/patients/:patientId/visits", h.ListPatientVisits, auth.RequireRole(auth.RolePatient))

	shared := api.Group("/visits", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	shared.GET("/:visitId", h.GetVisit)
	shared.GET("/:visitId/attachments/:attachmentId", h.DownloadAttachment)
}

type createVisitRequest struct {
	PatientID   uuid.UUID `json:"patient_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes"`
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type finishRequest struct {
	Lines []LineRequest `json:"lines"`
	Notes *string       `json:"notes"`
}

func actorOf(c echo.Context) (auth.Identity, error) {
	ident, ok := auth.IdentityFromContext(c.Request().Context())
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	return ident, nil
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// doctorVisit extracts the identity plus the :doctorId and :visitId params.
func doctorVisit(c echo.Context) (auth.Identity, uuid.UUID, uuid.UUID, error) {
	ident, err := actorOf(c)
	if err != nil {
		return ident, uuid.Nil, uuid.Nil, err
	}
	doctorID, err := uuidParam(c, "doctorId")
	if err != nil {
		return ident, uuid.Nil, uuid.Nil, err
	}
	visitID, err := uuidParam(c, "visitId")
	if err != nil {
		return ident, uuid.Nil, uuid.Nil, err
	}
	return ident, doctorID, visitID, nil
}

func (h *Handler) CreateVisit(c echo.Context) error {
	ident, err := actorOf(c)
	if err != nil {
		return err
	}
	doctorID, err := uuidParam(c, "doctorId")
	if err != nil {
		return err
	}
	var req createVisitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.Create(c.Request().Context(), ident, doctorID, req.PatientID, req.ScheduledAt, req.Notes)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) RescheduleVisit(c echo.Context) error {
	ident, doctorID, visitID, err := doctorVisit(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.Reschedule(c.Request().Context(), ident, doctorID, visitID, req.ScheduledAt)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) CancelVisit(c echo.Context) error {
	ident, doctorID, visitID, err := doctorVisit(c)
	if err != nil {
		return err
	}
	if err := h.svc.Cancel(c.Request().Context(), ident, doctorID, visitID); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) FinishVisit(c echo.Context) error {
	ident, doctorID, visitID, err := doctorVisit(c)
	if err != nil {
		return err
	}
	var req finishRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.Finish(c.Request().Context(), ident, doctorID, visitID, req.Lines, req.Notes)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetVisit(c echo.Context) error {
	ident, err := actorOf(c)
	if err != nil {
		return err
	}
	visitID, err := uuidParam(c, "visitId")
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), ident, visitID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListDoctorVisits(c echo.Context) error {
	ident, err := actorOf(c)
	if err != nil {
		return err
	}
	doctorID, err := uuidParam(c, "doctorId")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForDoctor(c.Request().Context(), ident, doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPatientVisits(c echo.Context) error {
	ident, err := actorOf(c)
	if err != nil {
		return err
	}
	patientID, err := uuidParam(c, "patientId")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), ident, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UploadAttachment(c echo.Context) error {
	ident, doctorID, visitID, err := doctorVisit(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	a, err := h.svc.AddAttachment(c.Request().Context(), ident, doctorID, visitID, Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Content:     f,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) DownloadAttachment(c echo.Context) error {
	ident, err := actorOf(c)
	if err != nil {
		return err
	}
	visitID, err := uuidParam(c, "visitId")
	if err != nil {
		return err
	}
	attachmentID, err := uuidParam(c, "attachmentId")
	if err != nil {
		return err
	}
	a, rc, err := h.svc.OpenAttachment(c.Request().Context(), ident, visitID, attachmentID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", a.FileName))
	return c.Stream(http.StatusOK, a.ContentType, rc)
}
