package treatment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/johaanq/oncontrol-backend/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/treatments")

	// Reads: doctor, patient or organization
	readGroup := g.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePatient, auth.RoleOrganization))
	readGroup.GET("/:id", h.GetTreatment)
	readGroup.GET("/:id/sessions", h.ListSessions)
	readGroup.GET("/doctor/:doctorId", h.ListByDoctor)
	readGroup.GET("/doctor/:doctorId/stats", h.GetStats)
	readGroup.GET("/patient/:patientId", h.ListByPatient)
	readGroup.GET("/patient/:patientId/current", h.GetCurrent)
	readGroup.GET("/patient/:patientId/sessions/upcoming", h.ListUpcomingSessions)

	// Writes: doctor only
	writeGroup := g.Group("", auth.RequireRole(auth.RoleDoctor))
	writeGroup.POST("/doctor/:doctorId/patient/:patientId", h.CreateTreatment)
	writeGroup.PUT("/:id", h.UpdateTreatment)
	writeGroup.PATCH("/:id/status", h.UpdateStatus)
	writeGroup.DELETE("/:id", h.DiscontinueTreatment)
	writeGroup.POST("/:id/sessions", h.RegisterSession)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// readError maps lookups: a missing record is 404.
func (h *Handler) readError(c echo.Context, err error, notFound string) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	}
	return h.internalError(c, err)
}

// writeError maps mutations: unresolvable references and rule violations are 400.
func (h *Handler) writeError(c echo.Context, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.internalError(c, err)
}

func (h *Handler) internalError(c echo.Context, err error) error {
	rid, _ := c.Get("request_id").(string)
	h.logger.Error().Err(err).
		Str("request_id", rid).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Msg("treatment request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// -- Treatment Handlers --

func (h *Handler) CreateTreatment(c echo.Context) error {
	doctorID, err := parseID(c, "doctorId")
	if err != nil {
		return err
	}
	patientID, err := parseID(c, "patientId")
	if err != nil {
		return err
	}
	var in CreateTreatmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.CreateTreatment(c.Request().Context(), doctorID, patientID, in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTreatment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTreatment(c.Request().Context(), id)
	if err != nil {
		return h.readError(c, err, "treatment not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	doctorID, err := parseID(c, "doctorId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListByDoctor(c.Request().Context(), doctorID)
	if err != nil {
		return h.internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"treatments": items, "count": len(items)})
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := parseID(c, "patientId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return h.internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"treatments": items, "count": len(items)})
}

func (h *Handler) GetCurrent(c echo.Context) error {
	patientID, err := parseID(c, "patientId")
	if err != nil {
		return err
	}
	t, err := h.svc.CurrentForPatient(c.Request().Context(), patientID)
	if err != nil {
		return h.readError(c, err, "no active treatment found for patient")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTreatment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateTreatmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.UpdateTreatment(c.Request().Context(), id, in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

type statusRequest struct {
	Status Status  `json:"status"`
	Reason *string `json:"reason"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status, req.Reason)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

type discontinueRequest struct {
	Reason string `json:"reason" query:"reason"`
}

func (h *Handler) DiscontinueTreatment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req discontinueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.DiscontinueTreatment(c.Request().Context(), id, req.Reason)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetStats(c echo.Context) error {
	doctorID, err := parseID(c, "doctorId")
	if err != nil {
		return err
	}
	st, err := h.svc.Stats(c.Request().Context(), doctorID)
	if err != nil {
		return h.internalError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// -- Session Handlers --

func (h *Handler) RegisterSession(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in RegisterSessionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s, err := h.svc.RegisterSession(c.Request().Context(), id, in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) ListSessions(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListSessions(c.Request().Context(), id)
	if err != nil {
		return h.internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": items, "count": len(items)})
}

func (h *Handler) ListUpcomingSessions(c echo.Context) error {
	patientID, err := parseID(c, "patientId")
	if err != nil {
		return err
	}
	items, err := h.svc.UpcomingSessions(c.Request().Context(), patientID)
	if err != nil {
		return h.internalError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": items, "count": len(items)})
}
