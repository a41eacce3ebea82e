package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/johaanq/oncontrol-backend/internal/platform/auth"
)

// AuditEntry records who touched which clinical record.
type AuditEntry struct {
	RequestID   string
	TenantID    string
	UserID      string
	UserRoles   []string
	ProfileID   string
	Resource    string
	TreatmentID string
	PatientID   string
	DoctorID    string
	Action      string
	Method      string
	Route       string
	RemoteIP    string
	Status      int
}

// Audit logs an access event for every /api/v1 request after the handler ran.
// Record identifiers come from the matched route parameters.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	logger = logger.With().Str("type", "audit").Logger()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !strings.HasPrefix(c.Request().URL.Path, "/api/v1/") {
				return next(c)
			}
			err := next(c)

			e := buildAuditEntry(c, statusOf(c, err))
			logger.Info().
				Str("request_id", e.RequestID).
				Str("tenant_id", e.TenantID).
				Str("user_id", e.UserID).
				Strs("user_roles", e.UserRoles).
				Str("profile_id", e.ProfileID).
				Str("resource", e.Resource).
				Str("treatment_id", e.TreatmentID).
				Str("patient_id", e.PatientID).
				Str("doctor_id", e.DoctorID).
				Str("action", e.Action).
				Str("method", e.Method).
				Str("route", e.Route).
				Str("remote_ip", e.RemoteIP).
				Int("status", e.Status).
				Msg("record access")
			return err
		}
	}
}

func buildAuditEntry(c echo.Context, status int) AuditEntry {
	req := c.Request()
	ctx := req.Context()
	e := AuditEntry{
		UserID:    auth.UserIDFromContext(ctx),
		UserRoles: auth.RolesFromContext(ctx),
		ProfileID: auth.ProfileIDFromContext(ctx),
		Resource:  resourceOf(req.URL.Path),
		Action:    actionOf(req.Method),
		Method:    req.Method,
		Route:     c.Path(),
		RemoteIP:  c.RealIP(),
		Status:    status,
	}
	e.RequestID, _ = c.Get("request_id").(string)
	e.TenantID, _ = c.Get("tenant_id").(string)
	e.TreatmentID = uuidParam(c, "id")
	e.PatientID = uuidParam(c, "patientId")
	e.DoctorID = uuidParam(c, "doctorId")
	return e
}

func uuidParam(c echo.Context, name string) string {
	v := c.Param(name)
	if _, err := uuid.Parse(v); err != nil {
		return ""
	}
	return v
}

// resourceOf returns the first path segment below /api/v1.
func resourceOf(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if seg, _, _ := strings.Cut(rest, "/"); seg != "" && rest != path {
		return seg
	}
	return "unknown"
}

func actionOf(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// statusOf reports the status the client will see, including errors that
// echo has not rendered yet.
func statusOf(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return http.StatusInternalServerError
}
