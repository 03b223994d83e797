package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/inpatient/internal/platform/auth"
)

// Audit emits one structured log line per state-changing API call naming
// who did what to which resource. Reads are not audited.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := actionFor(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			ctx := req.Context()
			rid, _ := c.Get("request_id").(string)
			tenant, _ := c.Get("tenant_id").(string)

			logger.Info().
				Str("type", "audit").
				Str("request_id", rid).
				Str("tenant_id", tenant).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Strs("user_roles", auth.RolesFromContext(ctx)).
				Str("action", action).
				Str("resource", resourceFor(c.Path())).
				Str("resource_id", c.Param("id")).
				Str("route", c.Path()).
				Int("status", status).
				Bool("success", err == nil && status < http.StatusBadRequest).
				Msg("state_change")

			return err
		}
	}
}

func actionFor(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return ""
}

// resourceFor names the last static segment of a route template, e.g.
// "/api/v1/admissions/:id/discharge" -> "discharge".
func resourceFor(route string) string {
	segments := strings.Split(strings.TrimPrefix(route, "/api/v1/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := segments[i]; s != "" && !strings.HasPrefix(s, ":") {
			return s
		}
	}
	return "unknown"
}
