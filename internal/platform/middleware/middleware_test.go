package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/inpatient/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	handler := func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}
	_ = RequestID()(handler)(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	rec := httptest.NewRecorder()
	_ = RequestID()(func(c echo.Context) error { return nil })(e.NewContext(req, rec))
	if got := rec.Header().Get(RequestIDHeader); len(got) > 128 {
		t.Errorf("expected oversized id to be replaced, got %d bytes", len(got))
	}
}

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return m
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		handler   echo.HandlerFunc
		wantLevel string
		wantCode  float64
	}{
		{"ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, "info", 200},
		{"client error", func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusConflict, "bed is not available")
		}, "warn", 409},
		{"server error", func(c echo.Context) error { return errors.New("db down") }, "error", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/admissions", nil), httptest.NewRecorder())
			c.Set("request_id", "req-1")
			c.Set("tenant_id", "north")

			_ = Logger(zerolog.New(&buf))(tt.handler)(c)

			line := logLine(t, &buf)
			if line["level"] != tt.wantLevel {
				t.Errorf("expected level %s, got %v", tt.wantLevel, line["level"])
			}
			if line["status"] != tt.wantCode {
				t.Errorf("expected status %v, got %v", tt.wantCode, line["status"])
			}
			if line["request_id"] != "req-1" || line["tenant_id"] != "north" {
				t.Errorf("missing correlation fields: %v", line)
			}
		})
	}
}

func TestLogger_LogsInternalCause(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	he := echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	he.Internal = errors.New("relation bed does not exist")
	_ = Logger(zerolog.New(&buf))(func(c echo.Context) error { return he })(c)

	if !strings.Contains(buf.String(), "relation bed does not exist") {
		t.Errorf("expected internal cause in log, got %s", buf.String())
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		panic("test panic")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())
	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_LogsStateChange(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admissions/abc/discharge", nil)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "dr-house")
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{"physician"})
	c := e.NewContext(req.WithContext(ctx), httptest.NewRecorder())
	c.SetPath("/api/v1/admissions/:id/discharge")
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := Audit(zerolog.New(&buf))(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := logLine(t, &buf)
	if line["user_id"] != "dr-house" || line["resource"] != "discharge" || line["resource_id"] != "abc" {
		t.Errorf("unexpected audit line: %v", line)
	}
	if line["action"] != "create" || line["success"] != true {
		t.Errorf("unexpected action/success: %v", line)
	}
}

func TestAudit_SkipsReads(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/beds", nil), httptest.NewRecorder())
	_ = Audit(zerolog.New(&buf))(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	if buf.Len() != 0 {
		t.Errorf("expected no audit line for reads, got %s", buf.String())
	}
}

func TestResourceFor(t *testing.T) {
	tests := map[string]string{
		"/api/v1/admissions":                      "admissions",
		"/api/v1/invoices/:id/payments":           "payments",
		"/api/v1/beds/:id":                        "beds",
		"/api/v1/hospitals/:hospital_id/wards":    "wards",
		"":                                        "unknown",
	}
	for route, want := range tests {
		if got := resourceFor(route); got != want {
			t.Errorf("resourceFor(%q) = %q, want %q", route, got, want)
		}
	}
}
