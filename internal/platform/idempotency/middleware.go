package idempotency

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "X-Idempotency-Replayed"
)

// Middleware returns an echo middleware that stores the first successful
// response for each Idempotency-Key and replays it for retries.
//
//   - Requests without the header, and non-write methods, pass through.
//   - A stored key reused for a different method or path yields 422.
//   - A key whose first request is still running yields 409.
//   - Handler errors are not stored so the client may retry them.
//
// Keys are scoped by tenant so two tenants can never collide.
func Middleware(store Store, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			method := req.Method
			if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
				return next(c)
			}
			key := req.Header.Get(HeaderKey)
			if key == "" {
				return next(c)
			}
			if tenant, ok := c.Get("tenant_id").(string); ok && tenant != "" {
				key = tenant + ":" + key
			}
			ctx := req.Context()
			path := req.URL.Path

			lookup := func() (bool, error) {
				cached, found, err := store.Get(ctx, key)
				if err != nil {
					logger.Error().Err(err).Str("key", key).Msg("idempotency lookup failed")
					return true, echo.NewHTTPError(http.StatusServiceUnavailable, "idempotency store unavailable")
				}
				if !found {
					return false, nil
				}
				if cached.Method != method || cached.Path != path {
					return true, echo.NewHTTPError(http.StatusUnprocessableEntity, "idempotency key was already used for a different request")
				}
				return true, replay(c, cached)
			}

			if done, err := lookup(); done {
				return err
			}

			locked, err := store.Lock(ctx, key)
			if err != nil {
				logger.Error().Err(err).Str("key", key).Msg("idempotency lock failed")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "idempotency store unavailable")
			}
			if !locked {
				return echo.NewHTTPError(http.StatusConflict, "a request with this idempotency key is in progress")
			}
			defer func() {
				if err := store.Unlock(ctx, key); err != nil {
					logger.Warn().Err(err).Str("key", key).Msg("idempotency unlock failed")
				}
			}()

			// The first request may have finished between the lookup and the lock.
			if done, err := lookup(); done {
				return err
			}

			resp := c.Response()
			orig := resp.Writer
			rec := &recorder{
				ResponseWriter: orig,
				body:           &bytes.Buffer{},
				statusCode:     http.StatusOK,
				headers:        make(http.Header),
			}
			resp.Writer = rec

			if err := next(c); err != nil {
				resp.Writer = orig
				return err
			}
			resp.Writer = orig

			entry := &Entry{
				Method:     method,
				Path:       path,
				StatusCode: rec.statusCode,
				Headers:    rec.headers.Clone(),
				Body:       rec.body.Bytes(),
			}
			if rec.statusCode < http.StatusBadRequest {
				if err := store.Set(ctx, key, entry); err != nil {
					logger.Warn().Err(err).Str("key", key).Msg("idempotency store failed")
				}
			}

			for k, vals := range entry.Headers {
				for _, v := range vals {
					orig.Header().Add(k, v)
				}
			}
			orig.WriteHeader(rec.statusCode)
			_, err = orig.Write(entry.Body)
			return err
		}
	}
}

func replay(c echo.Context, e *Entry) error {
	resp := c.Response()
	for k, vals := range e.Headers {
		for _, v := range vals {
			resp.Header().Add(k, v)
		}
	}
	resp.Header().Set(HeaderReplayed, "true")
	resp.WriteHeader(e.StatusCode)
	_, err := resp.Write(e.Body)
	return err
}

// recorder buffers status, headers and body written by the handler.
type recorder struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	headers    http.Header
	wroteHead  bool
}

func (r *recorder) Header() http.Header {
	return r.headers
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHead {
		return
	}
	r.statusCode = code
	r.wroteHead = true
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHead {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(b)
}
