package middleware

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ETag returns middleware that hashes successful GET responses into a
// strong ETag and answers If-None-Match revalidations with 304 and no
// body. maxAge sets Cache-Control max-age in seconds; responses stay
// private because they carry patient data.
func ETag(maxAge int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}

			res := c.Response()
			buffered := &bufferedWriter{ResponseWriter: res.Writer}
			res.Writer = buffered

			err := next(c)
			res.Writer = buffered.ResponseWriter
			if err != nil {
				return err
			}

			status := buffered.status
			if status == 0 {
				status = http.StatusOK
			}
			body := buffered.buf.Bytes()

			if status != http.StatusOK || len(body) == 0 {
				return buffered.flush(status, body)
			}

			etag := fmt.Sprintf(`"%x"`, md5.Sum(body))
			res.Header().Set("ETag", etag)
			res.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAge))

			if c.Request().Header.Get("If-None-Match") == etag {
				res.Status = http.StatusNotModified
				return buffered.flush(http.StatusNotModified, nil)
			}
			return buffered.flush(status, body)
		}
	}
}

// bufferedWriter holds back the status and body so the ETag can be
// computed before anything reaches the wire.
type bufferedWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *bufferedWriter) WriteHeader(status int) {
	w.status = status
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(b)
}

func (w *bufferedWriter) flush(status int, body []byte) error {
	w.ResponseWriter.WriteHeader(status)
	if len(body) == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(body)
	return err
}
