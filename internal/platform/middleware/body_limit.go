package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sst/sst/internal/platform/apierror"
)

const defaultBodyLimit = 1 << 20

var errBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, apierror.Body{
	Code:    "payload_too_large",
	Message: "request body too large",
})

// BodyLimit caps request bodies. jsonLimit applies to document endpoints and
// uploadLimit to multipart uploads (signature images and exam results).
// Limits are sizes such as "512K", "1M" or "25MB"; a bare number is bytes.
//
// A declared Content-Length over the limit is answered with 413 right away.
// Otherwise the body reader fails with a 413 HTTPError once the limit is
// crossed.
func BodyLimit(jsonLimit, uploadLimit string) echo.MiddlewareFunc {
	jsonMax, uploadMax := parseLimit(jsonLimit), parseLimit(uploadLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			max := jsonMax
			if isMultipart(req) {
				max = uploadMax
			}
			if req.ContentLength > max {
				return c.JSON(http.StatusRequestEntityTooLarge, apierror.Body{
					Code:    "payload_too_large",
					Message: fmt.Sprintf("request body exceeds %d bytes", max),
				})
			}
			req.Body = &cappedBody{ReadCloser: req.Body, left: max}
			return next(c)
		}
	}
}

// cappedBody reads at most left bytes and fails on the first byte past it.
type cappedBody struct {
	io.ReadCloser
	left int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.left < 0 {
		return 0, errBodyTooLarge
	}
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		return 0, errBodyTooLarge
	}
	return n, err
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get(echo.HeaderContentType)), echo.MIMEMultipartForm)
}

var sizeUnits = []struct {
	suffix string
	shift  uint
}{
	{"GB", 30}, {"G", 30},
	{"MB", 20}, {"M", 20},
	{"KB", 10}, {"K", 10},
}

// parseLimit converts a size string to bytes, falling back to 1 MB when it
// is empty or malformed.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	var shift uint
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s, shift = strings.TrimSuffix(s, u.suffix), u.shift
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n << shift
}
