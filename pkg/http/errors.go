package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// maxErrorBody bounds how much of a response body is kept on an HTTPError.
const maxErrorBody = 4096

// HTTPError is returned for any non-2xx response from the catalog API or a
// storage backend.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), body)
}

// IsStatus reports whether err is an HTTPError with one of the given codes.
func IsStatus(err error, codes ...int) bool {
	herr, ok := AsHTTPError(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if herr.StatusCode == c {
			return true
		}
	}
	return false
}

// AsHTTPError unwraps err into an HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr, true
	}
	return nil, false
}

// newHTTPError builds an HTTPError from a resty response.
func newHTTPError(resp *resty.Response) *HTTPError {
	body := resp.Body()
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	herr := &HTTPError{
		StatusCode: resp.StatusCode(),
		Body:       string(body),
	}
	if resp.Request != nil {
		herr.Method = resp.Request.Method
		herr.URL = redactQuery(resp.Request.URL)
		if resp.Request.RawRequest != nil && resp.Request.RawRequest.URL != nil {
			herr.URL = redactQuery(resp.Request.RawRequest.URL.String())
		}
	}
	return herr
}

// redactQuery drops a query string that carries a signature.
func redactQuery(u string) string {
	i := strings.IndexByte(u, '?')
	if i < 0 {
		return u
	}
	q := strings.ToLower(u[i:])
	if strings.Contains(q, "sig=") || strings.Contains(q, "x-amz-signature=") {
		return u[:i]
	}
	return u
}
