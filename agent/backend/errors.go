package backend

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// TransportError means the request never produced an HTTP response:
// connection refused, timeout or cancellation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx answer. Detail is the backend's own error text.
type StatusError struct {
	Op         string
	StatusCode int
	Detail     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s: status=%d detail=%s", e.Op, e.StatusCode, e.Detail)
}

var detailKeys = []string{"detail", "message", "error"}

// errorDetail extracts the backend error detail verbatim. String fields are
// returned as-is, structured ones as their raw JSON.
func errorDetail(statusCode int, body []byte) string {
	if gjson.ValidBytes(body) {
		root := gjson.ParseBytes(body)
		for _, key := range detailKeys {
			v := root.Get(key)
			if !v.Exists() || v.Type == gjson.Null {
				continue
			}
			if v.Type == gjson.String {
				return v.String()
			}
			return v.Raw
		}
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return trimmed
	}
	return http.StatusText(statusCode)
}
