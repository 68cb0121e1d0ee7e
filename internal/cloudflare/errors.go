package cloudflare

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is one entry of the envelope's errors list.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e APIError) String() string {
	if e.Code != 0 {
		return fmt.Sprintf("%d: %s", e.Code, e.Message)
	}
	return e.Message
}

// ResponseError is returned when the API reports success=false or an HTTP error.
type ResponseError struct {
	Hint       string
	StatusCode int
	Errors     []APIError
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("Something went wrong for %s, but no specific information was provided.", e.Hint)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, apiErr := range e.Errors {
		msgs = append(msgs, apiErr.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Hint, strings.Join(msgs, "; "))
}

// IsAuthError reports whether the API rejected the token.
func (e *ResponseError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether the addressed resource does not exist.
func (e *ResponseError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a not-found ResponseError.
func IsNotFound(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.IsNotFound()
}
