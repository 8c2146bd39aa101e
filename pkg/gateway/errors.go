package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// NetworkErrorMessage is shown for any failure that produced no response.
const NetworkErrorMessage = "Network error: could not reach the server"

// APIError is a non-success HTTP response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// TransportError is a failure before any response was received.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Message returns the text a user should see for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return NetworkErrorMessage
	}
	return err.Error()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// decodeError reads {"error": ...} or {"detail": ...} from the body. An
// unparseable body falls back to the status text.
func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error  json.RawMessage `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = statusText(resp)
		if apiErr.Message == "" {
			apiErr.Message = requestFailed(resp.StatusCode)
		}
		return apiErr
	}

	if msg := rawText(payload.Error); msg != "" {
		apiErr.Message = msg
	} else if msg := rawText(payload.Detail); msg != "" {
		apiErr.Message = msg
	} else {
		apiErr.Message = requestFailed(resp.StatusCode)
	}
	return apiErr
}

// rawText renders a JSON value as message text: strings unquoted, null and
// empty values as "", anything else as compact JSON.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	switch string(raw) {
	case "false", "0", "[]", "{}":
		return ""
	}
	return string(raw)
}

func statusText(resp *http.Response) string {
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
}

func requestFailed(status int) string {
	return "Request failed: " + strconv.Itoa(status)
}
