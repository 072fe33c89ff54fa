// Package response provides the unified JSON envelope of the HTTP API.
package response

import (
	"net/http"

	"github.com/kart-io/qgpt/pkg/errors"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	// Code is the business error code (0 = success)
	Code int `json:"code"`

	// Message is a human-readable message
	Message string `json:"message"`

	// Data contains the response payload (nil for errors)
	Data interface{} `json:"data,omitempty"`

	// RequestID is the unique request identifier for tracing
	RequestID string `json:"request_id,omitempty"`

	// Timestamp is the response timestamp (Unix milliseconds)
	Timestamp int64 `json:"timestamp,omitempty"`

	status int
}

// Success creates a successful response with data.
func Success(data interface{}) *Response {
	return &Response{Code: 0, Message: "success", Data: data, status: http.StatusOK}
}

// Err creates an error response from an Errno, using the message for lang.
func Err(e *errors.Errno, lang string) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{Code: e.Code, Message: e.Message(lang), status: e.HTTPStatus()}
}

// WithData attaches a payload, e.g. field errors of a rejected request.
func (r *Response) WithData(data interface{}) *Response {
	r.Data = data
	return r
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Code == 0
}

// HTTPStatus returns the HTTP status code for this response.
func (r *Response) HTTPStatus() int {
	if r.status != 0 {
		return r.status
	}
	if r.Code == 0 {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}
