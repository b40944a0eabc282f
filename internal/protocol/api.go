// Package protocol defines the API response envelopes.
package protocol

import (
	"encoding/json"

	"github.com/AndyChoi4495/fragments/internal/fragment"
)

// StatusOK and StatusError are the two values of the envelope status field.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrorDetail is the error object inside an ErrorResponse.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

// NewError builds an error envelope.
func NewError(code int, message string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  ErrorDetail{Code: code, Message: message},
	}
}

// HealthResponse is returned by GET / and GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Author    string `json:"author,omitempty"`
	GithubURL string `json:"githubUrl,omitempty"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
}

// FragmentView is fragment metadata as returned to clients, optionally with
// the formats it can be served as.
type FragmentView struct {
	*fragment.Fragment
	Formats []string `json:"formats,omitempty"`
}

// FragmentResponse is returned by POST, PUT and GET .../info.
type FragmentResponse struct {
	Status   string       `json:"status"`
	Fragment FragmentView `json:"fragment"`
}

// FragmentListResponse is returned by GET /v1/fragments. Fragments is either
// an array of ids or an array of metadata objects.
type FragmentListResponse struct {
	Status    string         `json:"status"`
	Fragments json.Marshaler `json:"fragments"`
}

// StatusResponse is the bare success envelope, returned by DELETE.
type StatusResponse struct {
	Status string `json:"status"`
}
