package types

import (
	"time"
)

// Common HTTP response types used across all API handlers
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	TotalCount int64       `json:"totalCount"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
}

// Upload protocol messages

type StartRequest struct {
	Filename string `json:"filename" binding:"required"`
}

type StartResponse struct {
	UploadToken string `json:"upload_token"`
}

// ContinueRequest carries one chunk. Data is base64 in JSON and decoded by
// the binding into raw bytes.
type ContinueRequest struct {
	Offset *int64 `json:"offset" binding:"required,min=0"`
	Data   []byte `json:"data"`
}

type ContinueResponse struct {
	AcceptedThrough int64 `json:"accepted_through"`
}

type ConflictResponse struct {
	Error          string `json:"error"`
	ExpectedOffset int64  `json:"expected_offset"`
}

type FinishRequest struct {
	Filename string `json:"filename"`
	SHA256   string `json:"sha256" binding:"required"`
	Size     *int64 `json:"size" binding:"required,min=0"`
}

type FinishResponse struct {
	Status string `json:"status"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

type CancelResponse struct {
	Status string `json:"status"`
}

// Health check types
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Sessions  int               `json:"sessions"`
}
