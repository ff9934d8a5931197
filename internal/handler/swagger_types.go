package handler

import (
	"encoding/json"

	"adekit/internal/domain"
	"adekit/internal/validate"
)

// Request and response shapes referenced by the API documentation.

// SubmitJobForm holds the non-file fields of a job submission.
type SubmitJobForm struct {
	Model        string `form:"model"`
	Split        string `form:"split" binding:"omitempty,oneof=page"`
	Schema       string `form:"schema"`
	ExtractModel string `form:"extract_model"`
	NotifyEmail  string `form:"notify_email" binding:"omitempty,email"`
}

// ExtractRequest is the body of POST /extract.
type ExtractRequest struct {
	Markdown string          `json:"markdown" binding:"required" example:"# Invoice\n\nTotal: 42.00"`
	Schema   json.RawMessage `json:"schema" binding:"required" swaggertype:"object"`
	Model    string          `json:"model" example:"extract-latest"`
}

// Response wraps a successful response.
type Response struct {
	Success bool        `json:"success" example:"true"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// ErrorResponseBody wraps an error response.
type ErrorResponseBody struct {
	Success bool      `json:"success" example:"false"`
	Error   *APIError `json:"error"`
}

// JobResultDoc documents the result of a completed job.
type JobResultDoc struct {
	Job        domain.Job               `json:"job"`
	Parse      domain.ParseResult       `json:"parse"`
	Extraction *domain.ExtractionResult `json:"extraction,omitempty"`
	Warnings   []validate.Violation     `json:"warnings,omitempty"`
}
