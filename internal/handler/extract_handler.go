package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"adekit/internal/ade"
	"adekit/internal/port"
	"adekit/internal/service"
)

// ExtractHandler handles synchronous extraction.
type ExtractHandler struct {
	jobService service.JobService
}

// NewExtractHandler creates a new ExtractHandler.
func NewExtractHandler(jobService service.JobService) *ExtractHandler {
	return &ExtractHandler{jobService: jobService}
}

// Extract handles POST /api/v1/extract
// @Summary Extract fields from markdown
// @Description Runs the extraction API on markdown with a JSON schema and returns the result directly
// @Tags extract
// @Accept json
// @Produce json
// @Param request body ExtractRequest true "Markdown and schema"
// @Success 200 {object} Response{data=domain.ExtractionResult} "Extraction"
// @Failure 400 {object} ErrorResponseBody "Invalid schema"
// @Failure 422 {object} Response{data=domain.ExtractionResult} "Extraction failed; data holds the partial result when the output violates the schema"
// @Failure 429 {object} ErrorResponseBody "Upstream rate limit"
// @Security BearerAuth
// @Router /extract [post]
func (h *ExtractHandler) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	res, err := h.jobService.Extract(c.Request.Context(), port.ExtractInput{
		Markdown: req.Markdown,
		Schema:   req.Schema,
		Model:    req.Model,
	})
	var svErr *ade.SchemaViolationError
	if errors.As(err, &svErr) && res != nil {
		status, code, msg := MapDomainError(err)
		RespondErrorWithData(c, status, code, msg, res)
		return
	}
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, res)
}
