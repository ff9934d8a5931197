package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"adekit/internal/domain"
	"adekit/internal/middleware"
	"adekit/internal/port"
	"adekit/internal/service"
)

// JobHandler handles document job endpoints.
type JobHandler struct {
	jobService service.JobService
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobService service.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// Submit handles POST /api/v1/jobs
// @Summary Submit a document
// @Description Upload a document for parsing and, when a schema is given, field extraction. Processing is asynchronous.
// @Tags jobs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document (pdf, jpg, png, tiff, docx, pptx, xlsx)"
// @Param model formData string false "Parse model"
// @Param split formData string false "Split mode" Enums(page)
// @Param schema formData string false "JSON schema of the fields to extract"
// @Param extract_model formData string false "Extraction model"
// @Param notify_email formData string false "Address notified when the job finishes"
// @Success 201 {object} Response{data=domain.Job} "Job queued"
// @Failure 400 {object} ErrorResponseBody "Missing file, unsupported type or invalid schema"
// @Failure 401 {object} ErrorResponseBody "Unauthorized"
// @Failure 413 {object} ErrorResponseBody "File too large"
// @Failure 500 {object} ErrorResponseBody "Upload failed"
// @Security BearerAuth
// @Router /jobs [post]
func (h *JobHandler) Submit(c *gin.Context) {
	tenantID, err := middleware.GetTenantID(c)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing tenant context")
		return
	}

	var form SubmitJobForm
	if err := c.ShouldBind(&form); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	var schema json.RawMessage
	if form.Schema != "" {
		if !json.Valid([]byte(form.Schema)) {
			RespondError(c, http.StatusBadRequest, "INVALID_SCHEMA", "schema is not valid JSON")
			return
		}
		schema = json.RawMessage(form.Schema)
	}

	job, err := h.jobService.Submit(c.Request.Context(), service.SubmitInput{
		TenantID:     tenantID,
		SubmittedBy:  middleware.GetSubject(c),
		File:         file,
		FileName:     header.Filename,
		Size:         header.Size,
		Model:        form.Model,
		Split:        form.Split,
		ExtractModel: form.ExtractModel,
		Schema:       schema,
		NotifyEmail:  form.NotifyEmail,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondCreated(c, job)
}

// List handles GET /api/v1/jobs
// @Summary List jobs
// @Description List the tenant's jobs, newest first
// @Tags jobs
// @Produce json
// @Param status query string false "Status filter" Enums(queued, processing, completed, failed)
// @Param offset query int false "Offset for pagination" default(0)
// @Param limit query int false "Limit for pagination (max 100)" default(20)
// @Success 200 {object} Response{data=[]domain.Job,meta=PagMeta} "List of jobs"
// @Failure 400 {object} ErrorResponseBody "Invalid status"
// @Failure 401 {object} ErrorResponseBody "Unauthorized"
// @Security BearerAuth
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	tenantID, err := middleware.GetTenantID(c)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing tenant context")
		return
	}

	offset, limit := parsePagination(c)
	jobs, total, err := h.jobService.List(c.Request.Context(), tenantID, port.JobFilter{
		Status: domain.JobStatus(c.Query("status")),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondPaginated(c, jobs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetByID handles GET /api/v1/jobs/:id
// @Summary Get a job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} Response{data=domain.Job} "Job"
// @Failure 400 {object} ErrorResponseBody "Invalid ID"
// @Failure 404 {object} ErrorResponseBody "Job not found"
// @Security BearerAuth
// @Router /jobs/{id} [get]
func (h *JobHandler) GetByID(c *gin.Context) {
	tenantID, jobID, ok := jobParams(c)
	if !ok {
		return
	}

	job, err := h.jobService.Get(c.Request.Context(), tenantID, jobID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, job)
}

// Result handles GET /api/v1/jobs/:id/result
// @Summary Get a job's result
// @Description Parse result, extraction and consistency warnings of a completed job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} Response{data=JobResultDoc} "Result"
// @Failure 404 {object} ErrorResponseBody "Job not found"
// @Failure 409 {object} ErrorResponseBody "Job has not completed"
// @Security BearerAuth
// @Router /jobs/{id}/result [get]
func (h *JobHandler) Result(c *gin.Context) {
	tenantID, jobID, ok := jobParams(c)
	if !ok {
		return
	}

	res, err := h.jobService.Result(c.Request.Context(), tenantID, jobID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, res)
}

// Export handles GET /api/v1/jobs/:id/export
// @Summary Export a job's result
// @Description Chunks as CSV, extracted fields as CSV, or both as an XLSX workbook
// @Tags jobs
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Job ID"
// @Param format query string false "Export format" Enums(csv, fields, xlsx) default(csv)
// @Success 200 {file} file "Export file"
// @Failure 400 {object} ErrorResponseBody "Unknown format"
// @Failure 404 {object} ErrorResponseBody "Job not found"
// @Failure 409 {object} ErrorResponseBody "Job has not completed"
// @Security BearerAuth
// @Router /jobs/{id}/export [get]
func (h *JobHandler) Export(c *gin.Context) {
	tenantID, jobID, ok := jobParams(c)
	if !ok {
		return
	}

	file, err := h.jobService.Export(c.Request.Context(), tenantID, jobID, c.DefaultQuery("format", service.ExportCSV))
	if err != nil {
		HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.FileName))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Retry handles POST /api/v1/jobs/:id/retry
// @Summary Retry a failed job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} Response{data=domain.Job} "Job queued again"
// @Failure 404 {object} ErrorResponseBody "Job not found"
// @Failure 409 {object} ErrorResponseBody "Job is not failed"
// @Security BearerAuth
// @Router /jobs/{id}/retry [post]
func (h *JobHandler) Retry(c *gin.Context) {
	tenantID, jobID, ok := jobParams(c)
	if !ok {
		return
	}

	job, err := h.jobService.Retry(c.Request.Context(), tenantID, jobID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, job)
}

// Delete handles DELETE /api/v1/jobs/:id
// @Summary Delete a job
// @Description Deletes the job and its stored document
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} Response "Deleted"
// @Failure 400 {object} ErrorResponseBody "Job is processing"
// @Failure 404 {object} ErrorResponseBody "Job not found"
// @Security BearerAuth
// @Router /jobs/{id} [delete]
func (h *JobHandler) Delete(c *gin.Context) {
	tenantID, jobID, ok := jobParams(c)
	if !ok {
		return
	}

	if err := h.jobService.Delete(c.Request.Context(), tenantID, jobID); err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, gin.H{"message": "job deleted"})
}

// jobParams reads the tenant and the :id path parameter. Returns false if
// either is missing (error response already written).
func jobParams(c *gin.Context) (tenantID, jobID uuid.UUID, ok bool) {
	tenantID, err := middleware.GetTenantID(c)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing tenant context")
		return uuid.Nil, uuid.Nil, false
	}
	jobID, err = uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid job ID")
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, jobID, true
}
