// Package docs holds the OpenAPI document served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/jobs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List jobs",
                "parameters": [
                    {"enum": ["queued", "processing", "completed", "failed"], "type": "string", "description": "Status filter", "name": "status", "in": "query"},
                    {"type": "integer", "default": 0, "description": "Offset for pagination", "name": "offset", "in": "query"},
                    {"type": "integer", "default": 20, "description": "Limit for pagination (max 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "List of jobs", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "400": {"description": "Invalid status", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Upload a document for parsing and, when a schema is given, field extraction. Processing is asynchronous.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Submit a document",
                "parameters": [
                    {"type": "file", "description": "Document (pdf, jpg, png, tiff, docx, pptx, xlsx)", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Parse model", "name": "model", "in": "formData"},
                    {"enum": ["page"], "type": "string", "description": "Split mode", "name": "split", "in": "formData"},
                    {"type": "string", "description": "JSON schema of the fields to extract", "name": "schema", "in": "formData"},
                    {"type": "string", "description": "Extraction model", "name": "extract_model", "in": "formData"},
                    {"type": "string", "description": "Address notified when the job finishes", "name": "notify_email", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Job queued", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "400": {"description": "Missing file, unsupported type or invalid schema", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "500": {"description": "Upload failed", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}}
                }
            }
        },
        "/jobs/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get a job",
                "parameters": [{"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Job", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "400": {"description": "Invalid ID", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "404": {"description": "Job not found", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Deletes the job and its stored document",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Delete a job",
                "parameters": [{"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Deleted", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "400": {"description": "Job is processing", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "404": {"description": "Job not found", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}}
                }
            }
        },
        "/jobs/{id}/result": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Parse result, extraction and consistency warnings of a completed job",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get a job's result",
                "parameters": [{"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Result", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "404": {"description": "Job not found", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "409": {"description": "Job has not completed", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}}
                }
            }
        },
        "/jobs/{id}/export": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Chunks as CSV, extracted fields as CSV, or both as an XLSX workbook",
                "produces": ["text/csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "tags": ["jobs"],
                "summary": "Export a job's result",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true},
                    {"enum": ["csv", "fields", "xlsx"], "type": "string", "default": "csv", "description": "Export format", "name": "format", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Export file", "schema": {"type": "file"}},
                    "400": {"description": "Unknown format", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "404": {"description": "Job not found", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "409": {"description": "Job has not completed", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}}
                }
            }
        },
        "/jobs/{id}/retry": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Retry a failed job",
                "parameters": [{"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Job queued again", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "404": {"description": "Job not found", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "409": {"description": "Job is not failed", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}}
                }
            }
        },
        "/extract": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Runs the extraction API on markdown with a JSON schema and returns the result directly",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["extract"],
                "summary": "Extract fields from markdown",
                "parameters": [{"description": "Markdown and schema", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.ExtractRequest"}}],
                "responses": {
                    "200": {"description": "Extraction", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "400": {"description": "Invalid schema", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "422": {"description": "Extraction failed", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}},
                    "429": {"description": "Upstream rate limit", "schema": {"$ref": "#/definitions/handler.ErrorResponseBody"}}
                }
            }
        }
    },
    "definitions": {
        "handler.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handler.ErrorResponseBody": {
            "type": "object",
            "properties": {
                "error": {"$ref": "#/definitions/handler.APIError"},
                "success": {"type": "boolean", "example": false}
            }
        },
        "handler.ExtractRequest": {
            "type": "object",
            "required": ["markdown", "schema"],
            "properties": {
                "markdown": {"type": "string", "example": "# Invoice\n\nTotal: 42.00"},
                "model": {"type": "string", "example": "extract-latest"},
                "schema": {"type": "object"}
            }
        },
        "handler.PagMeta": {
            "type": "object",
            "properties": {
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "handler.Response": {
            "type": "object",
            "properties": {
                "data": {},
                "meta": {"$ref": "#/definitions/handler.PagMeta"},
                "success": {"type": "boolean", "example": true}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and a gateway token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "adekit API",
	Description:      "Document parsing and field extraction gateway.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
