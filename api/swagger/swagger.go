package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Report API",
        "description": "Report rendering, definition overrides and designer previews",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Reports", "description": "Registered reports and rendering"},
        {"name": "Report Definitions", "description": "Effective-dated definition overrides"},
        {"name": "Preview", "description": "Report designer preview protocol"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unreachable"}
                }
            }
        },
        "/api/v1/report/{name}/{format}/": {
            "get": {
                "tags": ["Reports"],
                "summary": "Render a registered report",
                "produces": ["application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "parameters": [
                    {"name": "name", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "path", "required": true, "type": "string", "enum": ["pdf", "xlsx"]},
                    {"name": "alternate", "in": "query", "required": false, "type": "string"},
                    {"name": "asOf", "in": "query", "required": false, "type": "string", "format": "date", "description": "Resolve the definition valid on this date (YYYY-MM-DD), defaults to today"}
                ],
                "responses": {
                    "200": {"description": "Rendered document", "schema": {"type": "file"}},
                    "400": {"description": "Unsupported format or invalid definition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/reports": {
            "get": {
                "tags": ["Reports"],
                "summary": "List reports the caller may run",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/reports/{name}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Describe a report and its effective definition",
                "parameters": [
                    {"name": "name", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/reports/{name}/history": {
            "get": {
                "tags": ["Report Definitions"],
                "summary": "List every definition version of a report",
                "parameters": [
                    {"name": "name", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/report-definitions": {
            "get": {
                "tags": ["Report Definitions"],
                "summary": "List report definition overrides",
                "parameters": [
                    {"name": "name", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "showHistory", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Report Definitions"],
                "summary": "Create a report definition version",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OverrideInput"}}
                ],
                "responses": {
                    "200": {"description": "Mutation result", "schema": {"$ref": "#/definitions/MutationResult"}}
                }
            },
            "put": {
                "tags": ["Report Definitions"],
                "summary": "Replace the current report definition version",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OverrideInput"}}
                ],
                "responses": {
                    "200": {"description": "Mutation result", "schema": {"$ref": "#/definitions/MutationResult"}}
                }
            }
        },
        "/api/v1/report-definitions/{id}": {
            "get": {
                "tags": ["Report Definitions"],
                "summary": "Get a report definition override",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/reportbro/preview": {
            "put": {
                "tags": ["Preview"],
                "summary": "Render a designer preview",
                "consumes": ["application/json"],
                "produces": ["text/plain", "application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PreviewPayload"}}
                ],
                "responses": {
                    "200": {"description": "key:<handle>, or an error list when the definition is invalid"},
                    "400": {"description": "Malformed request"}
                }
            },
            "get": {
                "tags": ["Preview"],
                "summary": "Fetch a stored preview or render the request body",
                "parameters": [
                    {"name": "outputFormat", "in": "query", "required": true, "type": "string", "enum": ["pdf", "xlsx"]},
                    {"name": "key", "in": "query", "required": false, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Rendered document", "schema": {"type": "file"}},
                    "400": {"description": "Missing format, unknown key or render failure"}
                }
            }
        },
        "/api/v1/reportbro/designer": {
            "get": {
                "tags": ["Preview"],
                "summary": "Report designer page",
                "produces": ["text/html"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "OverrideInput": {
            "type": "object",
            "required": ["name"],
            "properties": {
                "uuid": {"type": "string"},
                "name": {"type": "string"},
                "engine": {"type": "integer"},
                "definition": {"type": "string"},
                "validityFrom": {"type": "string", "format": "date-time"}
            }
        },
        "MutationError": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "detail": {"type": "string"}
            }
        },
        "MutationResult": {
            "type": "object",
            "properties": {
                "errors": {"type": "array", "items": {"$ref": "#/definitions/MutationError"}}
            }
        },
        "PreviewPayload": {
            "type": "object",
            "required": ["outputFormat", "report", "data", "isTestData"],
            "properties": {
                "outputFormat": {"type": "string", "enum": ["pdf", "xlsx"]},
                "report": {"type": "object"},
                "data": {"type": "object"},
                "isTestData": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
