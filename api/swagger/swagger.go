package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Therapy Scheduler API",
        "description": "Scheduling core for therapy subscriptions: calendar generation, conflict detection, and bulk rescheduling.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Scheduling", "description": "Calendar generation and proposal commit"},
        {"name": "Conflicts", "description": "Conflict detection and resolution suggestions"},
        {"name": "BulkOperations", "description": "Freeze, reassign, and mass-shift over committed sessions"},
        {"name": "Rules", "description": "Optimization rule configuration and statistics"}
    ],
    "paths": {
        "/schedules/generate": {
            "post": {
                "tags": ["Scheduling"],
                "summary": "Generate a session calendar for a subscription",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SchedulingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid request"},
                    "503": {"description": "Collaborator unavailable"}
                }
            }
        },
        "/schedules/proposals/{id}/commit": {
            "post": {
                "tags": ["Scheduling"],
                "summary": "Commit a generated proposal",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Proposal not found or expired"},
                    "409": {"description": "Proposal fully invalidated"}
                }
            }
        },
        "/conflicts/detect": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Detect conflicts for one candidate session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DetectConflictsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid request"}
                }
            }
        },
        "/conflicts/detect-batch": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Detect conflicts across a candidate batch",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DetectBatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid request"}
                }
            }
        },
        "/bulk-operations": {
            "post": {
                "tags": ["BulkOperations"],
                "summary": "Start a bulk rescheduling operation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkReschedulingRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid request"},
                    "412": {"description": "No matching sessions"}
                }
            }
        },
        "/bulk-operations/{id}": {
            "get": {
                "tags": ["BulkOperations"],
                "summary": "Bulk operation status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Operation not found"}
                }
            }
        },
        "/bulk-operations/{id}/cancel": {
            "post": {
                "tags": ["BulkOperations"],
                "summary": "Cancel a bulk operation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Operation not found"},
                    "409": {"description": "Operation already terminal"}
                }
            }
        },
        "/bulk-operations/{id}/rollback": {
            "post": {
                "tags": ["BulkOperations"],
                "summary": "Roll back a bulk operation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Operation not found"},
                    "409": {"description": "Operation already terminal"},
                    "412": {"description": "Operation still in progress"}
                }
            }
        },
        "/bulk-operations/{id}/events": {
            "get": {
                "tags": ["BulkOperations"],
                "summary": "Stream bulk operation progress (SSE)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Event stream"}
                }
            }
        },
        "/rules": {
            "get": {
                "tags": ["Rules"],
                "summary": "Active optimization rules",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rules/statistics": {
            "get": {
                "tags": ["Rules"],
                "summary": "Rule application statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "TimeWindow": {
            "type": "object",
            "properties": {
                "start": {"type": "string", "example": "09:00"},
                "end": {"type": "string", "example": "10:00"}
            }
        },
        "Session": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "subscription_id": {"type": "string"},
                "therapist_id": {"type": "string"},
                "resource_id": {"type": "string"},
                "date": {"type": "string"},
                "window": {"$ref": "#/definitions/TimeWindow"},
                "status": {"type": "string", "enum": ["PROPOSED", "SCHEDULED", "COMPLETED", "CANCELLED"]},
                "sequence": {"type": "integer"}
            }
        },
        "Conflict": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["TIME_OVERLAP", "RESOURCE_OVERCOMMIT", "AVAILABILITY_VIOLATION", "CONSTRAINT_VIOLATION"]},
                "severity": {"type": "string", "enum": ["BLOCKING", "WARNING"]},
                "session_ids": {"type": "array", "items": {"type": "string"}},
                "description": {"type": "string"}
            }
        },
        "SchedulingRequest": {
            "type": "object",
            "properties": {
                "subscriptionId": {"type": "string"},
                "therapistId": {"type": "string"},
                "resourceId": {"type": "string"},
                "sessionsPerWeek": {"type": "integer"},
                "durationMinutes": {"type": "integer"},
                "startDate": {"type": "string", "example": "2026-01-05"},
                "endDate": {"type": "string", "example": "2026-02-01"},
                "preferredDays": {"type": "array", "items": {"type": "integer"}},
                "preferredStart": {"type": "string", "example": "09:00"},
                "notBefore": {"type": "string"},
                "notAfter": {"type": "string"}
            },
            "required": ["subscriptionId", "therapistId", "sessionsPerWeek", "durationMinutes", "startDate", "endDate"]
        },
        "DetectConflictsRequest": {
            "type": "object",
            "properties": {
                "session": {"$ref": "#/definitions/Session"},
                "context": {"type": "object"},
                "constraints": {"type": "object"}
            },
            "required": ["session"]
        },
        "DetectBatchRequest": {
            "type": "object",
            "properties": {
                "sessions": {"type": "array", "items": {"$ref": "#/definitions/Session"}},
                "options": {
                    "type": "object",
                    "properties": {
                        "parallel": {"type": "boolean"},
                        "maxConcurrency": {"type": "integer"}
                    }
                },
                "context": {"type": "object"},
                "constraints": {"type": "object"}
            },
            "required": ["sessions"]
        },
        "BulkReschedulingRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["FREEZE", "REASSIGN", "MASS_SHIFT"]},
                "subscriptionId": {"type": "string"},
                "sessionIds": {"type": "array", "items": {"type": "string"}},
                "freezeFrom": {"type": "string", "example": "2026-03-01"},
                "freezeDays": {"type": "integer"},
                "newTherapistId": {"type": "string"},
                "shiftDays": {"type": "integer"},
                "maxConcurrency": {"type": "integer"}
            },
            "required": ["type"]
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
                "pagination": {"type": "object"},
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
