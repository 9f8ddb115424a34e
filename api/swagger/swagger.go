package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Lumen API",
        "description": "Learning platform backend: courses, activities, completion tracking, progress analytics and generative content",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and session management"},
        {"name": "Courses", "description": "Course and lesson authoring"},
        {"name": "Activities", "description": "Activity authoring and access-controlled reads"},
        {"name": "Assignments", "description": "Teacher-curated activity bundles"},
        {"name": "Enrollments", "description": "Join codes and course membership"},
        {"name": "Submissions", "description": "Attempt lifecycle and server-side scoring"},
        {"name": "Analytics", "description": "Aggregated progress and mastery dashboards"},
        {"name": "Generation", "description": "Generative quiz, activity and tutor endpoints"},
        {"name": "Collaboration", "description": "Durable collaboration event log"},
        {"name": "Reports", "description": "Asynchronous report generation"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/join": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Join a course by lesson code",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"code": {"type": "string"}}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Invalid code", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/activities/{id}/submit": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Submit an attempt for server-side scoring",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/courses/{id}": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Course analytics dashboard",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
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
