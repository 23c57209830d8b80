// Package docs holds the OpenAPI description served under /swagger.
// Regenerate with `swag init` after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "IntelLearn API support"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Service and database health",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Database unavailable"}
                }
            }
        },
        "/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register a student or instructor account",
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Validation failed"},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Exchange credentials for a bearer token",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/courses": {
            "get": {
                "produces": ["application/json"],
                "tags": ["courses"],
                "summary": "List and search courses",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["courses"],
                "summary": "Create a course",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["courses"],
                "summary": "Course detail",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/courses/{id}/checkout": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "consumes": ["multipart/form-data"],
                "tags": ["payments"],
                "summary": "Pay for a course with a card or a transfer proof",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/courses/{id}/checkout/session": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["payments"],
                "summary": "Start a hosted Stripe checkout session",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/payments/webhook/stripe": {
            "post": {
                "tags": ["payments"],
                "summary": "Stripe webhook receiver",
                "responses": {"200": {"description": "Received"}, "400": {"description": "Bad signature"}}
            }
        },
        "/quizzes/{id}/submit": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "tags": ["quizzes"],
                "summary": "Submit answers and get the graded result",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "IntelLearn API",
	Description:      "Backend for the IntelLearn course platform.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
