// Package docs holds the OpenAPI description served at /swagger. It follows
// the layout produced by `swag init -g cmd/server/main.go`; regenerate it
// after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/forecasts/free": {
            "post": {
                "description": "Charges the per-IP and per-device admission counters, validates the birth data, and returns a five-section preview. Suspicious traffic receives a captcha challenge (200 with captcha_required) instead of a forecast.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Forecasts"],
                "summary": "Generate a free forecast preview",
                "operationId": "postFreeForecast",
                "parameters": [
                    {"description": "Birth data", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.FreeForecastRequest"}}
                ],
                "responses": {
                    "200": {"description": "Generated preview", "schema": {"$ref": "#/definitions/handlers.FreeForecastResponse"}},
                    "400": {"description": "Invalid input or captcha failure", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "413": {"description": "Request too large", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Admission denied", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}, "headers": {"Retry-After": {"type": "string", "description": "Seconds until the exhausted window resets"}}},
                    "500": {"description": "Generation failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/forecasts/paid": {
            "post": {
                "description": "Verifies the payment session and generates the strategic forecast with retries and model fallback. A session that already has a complete forecast returns the stored artifact (cached=true).",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Forecasts"],
                "summary": "Generate the paid strategic forecast",
                "operationId": "postPaidForecast",
                "parameters": [
                    {"description": "Payment session and birth data", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PaidForecastRequest"}}
                ],
                "responses": {
                    "200": {"description": "Strategic forecast", "schema": {"$ref": "#/definitions/handlers.PaidForecastResponse"}},
                    "400": {"description": "Invalid input or missing birth data", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Payment verification failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "413": {"description": "Request too large", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Generation failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/forecasts/{id}": {
            "get": {
                "description": "Returns a stored free (default) or paid forecast. The guest token issued at generation time is required; unknown ids and wrong tokens both return 404.",
                "produces": ["application/json"],
                "tags": ["Forecasts"],
                "summary": "Get a stored forecast",
                "operationId": "getForecast",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Forecast ID (UUID)", "name": "id", "in": "path", "required": true},
                    {"enum": ["free", "paid"], "type": "string", "default": "free", "description": "Forecast tier", "name": "type", "in": "query"},
                    {"type": "string", "format": "uuid", "description": "Guest token (UUID)", "name": "guest_token", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "Free forecast (type=free)", "schema": {"$ref": "#/definitions/handlers.StoredFreeForecast"}},
                    "400": {"description": "Invalid id, token or type", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Forecast not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Lookup failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/paid-forecasts": {
            "get": {
                "description": "Support tooling: pages through paid records (default status \"failed\") so that failed generations can be remediated.",
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List paid forecasts by generation status",
                "operationId": "listPaidForecasts",
                "parameters": [
                    {"type": "string", "description": "Support token", "name": "X-Admin-Token", "in": "header", "required": true},
                    {"enum": ["pending", "complete", "failed"], "type": "string", "default": "failed", "description": "Generation status", "name": "status", "in": "query"},
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page (1-based)", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Page size", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListPaidForecastsResponse"}},
                    "400": {"description": "Invalid status", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing or wrong token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/abuse-events": {
            "get": {
                "description": "Newest threshold crossings recorded by the abuse monitors.",
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List recent abuse events",
                "operationId": "listAbuseEvents",
                "parameters": [
                    {"type": "string", "description": "Support token", "name": "X-Admin-Token", "in": "header", "required": true},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 50, "description": "Max events", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AbuseEventsResponse"}},
                    "401": {"description": "Missing or wrong token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.AbuseEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "event_type": {"type": "string"},
                "ip_address": {"type": "string"},
                "device_id": {"type": "string"},
                "hourly_count": {"type": "integer"},
                "threshold": {"type": "integer"},
                "details": {"type": "object", "additionalProperties": true},
                "created_at": {"type": "string"}
            }
        },
        "handlers.AbuseEventsResponse": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/domain.AbuseEvent"}}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "bad_request"},
                "message": {"type": "string", "example": "Invalid input data"},
                "request_id": {"type": "string", "example": "3f0e5c1e-8f57-4c1b-a8a2-0e5f1d2b9c11"}
            }
        },
        "handlers.FreeForecastRequest": {
            "type": "object",
            "properties": {
                "birthDate": {"type": "string", "example": "1990-05-15"},
                "birthTime": {"type": "string", "example": "14:30"},
                "birthPlace": {"type": "string", "example": "Mumbai, India"},
                "birthTimeUtc": {"type": "string", "example": "1990-05-15T09:00:00Z"},
                "latitude": {"type": "number", "example": 19.076},
                "longitude": {"type": "number", "example": 72.8777},
                "deviceId": {"type": "string"},
                "captchaToken": {"type": "string"}
            }
        },
        "handlers.FreeForecastResponse": {
            "type": "object",
            "properties": {
                "forecast": {"type": "string"},
                "forecastSections": {"$ref": "#/definitions/domain.ForecastSections"},
                "pivotalTheme": {"type": "string", "example": "career"},
                "freeForecastId": {"type": "string"},
                "guestToken": {"type": "string"}
            }
        },
        "domain.ForecastSections": {
            "type": "object",
            "properties": {
                "who_you_are_right_now": {"type": "string"},
                "whats_happening_in_your_life": {"type": "string"},
                "pivotal_life_theme": {"type": "string"},
                "what_is_becoming_tighter_or_less_forgiving": {"type": "string"},
                "upgrade_hook": {"type": "string"}
            }
        },
        "handlers.PaidForecastRequest": {
            "type": "object",
            "properties": {
                "sessionId": {"type": "string", "example": "cs_test_a1b2c3"},
                "birthDateTimeUtc": {"type": "string"},
                "lat": {"type": "number"},
                "lon": {"type": "number"},
                "name": {"type": "string"},
                "pivotalTheme": {"type": "string"},
                "freeForecast": {"type": "string"},
                "freeForecastId": {"type": "string", "format": "uuid"},
                "deviceId": {"type": "string"}
            }
        },
        "handlers.PaidForecastResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "forecast": {"type": "object"},
                "forecastId": {"type": "string", "format": "uuid"},
                "customerEmail": {"type": "string"},
                "guestToken": {"type": "string", "format": "uuid"},
                "modelUsed": {"type": "string", "example": "gpt-5-2025-08-07"},
                "totalAttempts": {"type": "integer", "example": 1},
                "tokenUsage": {"$ref": "#/definitions/domain.TokenUsage"},
                "cached": {"type": "boolean"}
            }
        },
        "domain.TokenUsage": {
            "type": "object",
            "properties": {
                "promptTokens": {"type": "integer"},
                "completionTokens": {"type": "integer"},
                "totalTokens": {"type": "integer"},
                "cachedTokens": {"type": "integer"}
            }
        },
        "handlers.StoredFreeForecast": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "forecast": {"type": "string"},
                "pivotalTheme": {"type": "string"},
                "zodiacSign": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        },
        "handlers.StoredPaidForecast": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "forecast": {"type": "object"},
                "generationStatus": {"type": "string", "example": "complete"},
                "modelUsed": {"type": "string"},
                "zodiacSign": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.PaidForecastSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "stripe_session_id": {"type": "string"},
                "customer_email": {"type": "string"},
                "generation_status": {"type": "string", "example": "failed"},
                "generation_error": {"type": "string"},
                "retry_count": {"type": "integer"},
                "model_used": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "handlers.ListPaidForecastsResponse": {
            "type": "object",
            "properties": {
                "forecasts": {"type": "array", "items": {"$ref": "#/definitions/handlers.PaidForecastSummary"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Forecast Generation API",
	Description:      "Free previews, paid strategic forecasts and stored forecast retrieval.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
