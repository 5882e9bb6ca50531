// Package docs registers the OpenAPI description served by gin-swagger.
//
// Regenerate with:
//
//	swag init -g internal/http/router.go -o internal/http/docs --parseInternal
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
        "/sessions/{id}": {
            "post": {"tags": ["Sessions"], "summary": "Start a messaging session", "operationId": "startSession",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "502": {"description": "Provider failure"}}}
        },
        "/sessions/{id}/qr": {
            "get": {"tags": ["Sessions"], "summary": "Fetch the pairing QR image", "operationId": "sessionQR",
                "produces": ["image/png"],
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "Image bytes"}, "502": {"description": "Provider failure"}}}
        },
        "/sessions/{id}/status": {
            "get": {"tags": ["Sessions"], "summary": "Session connection status", "operationId": "sessionStatus",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown session"}}}
        },
        "/sessions/{id}/chats/{chatId}/messages": {
            "get": {"tags": ["Sessions"], "summary": "Messages of one conversation", "operationId": "chatMessages",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "chatId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/sessions/{id}/messages": {
            "post": {"tags": ["Sessions"], "summary": "Send a text message", "operationId": "sendMessage",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad request"}}}
        },
        "/endpoints/{id}": {
            "get": {"tags": ["Sessions"], "summary": "Provider paths for a session", "operationId": "endpoints",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/ws/sessions/{id}": {
            "get": {"tags": ["Sessions"], "summary": "Realtime message relay (websocket)", "operationId": "relay",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "peer", "in": "query", "required": true}],
                "responses": {"101": {"description": "Switching Protocols"}, "400": {"description": "Bad request"}}}
        },
        "/profile": {
            "get": {"tags": ["Profile"], "summary": "Current profile", "operationId": "getProfile",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Missing or expired token"}}},
            "put": {"tags": ["Profile"], "summary": "Store the logged-in profile", "operationId": "putProfile",
                "responses": {"200": {"description": "OK"}, "403": {"description": "Inactive account"}}},
            "delete": {"tags": ["Profile"], "summary": "Log out", "operationId": "logout",
                "responses": {"204": {"description": "No Content"}}}
        },
        "/payments": {
            "post": {"tags": ["Payments"], "summary": "Record a payment", "operationId": "createPayment",
                "responses": {"201": {"description": "Created"}, "409": {"description": "Checkout session already recorded"}}}
        },
        "/payments/{id}": {
            "get": {"tags": ["Payments"], "summary": "Get a payment", "operationId": "getPayment",
                "parameters": [{"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "Payment with its lifecycle stage (pending, active, expired, closed)"}, "404": {"description": "Payment not found"}}}
        },
        "/payments/{id}/status": {
            "patch": {"tags": ["Payments"], "summary": "Change payment status", "operationId": "updatePaymentStatus",
                "parameters": [{"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "422": {"description": "Transition not allowed"}}}
        },
        "/users/{id}/payments": {
            "get": {"tags": ["Payments"], "summary": "List a user's payments (paginated)", "operationId": "listUserPayments",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Session Gateway API",
	Description:      "Messaging-session gateway, realtime relay, profile store and payment ledger.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
