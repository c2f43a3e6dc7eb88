package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {"title": "TutorHub API", "description": "Tutoring marketplace backend", "version": "1.0.0"},
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {"BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}},
    "tags": [{"name": "Auth"}, {"name": "Users"}, {"name": "Teachers"}, {"name": "Students"}, {"name": "Messaging"}, {"name": "Notifications"}, {"name": "Sessions"}, {"name": "Realtime"}, {"name": "Admin"}],
    "paths": {
        "/auth/register": {"post": {"tags": ["Auth"], "summary": "Register account", "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}},
        "/auth/login": {"post": {"tags": ["Auth"], "summary": "Login", "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}},
        "/auth/refresh": {"post": {"tags": ["Auth"], "summary": "Refresh access token", "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}},
        "/auth/logout": {"post": {"tags": ["Auth"], "summary": "Logout", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/auth/change-password": {"post": {"tags": ["Auth"], "summary": "Change password", "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangePasswordRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/auth/me": {"get": {"tags": ["Auth"], "summary": "Current account", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/users/me": {"patch": {"tags": ["Users"], "summary": "Update own profile", "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateProfileRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/users/{id}": {"get": {"tags": ["Users"], "summary": "Get user", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/teachers": {"get": {"tags": ["Teachers"], "summary": "Search verified teachers", "parameters": [{"name": "search", "in": "query", "type": "string"}, {"name": "subject", "in": "query", "type": "string"}, {"name": "max_rate", "in": "query", "type": "number"}, {"name": "verified_only", "in": "query", "type": "boolean"}, {"name": "page", "in": "query", "type": "integer"}, {"name": "page_size", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}},
        "/teachers/{id}": {"get": {"tags": ["Teachers"], "summary": "Teacher profile", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}},
        "/teachers/me": {"patch": {"tags": ["Teachers"], "summary": "Update own teacher profile", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/students/{id}": {"get": {"tags": ["Students"], "summary": "Student account", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/students/{id}/transactions": {"get": {"tags": ["Students"], "summary": "Token ledger", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "page", "in": "query", "type": "integer"}, {"name": "page_size", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/parents/me/children": {"get": {"tags": ["Students"], "summary": "Linked children", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/conversations": {"get": {"tags": ["Messaging"], "summary": "List conversations", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/conversations/direct": {"post": {"tags": ["Messaging"], "summary": "Open a direct conversation", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/conversations/assistant": {"post": {"tags": ["Messaging"], "summary": "Open the AI assistant conversation", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/conversations/{id}/messages": {"get": {"tags": ["Messaging"], "summary": "List messages", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "offset", "in": "query", "type": "integer"}, {"name": "limit", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}, "post": {"tags": ["Messaging"], "summary": "Send message", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SendMessageInput"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/conversations/{id}/read": {"post": {"tags": ["Messaging"], "summary": "Mark conversation read", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/conversations/{id}/archive": {"post": {"tags": ["Messaging"], "summary": "Archive conversation", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/messages/{id}": {"patch": {"tags": ["Messaging"], "summary": "Edit own message", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}, "delete": {"tags": ["Messaging"], "summary": "Delete own message", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/notifications": {"get": {"tags": ["Notifications"], "summary": "List notifications", "parameters": [{"name": "unread_only", "in": "query", "type": "boolean"}, {"name": "page", "in": "query", "type": "integer"}, {"name": "page_size", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/notifications/unread-count": {"get": {"tags": ["Notifications"], "summary": "Unread count", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/notifications/read-all": {"post": {"tags": ["Notifications"], "summary": "Mark all read", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/notifications/{id}/read": {"post": {"tags": ["Notifications"], "summary": "Mark read", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/notifications/{id}": {"delete": {"tags": ["Notifications"], "summary": "Delete notification", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/notifications/preferences": {"get": {"tags": ["Notifications"], "summary": "Preferences", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}, "put": {"tags": ["Notifications"], "summary": "Toggle browser delivery", "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdatePreferenceRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/notifications/push/key": {"get": {"tags": ["Notifications"], "summary": "VAPID public key", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}}},
        "/notifications/push/subscriptions": {"post": {"tags": ["Notifications"], "summary": "Register push subscription", "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PushSubscription"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}, "delete": {"tags": ["Notifications"], "summary": "Remove push subscription", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/session-requests": {"get": {"tags": ["Sessions"], "summary": "List session requests", "parameters": [{"name": "status", "in": "query", "type": "string"}, {"name": "page", "in": "query", "type": "integer"}, {"name": "page_size", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}, "post": {"tags": ["Sessions"], "summary": "Request a session", "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequestInput"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/session-requests/{id}": {"get": {"tags": ["Sessions"], "summary": "Session request detail", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/session-requests/{id}/accept": {"post": {"tags": ["Sessions"], "summary": "Accept", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/session-requests/{id}/decline": {"post": {"tags": ["Sessions"], "summary": "Decline and refund", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DeclineSessionRequestInput"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/session-requests/{id}/cancel": {"post": {"tags": ["Sessions"], "summary": "Cancel and refund", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/ws": {"get": {"tags": ["Realtime"], "summary": "Open the realtime connection", "parameters": [{"name": "access_token", "in": "query", "type": "string"}], "responses": {"101": {"description": "Switching Protocols"}}, "security": [{"BearerAuth": []}]}},
        "/admin/dashboard": {"get": {"tags": ["Admin"], "summary": "Dashboard statistics", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/metrics": {"get": {"tags": ["Admin"], "summary": "In-process counters", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/users": {"get": {"tags": ["Admin"], "summary": "List users", "parameters": [{"name": "role", "in": "query", "type": "string"}, {"name": "suspended", "in": "query", "type": "boolean"}, {"name": "search", "in": "query", "type": "string"}, {"name": "page", "in": "query", "type": "integer"}, {"name": "page_size", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/users/{id}/suspension": {"post": {"tags": ["Admin"], "summary": "Suspend or reinstate user", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/teachers/{id}/approve": {"post": {"tags": ["Admin"], "summary": "Approve teacher verification", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/teachers/{id}/reject": {"post": {"tags": ["Admin"], "summary": "Reject teacher verification", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/payments": {"get": {"tags": ["Admin"], "summary": "List payments", "parameters": [{"name": "status", "in": "query", "type": "string"}, {"name": "user_id", "in": "query", "type": "string"}, {"name": "from", "in": "query", "type": "string"}, {"name": "to", "in": "query", "type": "string"}, {"name": "page", "in": "query", "type": "integer"}, {"name": "page_size", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/payments/export": {"post": {"tags": ["Admin"], "summary": "Export payment statement", "parameters": [{"name": "format", "in": "query", "type": "string"}], "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/exports/{id}": {"get": {"tags": ["Admin"], "summary": "Export status", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/exports/download/{token}": {"get": {"tags": ["Admin"], "summary": "Download export", "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "File"}}}},
        "/admin/messages": {"get": {"tags": ["Admin"], "summary": "Messages for moderation", "parameters": [{"name": "conversation_id", "in": "query", "type": "string"}, {"name": "sender_id", "in": "query", "type": "string"}, {"name": "search", "in": "query", "type": "string"}, {"name": "include_deleted", "in": "query", "type": "boolean"}, {"name": "page", "in": "query", "type": "integer"}, {"name": "page_size", "in": "query", "type": "integer"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/messages/{id}/moderate": {"post": {"tags": ["Admin"], "summary": "Remove a message", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/settings": {"get": {"tags": ["Admin"], "summary": "List settings", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}, "put": {"tags": ["Admin"], "summary": "Update settings", "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkUpdateSettingsRequest"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}},
        "/admin/settings/{key}": {"get": {"tags": ["Admin"], "summary": "Get setting", "parameters": [{"name": "key", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}, "security": [{"BearerAuth": []}]}}
    },
    "definitions": {
        "RegisterRequest": {"type": "object", "properties": {"email": {"type": "string"}, "password": {"type": "string"}, "full_name": {"type": "string"}, "role": {"type": "string"}}, "required": ["email", "password", "full_name", "role"]},
        "LoginRequest": {"type": "object", "properties": {"email": {"type": "string"}, "password": {"type": "string"}}, "required": ["email", "password"]},
        "RefreshTokenRequest": {"type": "object", "properties": {"refresh_token": {"type": "string"}}, "required": ["refresh_token"]},
        "ChangePasswordRequest": {"type": "object", "properties": {"old_password": {"type": "string"}, "new_password": {"type": "string"}}, "required": ["old_password", "new_password"]},
        "UpdateProfileRequest": {"type": "object", "properties": {"full_name": {"type": "string"}, "avatar_url": {"type": "string"}}},
        "SendMessageInput": {"type": "object", "properties": {"content": {"type": "string"}, "message_type": {"type": "string"}, "reply_to_id": {"type": "string"}}, "required": ["content"]},
        "UpdatePreferenceRequest": {"type": "object", "properties": {"type": {"type": "string"}, "browser_enabled": {"type": "boolean"}}, "required": ["type", "browser_enabled"]},
        "PushSubscription": {"type": "object", "properties": {"endpoint": {"type": "string"}, "keys": {"type": "object"}}, "required": ["endpoint", "keys"]},
        "CreateSessionRequestInput": {"type": "object", "properties": {"teacher_id": {"type": "string"}, "subject": {"type": "string"}, "message": {"type": "string"}, "requested_start": {"type": "string"}, "duration_hours": {"type": "number"}}, "required": ["teacher_id", "subject", "requested_start", "duration_hours"]},
        "DeclineSessionRequestInput": {"type": "object", "properties": {"reason": {"type": "string"}, "response": {"type": "string"}}, "required": ["reason"]},
        "BulkUpdateSettingsRequest": {"type": "object", "properties": {"items": {"type": "array", "items": {"type": "object", "properties": {"key": {"type": "string"}, "value": {"type": "string"}}, "required": ["key"]}}}},
        "Pagination": {"type": "object", "properties": {"page": {"type": "integer"}, "page_size": {"type": "integer"}, "total_count": {"type": "integer"}}},
        "APIError": {"type": "object", "properties": {"code": {"type": "string"}, "message": {"type": "string"}, "status": {"type": "integer"}}},
        "ResponseEnvelope": {"type": "object", "properties": {"data": {"type": "object"}, "error": {"$ref": "#/definitions/APIError"}, "pagination": {"$ref": "#/definitions/Pagination"}, "meta": {"type": "object"}}}
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
