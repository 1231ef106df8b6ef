// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Support Desk API",
    "description": "Customer chats, operator assignment, internal notes and QC ratings",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "SessionToken": {"type": "apiKey", "in": "header", "name": "X-Session-Token"}
  },
  "paths": {
    "/healthz": {"get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "ok"}, "503": {"description": "database unavailable"}}}},
    "/api/auth": {
      "get": {"tags": ["auth"], "summary": "Current session user", "security": [{"SessionToken": []}], "responses": {"200": {"description": "valid flag and user"}}},
      "post": {"tags": ["auth"], "summary": "login, verify, logout, update_status or get_operators", "responses": {"200": {"description": "ok"}, "400": {"description": "invalid request"}, "401": {"description": "unauthenticated"}, "429": {"description": "rate limited"}}}
    },
    "/api/chats": {
      "get": {"tags": ["chats"], "summary": "List chats", "parameters": [{"name": "status", "in": "query", "type": "string"}], "responses": {"200": {"description": "chat summaries"}}},
      "post": {"tags": ["chats"], "summary": "Chat actions", "responses": {"200": {"description": "ok"}, "201": {"description": "created"}, "409": {"description": "conflict"}}}
    },
    "/api/users": {
      "get": {"tags": ["users"], "summary": "List accounts", "security": [{"SessionToken": []}], "responses": {"200": {"description": "users"}}},
      "post": {"tags": ["users"], "summary": "Create account", "security": [{"SessionToken": []}], "responses": {"201": {"description": "created"}}},
      "put": {"tags": ["users"], "summary": "Update account", "security": [{"SessionToken": []}], "responses": {"200": {"description": "updated"}}}
    }
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
