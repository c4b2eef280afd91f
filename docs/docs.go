// Package docs holds the OpenAPI document served at /docs. Regenerate with
// `swag init -g cmd/server/main.go` after changing handler annotations.
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
        "/auth/signup": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Sign up",
                "parameters": [
                    {"in": "body", "name": "input", "required": true, "schema": {"$ref": "#/definitions/service.SignupInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httpserver.sessionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Log in",
                "parameters": [
                    {"in": "body", "name": "input", "required": true, "schema": {"$ref": "#/definitions/service.LoginInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.sessionResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Log out",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/auth/check": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.userResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}}
                }
            }
        },
        "/auth/update-profile": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Update profile",
                "parameters": [
                    {"in": "body", "name": "input", "required": true, "schema": {"$ref": "#/definitions/service.ProfileInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.userResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}}
                }
            }
        },
        "/messages/users": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "List peers",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.peersResponse"}}
                }
            }
        },
        "/messages/{peerID}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Conversation",
                "parameters": [
                    {"type": "string", "description": "Peer user id", "name": "peerID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.conversationResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}}
                }
            }
        },
        "/messages/send/{peerID}": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Send message",
                "parameters": [
                    {"type": "string", "description": "Receiver user id", "name": "peerID", "in": "path", "required": true},
                    {"in": "body", "name": "input", "required": true, "schema": {"$ref": "#/definitions/service.SendInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/httpserver.sendResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}}
                }
            }
        },
        "/messages/mark/{messageID}": {
            "put": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Mark seen",
                "parameters": [
                    {"type": "string", "description": "Message id", "name": "messageID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.markResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}}
                }
            }
        },
        "/users/online": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Online users",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.onlineResponse"}}
                }
            }
        },
        "/users/{userID}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Get user",
                "parameters": [
                    {"type": "string", "description": "User id", "name": "userID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}}
                }
            }
        },
        "/webhooks/identity": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Identity webhook",
                "parameters": [
                    {"type": "string", "name": "svix-id", "in": "header", "required": true},
                    {"type": "string", "name": "svix-timestamp", "in": "header", "required": true},
                    {"type": "string", "name": "svix-signature", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpserver.errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "httpserver.onlineResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "users": {"type": "array", "items": {"type": "string"}}
            }
        },
        "domain.User": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "fullName": {"type": "string"},
                "bio": {"type": "string"},
                "profilePic": {"type": "string"},
                "createdAt": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "domain.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "senderId": {"type": "string"},
                "receiverId": {"type": "string"},
                "text": {"type": "string"},
                "image": {"type": "string"},
                "seen": {"type": "boolean"},
                "createdAt": {"type": "string"}
            }
        },
        "service.SignupInput": {
            "type": "object",
            "required": ["email", "fullName", "password", "bio"],
            "properties": {
                "email": {"type": "string"},
                "fullName": {"type": "string"},
                "password": {"type": "string", "minLength": 6},
                "bio": {"type": "string"}
            }
        },
        "service.LoginInput": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "service.ProfileInput": {
            "type": "object",
            "properties": {
                "fullName": {"type": "string"},
                "bio": {"type": "string"},
                "profilePic": {"type": "string"}
            }
        },
        "service.SendInput": {
            "type": "object",
            "properties": {
                "text": {"type": "string"},
                "image": {"type": "string"}
            }
        },
        "service.PeerView": {
            "allOf": [
                {"$ref": "#/definitions/domain.User"},
                {"type": "object", "properties": {"online": {"type": "boolean"}}}
            ]
        },
        "httpserver.errorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": false},
                "message": {"type": "string"}
            }
        },
        "httpserver.sessionResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "user": {"$ref": "#/definitions/domain.User"},
                "token": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "httpserver.userResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "user": {"$ref": "#/definitions/domain.User"}
            }
        },
        "httpserver.peersResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "users": {"type": "array", "items": {"$ref": "#/definitions/service.PeerView"}},
                "unseenMessages": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "httpserver.conversationResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}}
            }
        },
        "httpserver.sendResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "newMessage": {"$ref": "#/definitions/domain.Message"}
            }
        },
        "httpserver.markResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"$ref": "#/definitions/domain.Message"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:5000",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "QuickChat API",
	Description:      "One-to-one realtime chat: peers, conversations, seen state and a WebSocket push channel.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
