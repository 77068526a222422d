// Package docs holds the OpenAPI document of the relay, regenerated with
// `swag init -g docs/swagger_relay.go --instanceName relay`.
package docs

import "github.com/swaggo/swag"

const InstanceName = "relay"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "termsOfService": "http://swagger.io/terms/",
        "contact": {
            "name": "API Support",
            "url": "http://www.swagger.io/support",
            "email": "support@swagger.io"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/drivers/{driver_id}/location": {
            "get": {
                "description": "Returns the most recent location relayed for the driver",
                "produces": ["application/json"],
                "tags": ["Location"],
                "summary": "Last known location",
                "parameters": [
                    {"type": "string", "description": "Driver identity", "name": "driver_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.LocationEvent"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "post": {
                "description": "Validates the location exactly like a websocket driver message and relays it to the driver's subscribers",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Location"],
                "summary": "Publish a driver location",
                "parameters": [
                    {"type": "string", "description": "Driver identity", "name": "driver_id", "in": "path", "required": true},
                    {"description": "Location", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.LocationUpdate"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/models.LocationEvent"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "422": {"description": "Unprocessable Entity", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/driver/{driver_id}": {
            "get": {
                "description": "/driver/{driver_id} accepts location messages; /track/{driver_id} and /subscriber/{driver_id} stream the driver's locations after a \"connected\" confirmation",
                "tags": ["Relay"],
                "summary": "Relay websocket",
                "parameters": [
                    {"type": "string", "description": "Driver identity", "name": "driver_id", "in": "path", "required": true}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/track/{driver_id}": {
            "get": {
                "description": "/driver/{driver_id} accepts location messages; /track/{driver_id} and /subscriber/{driver_id} stream the driver's locations after a \"connected\" confirmation",
                "tags": ["Relay"],
                "summary": "Relay websocket",
                "parameters": [
                    {"type": "string", "description": "Driver identity", "name": "driver_id", "in": "path", "required": true}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/subscriber/{driver_id}": {
            "get": {
                "description": "/driver/{driver_id} accepts location messages; /track/{driver_id} and /subscriber/{driver_id} stream the driver's locations after a \"connected\" confirmation",
                "tags": ["Relay"],
                "summary": "Relay websocket",
                "parameters": [
                    {"type": "string", "description": "Driver identity", "name": "driver_id", "in": "path", "required": true}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Returns the health status of the relay and its connection counts",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health Check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "models.LocationEvent": {
            "type": "object",
            "properties": {
                "driverIdentity": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "timestamp": {"type": "string"},
                "speed": {"type": "number"},
                "heading": {"type": "number"},
                "accuracy": {"type": "number"}
            }
        },
        "models.LocationUpdate": {
            "type": "object",
            "properties": {
                "latitude": {"type": "number", "example": 23.8103},
                "longitude": {"type": "number", "example": 90.4125},
                "speed": {"type": "number", "example": 12.5},
                "heading": {"type": "number", "example": 180},
                "accuracy": {"type": "number", "example": 5}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Location Relay API",
	Description:      "Live location relay. Drivers publish positions over /driver/{driver_id}, subscribers follow them over /track/{driver_id}. An HTTP fallback accepts locations and serves the last known one.",
	InfoInstanceName: InstanceName,
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
