// Package docs registers the OpenAPI spec gin-swagger serves at
// /swagger/*any. Hand-authored in the shape `swag init` would normally
// generate, since the HTTP boundary carries swaggo annotations without
// running the swag CLI generator.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "ragcore",
    "description": "Tenant-scoped retrieval-augmented answering API.",
    "version": "1.0"
  },
  "paths": {
    "/api/v1/ask": {
      "post": {
        "summary": "Answer a question against the caller's tenant",
        "consumes": ["application/json"],
        "produces": ["application/json"],
        "parameters": [
          {"in": "body", "name": "body", "required": true, "schema": {"type": "object"}}
        ],
        "responses": {
          "200": {"description": "OK"},
          "400": {"description": "input error"},
          "401": {"description": "unauthorized"},
          "429": {"description": "rate limited"},
          "504": {"description": "timeout"}
        }
      }
    },
    "/health": {
      "get": {
        "summary": "Liveness probe",
        "responses": {"200": {"description": "OK"}}
      }
    }
  }
}`

// SwaggerInfo holds exported Swagger metadata, in the shape swag's
// generated docs.go registers against the swag.Spec registry.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "",
	Schemes:          []string{},
	Title:            "ragcore",
	Description:      "Tenant-scoped retrieval-augmented answering API.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
