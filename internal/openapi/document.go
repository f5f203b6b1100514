package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Document builds the OpenAPI 3.1 description of the credential and history
// API surface. The document is static; it is assembled once at startup and
// served verbatim.
func Document(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Conduit API",
			Description: "Credential, session and query history API for the Conduit database connector.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerAuth": {}},
	}

	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
						},
					},
				},
			},
		},
	}
	doc.Components.Schemas["User"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":         &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
				"username":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"email":      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"is_active":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"scopes":     scopesSchema(),
				"created_at": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"updated_at": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
			},
		},
	}
	doc.Components.Schemas["APIKey"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":         &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
				"key_id":     &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"client_id":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"scopes":     scopesSchema(),
				"is_active":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"rate_limit": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
				"created_at": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"expires_at": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"last_used":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
			},
		},
	}
	doc.Components.Schemas["QueryHistory"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"id":             &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
				"username":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"connection_id":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"query":          &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"execution_time": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}},
				"row_count":      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
				"status":         &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: []interface{}{"success", "error"}}},
				"error_message":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"executed_at":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
			},
		},
	}

	doc.Paths = openapi3.NewPaths()

	doc.Paths.Set("/api/v1/auth/session", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "login",
			Summary:     "Authenticate with username and password and receive a bearer token",
			Tags:        []string{"auth"},
			Security:    &openapi3.SecurityRequirements{},
			Responses:   jsonResponses(200, "Token issued", 401),
		},
		Delete: &openapi3.Operation{
			OperationID: "logout",
			Summary:     "Invalidate the current session",
			Tags:        []string{"auth"},
			Responses:   jsonResponses(200, "Session invalidated", 401),
		},
	})

	doc.Paths.Set("/api/v1/history", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listHistory",
			Summary:     "List query history for the caller, newest first (requires read scope)",
			Tags:        []string{"history"},
			Parameters:  pagingParameters(),
			Responses:   jsonResponses(200, "History records", 401),
		},
		Post: &openapi3.Operation{
			OperationID: "recordHistory",
			Summary:     "Record an executed query (requires write scope)",
			Tags:        []string{"history"},
			Responses:   jsonResponses(201, "Record created", 401),
		},
	})

	doc.Paths.Set("/api/v1/system/user", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listUsers",
			Summary:     "List user accounts (requires admin scope)",
			Tags:        []string{"system"},
			Parameters:  pagingParameters(),
			Responses:   jsonResponses(200, "User accounts", 401),
		},
		Post: &openapi3.Operation{
			OperationID: "createUser",
			Summary:     "Create a user account (requires admin scope)",
			Tags:        []string{"system"},
			Responses:   jsonResponses(201, "User created", 401),
		},
	})

	doc.Paths.Set("/api/v1/system/user/{username}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{pathParameter("username")},
		Get: &openapi3.Operation{
			OperationID: "getUser",
			Summary:     "Get a user account (requires admin scope)",
			Tags:        []string{"system"},
			Responses:   jsonResponses(200, "User account", 404),
		},
		Put: &openapi3.Operation{
			OperationID: "updateUser",
			Summary:     "Update a user account (requires admin scope)",
			Tags:        []string{"system"},
			Responses:   jsonResponses(200, "User updated", 404),
		},
		Delete: &openapi3.Operation{
			OperationID: "deleteUser",
			Summary:     "Delete a user account (requires admin scope)",
			Tags:        []string{"system"},
			Responses:   jsonResponses(200, "User deleted", 404),
		},
	})

	doc.Paths.Set("/api/v1/system/api-key", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listAPIKeys",
			Summary:     "List API key records without hashes (requires admin scope)",
			Tags:        []string{"system"},
			Parameters:  pagingParameters(),
			Responses:   jsonResponses(200, "API key records", 401),
		},
		Post: &openapi3.Operation{
			OperationID: "createAPIKey",
			Summary:     "Issue a new API key; the plaintext appears only in this response (requires admin scope)",
			Tags:        []string{"system"},
			Responses:   jsonResponses(201, "API key issued", 401),
		},
	})

	doc.Paths.Set("/api/v1/system/api-key/{keyId}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{pathParameter("keyId")},
		Delete: &openapi3.Operation{
			OperationID: "revokeAPIKey",
			Summary:     "Revoke an API key (requires admin scope)",
			Tags:        []string{"system"},
			Responses:   jsonResponses(200, "API key revoked", 404),
		},
	})

	doc.Paths.Set("/api/v1/system/api-key/{keyId}/rate-limit", &openapi3.PathItem{
		Parameters: openapi3.Parameters{pathParameter("keyId")},
		Put: &openapi3.Operation{
			OperationID: "updateAPIKeyRateLimit",
			Summary:     "Change an API key's request budget (requires admin scope)",
			Tags:        []string{"system"},
			Responses:   jsonResponses(200, "Rate limit updated", 404),
		},
	})

	return doc
}

func scopesSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"array"},
			Items: &openapi3.SchemaRef{
				Value: &openapi3.Schema{
					Type: &openapi3.Types{"string"},
					Enum: []interface{}{"read", "write", "admin"},
				},
			},
		},
	}
}

func pathParameter(name string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:     name,
			In:       "path",
			Required: true,
			Schema:   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
		},
	}
}

func pagingParameters() openapi3.Parameters {
	intSchema := &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}
	return openapi3.Parameters{
		&openapi3.ParameterRef{Value: &openapi3.Parameter{Name: "offset", In: "query", Schema: intSchema}},
		&openapi3.ParameterRef{Value: &openapi3.Parameter{Name: "limit", In: "query", Schema: intSchema}},
	}
}

func jsonResponses(okStatus int, okDescription string, errStatus int) *openapi3.Responses {
	responses := openapi3.NewResponses()
	okDesc := okDescription
	responses.Set(statusText(okStatus), &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &okDesc,
			Content: openapi3.Content{
				"application/json": &openapi3.MediaType{},
			},
		},
	})
	errDesc := "Error"
	responses.Set(statusText(errStatus), &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &errDesc,
			Content: openapi3.Content{
				"application/json": &openapi3.MediaType{
					Schema: &openapi3.SchemaRef{Ref: "#/components/schemas/ErrorResponse"},
				},
			},
		},
	})
	return responses
}

func statusText(code int) string {
	switch code {
	case 200:
		return "200"
	case 201:
		return "201"
	case 401:
		return "401"
	case 404:
		return "404"
	default:
		return "500"
	}
}
