package openapi

import (
	"encoding/json"
	"testing"
)

func TestDocument_Structure(t *testing.T) {
	doc := Document("http://localhost:8080", "1.0.0")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("openapi = %q, want 3.1.0", doc.OpenAPI)
	}
	if doc.Info == nil || doc.Info.Version != "1.0.0" {
		t.Errorf("info version not propagated: %+v", doc.Info)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8080" {
		t.Errorf("servers = %+v", doc.Servers)
	}

	for _, scheme := range []string{"apiKey", "bearerAuth"} {
		if _, ok := doc.Components.SecuritySchemes[scheme]; !ok {
			t.Errorf("missing security scheme %q", scheme)
		}
	}

	paths := []string{
		"/api/v1/auth/session",
		"/api/v1/history",
		"/api/v1/system/user",
		"/api/v1/system/user/{username}",
		"/api/v1/system/api-key",
		"/api/v1/system/api-key/{keyId}",
		"/api/v1/system/api-key/{keyId}/rate-limit",
	}
	for _, p := range paths {
		if doc.Paths.Find(p) == nil {
			t.Errorf("missing path %q", p)
		}
	}
}

func TestDocument_LoginSkipsAuth(t *testing.T) {
	doc := Document("http://localhost:8080", "1.0.0")

	login := doc.Paths.Find("/api/v1/auth/session")
	if login == nil || login.Post == nil {
		t.Fatal("missing login operation")
	}
	if login.Post.Security == nil || len(*login.Post.Security) != 0 {
		t.Errorf("login must override the global security requirement with none, got %+v", login.Post.Security)
	}
}

func TestDocument_SerializesToJSON(t *testing.T) {
	doc := Document("http://localhost:8080", "1.0.0")

	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	if decoded["openapi"] != "3.1.0" {
		t.Errorf("serialized openapi = %v", decoded["openapi"])
	}
	if _, ok := decoded["paths"].(map[string]interface{}); !ok {
		t.Error("serialized document missing paths object")
	}
}
