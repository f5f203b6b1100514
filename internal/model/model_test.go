package model

import (
	"reflect"
	"testing"
	"time"
)

func TestScopesJSONRoundTrip(t *testing.T) {
	in := ScopeList{"read", "write"}

	raw, err := EncodeScopesJSON(in)
	if err != nil {
		t.Fatalf("EncodeScopesJSON: %v", err)
	}
	if raw != `["read","write"]` {
		t.Errorf("encoded form: got %q", raw)
	}

	out, err := DecodeScopesJSON(raw)
	if err != nil {
		t.Fatalf("DecodeScopesJSON: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip: got %v, want %v", out, in)
	}
}

func TestScopesJSONEmpty(t *testing.T) {
	raw, err := EncodeScopesJSON(nil)
	if err != nil {
		t.Fatalf("EncodeScopesJSON: %v", err)
	}
	if raw != "[]" {
		t.Errorf("nil list: got %q, want %q", raw, "[]")
	}

	out, err := DecodeScopesJSON("")
	if err != nil {
		t.Fatalf("DecodeScopesJSON: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("empty input: got %v, want empty list", out)
	}
}

func TestScopesCSVRoundTrip(t *testing.T) {
	in := ScopeList{"read", "write"}
	out := DecodeScopesCSV(EncodeScopesCSV(in))
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip: got %v, want %v", out, in)
	}

	if got := DecodeScopesCSV(""); len(got) != 0 {
		t.Errorf("empty input: got %v, want empty list", got)
	}
}

func TestScopeListMissing(t *testing.T) {
	granted := ScopeList{"read", "write"}

	if m := granted.Missing(ScopeList{"read"}); len(m) != 0 {
		t.Errorf("expected no missing scopes, got %v", m)
	}
	if m := granted.Missing(nil); len(m) != 0 {
		t.Errorf("empty requirement should always be satisfied, got %v", m)
	}

	m := ScopeList{"read"}.Missing(ScopeList{"read", "admin"})
	if !reflect.DeepEqual(m, ScopeList{"admin"}) {
		t.Errorf("got missing %v, want [admin]", m)
	}
}

func TestAPIKeyExpired(t *testing.T) {
	now := time.Now()

	k := &APIKey{}
	if k.Expired(now) {
		t.Error("key without expiry should never expire")
	}

	past := now.Add(-time.Minute)
	k.ExpiresAt = &past
	if !k.Expired(now) {
		t.Error("key with past expiry should be expired")
	}

	future := now.Add(time.Minute)
	k.ExpiresAt = &future
	if k.Expired(now) {
		t.Error("key with future expiry should not be expired")
	}
}
