package logger

import "testing"

func TestSanitizeKVsRedactsCredentials(t *testing.T) {
	in := []interface{}{
		"openrouter_api_key", "sk-or-123",
		"lesson_id", "abc",
		"headers", map[string]interface{}{"Authorization": "Bearer x", "accept": "json"},
	}
	out := sanitizeKVs(in)
	if len(out) != len(in) {
		t.Fatalf("len: got=%d want=%d", len(out), len(in))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("api key not redacted: %v", out[1])
	}
	if out[3] != "abc" {
		t.Fatalf("lesson_id altered: %v", out[3])
	}
	headers, ok := out[5].(map[string]interface{})
	if !ok {
		t.Fatalf("headers type: %T", out[5])
	}
	if headers["Authorization"] != "[REDACTED]" || headers["accept"] != "json" {
		t.Fatalf("headers not sanitized: %v", headers)
	}
}

func TestSanitizeKVsKeepsDanglingKey(t *testing.T) {
	out := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected: %v", out)
	}
}

func TestSanitizeKVsEmptyCredentialStaysEmpty(t *testing.T) {
	out := sanitizeKVs([]interface{}{"elevenlabs_api_key", ""})
	if out[1] != "" {
		t.Fatalf("empty key should stay empty, got %v", out[1])
	}
}
