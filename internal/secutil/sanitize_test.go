package secutil

import (
	"strings"
	"testing"
)

func TestSanitizeForLog_MasksKnownFields(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"password", `{"password":"hunter2"}`},
		{"token", `{"token":"abc123"}`},
		{"access_token", `{"access_token":"abc123"}`},
		{"refresh_token", `{"refresh_token":"abc123"}`},
		{"authorization", `{"authorization":"secret"}`},
		{"api_key", `{"api_key":"sk-live-xyz"}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := SanitizeForLog(c.input)
			if strings.Contains(got, "hunter2") || strings.Contains(got, "abc123") ||
				strings.Contains(got, "secret") || strings.Contains(got, "sk-live-xyz") {
				t.Errorf("expected sensitive value masked, got %q", got)
			}
			if !strings.Contains(got, "***") {
				t.Errorf("expected mask marker in output, got %q", got)
			}
		})
	}
}

func TestSanitizeForLog_MasksBearerToken(t *testing.T) {
	got := SanitizeForLog("Authorization: Bearer abcDEF123.456-789~_")
	if strings.Contains(got, "abcDEF123") {
		t.Errorf("expected bearer token masked, got %q", got)
	}
}

func TestSanitizeForLog_LeavesUnrelatedTextAlone(t *testing.T) {
	input := "what is the capital of France?"
	if got := SanitizeForLog(input); got != input {
		t.Errorf("expected unrelated text unchanged, got %q", got)
	}
}
