package middleware_test

import (
	"strings"
	"testing"

	"github.com/teamup-labs/chat-platform/internal/middleware"
)

func TestValidateMessageContent(t *testing.T) {
	if err := middleware.ValidateMessageContent("hello"); err != nil {
		t.Fatalf("valid content rejected: %v", err)
	}
	if err := middleware.ValidateMessageContent("   "); err == nil {
		t.Fatalf("whitespace-only content accepted")
	}
	if err := middleware.ValidateMessageContent(strings.Repeat("a", 10001)); err == nil {
		t.Fatalf("oversized content accepted")
	}
	if err := middleware.ValidateMessageContent("ok\xff"); err == nil {
		t.Fatalf("invalid utf-8 accepted")
	}
}

func TestValidateID(t *testing.T) {
	if err := middleware.ValidateID("0191e000-0000-7000-8000-000000000001"); err != nil {
		t.Fatalf("valid uuid rejected: %v", err)
	}
	for _, id := range []string{"", "abc", "../etc/passwd"} {
		if err := middleware.ValidateID(id); err == nil {
			t.Fatalf("id %q accepted", id)
		}
	}
}
