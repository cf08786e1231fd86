package middleware

import (
	"context"
	"testing"
)

func TestIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "reviewer", "sess-1")

	if userID, ok := GetUserID(ctx); !ok || userID != "user-1" {
		t.Fatalf("GetUserID: got %q ok=%v", userID, ok)
	}
	if role, ok := GetRole(ctx); !ok || role != "reviewer" {
		t.Fatalf("GetRole: got %q ok=%v", role, ok)
	}
	if sessionID, ok := GetSessionID(ctx); !ok || sessionID != "sess-1" {
		t.Fatalf("GetSessionID: got %q ok=%v", sessionID, ok)
	}
}

func TestIdentityAbsent(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetUserID(ctx); ok {
		t.Fatal("GetUserID on a bare context must report false")
	}
	if _, ok := GetRole(ctx); ok {
		t.Fatal("GetRole on a bare context must report false")
	}
	if _, ok := GetSessionID(ctx); ok {
		t.Fatal("GetSessionID on a bare context must report false")
	}
}

func TestClientIP(t *testing.T) {
	if got := ClientIP(context.Background()); got != "unknown" {
		t.Fatalf("ClientIP on a bare context: want unknown, got %q", got)
	}
	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if got := ClientIP(ctx); got != "203.0.113.9" {
		t.Fatalf("ClientIP: got %q", got)
	}
	if got := ClientIP(WithClientIP(context.Background(), "")); got != "unknown" {
		t.Fatalf("empty IP must fall back to unknown, got %q", got)
	}
}
