// ABOUTME: Unit tests for authentication context functions
// ABOUTME: Tests AuthContext and context propagation helpers

package auth

import (
	"context"
	"testing"
)

func TestWithAuth_FromContext(t *testing.T) {
	ctx := context.Background()
	authCtx := &AuthContext{UserID: "user-abc"}

	ctx = WithAuth(ctx, authCtx)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("FromContext() returned nil")
	}
	if got.UserID != "user-abc" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user-abc")
	}
}

func TestFromContext_Missing(t *testing.T) {
	got := FromContext(context.Background())
	if got != nil {
		t.Errorf("FromContext() = %v, want nil for unauthenticated context", got)
	}
}

func TestMustFromContext_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustFromContext() should panic for unauthenticated context")
		}
	}()
	MustFromContext(context.Background())
}

func TestMustFromContext_Present(t *testing.T) {
	ctx := WithAuth(context.Background(), &AuthContext{UserID: "user-xyz"})
	got := MustFromContext(ctx)
	if got.UserID != "user-xyz" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user-xyz")
	}
}
