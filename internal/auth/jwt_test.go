package auth

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestJWT_roundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	id := uuid.New()

	token, err := svc.Generate(id, "dj@example.com", "DJ Example", "user")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != id || claims.DisplayName != "DJ Example" || claims.Role != "user" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWT_rejectsWrongSecret(t *testing.T) {
	token, _ := NewJWTService("secret-a", 1).Generate(uuid.New(), "a@b.c", "A", "user")

	if _, err := NewJWTService("secret-b", 1).Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWT_rejectsGarbage(t *testing.T) {
	if _, err := NewJWTService("s", 1).Validate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestViewerValidator(t *testing.T) {
	svc := NewJWTService("s", 1)
	id := uuid.New()
	token, _ := svc.Generate(id, "dj@example.com", "DJ Example", "user")

	userID, name, err := svc.ViewerValidator()(token)
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	if userID != id.String() || name != "DJ Example" {
		t.Errorf("got %q %q", userID, name)
	}
}
