package util

import (
	"testing"
	"time"

	"prepcourse_backend/internal/model"
)

func TestJWTRoundTrip(t *testing.T) {
	user := &model.User{Email: "a@example.com", Role: model.Author}
	user.ID = 42

	token, err := GenerateJWT(user, "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != 42 || claims.Role != model.Author || claims.Email != "a@example.com" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := ParseJWT(token, "other-secret"); err == nil {
		t.Fatalf("token accepted with the wrong secret")
	}

	expired, _ := GenerateJWT(user, "secret", -time.Minute)
	if _, err := ParseJWT(expired, "secret"); err == nil {
		t.Fatalf("expired token accepted")
	}
}
