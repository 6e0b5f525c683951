package auth

import (
	"errors"
	"testing"
)

func TestHashPasswordAndCheckPasswordBcrypt(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatalf("expected bcrypt password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected bcrypt password check to fail")
	}
}

func TestValidatePassword(t *testing.T) {
	valid := "Str0ng#Password!"
	if err := ValidatePassword(valid); err != nil {
		t.Fatalf("expected valid password, got: %v", err)
	}
	if err := ValidatePassword("short1!A"); err == nil {
		t.Fatalf("expected short password to fail")
	}
	if err := ValidatePassword("alllowercase123!"); err == nil {
		t.Fatalf("expected missing uppercase to fail")
	}
	if err := ValidatePassword("ALLUPPERCASE123!"); err == nil {
		t.Fatalf("expected missing lowercase to fail")
	}
	if err := ValidatePassword("NoDigitsHere!!!"); err == nil {
		t.Fatalf("expected missing digits to fail")
	}
	if err := ValidatePassword("NoSpecials1234"); err == nil {
		t.Fatalf("expected missing special chars to fail")
	}
}

func TestCheckPasswordRejectsEmptyOrMalformedHash(t *testing.T) {
	if CheckPassword("Str0ng#Password!", "") {
		t.Fatalf("expected empty stored hash to fail")
	}
	if CheckPassword("Str0ng#Password!", "not-a-bcrypt-hash") {
		t.Fatalf("expected malformed stored hash to fail")
	}
}

func TestValidatePasswordLengthBoundary(t *testing.T) {
	// 11 and 12 runes; multi-byte runes count once
	if err := ValidatePassword("Ab1!ééééééé"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected 11 runes to be too short, got %v", err)
	}
	if err := ValidatePassword("Ab1!éééééééé"); err != nil {
		t.Fatalf("expected 12 runes to pass, got %v", err)
	}
}
