package credential

import (
	"context"
	"errors"
	"strings"
)

// EnvKey is the variable name the API key is stored under in .env files.
const EnvKey = "OPENAI_API_KEY"

const keyPrefix = "sk-"

var (
	ErrInvalidKeyFormat = errors.New("api key must start with sk-")
	ErrEmptyKey         = errors.New("api key is required")
)

// Provider holds the single authoritative vision API key.
// Set replaces any previous key; Clear removes it so a later Get reports absent.
type Provider interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// ValidateKey trims key and checks the sk- prefix. It returns the trimmed key.
func ValidateKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	if !strings.HasPrefix(key, keyPrefix) {
		return "", ErrInvalidKeyFormat
	}
	return key, nil
}

// Mask hides all but the prefix and the last four characters.
func Mask(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if len(key) <= len(keyPrefix)+4 {
		return keyPrefix + "****"
	}
	return key[:len(keyPrefix)] + "..." + key[len(key)-4:]
}

// Seed stores key in p when p holds no key yet. An empty key is a no-op.
// It reports whether the key was written.
func Seed(ctx context.Context, p Provider, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, nil
	}
	_, ok, err := p.Get(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := p.Set(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}
