package app

import (
	"context"

	"appraiserai/internal/util"
	"appraiserai/pkg/credential"
	"appraiserai/pkg/domain"
)

// CredentialStatus reports whether a vision key is configured, masked.
type CredentialStatus struct {
	Configured bool   `json:"configured"`
	Masked     string `json:"masked,omitempty"`
}

// GetCredential returns the status of the stored vision API key.
func (a *App) GetCredential(ctx context.Context, user domain.User) (CredentialStatus, error) {
	if !user.IsAdmin() {
		return CredentialStatus{}, ErrForbidden
	}
	key, ok, err := a.creds.Get(ctx)
	if err != nil {
		return CredentialStatus{}, err
	}
	if !ok {
		return CredentialStatus{}, nil
	}
	return CredentialStatus{Configured: true, Masked: credential.Mask(key)}, nil
}

// SetCredential validates and stores a new vision API key, replacing any
// previous one.
func (a *App) SetCredential(ctx context.Context, user domain.User, key string) (CredentialStatus, error) {
	if !user.IsAdmin() {
		return CredentialStatus{}, ErrForbidden
	}
	key, err := credential.ValidateKey(key)
	if err != nil {
		return CredentialStatus{}, err
	}
	if err := a.creds.Set(ctx, key); err != nil {
		return CredentialStatus{}, err
	}
	util.LoggerFromContext(ctx).Info("vision api key updated", "user_id", user.ID, "key", credential.Mask(key))
	return CredentialStatus{Configured: true, Masked: credential.Mask(key)}, nil
}

// ClearCredential removes the stored vision API key.
func (a *App) ClearCredential(ctx context.Context, user domain.User) error {
	if !user.IsAdmin() {
		return ErrForbidden
	}
	if err := a.creds.Clear(ctx); err != nil {
		return err
	}
	util.LoggerFromContext(ctx).Info("vision api key cleared", "user_id", user.ID)
	return nil
}
