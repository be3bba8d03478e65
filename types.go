package authcore

import "context"

// UserRecord is what the Service needs to know about an account. The
// caller's user model maps into it; nothing else crosses the boundary.
type UserRecord struct {
	UserID   string
	IsActive bool
	IsLocked bool
}

// CredentialVerifier is the caller-supplied identity backend. The Service
// never sees passwords beyond passing them through, and never stores them.
//
// VerifyCredentials returns the user id on success and
// [ErrInvalidCredentials] (or an error wrapping it) when identifier or
// password is wrong. Any other error is treated as a backend failure.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, identifier, password string) (string, error)
	GetUser(ctx context.Context, userID string) (UserRecord, error)
}
