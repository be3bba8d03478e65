package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/repensar/authcore/audit"
)

// Logout revokes the session behind the refresh token: the family is marked
// revoked and every tracked member token blacklisted. Idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.RevokeFamilyFromToken(ctx, refreshToken)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, ErrStoreUnavailable) {
			s.emit(ctx, auditEventStoreUnavailable, audit.SeverityWarning, false, "", err, nil)
		}
		return err
	}

	s.emit(ctx, auditEventLogout, audit.SeverityInfo, true, claims.Subject, nil, map[string]string{
		"family_id": claims.FamilyID,
	})
	return nil
}

// RevokeAccessToken blacklists a single access token for the rest of its
// life. For callers that hold only an access token; a full logout should go
// through [Service.Logout] with the refresh token instead.
func (s *Service) RevokeAccessToken(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.Authorize(ctx, accessToken)
	if err != nil {
		if errors.Is(mapError(err), ErrTokenRevoked) {
			return nil // already revoked, nothing to do
		}
		return mapError(err)
	}

	// Pin the blacklist entry to the token's remaining lifetime, not the
	// configured TTL: the entry is pointless once the token has expired on
	// its own.
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	if err := s.tokens.RevokeToken(ctx, claims.TokenID, remaining); err != nil {
		return mapError(err)
	}

	s.emit(ctx, auditEventTokenRevoked, audit.SeverityInfo, true, claims.Subject, nil, map[string]string{
		"family_id": claims.FamilyID,
	})
	return nil
}

// LogoutAll invalidates every outstanding token for the user across all
// devices by advancing the user's revocation epoch. O(1) in session count.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		err = mapError(err)
		if errors.Is(err, ErrStoreUnavailable) {
			s.emit(ctx, auditEventStoreUnavailable, audit.SeverityWarning, false, userID, err, nil)
		}
		return err
	}

	s.emit(ctx, auditEventLogoutAll, audit.SeverityInfo, true, userID, nil, nil)
	return nil
}
