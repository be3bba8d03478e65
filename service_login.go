package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/repensar/authcore/audit"
	"github.com/repensar/authcore/ratelimit"
)

// Login verifies credentials and issues a fresh token pair under a new
// family. Attempts are budgeted per client IP and per identifier; both
// budgets reset on success.
//
// Callers exposing the result over a network should pass failures through
// [PublicError] first.
func (s *Service) Login(ctx context.Context, identifier, password string) (Pair, error) {
	if ip := clientIPFromContext(ctx); ip != "" {
		if err := s.checkLimit(ctx, "ip:"+ip, ratelimit.ActionLogin); err != nil {
			return Pair{}, err
		}
	}
	if err := s.checkLimit(ctx, "id:"+identifier, ratelimit.ActionLogin); err != nil {
		return Pair{}, err
	}

	userID, err := s.verifier.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.emit(ctx, auditEventLoginFailure, audit.SeverityWarning, false, "", ErrInvalidCredentials, map[string]string{
				"identifier": identifier,
			})
			return Pair{}, ErrInvalidCredentials
		}
		return Pair{}, fmt.Errorf("credential backend: %w", err)
	}

	user, err := s.verifier.GetUser(ctx, userID)
	if err != nil {
		return Pair{}, fmt.Errorf("credential backend: %w", err)
	}
	if user.IsLocked {
		s.emit(ctx, auditEventAccountLocked, audit.SeverityWarning, false, userID, ErrAccountLocked, nil)
		return Pair{}, ErrAccountLocked
	}
	if !user.IsActive {
		s.emit(ctx, auditEventAccountDisabled, audit.SeverityWarning, false, userID, ErrAccountDisabled, nil)
		return Pair{}, ErrAccountDisabled
	}

	pair, err := s.tokens.IssuePair(ctx, userID, s.device(ctx))
	if err != nil {
		err = mapError(err)
		if errors.Is(err, ErrStoreUnavailable) {
			s.emit(ctx, auditEventStoreUnavailable, audit.SeverityWarning, false, userID, err, nil)
		}
		return Pair{}, err
	}

	s.resetLoginBudgets(ctx, identifier)
	s.emit(ctx, auditEventLoginSuccess, audit.SeverityInfo, true, userID, nil, map[string]string{
		"family_id": pair.FamilyID,
	})

	return pair, nil
}

// resetLoginBudgets clears counters after a successful login. Failures are
// benign: the counters expire with their windows anyway.
func (s *Service) resetLoginBudgets(ctx context.Context, identifier string) {
	if ip := clientIPFromContext(ctx); ip != "" {
		_ = s.limiter.Reset(ctx, "ip:"+ip, ratelimit.ActionLogin)
	}
	_ = s.limiter.Reset(ctx, "id:"+identifier, ratelimit.ActionLogin)
}
