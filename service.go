package authcore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/repensar/authcore/audit"
	"github.com/repensar/authcore/blacklist"
	"github.com/repensar/authcore/ratelimit"
	"github.com/repensar/authcore/token"
)

// Service is the session-management façade. Every operation runs rate
// limiting first, then the token core, then audits the outcome. Construct
// through [Builder.Build]; safe for concurrent use.
type Service struct {
	config   Config
	verifier CredentialVerifier
	tokens   *token.Manager
	limiter  ratelimit.Limiter
	store    blacklist.Store

	dispatcher *audit.Dispatcher
	history    audit.History

	// non-nil only when running on the in-process fallback backend
	memoryStore *blacklist.Memory

	closeOnce sync.Once
}

// Pair is an issued access/refresh token pair. Both tokens share a family
// id; the refresh token is single-use and replaced on every refresh.
type Pair = token.Pair

// Authorize validates an access token and returns the subject user id.
// Revocation checks follow Security.FailOpen when the store is down.
func (s *Service) Authorize(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.tokens.Authorize(ctx, accessToken)
	if err != nil {
		return "", mapError(err)
	}
	return claims.Subject, nil
}

// AuditLog returns recent audit events matching filter, newest first.
// Returns nil when auditing is disabled.
func (s *Service) AuditLog(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Query(ctx, filter)
}

// AuditDropped reports audit events lost to a full dispatch buffer.
func (s *Service) AuditDropped() uint64 {
	return s.dispatcher.Dropped()
}

// Close flushes the audit pipeline and stops the memory sweeper. The
// Service must not be used afterwards.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.dispatcher.Close()
		if s.memoryStore != nil {
			s.memoryStore.Close()
		}
	})
}

func (s *Service) emit(ctx context.Context, eventType string, severity audit.Severity, success bool, userID string, err error, metadata map[string]string) {
	if s.dispatcher == nil {
		return
	}

	event := audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  severity,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if label := auditErrorLabel(err); label != "" {
		event.Error = label
	}

	s.dispatcher.Emit(ctx, event)
}

// checkLimit runs one rate limit probe and converts a denial into a
// *RateLimitedError plus an audit event.
func (s *Service) checkLimit(ctx context.Context, identity, action string) error {
	res, err := s.limiter.CheckAndRecord(ctx, identity, action)
	if err != nil {
		if errors.Is(err, ratelimit.ErrUnavailable) {
			s.emit(ctx, auditEventStoreUnavailable, audit.SeverityWarning, false, "", err, map[string]string{"action": action})
		}
		return mapError(err)
	}
	if !res.Allowed {
		s.emit(ctx, auditEventRateLimitTriggered, audit.SeverityWarning, false, "", ErrRateLimited, map[string]string{
			"action": action,
		})
		return &RateLimitedError{RetryAfter: res.RetryAfter}
	}
	return nil
}

func (s *Service) device(ctx context.Context) token.Device {
	return token.Device{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
}

// auditErrorLabel maps an error to the stable label recorded in audit
// events. Labels never carry credential material.
func auditErrorLabel(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTokenReuseDetected):
		return "token_reuse"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenBadSignature):
		return "token_bad_signature"
	case errors.Is(err, ErrTokenMalformed):
		return "token_malformed"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}
