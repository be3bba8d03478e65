package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/repensar/authcore/blacklist"
)

var (
	// ErrRevoked is returned when a token, its family, or its issuing epoch
	// has been revoked.
	ErrRevoked = errors.New("token revoked")
	// ErrReuseDetected is returned when a superseded refresh token is
	// presented again. The whole family has been revoked by the time the
	// caller sees this error.
	ErrReuseDetected = errors.New("refresh token reuse detected")
)

// ReuseDetectedError carries the identity of the poisoned family so callers
// can audit the incident. It unwraps to [ErrReuseDetected].
type ReuseDetectedError struct {
	UserID   string
	FamilyID string
}

func (e *ReuseDetectedError) Error() string {
	return fmt.Sprintf("refresh token reuse detected for family %s", e.FamilyID)
}

func (e *ReuseDetectedError) Unwrap() error {
	return ErrReuseDetected
}

// Device is per-issuance client metadata embedded into token claims.
type Device struct {
	IP        string
	UserAgent string
}

// Pair is an access+refresh token pair sharing one family id.
type Pair struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	FamilyID     string
	ExpiresIn    time.Duration
}

// ManagerConfig tunes the token state machine.
type ManagerConfig struct {
	// AccessTTL is the access token lifetime (short, e.g. 30 minutes).
	AccessTTL time.Duration
	// RefreshTTL is the refresh token lifetime (long, e.g. 30 days). It also
	// bounds how long family state is retained.
	RefreshTTL time.Duration
	// FailOpen controls revocation *reads* when the blacklist store is
	// unreachable: false (default) treats "cannot confirm not-revoked" as
	// revoked; true accepts the token and logs. Writes and the rotation CAS
	// always fail closed.
	FailOpen bool
	// CheckFamilyOnAuthorize extends family revocation to still-live access
	// tokens: when true, Authorize rejects access tokens whose family was
	// revoked, at the cost of one extra store read per check.
	CheckFamilyOnAuthorize bool
}

// Manager orchestrates issuance, rotation, reuse detection, and revocation.
// Families move through exactly two states: active, then (terminally)
// revoked — on logout-all or the moment a stale refresh token reappears.
type Manager struct {
	codec  *Codec
	store  blacklist.Store
	config ManagerConfig
	now    func() time.Time
}

// NewManager wires the codec and blacklist store into a [Manager].
func NewManager(codec *Codec, store blacklist.Store, cfg ManagerConfig) (*Manager, error) {
	if codec == nil {
		return nil, errors.New("codec required")
	}
	if store == nil {
		return nil, errors.New("blacklist store required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	return &Manager{codec: codec, store: store, config: cfg, now: time.Now}, nil
}

// IssuePair starts a new token family for the user and returns an
// access+refresh pair carrying the same family id and distinct token ids.
// The refresh token is registered as the family's current token.
func (m *Manager) IssuePair(ctx context.Context, userID string, device Device) (Pair, error) {
	epoch, err := m.store.UserEpoch(ctx, userID)
	if err != nil {
		return Pair{}, err
	}

	familyID := uuid.NewString()
	pair, refreshID, err := m.issuePair(userID, familyID, epoch, device)
	if err != nil {
		return Pair{}, err
	}

	if err := m.store.RegisterFamily(ctx, familyID, userID, refreshID, m.config.RefreshTTL); err != nil {
		return Pair{}, err
	}

	return pair, nil
}

// Refresh validates the presented refresh token, detects reuse, and rotates.
// Exactly one of two concurrent calls presenting the same token succeeds;
// the other observes the family already advanced and poisons it.
func (m *Manager) Refresh(ctx context.Context, refreshToken string, device Device) (Pair, error) {
	claims, err := m.codec.Verify(refreshToken)
	if err != nil {
		return Pair{}, err
	}
	if claims.TokenType != TypeRefresh {
		return Pair{}, ErrMalformed
	}

	epoch, err := m.checkLive(ctx, claims)
	if err != nil {
		return Pair{}, err
	}

	nextRefreshID := uuid.NewString()
	status, err := m.store.RotateCurrent(ctx, claims.FamilyID, claims.TokenID, nextRefreshID, m.config.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}

	switch status {
	case blacklist.RotateMismatch:
		// A superseded member of the chain came back: assume theft and kill
		// the entire family, current token included.
		m.poisonFamily(ctx, claims.FamilyID)
		return Pair{}, &ReuseDetectedError{UserID: claims.Subject, FamilyID: claims.FamilyID}
	case blacklist.RotateNotFound:
		return Pair{}, ErrRevoked
	case blacklist.RotateRotated:
		// fall through
	default:
		return Pair{}, fmt.Errorf("unexpected rotate status %d", status)
	}

	// The presented token is consumed now. Blacklist it for its remaining
	// lifetime so per-token lookups reflect that; a replay through Refresh
	// is caught by the rotation mismatch above, not by this entry.
	if err := m.store.Revoke(ctx, claims.TokenID, m.remaining(claims)); err != nil {
		return Pair{}, err
	}

	pair, _, err := m.issuePairWithRefreshID(claims.Subject, claims.FamilyID, nextRefreshID, epoch, device)
	if err != nil {
		return Pair{}, err
	}
	return pair, nil
}

// FamilyHint extracts the family id from a refresh token without verifying
// it. Intended for rate limit bucketing before the real verification runs;
// returns "" when the token does not even decode.
func (m *Manager) FamilyHint(refreshToken string) string {
	claims, err := m.codec.Peek(refreshToken)
	if err != nil {
		return ""
	}
	return claims.FamilyID
}

// Authorize checks an access token for request gatekeeping and returns its
// claims. Family-wide revocation is consulted only when configured.
func (m *Manager) Authorize(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := m.codec.Verify(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrMalformed
	}

	revoked, err := m.revocationRead(ctx, func() (bool, error) {
		return m.store.IsRevoked(ctx, claims.TokenID)
	})
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}

	if m.config.CheckFamilyOnAuthorize {
		famRevoked, err := m.revocationRead(ctx, func() (bool, error) {
			return m.store.IsFamilyRevoked(ctx, claims.FamilyID)
		})
		if err != nil {
			return nil, err
		}
		if famRevoked {
			return nil, ErrRevoked
		}
	}

	if stale, err := m.epochStale(ctx, claims); err != nil {
		return nil, err
	} else if stale {
		return nil, ErrRevoked
	}

	return claims, nil
}

// RevokeToken blacklists a single token id for the given TTL. Used for
// access-token logout when no refresh token is presented.
func (m *Manager) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	return m.store.Revoke(ctx, tokenID, ttl)
}

// RevokeFamilyFromToken revokes the family of a verified refresh token:
// single-session logout. Idempotent — revoking an already-revoked family
// succeeds.
func (m *Manager) RevokeFamilyFromToken(ctx context.Context, refreshToken string) (*Claims, error) {
	claims, err := m.codec.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrMalformed
	}

	if err := m.store.RevokeFamily(ctx, claims.FamilyID, m.config.RefreshTTL); err != nil {
		return claims, err
	}
	m.blacklistFamilyMembers(ctx, claims.FamilyID)
	return claims, nil
}

// RevokeAllForUser invalidates every outstanding token for the user by
// bumping the per-user revocation epoch: O(1) regardless of how many
// sessions exist.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := m.store.BumpUserEpoch(ctx, userID)
	return err
}

// checkLive rejects revoked families and stale epochs, and returns the
// user's current epoch for re-embedding into the rotated pair.
//
// Deliberately NOT checked here: the per-token blacklist. A consumed refresh
// token is blacklisted on rotation, and short-circuiting on that entry would
// answer a replay with ErrRevoked before the rotation CAS ever sees the
// mismatch, so reuse would never be detected and the family never poisoned.
// Replay detection rides on RotateMismatch; the per-token blacklist serves
// Authorize.
func (m *Manager) checkLive(ctx context.Context, claims *Claims) (int64, error) {
	famRevoked, err := m.revocationRead(ctx, func() (bool, error) {
		return m.store.IsFamilyRevoked(ctx, claims.FamilyID)
	})
	if err != nil {
		return 0, err
	}
	if famRevoked {
		return 0, ErrRevoked
	}

	epoch, err := m.store.UserEpoch(ctx, claims.Subject)
	if err != nil {
		if m.config.FailOpen && errors.Is(err, blacklist.ErrUnavailable) {
			log.Printf("authcore: epoch check failed open: %v", err)
			return claims.Epoch, nil
		}
		return 0, err
	}
	if claims.Epoch < epoch {
		return 0, ErrRevoked
	}
	return epoch, nil
}

func (m *Manager) epochStale(ctx context.Context, claims *Claims) (bool, error) {
	epoch, err := m.store.UserEpoch(ctx, claims.Subject)
	if err != nil {
		if m.config.FailOpen && errors.Is(err, blacklist.ErrUnavailable) {
			log.Printf("authcore: epoch check failed open: %v", err)
			return false, nil
		}
		return false, err
	}
	return claims.Epoch < epoch, nil
}

// revocationRead applies the fail-open/fail-closed policy to a blacklist
// read. Fail closed maps "store unreachable" to an error the caller rejects
// on; fail open logs and treats the token as not revoked.
func (m *Manager) revocationRead(_ context.Context, read func() (bool, error)) (bool, error) {
	revoked, err := read()
	if err != nil {
		if m.config.FailOpen && errors.Is(err, blacklist.ErrUnavailable) {
			log.Printf("authcore: revocation check failed open: %v", err)
			return false, nil
		}
		return false, err
	}
	return revoked, nil
}

// poisonFamily marks the family revoked and blacklists every member id still
// tracked for it. Errors are logged, not returned: by the time we are here
// the caller is already rejecting the request, and a partial poison still
// leaves the family marker in place for subsequent checks.
func (m *Manager) poisonFamily(ctx context.Context, familyID string) {
	if err := m.store.RevokeFamily(ctx, familyID, m.config.RefreshTTL); err != nil {
		log.Printf("authcore: family revocation failed: %v", err)
	}
	m.blacklistFamilyMembers(ctx, familyID)
}

func (m *Manager) blacklistFamilyMembers(ctx context.Context, familyID string) {
	members, err := m.store.FamilyMembers(ctx, familyID)
	if err != nil {
		log.Printf("authcore: family member lookup failed: %v", err)
		return
	}
	for _, id := range members {
		if err := m.store.Revoke(ctx, id, m.config.RefreshTTL); err != nil {
			log.Printf("authcore: family member revocation failed: %v", err)
		}
	}
}

func (m *Manager) remaining(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	return claims.ExpiresAt.Time.Sub(m.now())
}

func (m *Manager) issuePair(userID, familyID string, epoch int64, device Device) (Pair, string, error) {
	return m.issuePairWithRefreshID(userID, familyID, uuid.NewString(), epoch, device)
}

func (m *Manager) issuePairWithRefreshID(userID, familyID, refreshID string, epoch int64, device Device) (Pair, string, error) {
	base := Claims{
		FamilyID:  familyID,
		Epoch:     epoch,
		IP:        device.IP,
		UserAgent: device.UserAgent,
	}
	base.Subject = userID

	access := base
	access.TokenID = uuid.NewString()
	access.TokenType = TypeAccess
	accessToken, err := m.codec.Issue(access, m.config.AccessTTL)
	if err != nil {
		return Pair{}, "", err
	}

	refresh := base
	refresh.TokenID = refreshID
	refresh.TokenType = TypeRefresh
	refreshToken, err := m.codec.Issue(refresh, m.config.RefreshTTL)
	if err != nil {
		return Pair{}, "", err
	}

	return Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       userID,
		FamilyID:     familyID,
		ExpiresIn:    m.config.AccessTTL,
	}, refreshID, nil
}
