package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/repensar/authcore/blacklist"
)

func newTestManager(t *testing.T, cfg ManagerConfig) (*Manager, *blacklist.Memory) {
	t.Helper()
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}
	store := blacklist.NewMemory()
	m, err := NewManager(newTestCodec(t), store, cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, store
}

func TestNewManagerValidation(t *testing.T) {
	codec := newTestCodec(t)
	store := blacklist.NewMemory()

	if _, err := NewManager(nil, store, ManagerConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour}); err == nil {
		t.Error("nil codec: expected error")
	}
	if _, err := NewManager(codec, nil, ManagerConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour}); err == nil {
		t.Error("nil store: expected error")
	}
	if _, err := NewManager(codec, store, ManagerConfig{AccessTTL: time.Hour, RefreshTTL: time.Minute}); err == nil {
		t.Error("access >= refresh: expected error")
	}
}

func TestIssuePairShape(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{})

	pair, err := m.IssuePair(ctx, "u1", Device{IP: "203.0.113.9", UserAgent: "cli"})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.UserID != "u1" || pair.FamilyID == "" {
		t.Fatalf("pair = %+v", pair)
	}
	if pair.ExpiresIn != 30*time.Minute {
		t.Fatalf("ExpiresIn = %v", pair.ExpiresIn)
	}

	access, err := m.codec.Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("access verify: %v", err)
	}
	refresh, err := m.codec.Verify(pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh verify: %v", err)
	}

	if access.TokenType != TypeAccess || refresh.TokenType != TypeRefresh {
		t.Fatalf("types = %q, %q", access.TokenType, refresh.TokenType)
	}
	if access.FamilyID != refresh.FamilyID || access.FamilyID != pair.FamilyID {
		t.Fatal("family ids must match across the pair")
	}
	if access.TokenID == refresh.TokenID {
		t.Fatal("token ids must differ within the pair")
	}
	if access.IP != "203.0.113.9" || refresh.UserAgent != "cli" {
		t.Fatal("device metadata missing from claims")
	}
}

func TestIssuePairDistinctFamilies(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{})

	a, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	b, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if a.FamilyID == b.FamilyID {
		t.Fatal("separate logins must start separate families")
	}
}

func TestRefreshRotatesWithinFamily(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{})

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	next, err := m.Refresh(ctx, pair.RefreshToken, Device{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.FamilyID != pair.FamilyID {
		t.Fatal("rotation must stay within the family")
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation must issue a new refresh token")
	}

	// The chain keeps extending.
	if _, err := m.Refresh(ctx, next.RefreshToken, Device{}); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
}

func TestRefreshReuseDetectionPoisonsFamily(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, ManagerConfig{})

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	next, err := m.Refresh(ctx, pair.RefreshToken, Device{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Replaying the consumed token is treated as theft.
	_, err = m.Refresh(ctx, pair.RefreshToken, Device{})
	if !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("reuse error = %v, want ErrReuseDetected", err)
	}
	var reuse *ReuseDetectedError
	if !errors.As(err, &reuse) {
		t.Fatalf("error type = %T", err)
	}
	if reuse.UserID != "u1" || reuse.FamilyID != pair.FamilyID {
		t.Fatalf("reuse detail = %+v", reuse)
	}

	// The still-current token dies with the family.
	if _, err := m.Refresh(ctx, next.RefreshToken, Device{}); !errors.Is(err, ErrRevoked) {
		t.Fatalf("post-poison refresh error = %v, want ErrRevoked", err)
	}

	famRevoked, err := store.IsFamilyRevoked(ctx, pair.FamilyID)
	if err != nil || !famRevoked {
		t.Fatalf("family revoked = %v, %v", famRevoked, err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{})

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := m.Refresh(ctx, pair.AccessToken, Device{}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("access-as-refresh error = %v, want ErrMalformed", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{})

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []Pair
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := m.Refresh(ctx, pair.RefreshToken, Device{})
			if err != nil {
				return
			}
			mu.Lock()
			winners = append(winners, next)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("got %d winners, want exactly 1", len(winners))
	}
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{})

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	claims, err := m.Authorize(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("subject = %q", claims.Subject)
	}

	// Refresh tokens must not pass as access tokens.
	if _, err := m.Authorize(ctx, pair.RefreshToken); !errors.Is(err, ErrMalformed) {
		t.Fatalf("refresh-as-access error = %v, want ErrMalformed", err)
	}
}

func TestAuthorizeRejectsRevokedToken(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{})

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	claims, err := m.Authorize(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	if err := m.RevokeToken(ctx, claims.TokenID, time.Hour); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := m.Authorize(ctx, pair.AccessToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("revoked error = %v, want ErrRevoked", err)
	}
}

func TestRevokeAllForUserInvalidatesEverything(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{})

	a, _ := m.IssuePair(ctx, "u1", Device{})
	b, _ := m.IssuePair(ctx, "u1", Device{})
	other, _ := m.IssuePair(ctx, "u2", Device{})

	if err := m.RevokeAllForUser(ctx, "u1"); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}

	for i, tok := range []string{a.AccessToken, b.AccessToken} {
		if _, err := m.Authorize(ctx, tok); !errors.Is(err, ErrRevoked) {
			t.Fatalf("access %d error = %v, want ErrRevoked", i, err)
		}
	}
	for i, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if _, err := m.Refresh(ctx, tok, Device{}); !errors.Is(err, ErrRevoked) {
			t.Fatalf("refresh %d error = %v, want ErrRevoked", i, err)
		}
	}

	// Other users are untouched, and re-login works after the bump.
	if _, err := m.Authorize(ctx, other.AccessToken); err != nil {
		t.Fatalf("other user access: %v", err)
	}
	fresh, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("post-bump IssuePair: %v", err)
	}
	if _, err := m.Authorize(ctx, fresh.AccessToken); err != nil {
		t.Fatalf("post-bump Authorize: %v", err)
	}
}

func TestRevokeFamilyFromTokenIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{CheckFamilyOnAuthorize: true})

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	for i := 0; i < 2; i++ {
		claims, err := m.RevokeFamilyFromToken(ctx, pair.RefreshToken)
		if err != nil {
			t.Fatalf("RevokeFamilyFromToken call %d: %v", i+1, err)
		}
		if claims.Subject != "u1" {
			t.Fatalf("subject = %q", claims.Subject)
		}
	}

	if _, err := m.Refresh(ctx, pair.RefreshToken, Device{}); !errors.Is(err, ErrRevoked) {
		t.Fatalf("refresh after logout error = %v, want ErrRevoked", err)
	}
	if _, err := m.Authorize(ctx, pair.AccessToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("access after family revocation error = %v, want ErrRevoked", err)
	}
}

func TestRefreshAfterLogoutOfRotatedChain(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{})

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	next, err := m.Refresh(ctx, pair.RefreshToken, Device{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Logout with the current token kills the whole chain, so an earlier
	// member presented afterward is just a dead session, not a reuse alarm.
	if _, err := m.RevokeFamilyFromToken(ctx, next.RefreshToken); err != nil {
		t.Fatalf("RevokeFamilyFromToken: %v", err)
	}

	_, err = m.Refresh(ctx, pair.RefreshToken, Device{})
	if !errors.Is(err, ErrRevoked) {
		t.Fatalf("stale member after logout error = %v, want ErrRevoked", err)
	}
	if errors.Is(err, ErrReuseDetected) {
		t.Fatal("logout must not be reported as reuse")
	}
	if _, err := m.Refresh(ctx, next.RefreshToken, Device{}); !errors.Is(err, ErrRevoked) {
		t.Fatalf("current member after logout error = %v, want ErrRevoked", err)
	}
}

func TestAuthorizeFamilyCheckOptional(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{CheckFamilyOnAuthorize: false})

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := m.RevokeFamilyFromToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("RevokeFamilyFromToken: %v", err)
	}

	// Without the family check the access token rides out its short TTL —
	// unless it was individually blacklisted as a family member. Member
	// blacklisting only covers refresh ids, so access stays valid here.
	if _, err := m.Authorize(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
}

func TestFamilyHint(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ManagerConfig{})

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if hint := m.FamilyHint(pair.RefreshToken); hint != pair.FamilyID {
		t.Fatalf("hint = %q, want %q", hint, pair.FamilyID)
	}
	if hint := m.FamilyHint("garbage"); hint != "" {
		t.Fatalf("garbage hint = %q, want empty", hint)
	}
}

// failingStore simulates an unreachable backend for policy tests.
type failingStore struct {
	blacklist.Store
}

func (failingStore) IsRevoked(context.Context, string) (bool, error) {
	return false, blacklist.ErrUnavailable
}

func (failingStore) IsFamilyRevoked(context.Context, string) (bool, error) {
	return false, blacklist.ErrUnavailable
}

func (failingStore) UserEpoch(context.Context, string) (int64, error) {
	return 0, blacklist.ErrUnavailable
}

func TestAuthorizeFailOpenPolicy(t *testing.T) {
	ctx := context.Background()

	issue, _ := newTestManager(t, ManagerConfig{})
	pair, err := issue.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	build := func(failOpen bool) *Manager {
		m, err := NewManager(newTestCodec(t), failingStore{Store: blacklist.NewMemory()}, ManagerConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			FailOpen:   failOpen,
		})
		if err != nil {
			t.Fatalf("NewManager: %v", err)
		}
		return m
	}

	if _, err := build(false).Authorize(ctx, pair.AccessToken); !errors.Is(err, blacklist.ErrUnavailable) {
		t.Fatalf("fail closed error = %v, want ErrUnavailable", err)
	}
	if _, err := build(true).Authorize(ctx, pair.AccessToken); err != nil {
		t.Fatalf("fail open should accept the token: %v", err)
	}
}

func TestRefreshFailsClosedOnRotation(t *testing.T) {
	ctx := context.Background()

	// Reads fail open, but the CAS write path must still fail closed.
	store := &rotateFailStore{Store: blacklist.NewMemory()}
	m, err := NewManager(newTestCodec(t), store, ManagerConfig{
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		FailOpen:   true,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	pair, err := m.IssuePair(ctx, "u1", Device{})
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	store.failRotate = true
	if _, err := m.Refresh(ctx, pair.RefreshToken, Device{}); !errors.Is(err, blacklist.ErrUnavailable) {
		t.Fatalf("rotation failure error = %v, want ErrUnavailable", err)
	}
}

type rotateFailStore struct {
	blacklist.Store
	failRotate bool
}

func (s *rotateFailStore) RotateCurrent(ctx context.Context, familyID, presentedTokenID, nextTokenID string, ttl time.Duration) (blacklist.RotateStatus, error) {
	if s.failRotate {
		return blacklist.RotateNotFound, blacklist.ErrUnavailable
	}
	return s.Store.RotateCurrent(ctx, familyID, presentedTokenID, nextTokenID, ttl)
}
