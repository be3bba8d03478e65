package blacklist

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type familyState struct {
	userID    string
	currentID string
	revoked   bool
	members   map[string]struct{}
	expiresAt time.Time
}

// Memory is the in-process [Store] backend. State is lost on restart and is
// not visible to other instances; this is the documented reduced-guarantee
// mode for single-instance and development deployments.
type Memory struct {
	mu       sync.Mutex
	revoked  map[string]time.Time
	families map[string]*familyState
	epochs   map[string]int64
	sweeper  *cron.Cron
	now      func() time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		revoked:  make(map[string]time.Time),
		families: make(map[string]*familyState),
		epochs:   make(map[string]int64),
		now:      time.Now,
	}
}

// StartSweeper schedules periodic removal of expired entries using a cron
// expression (e.g. "@every 10m"). Without a sweeper, expired entries are
// still invisible to reads but occupy memory until the next sweep or restart.
func (m *Memory) StartSweeper(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { m.Sweep() }); err != nil {
		return err
	}
	c.Start()

	m.mu.Lock()
	if m.sweeper != nil {
		m.sweeper.Stop()
	}
	m.sweeper = c
	m.mu.Unlock()
	return nil
}

// Close stops the sweeper if one is running.
func (m *Memory) Close() {
	m.mu.Lock()
	c := m.sweeper
	m.sweeper = nil
	m.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}

// Sweep removes entries whose TTL has elapsed and returns how many were
// dropped. Families keep their revocation marker until the family itself
// expires.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, id)
			removed++
		}
	}
	for id, fam := range m.families {
		if !fam.expiresAt.After(now) {
			delete(m.families, id)
			removed++
		}
	}
	return removed
}

// IsRevoked reports whether the token id is blacklisted and unexpired.
func (m *Memory) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !exp.After(m.now()) {
		delete(m.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

// Revoke blacklists the token id for ttl. Nonpositive TTLs are ignored: the
// token is already past its natural expiry and needs no entry.
func (m *Memory) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = m.now().Add(ttl)
	return nil
}

// IsFamilyRevoked reports whether the family has been marked revoked.
func (m *Memory) IsFamilyRevoked(_ context.Context, familyID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fam := m.liveFamily(familyID)
	if fam == nil {
		return false, nil
	}
	return fam.revoked, nil
}

// RevokeFamily marks the family revoked. Unknown families get a tombstone so
// that the marker outlives a racing registration.
func (m *Memory) RevokeFamily(_ context.Context, familyID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fam := m.liveFamily(familyID)
	if fam == nil {
		if ttl <= 0 {
			return nil
		}
		fam = &familyState{members: make(map[string]struct{})}
		m.families[familyID] = fam
	}
	fam.revoked = true
	if ttl > 0 {
		exp := m.now().Add(ttl)
		if exp.After(fam.expiresAt) {
			fam.expiresAt = exp
		}
	}
	return nil
}

// RegisterFamily records a new family with its first refresh token id.
func (m *Memory) RegisterFamily(_ context.Context, familyID, userID, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fam := &familyState{
		userID:    userID,
		currentID: tokenID,
		members:   map[string]struct{}{tokenID: {}},
		expiresAt: m.now().Add(ttl),
	}
	if existing := m.liveFamily(familyID); existing != nil && existing.revoked {
		// A tombstone beat the registration; keep the family dead.
		fam.revoked = true
	}
	m.families[familyID] = fam
	return nil
}

// RotateCurrent performs the compare-and-swap under the store mutex.
func (m *Memory) RotateCurrent(_ context.Context, familyID, presentedTokenID, nextTokenID string, ttl time.Duration) (RotateStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fam := m.liveFamily(familyID)
	if fam == nil {
		return RotateNotFound, nil
	}
	if fam.currentID != presentedTokenID {
		return RotateMismatch, nil
	}

	fam.currentID = nextTokenID
	fam.members[nextTokenID] = struct{}{}
	if ttl > 0 {
		fam.expiresAt = m.now().Add(ttl)
	}
	return RotateRotated, nil
}

// FamilyMembers returns every token id tracked under the family.
func (m *Memory) FamilyMembers(_ context.Context, familyID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fam := m.liveFamily(familyID)
	if fam == nil {
		return nil, nil
	}
	out := make([]string, 0, len(fam.members))
	for id := range fam.members {
		out = append(out, id)
	}
	return out, nil
}

// FamilyOwner returns the owning user id, or "" for unknown families.
func (m *Memory) FamilyOwner(_ context.Context, familyID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fam := m.liveFamily(familyID)
	if fam == nil {
		return "", nil
	}
	return fam.userID, nil
}

// UserEpoch returns the user's current revocation epoch.
func (m *Memory) UserEpoch(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epochs[userID], nil
}

// BumpUserEpoch increments and returns the user's revocation epoch.
func (m *Memory) BumpUserEpoch(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochs[userID]++
	return m.epochs[userID], nil
}

// Ping always succeeds for the in-process backend.
func (m *Memory) Ping(context.Context) error {
	return nil
}

// liveFamily returns the family if present and unexpired. Caller holds mu.
func (m *Memory) liveFamily(familyID string) *familyState {
	fam, ok := m.families[familyID]
	if !ok {
		return nil
	}
	if !fam.expiresAt.IsZero() && !fam.expiresAt.After(m.now()) {
		delete(m.families, familyID)
		return nil
	}
	return fam
}
