package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	count       int
	windowEnds  time.Time
	lockoutEnds time.Time
}

// Memory is an in-process [Limiter]. Counters are instance-local, so in a
// multi-instance deployment each instance enforces its own budget.
type Memory struct {
	mu       sync.Mutex
	profiles map[string]Profile
	windows  map[string]*memoryWindow

	now func() time.Time
}

// NewMemory builds an in-process limiter with the given profiles.
func NewMemory(profiles map[string]Profile) (*Memory, error) {
	if err := validateProfiles(profiles); err != nil {
		return nil, err
	}
	return &Memory{
		profiles: cloneProfiles(profiles),
		windows:  make(map[string]*memoryWindow),
		now:      time.Now,
	}, nil
}

func (m *Memory) CheckAndRecord(_ context.Context, identity, action string) (Result, error) {
	profile, ok := m.profiles[action]
	if !ok {
		return Result{}, ErrUnknownAction
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	key := identity + "\x00" + action

	w := m.windows[key]
	if w == nil {
		w = &memoryWindow{}
		m.windows[key] = w
	}

	if now.Before(w.lockoutEnds) {
		return Result{RetryAfter: w.lockoutEnds.Sub(now)}, nil
	}

	if !now.Before(w.windowEnds) {
		w.count = 0
		w.windowEnds = now.Add(profile.Window)
	}

	w.count++
	if w.count <= profile.MaxAttempts {
		return Result{Allowed: true}, nil
	}

	if profile.Lockout > 0 {
		w.lockoutEnds = now.Add(profile.Lockout)
		return Result{RetryAfter: profile.Lockout}, nil
	}
	return Result{RetryAfter: w.windowEnds.Sub(now)}, nil
}

func (m *Memory) Reset(_ context.Context, identity, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, identity+"\x00"+action)
	return nil
}

// Sweep drops expired windows and lockouts. It exists for long-running
// processes; correctness does not depend on it.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, w := range m.windows {
		if !now.Before(w.windowEnds) && !now.Before(w.lockoutEnds) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}
